package archive

import (
	"context"
	"sync"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
)

// MemorySink keeps transcripts in process. Used when Redis is disabled and
// by tests.
type MemorySink struct {
	mu      sync.Mutex
	entries map[domain.MeetingID][]ports.TranscriptEntry
	ended   map[domain.MeetingID]time.Time
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		entries: make(map[domain.MeetingID][]ports.TranscriptEntry),
		ended:   make(map[domain.MeetingID]time.Time),
	}
}

func (s *MemorySink) Append(_ context.Context, entry ports.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Meeting] = append(s.entries[entry.Meeting], entry)
	return nil
}

func (s *MemorySink) MeetingEnded(_ context.Context, id domain.MeetingID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[id] = endedAt
	return nil
}

// Entries returns a copy of the transcript collected for a meeting.
func (s *MemorySink) Entries(id domain.MeetingID) []ports.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.TranscriptEntry, len(s.entries[id]))
	copy(out, s.entries[id])
	return out
}

// Ended reports whether the meeting-ended notification arrived.
func (s *MemorySink) Ended(id domain.MeetingID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ended[id]
	return ok
}
