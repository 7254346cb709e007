package directory

import (
	"context"
	"sync"

	"telemeet/internal/core/domain"
)

// MemoryDirectory is the in-process meeting directory. Deployments fronted by
// the real scheduling system provision meetings through the HTTP API; tests
// register them directly.
type MemoryDirectory struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingID]domain.MeetingInfo
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		meetings: make(map[domain.MeetingID]domain.MeetingInfo),
	}
}

// Register adds or replaces meeting metadata. Limits below one mean
// unlimited.
func (d *MemoryDirectory) Register(info domain.MeetingInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meetings[info.ID] = info
}

func (d *MemoryDirectory) Remove(id domain.MeetingID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.meetings, id)
}

func (d *MemoryDirectory) ResolveMeeting(_ context.Context, id domain.MeetingID) (domain.MeetingInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.meetings[id]
	if !ok {
		return domain.MeetingInfo{}, domain.ErrSessionNotFound
	}
	return info, nil
}

func (d *MemoryDirectory) List() []domain.MeetingInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.MeetingInfo, 0, len(d.meetings))
	for _, info := range d.meetings {
		out = append(out, info)
	}
	return out
}
