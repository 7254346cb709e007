package ports

import (
	"context"
	"time"

	"telemeet/internal/core/domain"
)

// Identity is the result of resolving an opaque credential with the external
// identity collaborator.
type Identity struct {
	UserID domain.UserID
	Name   string
	Role   domain.Role
}

// IdentityService maps an opaque credential to a user identity.
// domain.ErrAuthenticationFailure rejects the connection before any meeting
// state is touched.
type IdentityService interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// Directory resolves meeting metadata from the external scheduling system,
// once per meeting at creation time. Unknown ids return
// domain.ErrSessionNotFound.
type Directory interface {
	ResolveMeeting(ctx context.Context, id domain.MeetingID) (domain.MeetingInfo, error)
}

// TranscriptEntry is one chat or caption line handed off for external
// persistence.
type TranscriptEntry struct {
	Meeting   domain.MeetingID `json:"meeting"`
	Kind      string           `json:"kind"` // "chat" | "caption"
	UserID    domain.UserID    `json:"user_id"`
	Text      string           `json:"text"`
	Language  string           `json:"language,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TranscriptSink receives finished chat/caption lines and the terminal
// meeting-ended notification. Calls happen off the meeting loop and must not
// assume ordering across meetings.
type TranscriptSink interface {
	Append(ctx context.Context, entry TranscriptEntry) error
	MeetingEnded(ctx context.Context, id domain.MeetingID, endedAt time.Time) error
}

// Translator produces translated variants of a chat message. The core only
// transports the result; correctness of the text is the collaborator's
// problem.
type Translator interface {
	Translate(ctx context.Context, text string, languages []string) (map[string]string, error)
}

// Metrics decouples the core from the concrete collector.
type Metrics interface {
	MeetingOpened()
	MeetingClosed()
	ParticipantJoined(meeting domain.MeetingID)
	ParticipantLeft(meeting domain.MeetingID)
	LinkOpened()
	LinkClosed(state domain.LinkState)
	SignalRouted(eventType string)
	EventDropped(reason string)
	ObserveJoin(d time.Duration)
}

// NopMetrics is the default when monitoring is disabled.
type NopMetrics struct{}

func (NopMetrics) MeetingOpened()                         {}
func (NopMetrics) MeetingClosed()                         {}
func (NopMetrics) ParticipantJoined(domain.MeetingID)     {}
func (NopMetrics) ParticipantLeft(domain.MeetingID)       {}
func (NopMetrics) LinkOpened()                            {}
func (NopMetrics) LinkClosed(domain.LinkState)            {}
func (NopMetrics) SignalRouted(string)                    {}
func (NopMetrics) EventDropped(string)                    {}
func (NopMetrics) ObserveJoin(time.Duration)              {}
