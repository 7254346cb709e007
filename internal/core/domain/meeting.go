package domain

import "time"

type MeetingID string
type UserID string
type ConnID string

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// FeatureFlags are resolved once from the directory at meeting creation and
// never change for the lifetime of the meeting.
type FeatureFlags struct {
	ChatAllowed        bool   `json:"chat_allowed"`
	ScreenShareAllowed bool   `json:"screen_share_allowed"`
	RecordingAllowed   bool   `json:"recording_allowed"`
	TranslationAllowed bool   `json:"translation_allowed"`
	DefaultLanguage    string `json:"default_language"`
}

type MeetingLimits struct {
	MaxParticipants int `json:"max_participants"`
}

// MeetingInfo is the immutable metadata supplied by the external directory.
type MeetingInfo struct {
	ID          MeetingID     `json:"id"`
	HostID      UserID        `json:"host_id"`
	Limits      MeetingLimits `json:"limits"`
	Features    FeatureFlags  `json:"features"`
	WaitingRoom bool          `json:"waiting_room"`
}

// RecordingState is the session-wide recording flag. Conflicting toggles are
// resolved last-writer-wins on ChangedAt.
type RecordingState struct {
	Active    bool      `json:"active"`
	ChangedBy UserID    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at,omitempty"`
}

// Apply merges a requested transition into the state. It returns false when
// the request is superseded by a later write and must not be re-broadcast.
func (r *RecordingState) Apply(active bool, by UserID, at time.Time) bool {
	if at.Before(r.ChangedAt) {
		return false
	}
	r.Active = active
	r.ChangedBy = by
	r.ChangedAt = at
	return true
}

type Meeting struct {
	Info      MeetingInfo
	Recording RecordingState
	CreatedAt time.Time
}
