package domain

import "time"

// MediaFlags are owned by the participant they describe. Nobody else writes
// them except the host through moderation (mute).
type MediaFlags struct {
	Muted         bool `json:"muted"`
	CameraOff     bool `json:"camera_off"`
	ScreenSharing bool `json:"screen_sharing"`
	HandRaised    bool `json:"hand_raised"`
}

// Participant is one connected party in a meeting. ConnID is ephemeral, one
// per physical connection; UserID is stable across reconnects.
type Participant struct {
	ConnID   ConnID     `json:"conn_id"`
	UserID   UserID     `json:"user_id"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	Flags    MediaFlags `json:"flags"`
	JoinedAt time.Time  `json:"joined_at"`
}

func (p *Participant) IsHost() bool {
	return p.Role == RoleHost
}

// Info returns the wire representation shared with other members.
func (p *Participant) Info() ParticipantInfo {
	return ParticipantInfo{
		ConnID: p.ConnID,
		UserID: p.UserID,
		Name:   p.Name,
		Role:   p.Role,
		Flags:  p.Flags,
	}
}

type ParticipantInfo struct {
	ConnID ConnID     `json:"conn_id"`
	UserID UserID     `json:"user_id"`
	Name   string     `json:"name"`
	Role   Role       `json:"role"`
	Flags  MediaFlags `json:"flags"`
}
