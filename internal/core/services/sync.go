package services

import (
	"fmt"

	"telemeet/internal/core/domain"
)

// applyRecordingState transitions the session-wide recording flag. Only the
// host may toggle it; the merged value is what gets re-broadcast, so no
// member ever observes an intermediate state. Because every toggle flows
// through the meeting loop, the last processed write is the last writer and
// its timestamp wins.
func (s *Session) applyRecordingState(from domain.ConnID, desired bool) error {
	member, err := s.memberOrReject(from)
	if err != nil {
		return err
	}
	if !member.IsHost() || member.UserID != s.meeting.Info.HostID {
		return domain.ErrUnauthorizedModeration
	}
	if desired && !s.meeting.Info.Features.RecordingAllowed {
		return fmt.Errorf("%w: recording disabled for this meeting", domain.ErrInvalidEvent)
	}

	if !s.meeting.Recording.Apply(desired, member.UserID, s.now()) {
		// Superseded by a later write; the newer value was already
		// broadcast.
		return nil
	}

	out := domain.OutRecordingStopped
	if desired {
		out = domain.OutRecordingStarted
	}
	// The host hears the echo too so every member converges on one value.
	s.router.Broadcast("", domain.Outbound{
		Type:    out,
		From:    from,
		Payload: s.meeting.Recording,
	})
	s.logger.Infow("recording state changed", "active", desired, "by", member.UserID)
	return nil
}
