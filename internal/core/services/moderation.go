package services

import (
	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
)

// authorizeModeration admits host-only actions. The requester must be the
// meeting's configured host, checked per request: roles cannot be smuggled
// across meetings or connections.
func (s *Session) authorizeModeration(from domain.ConnID) (*domain.Participant, error) {
	requester, err := s.memberOrReject(from)
	if err != nil {
		return nil, err
	}
	if !requester.IsHost() || requester.UserID != s.meeting.Info.HostID {
		return nil, domain.ErrUnauthorizedModeration
	}
	return requester, nil
}

// handleMuteParticipant force-mutes another participant. Idempotent against
// an already absent or already muted target.
func (s *Session) handleMuteParticipant(env envelope) error {
	requester, err := s.authorizeModeration(env.from)
	if err != nil {
		return err
	}

	var payload domain.ModerationPayload
	if err := decode(env.ev.Payload, &payload); err != nil {
		return err
	}

	target, ok := s.members[payload.TargetID]
	if !ok {
		// Target already gone; nothing to do.
		return nil
	}
	if target.Flags.Muted {
		return nil
	}
	target.Flags.Muted = true

	s.router.Broadcast("", domain.Outbound{
		Type:    domain.OutParticipantMuted,
		From:    env.from,
		Payload: target.Info(),
	})
	s.logger.Infow("participant muted by host",
		"host", requester.UserID, "target", target.UserID)
	return nil
}

// handleRemoveParticipant ejects a participant: the target hears why before
// its connection is torn down, then the normal leave cleanup path runs.
func (s *Session) handleRemoveParticipant(env envelope) error {
	requester, err := s.authorizeModeration(env.from)
	if err != nil {
		return err
	}

	var payload domain.ModerationPayload
	if err := decode(env.ev.Payload, &payload); err != nil {
		return err
	}

	target, ok := s.members[payload.TargetID]
	if !ok {
		return nil
	}

	s.router.Unicast(payload.TargetID, domain.Outbound{
		Type:    domain.OutRemovedFromMeeting,
		Payload: domain.RemovalNotice{Reason: domain.RemovalReasonModeration},
	})
	s.removeMember(payload.TargetID, "removed-by-host", func(conn ports.Connection) {
		conn.Shutdown(domain.RemovalReasonModeration)
	})
	s.logger.Infow("participant removed by host",
		"host", requester.UserID, "target", target.UserID)
	return nil
}
