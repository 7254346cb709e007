package services

import (
	"encoding/json"
	"fmt"

	"telemeet/internal/core/domain"
)

// handleSignaling relays the three-message handshake between exactly two
// connections, guarded by the pair's link state machine. Anything referencing
// an unknown or closed link, or a superseded sequence number, is stale and
// dropped by the dispatcher.
func (s *Session) handleSignaling(env envelope) error {
	if _, err := s.memberOrReject(env.from); err != nil {
		return err
	}

	switch env.ev.Type {
	case domain.EventOffer:
		var payload domain.OfferPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		return s.relayOffer(env, payload)
	case domain.EventAnswer:
		var payload domain.AnswerPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		return s.relayAnswer(env, payload)
	case domain.EventICECandidate:
		var payload domain.CandidatePayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		return s.relayCandidate(env, payload)
	case domain.EventLinkEstablished:
		var payload domain.LinkPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		return s.markEstablished(env.from, payload.TargetID)
	case domain.EventRenegotiate:
		var payload domain.LinkPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		return s.requestRenegotiation(env.from, payload.TargetID)
	}
	return domain.ErrInvalidEvent
}

// relayOffer admits the offer into the link state machine and forwards it
// verbatim to the named target. The link enters offer-sent only now, when the
// offering side's local description actually exists.
func (s *Session) relayOffer(env envelope, payload domain.OfferPayload) error {
	link, ok := s.links.get(env.from, payload.TargetID)
	if !ok {
		return domain.ErrStaleSignal
	}
	// The initial offer always comes from the link's initiator, the later
	// joiner. An offer from the other end would collide with the one the
	// initiator is already producing.
	if link.State == domain.LinkIdle && env.from != link.Initiator {
		return fmt.Errorf("%w: link %s is initiated by %s", domain.ErrInvalidEvent, link.Key, link.Initiator)
	}
	if err := s.acceptSeq(link, env.ev.Seq); err != nil {
		return err
	}
	if err := link.MarkOfferSent(s.links.deadline(s.now())); err != nil {
		return err
	}
	s.router.Unicast(payload.TargetID, domain.Outbound{
		Type:    domain.OutOffer,
		From:    env.from,
		Seq:     env.ev.Seq,
		Payload: payload.Description,
	})
	return nil
}

func (s *Session) relayAnswer(env envelope, payload domain.AnswerPayload) error {
	link, ok := s.links.get(env.from, payload.TargetID)
	if !ok {
		return domain.ErrStaleSignal
	}
	if err := s.acceptSeq(link, env.ev.Seq); err != nil {
		return err
	}
	if err := link.AcceptAnswer(s.links.deadline(s.now())); err != nil {
		return err
	}
	s.router.Unicast(payload.TargetID, domain.Outbound{
		Type:    domain.OutAnswer,
		From:    env.from,
		Seq:     env.ev.Seq,
		Payload: payload.Description,
	})
	return nil
}

// relayCandidate forwards trickled ICE candidates for a live link. Candidates
// carry no state transition of their own.
func (s *Session) relayCandidate(env envelope, payload domain.CandidatePayload) error {
	link, ok := s.links.get(env.from, payload.TargetID)
	if !ok || link.State == domain.LinkClosed {
		return domain.ErrStaleSignal
	}
	if err := s.acceptSeq(link, env.ev.Seq); err != nil {
		return err
	}
	s.router.Unicast(payload.TargetID, domain.Outbound{
		Type:    domain.OutICECandidate,
		From:    env.from,
		Seq:     env.ev.Seq,
		Payload: payload.Candidate,
	})
	return nil
}

// markEstablished records the first acknowledged media flow. A renegotiation
// queued during the handshake starts now: the link's initiator is told to
// produce a fresh offer.
func (s *Session) markEstablished(from, target domain.ConnID) error {
	link, ok := s.links.get(from, target)
	if !ok {
		return domain.ErrStaleSignal
	}
	renegotiate, err := link.Establish()
	if err != nil {
		return err
	}
	if renegotiate {
		s.router.Unicast(link.Initiator, domain.Outbound{
			Type:    domain.OutRenegotiationNeeded,
			Payload: domain.LinkPayload{TargetID: link.Key.Other(link.Initiator)},
		})
	}
	return nil
}

// requestRenegotiation serializes track swaps (camera to screen-share and
// back) against the handshake: a request while one is in flight queues
// instead of interleaving, so offers never cross.
func (s *Session) requestRenegotiation(from, target domain.ConnID) error {
	link, ok := s.links.get(from, target)
	if !ok {
		return domain.ErrStaleSignal
	}
	startNow, err := link.RequestRenegotiation()
	if err != nil {
		return err
	}
	if startNow {
		s.router.Unicast(from, domain.Outbound{
			Type:    domain.OutRenegotiationNeeded,
			Payload: domain.LinkPayload{TargetID: target},
		})
	}
	return nil
}

// acceptSeq enforces the per-link monotone sequence when the sender
// sequences its signaling; unsequenced messages pass through.
func (s *Session) acceptSeq(link *domain.PeerLink, seq uint64) error {
	if seq == 0 {
		return nil
	}
	return link.AcceptSignal(seq)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return nil
}
