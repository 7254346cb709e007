package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
)

// eventTranslationReady is the internal event a finished translation job uses
// to re-enter the meeting loop. It never appears on the wire.
const eventTranslationReady domain.EventType = "internal:translation-ready"

// handleMediaControl applies a participant's own media flag change and echoes
// it to everyone else. Only the owner ever writes these flags, except for
// host moderation.
func (s *Session) handleMediaControl(env envelope) error {
	member, err := s.memberOrReject(env.from)
	if err != nil {
		return err
	}

	var out domain.OutboundType
	switch env.ev.Type {
	case domain.EventToggleAudio:
		var payload domain.ToggleAudioPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		member.Flags.Muted = payload.Muted
		out = domain.OutUserAudioToggled
	case domain.EventToggleVideo:
		var payload domain.ToggleVideoPayload
		if err := decode(env.ev.Payload, &payload); err != nil {
			return err
		}
		member.Flags.CameraOff = payload.CameraOff
		out = domain.OutUserVideoToggled
	case domain.EventStartScreenShare:
		if !s.meeting.Info.Features.ScreenShareAllowed {
			return fmt.Errorf("%w: screen sharing disabled for this meeting", domain.ErrInvalidEvent)
		}
		member.Flags.ScreenSharing = true
		out = domain.OutUserStartedScreenShare
	case domain.EventStopScreenShare:
		member.Flags.ScreenSharing = false
		out = domain.OutUserStoppedScreenShare
	case domain.EventRaiseHand:
		member.Flags.HandRaised = true
		out = domain.OutHandRaised
	case domain.EventLowerHand:
		member.Flags.HandRaised = false
		out = domain.OutHandLowered
	default:
		return domain.ErrInvalidEvent
	}

	s.router.Broadcast(env.from, domain.Outbound{
		Type:    out,
		From:    env.from,
		Payload: member.Info(),
	})
	return nil
}

func (s *Session) handleChat(env envelope) error {
	member, err := s.memberOrReject(env.from)
	if err != nil {
		return err
	}
	if !s.meeting.Info.Features.ChatAllowed {
		return fmt.Errorf("%w: chat disabled for this meeting", domain.ErrInvalidEvent)
	}

	var payload domain.ChatPayload
	if err := decode(env.ev.Payload, &payload); err != nil {
		return err
	}
	if payload.Text == "" {
		return fmt.Errorf("%w: empty chat message", domain.ErrInvalidEvent)
	}

	msg := domain.ChatMessage{
		From:      env.from,
		UserID:    member.UserID,
		Text:      payload.Text,
		Timestamp: s.now(),
	}
	s.router.Broadcast(env.from, domain.Outbound{
		Type:    domain.OutNewChatMessage,
		From:    env.from,
		Payload: msg,
	})

	s.archive(ports.TranscriptEntry{
		Meeting:   s.meeting.Info.ID,
		Kind:      "chat",
		UserID:    member.UserID,
		Text:      payload.Text,
		Timestamp: msg.Timestamp,
	})

	if len(payload.RequestedTranslationLanguages) > 0 &&
		s.meeting.Info.Features.TranslationAllowed && s.translator != nil {
		s.requestTranslation(env.from, msg, payload.RequestedTranslationLanguages)
	}
	return nil
}

// requestTranslation fires the translation job off the loop; the result
// comes back as an ordinary inbound event.
func (s *Session) requestTranslation(from domain.ConnID, msg domain.ChatMessage, languages []string) {
	translator := s.translator
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		translations, err := translator.Translate(ctx, msg.Text, languages)
		if err != nil {
			s.logger.Warnw("translation request failed", "error", err)
			return
		}
		msg.Translations = translations
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		s.Submit(from, domain.Event{Type: eventTranslationReady, Payload: raw})
	}()
}

// handleTranslationReady broadcasts the translated variants. The sender may
// have left in the meantime; the message still reaches current members.
func (s *Session) handleTranslationReady(env envelope) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(env.ev.Payload, &msg); err != nil {
		return
	}
	s.router.Broadcast(env.from, domain.Outbound{
		Type:    domain.OutNewChatMessage,
		From:    env.from,
		Payload: msg,
	})
}

// handleSubtitle transports an already produced caption to the other
// members. Producing the text is the speech-to-text collaborator's job.
func (s *Session) handleSubtitle(env envelope) error {
	member, err := s.memberOrReject(env.from)
	if err != nil {
		return err
	}

	var payload domain.SubtitlePayload
	if err := decode(env.ev.Payload, &payload); err != nil {
		return err
	}
	if payload.Text == "" {
		return fmt.Errorf("%w: empty subtitle", domain.ErrInvalidEvent)
	}

	caption := domain.CaptionEvent{
		From:       env.from,
		UserID:     member.UserID,
		Text:       payload.Text,
		Language:   payload.Language,
		Confidence: payload.Confidence,
		Timestamp:  s.now(),
	}
	s.router.Broadcast(env.from, domain.Outbound{
		Type:    domain.OutNewSubtitle,
		From:    env.from,
		Payload: caption,
	})

	s.archive(ports.TranscriptEntry{
		Meeting:   s.meeting.Info.ID,
		Kind:      "caption",
		UserID:    member.UserID,
		Text:      payload.Text,
		Language:  payload.Language,
		Timestamp: caption.Timestamp,
	})
	return nil
}

// archive hands a transcript line to the external sink without blocking the
// meeting loop.
func (s *Session) archive(entry ports.TranscriptEntry) {
	if s.sink == nil {
		return
	}
	sink := s.sink
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Append(ctx, entry); err != nil {
			s.logger.Warnw("transcript append failed", "kind", entry.Kind, "error", err)
		}
	}()
}
