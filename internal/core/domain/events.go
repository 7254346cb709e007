package domain

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v3"
)

// EventType tags inbound events. Every inbound event is scoped to one meeting
// and attributed to the sending connection by the transport.
type EventType string

const (
	EventJoin              EventType = "join"
	EventLeave             EventType = "leave"
	EventOffer             EventType = "offer"
	EventAnswer            EventType = "answer"
	EventICECandidate      EventType = "ice-candidate"
	EventLinkEstablished   EventType = "link-established"
	EventRenegotiate       EventType = "renegotiate"
	EventToggleAudio       EventType = "toggle-audio"
	EventToggleVideo       EventType = "toggle-video"
	EventStartScreenShare  EventType = "start-screen-share"
	EventStopScreenShare   EventType = "stop-screen-share"
	EventSendChatMessage   EventType = "send-chat-message"
	EventSendSubtitle      EventType = "send-subtitle"
	EventRaiseHand         EventType = "raise-hand"
	EventLowerHand         EventType = "lower-hand"
	EventMuteParticipant   EventType = "mute-participant"
	EventRemoveParticipant EventType = "remove-participant"
	EventStartRecording    EventType = "start-recording"
	EventStopRecording     EventType = "stop-recording"
)

// Event is the wire envelope for inbound traffic. Payload stays raw until the
// meeting loop decodes it against the type tag.
type Event struct {
	Type    EventType       `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OfferPayload struct {
	TargetID    ConnID                    `json:"target_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type AnswerPayload struct {
	TargetID    ConnID                    `json:"target_id"`
	Description webrtc.SessionDescription `json:"description"`
}

type CandidatePayload struct {
	TargetID  ConnID                  `json:"target_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type LinkPayload struct {
	TargetID ConnID `json:"target_id"`
}

type ToggleAudioPayload struct {
	Muted bool `json:"muted"`
}

type ToggleVideoPayload struct {
	CameraOff bool `json:"camera_off"`
}

type ChatPayload struct {
	Text                          string   `json:"text"`
	RequestedTranslationLanguages []string `json:"requested_translation_languages,omitempty"`
}

type SubtitlePayload struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type ModerationPayload struct {
	TargetID ConnID `json:"target_id"`
}

// OutboundType tags events delivered to connections.
type OutboundType string

const (
	OutExistingParticipants   OutboundType = "existing-participants"
	OutUserJoined             OutboundType = "user-joined"
	OutUserLeft               OutboundType = "user-left"
	OutOffer                  OutboundType = "offer"
	OutAnswer                 OutboundType = "answer"
	OutICECandidate           OutboundType = "ice-candidate"
	OutUserAudioToggled       OutboundType = "user-audio-toggled"
	OutUserVideoToggled       OutboundType = "user-video-toggled"
	OutUserStartedScreenShare OutboundType = "user-started-screen-share"
	OutUserStoppedScreenShare OutboundType = "user-stopped-screen-share"
	OutNewChatMessage         OutboundType = "new-chat-message"
	OutNewSubtitle            OutboundType = "new-subtitle"
	OutRecordingStarted       OutboundType = "recording-started"
	OutRecordingStopped       OutboundType = "recording-stopped"
	OutParticipantMuted       OutboundType = "participant-muted"
	OutRemovedFromMeeting     OutboundType = "removed-from-meeting"
	OutHandRaised             OutboundType = "hand-raised"
	OutHandLowered            OutboundType = "hand-lowered"
	OutRenegotiationNeeded    OutboundType = "renegotiation-needed"
	OutPeerLinkFailed         OutboundType = "peer-link-failed"
	OutError                  OutboundType = "error"
)

// Outbound is one event addressed to a single connection. From carries the
// originating connection for relayed and broadcast events.
type Outbound struct {
	Type    OutboundType `json:"type"`
	From    ConnID       `json:"from,omitempty"`
	Seq     uint64       `json:"seq,omitempty"`
	Payload any          `json:"payload,omitempty"`
}

type ExistingParticipantsPayload struct {
	Meeting      MeetingInfo       `json:"meeting"`
	Recording    RecordingState    `json:"recording"`
	Self         ParticipantInfo   `json:"self"`
	Participants []ParticipantInfo `json:"participants"`
}

type ChatMessage struct {
	From         ConnID            `json:"from"`
	UserID       UserID            `json:"user_id"`
	Text         string            `json:"text"`
	Timestamp    time.Time         `json:"timestamp"`
	Translations map[string]string `json:"translations,omitempty"`
}

type CaptionEvent struct {
	From       ConnID    `json:"from"`
	UserID     UserID    `json:"user_id"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type RemovalNotice struct {
	Reason string `json:"reason"`
}

const (
	RemovalReasonModeration = "removed-by-host"
	RemovalReasonSuperseded = "superseded-by-reconnect"
)

type PeerLinkFailurePayload struct {
	PeerID ConnID `json:"peer_id"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
