package domain

import "errors"

var (
	ErrAuthenticationFailure  = errors.New("authentication failure")
	ErrSessionNotFound        = errors.New("session not found")
	ErrCapacityExceeded       = errors.New("meeting capacity exceeded")
	ErrDuplicateIdentity      = errors.New("user already active in meeting")
	ErrUnauthorizedModeration = errors.New("moderation requires host role")
	ErrStaleSignal            = errors.New("stale signaling message")
	ErrPeerLinkFailure        = errors.New("peer link failed")
	ErrInvalidEvent           = errors.New("invalid event")
)

// Code maps a core error to its wire-level rejection code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailure):
		return "AUTHENTICATION_FAILURE"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, ErrDuplicateIdentity):
		return "DUPLICATE_IDENTITY"
	case errors.Is(err, ErrUnauthorizedModeration):
		return "UNAUTHORIZED_MODERATION"
	case errors.Is(err, ErrStaleSignal):
		return "STALE_SIGNAL"
	case errors.Is(err, ErrPeerLinkFailure):
		return "PEER_LINK_FAILURE"
	case errors.Is(err, ErrInvalidEvent):
		return "INVALID_EVENT"
	default:
		return "INTERNAL"
	}
}
