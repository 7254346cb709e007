package domain

import (
	"fmt"
	"time"
)

type LinkState string

const (
	LinkIdle           LinkState = "idle"
	LinkOfferSent      LinkState = "offer-sent"
	LinkAnswerReceived LinkState = "answer-received"
	LinkEstablished    LinkState = "established"
	LinkClosed         LinkState = "closed"
)

// LinkKey identifies the unordered connection pair of a peer link. A is
// always the lexicographically smaller id so {x,y} and {y,x} collapse to the
// same key.
type LinkKey struct {
	A ConnID
	B ConnID
}

func NewLinkKey(x, y ConnID) LinkKey {
	if y < x {
		x, y = y, x
	}
	return LinkKey{A: x, B: y}
}

func (k LinkKey) Contains(id ConnID) bool {
	return k.A == id || k.B == id
}

// Other returns the opposite end of the pair.
func (k LinkKey) Other(id ConnID) ConnID {
	if k.A == id {
		return k.B
	}
	return k.A
}

func (k LinkKey) String() string {
	return fmt.Sprintf("%s<->%s", k.A, k.B)
}

// PeerLink is the handshake state machine for one connection pair. All
// methods are pure state transitions; the coordinator owning the link decides
// what to send when they succeed.
type PeerLink struct {
	Key       LinkKey
	Initiator ConnID
	State     LinkState

	// seq is the highest signaling sequence number accepted on this link;
	// anything at or below it is stale.
	seq uint64

	// pendingRenegotiations counts renegotiation requests queued behind an
	// in-flight handshake.
	pendingRenegotiations int

	Deadline  time.Time
	CreatedAt time.Time
}

func NewPeerLink(initiator, existing ConnID, now time.Time) *PeerLink {
	return &PeerLink{
		Key:       NewLinkKey(initiator, existing),
		Initiator: initiator,
		State:     LinkIdle,
		CreatedAt: now,
	}
}

// AcceptSignal admits a signaling message carrying seq, rejecting replays and
// out-of-order duplicates.
func (l *PeerLink) AcceptSignal(seq uint64) error {
	if l.State == LinkClosed {
		return ErrStaleSignal
	}
	if seq <= l.seq {
		return ErrStaleSignal
	}
	l.seq = seq
	return nil
}

// LastSeq reports the highest accepted sequence number.
func (l *PeerLink) LastSeq() uint64 {
	return l.seq
}

// MarkOfferSent enters the offer-sent state. Valid from idle (initial
// handshake) and from established (renegotiation).
func (l *PeerLink) MarkOfferSent(deadline time.Time) error {
	switch l.State {
	case LinkIdle, LinkEstablished:
		l.State = LinkOfferSent
		l.Deadline = deadline
		return nil
	case LinkClosed:
		return ErrStaleSignal
	default:
		return fmt.Errorf("%w: offer while link %s is %s", ErrInvalidEvent, l.Key, l.State)
	}
}

// AcceptAnswer transitions offer-sent to answer-received.
func (l *PeerLink) AcceptAnswer(deadline time.Time) error {
	if l.State == LinkClosed {
		return ErrStaleSignal
	}
	if l.State != LinkOfferSent {
		return fmt.Errorf("%w: answer while link %s is %s", ErrInvalidEvent, l.Key, l.State)
	}
	l.State = LinkAnswerReceived
	l.Deadline = deadline
	return nil
}

// Establish completes the handshake once the first media flow is
// acknowledged. It reports whether a queued renegotiation should start now.
func (l *PeerLink) Establish() (renegotiate bool, err error) {
	if l.State == LinkClosed {
		return false, ErrStaleSignal
	}
	if l.State != LinkAnswerReceived {
		return false, fmt.Errorf("%w: establish while link %s is %s", ErrInvalidEvent, l.Key, l.State)
	}
	l.State = LinkEstablished
	l.Deadline = time.Time{}
	if l.pendingRenegotiations > 0 {
		l.pendingRenegotiations--
		return true, nil
	}
	return false, nil
}

// RequestRenegotiation asks for a fresh offer/answer round, e.g. to swap a
// camera track for a screen-share track. It returns true when the requester
// may send the offer immediately; false means a handshake is already in
// flight and the request was queued behind it.
func (l *PeerLink) RequestRenegotiation() (startNow bool, err error) {
	switch l.State {
	case LinkEstablished:
		return true, nil
	case LinkOfferSent, LinkAnswerReceived:
		l.pendingRenegotiations++
		return false, nil
	case LinkClosed:
		return false, ErrStaleSignal
	default:
		// Initial handshake has not produced an offer yet; the
		// renegotiation is meaningless until it does.
		l.pendingRenegotiations++
		return false, nil
	}
}

// PendingRenegotiations reports queued renegotiation requests.
func (l *PeerLink) PendingRenegotiations() int {
	return l.pendingRenegotiations
}

// Close is terminal and idempotent.
func (l *PeerLink) Close() {
	l.State = LinkClosed
	l.Deadline = time.Time{}
	l.pendingRenegotiations = 0
}

// Expired reports whether an in-flight handshake has outlived its reply
// window.
func (l *PeerLink) Expired(now time.Time) bool {
	if l.State != LinkOfferSent && l.State != LinkAnswerReceived {
		return false
	}
	return !l.Deadline.IsZero() && now.After(l.Deadline)
}
