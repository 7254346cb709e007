package services

import (
	"testing"
	"time"

	"telemeet/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferAnswerRelay(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	// The later joiner initiates: its offer reaches the existing member
	// verbatim, attributed to the sender.
	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{
		TargetID:    "conn-host",
		Description: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"},
	})
	offer := host.waitFor(t, domain.OutOffer)
	assert.Equal(t, domain.ConnID("conn-guest"), offer.From)
	assert.Equal(t, uint64(1), offer.Seq)
	desc := decodePayload[webrtc.SessionDescription](t, offer)
	assert.Equal(t, "v=0 offer", desc.SDP)

	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{
		TargetID:    "conn-guest",
		Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"},
	})
	answer := guest.waitFor(t, domain.OutAnswer)
	assert.Equal(t, domain.ConnID("conn-host"), answer.From)

	// Trickled candidates flow both ways while the link is live.
	h.submit("conn-guest", domain.EventICECandidate, 3, domain.CandidatePayload{
		TargetID:  "conn-host",
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	cand := host.waitFor(t, domain.OutICECandidate)
	candidate := decodePayload[webrtc.ICECandidateInit](t, cand)
	assert.Equal(t, "candidate:1", candidate.Candidate)
}

func TestInitialOfferFromNonInitiatorRejected(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	// The earlier joiner tries to drive the initial handshake. The link
	// belongs to the newcomer, so the attempt is a protocol violation and
	// nothing reaches the peer.
	h.submit("conn-host", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-guest"})
	errEv := host.waitFor(t, domain.OutError)
	payload := decodePayload[domain.ErrorPayload](t, errEv)
	assert.Equal(t, "INVALID_EVENT", payload.Code)
	assert.Zero(t, guest.countOf(domain.OutOffer))

	// The real initiator still opens the handshake normally, and the rejected
	// attempt did not burn its sequence number.
	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)
}

func TestStaleAnswerDropped(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)
	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{TargetID: "conn-guest"})
	guest.waitFor(t, domain.OutAnswer)

	// A replayed answer carries a superseded sequence number: dropped, not
	// relayed, and the sender is not told about it either.
	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{TargetID: "conn-guest"})
	h.relayCandidateBarrier("conn-host", "conn-guest", guest, 3)

	assert.Equal(t, 1, guest.countOf(domain.OutAnswer))
	assert.Zero(t, host.countOf(domain.OutError))
}

func TestAnswerWithoutOfferRejected(t *testing.T) {
	h := startSession(t, harnessOptions{})

	h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	// The link exists but no offer is in flight; the answer is a protocol
	// violation, not a stale race, so the sender hears about it.
	h.submit("conn-guest", domain.EventAnswer, 1, domain.AnswerPayload{TargetID: "conn-host"})
	errEv := guest.waitFor(t, domain.OutError)
	payload := decodePayload[domain.ErrorPayload](t, errEv)
	assert.Equal(t, "INVALID_EVENT", payload.Code)
}

func TestOfferToUnknownPeerIsStale(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-nobody"})
	h.relayCandidateBarrier("conn-guest", "conn-host", host, 2)

	assert.Zero(t, guest.countOf(domain.OutError))
	assert.Zero(t, host.countOf(domain.OutOffer))
}

func TestRenegotiationQueuedDuringHandshake(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)

	// A renegotiation requested mid-handshake queues instead of
	// interleaving; nobody is told to produce an offer yet.
	h.submit("conn-host", domain.EventRenegotiate, 0, domain.LinkPayload{TargetID: "conn-guest"})
	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{TargetID: "conn-guest"})
	guest.waitFor(t, domain.OutAnswer)
	assert.Zero(t, guest.countOf(domain.OutRenegotiationNeeded))
	assert.Zero(t, host.countOf(domain.OutRenegotiationNeeded))

	// Once established, the queued round starts and the link's initiator
	// produces the fresh offer.
	h.submit("conn-guest", domain.EventLinkEstablished, 0, domain.LinkPayload{TargetID: "conn-host"})
	needed := guest.waitFor(t, domain.OutRenegotiationNeeded)
	link := decodePayload[domain.LinkPayload](t, needed)
	assert.Equal(t, domain.ConnID("conn-host"), link.TargetID)
	assert.Zero(t, host.countOf(domain.OutRenegotiationNeeded))
}

func TestRenegotiationOnEstablishedLinkStartsImmediately(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)
	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{TargetID: "conn-guest"})
	guest.waitFor(t, domain.OutAnswer)
	h.submit("conn-guest", domain.EventLinkEstablished, 0, domain.LinkPayload{TargetID: "conn-host"})

	h.submit("conn-host", domain.EventRenegotiate, 0, domain.LinkPayload{TargetID: "conn-guest"})
	needed := host.waitFor(t, domain.OutRenegotiationNeeded)
	link := decodePayload[domain.LinkPayload](t, needed)
	assert.Equal(t, domain.ConnID("conn-guest"), link.TargetID)
}

func TestHandshakeTimeoutFailsLink(t *testing.T) {
	h := startSession(t, harnessOptions{cfg: SessionConfig{
		HandshakeTimeout: 30 * time.Millisecond,
		SweepInterval:    10 * time.Millisecond,
	}})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	h.submit("conn-guest", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)

	// No answer ever arrives; both ends learn the handshake died.
	for _, conn := range []*fakeConn{host, guest} {
		failed := conn.waitFor(t, domain.OutPeerLinkFailed)
		payload := decodePayload[domain.PeerLinkFailurePayload](t, failed)
		assert.Equal(t, "handshake-timeout", payload.Reason)
	}
	failure := decodePayload[domain.PeerLinkFailurePayload](t, guest.waitFor(t, domain.OutPeerLinkFailed))
	assert.Equal(t, domain.ConnID("conn-host"), failure.PeerID)

	// The dead link rejects further signaling as stale.
	before := guest.countOf(domain.OutAnswer)
	h.submit("conn-host", domain.EventAnswer, 2, domain.AnswerPayload{TargetID: "conn-guest"})
	h.flush(host)
	assert.Equal(t, before, guest.countOf(domain.OutAnswer))
}

func TestSignalFromNonMemberDropped(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)

	require.True(t, h.sess.Submit("conn-stranger", domain.Event{
		Type:    domain.EventOffer,
		Seq:     1,
		Payload: mustJSON(t, domain.OfferPayload{TargetID: "conn-host"}),
	}))
	h.flush(host)
	assert.Zero(t, host.countOf(domain.OutOffer))
}
