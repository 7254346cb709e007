package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
	"telemeet/internal/infrastructure/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

// fakeConn records everything a session delivers to one connection.
type fakeConn struct {
	id domain.ConnID

	mu        sync.Mutex
	events    []domain.Outbound
	shutdowns []string
}

func newFakeConn(id domain.ConnID) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() domain.ConnID { return c.id }

func (c *fakeConn) Enqueue(ev domain.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Shutdown(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdowns = append(c.shutdowns, reason)
}

func (c *fakeConn) snapshot() []domain.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Outbound, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) countOf(tp domain.OutboundType) int {
	n := 0
	for _, ev := range c.snapshot() {
		if ev.Type == tp {
			n++
		}
	}
	return n
}

func (c *fakeConn) shutdownReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.shutdowns))
	copy(out, c.shutdowns)
	return out
}

// waitFor blocks until an event of the given type shows up and returns the
// first one.
func (c *fakeConn) waitFor(t *testing.T, tp domain.OutboundType) domain.Outbound {
	t.Helper()
	var found domain.Outbound
	require.Eventually(t, func() bool {
		for _, ev := range c.snapshot() {
			if ev.Type == tp {
				found = ev
				return true
			}
		}
		return false
	}, waitTimeout, waitTick, "waiting for %s on %s", tp, c.id)
	return found
}

// waitForCount blocks until at least n events of the given type arrived.
func (c *fakeConn) waitForCount(t *testing.T, tp domain.OutboundType, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.countOf(tp) >= n
	}, waitTimeout, waitTick, "waiting for %d %s on %s", n, tp, c.id)
}

type sessionHarness struct {
	t    *testing.T
	sess *Session
	sink *archive.MemorySink
}

type harnessOptions struct {
	info       domain.MeetingInfo
	cfg        SessionConfig
	translator ports.Translator
	onEmpty    func(*Session)
}

func defaultMeetingInfo() domain.MeetingInfo {
	return domain.MeetingInfo{
		ID:     "meeting-1",
		HostID: "host",
		Features: domain.FeatureFlags{
			ChatAllowed:        true,
			ScreenShareAllowed: true,
			RecordingAllowed:   true,
			TranslationAllowed: true,
			DefaultLanguage:    "en",
		},
	}
}

func startSession(t *testing.T, opts harnessOptions) *sessionHarness {
	t.Helper()
	if opts.info.ID == "" {
		opts.info = defaultMeetingInfo()
	}
	if opts.cfg.SweepInterval == 0 {
		opts.cfg.SweepInterval = 10 * time.Millisecond
	}
	if opts.cfg.HandshakeTimeout == 0 {
		opts.cfg.HandshakeTimeout = time.Second
	}

	sink := archive.NewMemorySink()
	meeting := &domain.Meeting{Info: opts.info, CreatedAt: time.Now()}
	sess := NewSession(meeting, opts.cfg, sink, opts.translator,
		ports.NopMetrics{}, zap.NewNop().Sugar(), opts.onEmpty)
	sess.Start()
	t.Cleanup(func() {
		sess.stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sess.wait(ctx)
	})
	return &sessionHarness{t: t, sess: sess, sink: sink}
}

func (h *sessionHarness) join(connID domain.ConnID, userID domain.UserID, role domain.Role) *fakeConn {
	h.t.Helper()
	conn := newFakeConn(connID)
	require.NoError(h.t, h.joinConn(conn, userID, role))
	return conn
}

func (h *sessionHarness) joinConn(conn *fakeConn, userID domain.UserID, role domain.Role) error {
	p := &domain.Participant{
		ConnID:   conn.id,
		UserID:   userID,
		Name:     string(userID),
		Role:     role,
		JoinedAt: time.Now(),
	}
	return h.sess.join(context.Background(), p, conn)
}

func (h *sessionHarness) submit(from domain.ConnID, typ domain.EventType, seq uint64, payload any) {
	h.t.Helper()
	ev := domain.Event{Type: typ, Seq: seq}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(h.t, err)
		ev.Payload = raw
	}
	require.True(h.t, h.sess.Submit(from, ev), "session closed while submitting %s", typ)
}

// flush round-trips one rejected event through the loop, guaranteeing every
// earlier event from any connection was processed.
func (h *sessionHarness) flush(conn *fakeConn) {
	h.t.Helper()
	before := conn.countOf(domain.OutError)
	h.submit(conn.id, domain.EventType("loop-barrier"), 0, nil)
	conn.waitForCount(h.t, domain.OutError, before+1)
}

// relayCandidateBarrier pushes one ICE candidate through the loop and waits
// for its delivery, guaranteeing every earlier event was processed.
func (h *sessionHarness) relayCandidateBarrier(from, target domain.ConnID, tc *fakeConn, seq uint64) {
	h.t.Helper()
	before := tc.countOf(domain.OutICECandidate)
	h.submit(from, domain.EventICECandidate, seq, domain.CandidatePayload{TargetID: target})
	tc.waitForCount(h.t, domain.OutICECandidate, before+1)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func decodePayload[T any](t *testing.T, ev domain.Outbound) T {
	t.Helper()
	raw, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestJoinSnapshotThenBroadcast(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-guest", "alice", domain.RoleGuest)

	// The newcomer's very first event is the membership snapshot.
	events := guest.snapshot()
	require.NotEmpty(t, events)
	require.Equal(t, domain.OutExistingParticipants, events[0].Type)

	snap := decodePayload[domain.ExistingParticipantsPayload](t, events[0])
	assert.Equal(t, domain.MeetingID("meeting-1"), snap.Meeting.ID)
	assert.Equal(t, domain.ConnID("conn-guest"), snap.Self.ConnID)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.ConnID("conn-host"), snap.Participants[0].ConnID)

	// Everyone already present hears about the newcomer; the newcomer does
	// not hear about itself.
	joined := host.waitFor(t, domain.OutUserJoined)
	info := decodePayload[domain.ParticipantInfo](t, joined)
	assert.Equal(t, domain.ConnID("conn-guest"), info.ConnID)
	assert.Zero(t, guest.countOf(domain.OutUserJoined))
}

func TestJoinCapacityExceeded(t *testing.T) {
	info := defaultMeetingInfo()
	info.Limits.MaxParticipants = 2
	h := startSession(t, harnessOptions{info: info})

	h.join("conn-host", "host", domain.RoleHost)
	h.join("conn-a", "alice", domain.RoleGuest)

	err := h.joinConn(newFakeConn("conn-b"), "bob", domain.RoleGuest)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestJoinDuplicateIdentityRejected(t *testing.T) {
	h := startSession(t, harnessOptions{cfg: SessionConfig{AllowReconnect: false}})

	h.join("conn-1", "alice", domain.RoleGuest)

	err := h.joinConn(newFakeConn("conn-2"), "alice", domain.RoleGuest)
	require.ErrorIs(t, err, domain.ErrDuplicateIdentity)
}

func TestReconnectSupersedesPriorConnection(t *testing.T) {
	h := startSession(t, harnessOptions{cfg: SessionConfig{AllowReconnect: true}})

	host := h.join("conn-host", "host", domain.RoleHost)
	old := h.join("conn-old", "alice", domain.RoleGuest)

	// Mark state on the old connection so the carry-over is observable.
	h.submit("conn-old", domain.EventToggleAudio, 0, domain.ToggleAudioPayload{Muted: true})
	host.waitFor(t, domain.OutUserAudioToggled)

	fresh := h.join("conn-new", "alice", domain.RoleGuest)

	// The stale connection learns why it is going away and gets closed.
	notice := old.waitFor(t, domain.OutRemovedFromMeeting)
	removal := decodePayload[domain.RemovalNotice](t, notice)
	assert.Equal(t, domain.RemovalReasonSuperseded, removal.Reason)
	require.Eventually(t, func() bool {
		return len(old.shutdownReasons()) > 0
	}, waitTimeout, waitTick)

	// Media flags survive the reconnect.
	snap := decodePayload[domain.ExistingParticipantsPayload](t, fresh.snapshot()[0])
	assert.True(t, snap.Self.Flags.Muted)

	// The rest of the meeting observes a leave followed by a join.
	host.waitFor(t, domain.OutUserLeft)
	host.waitForCount(t, domain.OutUserJoined, 2)
}

func TestReconnectAllowedAtCapacity(t *testing.T) {
	info := defaultMeetingInfo()
	info.Limits.MaxParticipants = 2
	h := startSession(t, harnessOptions{info: info, cfg: SessionConfig{AllowReconnect: true}})

	host := h.join("conn-host", "host", domain.RoleHost)
	old := h.join("conn-old", "alice", domain.RoleGuest)

	// The meeting is full, but the reconnect replaces alice's own slot and
	// leaves the occupancy unchanged.
	h.join("conn-new", "alice", domain.RoleGuest)
	require.Eventually(t, func() bool {
		return len(old.shutdownReasons()) > 0
	}, waitTimeout, waitTick)
	host.waitForCount(t, domain.OutUserJoined, 2)

	// Net-new membership is still refused at the limit.
	err := h.joinConn(newFakeConn("conn-b"), "bob", domain.RoleGuest)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestLeaveIsIdempotent(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	h.join("conn-a", "alice", domain.RoleGuest)

	// Disconnect and explicit leave race: both arrive.
	h.submit("conn-a", domain.EventLeave, 0, nil)
	h.submit("conn-a", domain.EventLeave, 0, nil)

	host.waitFor(t, domain.OutUserLeft)
	h.flush(host)
	assert.Equal(t, 1, host.countOf(domain.OutUserLeft))
}

func TestAbruptDisconnectCleansUp(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	bGone := h.join("conn-b", "bob", domain.RoleGuest)
	c := h.join("conn-c", "carol", domain.RoleGuest)

	// Transport noticed the dead socket and submitted a leave.
	h.submit("conn-b", domain.EventLeave, 0, nil)
	host.waitFor(t, domain.OutUserLeft)
	c.waitFor(t, domain.OutUserLeft)

	// Signaling aimed at the departed connection is stale: dropped without
	// an error reply and without delivery.
	beforeErrors := host.countOf(domain.OutError)
	h.submit("conn-host", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-b"})
	h.relayCandidateBarrier("conn-host", "conn-c", c, 0)

	assert.Equal(t, beforeErrors, host.countOf(domain.OutError))
	assert.Zero(t, bGone.countOf(domain.OutOffer))

	// The surviving pair still signals normally.
	h.submit("conn-c", domain.EventOffer, 1, domain.OfferPayload{TargetID: "conn-host"})
	host.waitFor(t, domain.OutOffer)
}

func TestSessionDestroyedWhenLastParticipantLeaves(t *testing.T) {
	released := make(chan struct{})
	h := startSession(t, harnessOptions{onEmpty: func(*Session) { close(released) }})

	h.join("conn-host", "host", domain.RoleHost)
	h.submit("conn-host", domain.EventLeave, 0, nil)

	select {
	case <-released:
	case <-time.After(waitTimeout):
		t.Fatal("session was not released after the last leave")
	}

	// The loop is gone; further submissions are refused.
	require.Eventually(t, func() bool {
		return !h.sess.Submit("conn-x", domain.Event{Type: domain.EventLeave})
	}, waitTimeout, waitTick)

	// The archival pipeline hears that the meeting ended.
	require.Eventually(t, func() bool {
		return h.sink.Ended("meeting-1")
	}, waitTimeout, waitTick)
}

func TestInvalidEventRejectedToSenderOnly(t *testing.T) {
	h := startSession(t, harnessOptions{})

	host := h.join("conn-host", "host", domain.RoleHost)
	guest := h.join("conn-a", "alice", domain.RoleGuest)

	h.submit("conn-a", domain.EventType("no-such-event"), 0, nil)

	errEv := guest.waitFor(t, domain.OutError)
	payload := decodePayload[domain.ErrorPayload](t, errEv)
	assert.Equal(t, "INVALID_EVENT", payload.Code)
	assert.Zero(t, host.countOf(domain.OutError))
}
