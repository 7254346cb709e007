package services

import (
	"context"
	"testing"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
	"telemeet/internal/infrastructure/archive"
	"telemeet/internal/infrastructure/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *directory.MemoryDirectory, *archive.MemorySink) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	sink := archive.NewMemorySink()
	reg := NewRegistry(dir, sink, nil, ports.NopMetrics{}, SessionConfig{
		HandshakeTimeout: time.Second,
		SweepInterval:    10 * time.Millisecond,
		InboundQueueSize: 64,
		AllowReconnect:   true,
	}, zap.NewNop().Sugar())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return reg, dir, sink
}

func TestRegistryJoinCreatesMeetingLazily(t *testing.T) {
	reg, dir, _ := newTestRegistry(t)
	dir.Register(domain.MeetingInfo{ID: "m1", HostID: "host"})

	assert.Zero(t, reg.ActiveMeetings())

	conn := newFakeConn("conn-1")
	sess, err := reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "host", Name: "Host"}, conn)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingID("m1"), sess.ID())
	assert.Equal(t, 1, reg.ActiveMeetings())

	info, active := reg.Get("m1")
	assert.True(t, active)
	assert.Equal(t, domain.UserID("host"), info.HostID)
}

func TestRegistryJoinUnknownMeeting(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Join(context.Background(), "missing",
		ports.Identity{UserID: "alice"}, newFakeConn("conn-1"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, reg.ActiveMeetings())
}

func TestRegistryJoinEmptyMeetingID(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Join(context.Background(), "",
		ports.Identity{UserID: "alice"}, newFakeConn("conn-1"))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistryAssignsHostRoleByDirectory(t *testing.T) {
	reg, dir, _ := newTestRegistry(t)
	dir.Register(domain.MeetingInfo{ID: "m1", HostID: "doctor"})

	hostConn := newFakeConn("conn-host")
	_, err := reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "doctor"}, hostConn)
	require.NoError(t, err)

	guestConn := newFakeConn("conn-guest")
	_, err = reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "patient"}, guestConn)
	require.NoError(t, err)

	// Role comes from the directory's host id, not from the credential.
	snap := decodePayload[domain.ExistingParticipantsPayload](t, guestConn.snapshot()[0])
	assert.Equal(t, domain.RoleGuest, snap.Self.Role)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.RoleHost, snap.Participants[0].Role)
}

func TestRegistryDestroysMeetingWhenEmpty(t *testing.T) {
	reg, dir, sink := newTestRegistry(t)
	dir.Register(domain.MeetingInfo{ID: "m1", HostID: "host"})

	_, err := reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "host"}, newFakeConn("conn-1"))
	require.NoError(t, err)
	require.Equal(t, 1, reg.ActiveMeetings())

	reg.Leave("m1", "conn-1")

	require.Eventually(t, func() bool {
		return reg.ActiveMeetings() == 0
	}, waitTimeout, waitTick)
	require.Eventually(t, func() bool {
		return sink.Ended("m1")
	}, waitTimeout, waitTick)

	// A fresh join after destruction starts a brand new meeting.
	_, err = reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "host"}, newFakeConn("conn-2"))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.ActiveMeetings())
}

func TestRegistryLeaveUnknownMeetingIsNoOp(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	reg.Leave("missing", "conn-1")
	assert.Zero(t, reg.ActiveMeetings())
}

func TestRegistryShutdownClosesConnections(t *testing.T) {
	reg, dir, _ := newTestRegistry(t)
	dir.Register(domain.MeetingInfo{ID: "m1", HostID: "host"})

	conn := newFakeConn("conn-1")
	_, err := reg.Join(context.Background(), "m1",
		ports.Identity{UserID: "host"}, conn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	reasons := conn.shutdownReasons()
	require.Len(t, reasons, 1)
	assert.Equal(t, "server-shutdown", reasons[0])
}

func TestNewConnIDUnique(t *testing.T) {
	a := NewConnID()
	b := NewConnID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
