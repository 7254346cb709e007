package ports

import (
	"context"

	"telemeet/internal/core/domain"
)

// MeetingSession is the handle the transport uses to feed events into one
// meeting's loop.
type MeetingSession interface {
	ID() domain.MeetingID
	// Submit enqueues an inbound event attributed to the sending
	// connection. It reports false once the meeting has shut down.
	Submit(from domain.ConnID, ev domain.Event) bool
}

// SessionRegistry owns the set of active meetings. Meetings are created
// lazily on first join and destroyed when the last participant leaves.
type SessionRegistry interface {
	// Join admits a connection into a meeting. On success the point-in-time
	// participant snapshot has already been queued on the connection's
	// outbox before any later broadcast.
	Join(ctx context.Context, meetingID domain.MeetingID, identity Identity, conn Connection) (MeetingSession, error)
	// Leave is idempotent; leaving an unknown meeting or a non-member is a
	// no-op.
	Leave(meetingID domain.MeetingID, connID domain.ConnID)
	// Get returns the meeting metadata snapshot for an active meeting.
	Get(meetingID domain.MeetingID) (domain.MeetingInfo, bool)
	ActiveMeetings() int
	// Shutdown closes every active meeting and blocks until their loops
	// have drained.
	Shutdown(ctx context.Context) error
}

// Connection is one participant's outbound half. Enqueue must never block:
// implementations keep a bounded per-connection queue and report false when
// the event was dropped on overflow.
type Connection interface {
	ID() domain.ConnID
	Enqueue(ev domain.Outbound) bool
	// Shutdown asks the transport to close the connection after flushing
	// whatever is already queued.
	Shutdown(reason string)
}
