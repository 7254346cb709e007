package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry owns the set of active meetings. The map behind its mutex is the
// only cross-meeting shared state in the core; everything inside a meeting
// belongs to that meeting's loop.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.MeetingID]*Session

	directory  ports.Directory
	sink       ports.TranscriptSink
	translator ports.Translator
	metrics    ports.Metrics
	cfg        SessionConfig
	logger     *zap.SugaredLogger
}

func NewRegistry(
	directory ports.Directory,
	sink ports.TranscriptSink,
	translator ports.Translator,
	metrics ports.Metrics,
	cfg SessionConfig,
	logger *zap.SugaredLogger,
) *Registry {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Registry{
		sessions:   make(map[domain.MeetingID]*Session),
		directory:  directory,
		sink:       sink,
		translator: translator,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger.With("component", "registry"),
	}
}

// Join admits a connection into a meeting, creating the meeting lazily on
// first join. Join failures terminate only this attempt; they never touch
// other participants.
func (r *Registry) Join(ctx context.Context, meetingID domain.MeetingID, identity ports.Identity, conn ports.Connection) (ports.MeetingSession, error) {
	if meetingID == "" {
		return nil, domain.ErrSessionNotFound
	}
	started := time.Now()

	for {
		sess, err := r.getOrCreate(ctx, meetingID)
		if err != nil {
			return nil, err
		}

		role := domain.RoleGuest
		if identity.UserID == sess.meeting.Info.HostID {
			role = domain.RoleHost
		}
		participant := &domain.Participant{
			ConnID:   conn.ID(),
			UserID:   identity.UserID,
			Name:     identity.Name,
			Role:     role,
			JoinedAt: time.Now(),
		}

		err = sess.join(ctx, participant, conn)
		if errors.Is(err, errSessionClosed) {
			// Raced the meeting's destruction; start over with a
			// fresh session.
			continue
		}
		if err != nil {
			return nil, err
		}
		r.metrics.ObserveJoin(time.Since(started))
		return sess, nil
	}
}

// Leave is idempotent: it feeds an ordinary leave event into the meeting's
// queue so it is ordered against everything the connection already sent.
func (r *Registry) Leave(meetingID domain.MeetingID, connID domain.ConnID) {
	r.mu.Lock()
	sess, ok := r.sessions[meetingID]
	r.mu.Unlock()
	if !ok {
		return
	}
	sess.Submit(connID, domain.Event{Type: domain.EventLeave})
}

// Get returns the immutable metadata of an active meeting.
func (r *Registry) Get(meetingID domain.MeetingID) (domain.MeetingInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[meetingID]
	if !ok {
		return domain.MeetingInfo{}, false
	}
	return sess.meeting.Info, true
}

func (r *Registry) ActiveMeetings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every meeting loop and waits for them to drain.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
	for _, sess := range sessions {
		if err := sess.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// getOrCreate resolves meeting metadata without holding the registry lock;
// the double check afterwards keeps concurrent first joins from racing two
// sessions into existence.
func (r *Registry) getOrCreate(ctx context.Context, meetingID domain.MeetingID) (*Session, error) {
	r.mu.Lock()
	if sess, ok := r.sessions[meetingID]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	info, err := r.directory.ResolveMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[meetingID]; ok {
		return sess, nil
	}

	meeting := &domain.Meeting{Info: info, CreatedAt: time.Now()}
	sess := NewSession(meeting, r.cfg, r.sink, r.translator, r.metrics, r.logger, r.release)
	r.sessions[meetingID] = sess
	sess.Start()
	r.metrics.MeetingOpened()
	r.logger.Infow("meeting created", "meeting_id", meetingID, "host_id", info.HostID)
	return sess, nil
}

// release drops a session from the map once its loop decided to die. The
// identity check keeps a stale loop from evicting its replacement.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
	}
}

// NewConnID mints an ephemeral connection identifier.
func NewConnID() domain.ConnID {
	return domain.ConnID(uuid.NewString())
}
