package services

import (
	"context"
	"errors"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"

	"go.uber.org/zap"
)

var errSessionClosed = errors.New("meeting session closed")

// emptySessionGrace bounds how long a meeting may exist without ever having
// admitted a participant.
const emptySessionGrace = time.Minute

// SessionConfig carries the per-meeting tunables.
type SessionConfig struct {
	HandshakeTimeout time.Duration
	SweepInterval    time.Duration
	InboundQueueSize int
	AllowReconnect   bool
}

type envelope struct {
	from domain.ConnID
	ev   domain.Event
}

type joinRequest struct {
	participant *domain.Participant
	conn        ports.Connection
	reply       chan error
}

// Session is one meeting's coordinator. A single goroutine owns the
// membership table, the peer link table and the session-wide flags; every
// mutating request enters through the ordered inbound queue. Delivery to
// individual connections goes through their own bounded outboxes, never
// through this loop.
type Session struct {
	meeting *domain.Meeting
	cfg     SessionConfig

	router  *Router
	links   *linkTable
	members map[domain.ConnID]*domain.Participant
	byUser  map[domain.UserID]domain.ConnID

	inbound chan envelope
	joins   chan *joinRequest
	quit    chan struct{}
	done    chan struct{}

	// hadMembers flips on the first successful join so the loop does not
	// destroy a meeting that has not admitted anyone yet.
	hadMembers bool

	onEmpty    func(*Session)
	sink       ports.TranscriptSink
	translator ports.Translator
	metrics    ports.Metrics
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewSession(
	meeting *domain.Meeting,
	cfg SessionConfig,
	sink ports.TranscriptSink,
	translator ports.Translator,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	onEmpty func(*Session),
) *Session {
	if cfg.InboundQueueSize <= 0 {
		cfg.InboundQueueSize = 256
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	log := logger.With("meeting_id", meeting.Info.ID)
	return &Session{
		meeting:    meeting,
		cfg:        cfg,
		router:     NewRouter(metrics, log),
		links:      newLinkTable(cfg.HandshakeTimeout, metrics),
		members:    make(map[domain.ConnID]*domain.Participant),
		byUser:     make(map[domain.UserID]domain.ConnID),
		inbound:    make(chan envelope, cfg.InboundQueueSize),
		joins:      make(chan *joinRequest),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		onEmpty:    onEmpty,
		sink:       sink,
		translator: translator,
		metrics:    metrics,
		logger:     log,
		now:        time.Now,
	}
}

func (s *Session) ID() domain.MeetingID {
	return s.meeting.Info.ID
}

// Start launches the meeting loop.
func (s *Session) Start() {
	go s.run()
}

// Submit enqueues an inbound event. Disconnects arrive here as ordinary
// leave events so they are processed in order relative to everything the
// connection already sent.
func (s *Session) Submit(from domain.ConnID, ev domain.Event) bool {
	select {
	case s.inbound <- envelope{from: from, ev: ev}:
		return true
	case <-s.done:
		return false
	}
}

// join runs the admission handshake against the loop and blocks for its
// reply. The registry retries on errSessionClosed when it raced meeting
// destruction.
func (s *Session) join(ctx context.Context, p *domain.Participant, conn ports.Connection) error {
	req := &joinRequest{participant: p, conn: conn, reply: make(chan error, 1)}
	select {
	case s.joins <- req:
	case <-s.done:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return errSessionClosed
	}
}

// stop asks the loop to terminate, closing every member connection.
func (s *Session) stop() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

func (s *Session) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()
	defer close(s.done)

	for {
		select {
		case req := <-s.joins:
			req.reply <- s.handleJoin(req.participant, req.conn)
		case env := <-s.inbound:
			s.dispatch(env)
		case <-sweep.C:
			now := s.now()
			s.sweepLinks(now)
			// A session whose first join was abandoned mid-flight
			// would otherwise idle forever.
			if !s.hadMembers && now.Sub(s.meeting.CreatedAt) > emptySessionGrace {
				s.destroy()
				return
			}
		case <-s.quit:
			s.teardown()
			return
		}
		if s.hadMembers && len(s.members) == 0 {
			s.destroy()
			return
		}
	}
}

func (s *Session) handleJoin(p *domain.Participant, conn ports.Connection) error {
	prior, reconnecting := s.byUser[p.UserID]
	if reconnecting && !s.cfg.AllowReconnect {
		return domain.ErrDuplicateIdentity
	}

	// A reconnect replaces the user's own slot, so it does not count against
	// the limit even when the meeting is full.
	occupied := len(s.members)
	if reconnecting {
		occupied--
	}
	if limit := s.meeting.Info.Limits.MaxParticipants; limit > 0 && occupied >= limit {
		return domain.ErrCapacityExceeded
	}

	if reconnecting {
		s.supersede(prior, p)
	}

	// Point-in-time snapshot of the membership the newcomer will link to.
	existing := make([]domain.ParticipantInfo, 0, len(s.members))
	existingIDs := make([]domain.ConnID, 0, len(s.members))
	for _, member := range s.members {
		existing = append(existing, member.Info())
		existingIDs = append(existingIDs, member.ConnID)
	}

	s.members[p.ConnID] = p
	s.byUser[p.UserID] = p.ConnID
	s.hadMembers = true
	s.router.Attach(conn)
	s.links.createForJoin(p.ConnID, existingIDs, s.now())

	// Snapshot first, then the join broadcast: the loop is single threaded,
	// so nothing can slip into the newcomer's outbox in between.
	conn.Enqueue(domain.Outbound{
		Type: domain.OutExistingParticipants,
		Payload: domain.ExistingParticipantsPayload{
			Meeting:      s.meeting.Info,
			Recording:    s.meeting.Recording,
			Self:         p.Info(),
			Participants: existing,
		},
	})
	s.router.Broadcast(p.ConnID, domain.Outbound{
		Type:    domain.OutUserJoined,
		From:    p.ConnID,
		Payload: p.Info(),
	})

	s.metrics.ParticipantJoined(s.meeting.Info.ID)
	s.logger.Infow("participant joined",
		"conn_id", p.ConnID, "user_id", p.UserID, "role", p.Role,
		"members", len(s.members))
	return nil
}

// supersede replaces a prior connection of the same user: the stale
// connection is told why and closed, its links are torn down, and the new
// participant record inherits the old media flags.
func (s *Session) supersede(prior domain.ConnID, replacement *domain.Participant) {
	if old, ok := s.members[prior]; ok {
		replacement.Flags = old.Flags
	}
	s.router.Unicast(prior, domain.Outbound{
		Type:    domain.OutRemovedFromMeeting,
		Payload: domain.RemovalNotice{Reason: domain.RemovalReasonSuperseded},
	})
	s.removeMember(prior, "superseded", func(conn ports.Connection) {
		conn.Shutdown(domain.RemovalReasonSuperseded)
	})
}

func (s *Session) handleLeave(id domain.ConnID, reason string) {
	// Idempotent: a disconnect racing an explicit leave lands here twice.
	if _, ok := s.members[id]; !ok {
		return
	}
	s.removeMember(id, reason, nil)
}

// removeMember is the single cleanup path shared by leave, disconnect,
// moderation removal and reconnect supersession.
func (s *Session) removeMember(id domain.ConnID, reason string, beforeDetach func(ports.Connection)) {
	member, ok := s.members[id]
	if !ok {
		return
	}
	delete(s.members, id)
	if s.byUser[member.UserID] == id {
		delete(s.byUser, member.UserID)
	}

	s.links.closeFor(id)

	if conn, attached := s.connOf(id); attached && beforeDetach != nil {
		beforeDetach(conn)
	}
	s.router.Detach(id)

	s.router.Broadcast(id, domain.Outbound{
		Type:    domain.OutUserLeft,
		From:    id,
		Payload: member.Info(),
	})

	s.metrics.ParticipantLeft(s.meeting.Info.ID)
	s.logger.Infow("participant left",
		"conn_id", id, "user_id", member.UserID, "reason", reason,
		"members", len(s.members))
}

func (s *Session) connOf(id domain.ConnID) (ports.Connection, bool) {
	conn, ok := s.router.conns[id]
	return conn, ok
}

// sweepLinks closes handshakes that never got their reply and reports the
// failure to both ends so each side can retry or fall back.
func (s *Session) sweepLinks(now time.Time) {
	for _, link := range s.links.expire(now) {
		s.logger.Warnw("peer link handshake timed out", "link", link.Key.String())
		for _, end := range []domain.ConnID{link.Key.A, link.Key.B} {
			s.router.Unicast(end, domain.Outbound{
				Type: domain.OutPeerLinkFailed,
				Payload: domain.PeerLinkFailurePayload{
					PeerID: link.Key.Other(end),
					Reason: "handshake-timeout",
				},
			})
		}
	}
}

// destroy runs when the last participant leaves.
func (s *Session) destroy() {
	s.logger.Infow("meeting ended, destroying session")
	if s.onEmpty != nil {
		s.onEmpty(s)
	}
	s.metrics.MeetingClosed()
	if s.sink != nil {
		endedAt := s.now()
		meetingID := s.meeting.Info.ID
		sink := s.sink
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.MeetingEnded(ctx, meetingID, endedAt); err != nil {
				s.logger.Warnw("meeting-ended notification failed", "error", err)
			}
		}()
	}
}

// teardown handles process shutdown: every member is closed out cleanly.
func (s *Session) teardown() {
	for id := range s.members {
		if conn, ok := s.connOf(id); ok {
			conn.Shutdown("server-shutdown")
		}
	}
	s.members = make(map[domain.ConnID]*domain.Participant)
	s.byUser = make(map[domain.UserID]domain.ConnID)
	if s.onEmpty != nil {
		s.onEmpty(s)
	}
	s.metrics.MeetingClosed()
}

func (s *Session) dispatch(env envelope) {
	var err error
	switch env.ev.Type {
	case domain.EventLeave:
		s.handleLeave(env.from, "left")
	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate,
		domain.EventLinkEstablished, domain.EventRenegotiate:
		err = s.handleSignaling(env)
	case domain.EventToggleAudio, domain.EventToggleVideo,
		domain.EventStartScreenShare, domain.EventStopScreenShare,
		domain.EventRaiseHand, domain.EventLowerHand:
		err = s.handleMediaControl(env)
	case domain.EventSendChatMessage:
		err = s.handleChat(env)
	case domain.EventSendSubtitle:
		err = s.handleSubtitle(env)
	case eventTranslationReady:
		s.handleTranslationReady(env)
	case domain.EventMuteParticipant:
		err = s.handleMuteParticipant(env)
	case domain.EventRemoveParticipant:
		err = s.handleRemoveParticipant(env)
	case domain.EventStartRecording:
		err = s.applyRecordingState(env.from, true)
	case domain.EventStopRecording:
		err = s.applyRecordingState(env.from, false)
	default:
		err = domain.ErrInvalidEvent
	}

	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrStaleSignal) {
		// Expected race, not a failure: log and drop.
		s.logger.Debugw("stale signal dropped", "from", env.from, "type", env.ev.Type)
		s.metrics.EventDropped("stale_signal")
		return
	}
	s.rejectEvent(env.from, err)
}

// rejectEvent surfaces a request failure to the originating connection only.
func (s *Session) rejectEvent(from domain.ConnID, err error) {
	s.logger.Infow("event rejected", "from", from, "error", err)
	s.router.Unicast(from, domain.Outbound{
		Type: domain.OutError,
		Payload: domain.ErrorPayload{
			Code:    domain.Code(err),
			Message: err.Error(),
		},
	})
}

func (s *Session) memberOrReject(id domain.ConnID) (*domain.Participant, error) {
	member, ok := s.members[id]
	if !ok {
		return nil, domain.ErrStaleSignal
	}
	return member, nil
}
