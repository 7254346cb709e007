package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"
	"telemeet/internal/core/services"
	"telemeet/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config carries the transport tunables.
type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	OutboxSize   int

	// MessagesPerSecond/Burst throttle a single connection's inbound
	// stream; zero disables the limiter.
	MessagesPerSecond float64
	Burst             int
	MaxMessageSize    int64
}

// WebSocketServer terminates signaling connections: it authenticates the
// credential, admits the connection into its meeting, and shuttles events
// between the socket and the meeting loop.
type WebSocketServer struct {
	registry ports.SessionRegistry
	identity ports.IdentityService
	cfg      Config
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(registry ports.SessionRegistry, identity ports.IdentityService, cfg Config, logger *zap.SugaredLogger) *WebSocketServer {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketServer{
		registry: registry,
		identity: identity,
		cfg:      cfg,
		logger:   logger.With("component", "websocket_server"),
	}
}

// HandleWebSocket serves GET /ws?meeting_id=...&token=...
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := bearerToken(r)
	if credential == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	// Authentication failures refuse the connection before any meeting
	// state is touched.
	identity, err := s.identity.Resolve(r.Context(), credential)
	if err != nil {
		s.logger.Infow("credential rejected", "error", err)
		http.Error(w, "authentication failure", http.StatusUnauthorized)
		return
	}

	meetingID := domain.MeetingID(r.URL.Query().Get("meeting_id"))
	if meetingID == "" {
		http.Error(w, "missing meeting_id", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := newConnection(services.NewConnID(), ws, s.cfg.OutboxSize,
		s.cfg.WriteTimeout, s.cfg.PingInterval, s.logger)
	go conn.writePump()

	sess, err := s.registry.Join(r.Context(), meetingID, identity, conn)
	if err != nil {
		s.logger.Infow("join rejected",
			"meeting_id", meetingID, "user_id", identity.UserID, "error", err)
		conn.Enqueue(domain.Outbound{
			Type: domain.OutError,
			Payload: domain.ErrorPayload{
				Code:    domain.Code(err),
				Message: err.Error(),
			},
		})
		conn.Shutdown("join-rejected")
		return
	}

	s.logger.Infow("participant connected",
		"meeting_id", meetingID, "conn_id", conn.ID(), "user_id", identity.UserID)

	s.readPump(sess, conn, ws, meetingID)
}

// readPump feeds inbound events into the meeting loop until the socket dies.
// A disconnect becomes an ordinary leave event so it is ordered behind
// everything the connection already submitted.
func (s *WebSocketServer) readPump(sess ports.MeetingSession, conn *connection, ws *websocket.Conn, meetingID domain.MeetingID) {
	defer func() {
		sess.Submit(conn.ID(), domain.Event{Type: domain.EventLeave})
		conn.Shutdown("connection-closed")
	}()

	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("connection read failed", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			conn.Enqueue(domain.Outbound{
				Type: domain.OutError,
				Payload: domain.ErrorPayload{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "too many messages",
				},
			})
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
			conn.Enqueue(domain.Outbound{
				Type: domain.OutError,
				Payload: domain.ErrorPayload{
					Code:    domain.Code(domain.ErrInvalidEvent),
					Message: "malformed event",
				},
			})
			continue
		}
		if strings.HasPrefix(string(ev.Type), "internal:") {
			// Internal event types never come off the wire.
			continue
		}

		_, span := tracing.TraceSignalingEvent(context.Background(),
			string(ev.Type), string(meetingID), string(conn.ID()))
		accepted := sess.Submit(conn.ID(), ev)
		span.End()
		if !accepted {
			// Meeting ended underneath us.
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if parts := strings.SplitN(auth, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
