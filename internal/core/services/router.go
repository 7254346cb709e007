package services

import (
	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"

	"go.uber.org/zap"
)

// Router fans inbound events out to the correct connections of one meeting.
// It is owned by the meeting loop and must only be called from it; delivery
// itself is non-blocking because every connection keeps its own bounded
// outbox, so one slow consumer never delays the others.
type Router struct {
	conns   map[domain.ConnID]ports.Connection
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewRouter(metrics ports.Metrics, logger *zap.SugaredLogger) *Router {
	return &Router{
		conns:   make(map[domain.ConnID]ports.Connection),
		metrics: metrics,
		logger:  logger,
	}
}

func (r *Router) Attach(conn ports.Connection) {
	r.conns[conn.ID()] = conn
}

func (r *Router) Detach(id domain.ConnID) {
	delete(r.conns, id)
}

func (r *Router) Attached(id domain.ConnID) bool {
	_, ok := r.conns[id]
	return ok
}

// Unicast delivers a targeted event. A missing target is an expected race
// (the target already left) and is silently dropped.
func (r *Router) Unicast(target domain.ConnID, ev domain.Outbound) bool {
	conn, ok := r.conns[target]
	if !ok {
		r.logger.Debugw("dropping signal for departed target",
			"target", target, "type", ev.Type)
		r.metrics.EventDropped("target_gone")
		return false
	}
	if !conn.Enqueue(ev) {
		r.logger.Warnw("outbox overflow, event dropped",
			"target", target, "type", ev.Type)
		r.metrics.EventDropped("outbox_overflow")
		return false
	}
	r.metrics.SignalRouted(string(ev.Type))
	return true
}

// Broadcast delivers an event to every attached connection except the
// originator. Delivery per recipient is independent.
func (r *Router) Broadcast(except domain.ConnID, ev domain.Outbound) {
	for id, conn := range r.conns {
		if id == except {
			continue
		}
		if !conn.Enqueue(ev) {
			r.logger.Warnw("outbox overflow during broadcast, event dropped",
				"target", id, "type", ev.Type)
			r.metrics.EventDropped("outbox_overflow")
			continue
		}
		r.metrics.SignalRouted(string(ev.Type))
	}
}
