package monitoring

import (
	"time"

	"telemeet/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics over a Prometheus registry.
type PrometheusCollector struct {
	meetingsActive    prometheus.Gauge
	meetingsTotal     prometheus.Counter
	participantsTotal prometheus.Counter

	participantsPerMeeting *prometheus.GaugeVec

	linksActive prometheus.Gauge
	linksTotal  prometheus.Counter

	signalsRouted *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec

	joinDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		meetingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "telemeet_meetings_active",
			Help: "Number of currently active meetings",
		}),

		meetingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telemeet_meetings_total",
			Help: "Total number of meetings created",
		}),

		participantsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telemeet_participants_total",
			Help: "Total number of participants admitted",
		}),

		participantsPerMeeting: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemeet_meeting_participants",
			Help: "Number of participants per meeting",
		}, []string{"meeting_id"}),

		linksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "telemeet_peer_links_active",
			Help: "Number of live peer links across all meetings",
		}),

		linksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telemeet_peer_links_total",
			Help: "Total number of peer links created",
		}),

		signalsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telemeet_signals_routed_total",
			Help: "Events delivered to connection outboxes, by event type",
		}, []string{"event_type"}),

		eventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telemeet_events_dropped_total",
			Help: "Events dropped instead of delivered, by reason",
		}, []string{"reason"}),

		joinDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemeet_join_duration_seconds",
			Help:    "Duration of the join admission handshake",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (p *PrometheusCollector) MeetingOpened() {
	p.meetingsActive.Inc()
	p.meetingsTotal.Inc()
}

func (p *PrometheusCollector) MeetingClosed() {
	p.meetingsActive.Dec()
}

func (p *PrometheusCollector) ParticipantJoined(meeting domain.MeetingID) {
	p.participantsTotal.Inc()
	p.participantsPerMeeting.WithLabelValues(string(meeting)).Inc()
}

func (p *PrometheusCollector) ParticipantLeft(meeting domain.MeetingID) {
	p.participantsPerMeeting.WithLabelValues(string(meeting)).Dec()
}

func (p *PrometheusCollector) LinkOpened() {
	p.linksActive.Inc()
	p.linksTotal.Inc()
}

func (p *PrometheusCollector) LinkClosed(domain.LinkState) {
	p.linksActive.Dec()
}

func (p *PrometheusCollector) SignalRouted(eventType string) {
	p.signalsRouted.WithLabelValues(eventType).Inc()
}

func (p *PrometheusCollector) EventDropped(reason string) {
	p.eventsDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) ObserveJoin(d time.Duration) {
	p.joinDuration.Observe(d.Seconds())
}
