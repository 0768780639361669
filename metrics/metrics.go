// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	TurnsTotal      *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	FramesEmitted   prometheus.Counter
	VoiceSessions   prometheus.Gauge
	Subscribers     prometheus.Gauge
}

// New registers the gateway collectors on a fresh registry and returns
// them with the registry for serving.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_turns_total",
			Help: "Conversation turns processed, by outcome.",
		}, []string{"outcome"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_published_total",
			Help: "Events placed on the fanout queue, by type.",
		}, []string{"type"}),
		FramesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audio_frames_emitted_total",
			Help: "Complete audio frames published to clients.",
		}),
		VoiceSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_voice_sessions_active",
			Help: "Live voice websocket sessions.",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_event_subscribers_active",
			Help: "Active per-conversation event subscribers.",
		}),
	}
	return m, reg
}

// TurnOutcome increments the turn counter; nil-safe so tests can run the
// orchestrator without collectors.
func (m *Metrics) TurnOutcome(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// EventPublished increments the per-type event counter.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// FrameEmitted increments the frame counter.
func (m *Metrics) FrameEmitted() {
	if m == nil {
		return
	}
	m.FramesEmitted.Inc()
}

// SessionDelta adjusts the live voice session gauge.
func (m *Metrics) SessionDelta(delta float64) {
	if m == nil {
		return
	}
	m.VoiceSessions.Add(delta)
}

// SubscriberDelta adjusts the active subscriber gauge.
func (m *Metrics) SubscriberDelta(delta float64) {
	if m == nil {
		return
	}
	m.Subscribers.Add(delta)
}

// Serve exposes /metrics on its own listener, separate from the API
// surface, and blocks until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Metrics server failed")
	}
}
