package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "smbot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

// Prometheus owns the bot's metric registry and the instruments registered
// on it.
type Prometheus struct {
	Metrics *Metrics

	registry   *prometheus.Registry
	ordersSent prometheus.Counter
	bars       prometheus.Counter
	snapshots  prometheus.Counter
	malformed  prometheus.Counter
	killswitch prometheus.Counter
	latency    prometheus.Gauge
}

// NewPrometheus creates a registry with all bot instruments registered.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_sent_total",
		Help:      "Total order plans dispatched to the execution gateway.",
	})
	bars := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "bars_processed_total",
		Help:      "Total closed bars consumed from the raw event log.",
	})
	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "snapshots_emitted_total",
		Help:      "Total metrics snapshots published.",
	})
	malformed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "malformed_entries_total",
		Help:      "Total raw log entries dropped as undecodable.",
	})
	killswitch := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "killswitch_engaged_total",
		Help:      "Total kill switch engagements.",
	})
	latency := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "orchestrator_latency_ms",
		Help:      "Latency of the last orchestrator decision cycle in ms.",
	})

	registry.MustRegister(ordersSent, bars, snapshots, malformed, killswitch, latency)

	m := &Metrics{
		OrdersSent:            promCounter{ordersSent},
		BarsProcessed:         promCounter{bars},
		SnapshotsEmitted:      promCounter{snapshots},
		MalformedEntries:      promCounter{malformed},
		KillSwitchEngaged:     promCounter{killswitch},
		OrchestratorLatencyMs: promGauge{latency},
	}

	return &Prometheus{
		Metrics:    m,
		registry:   registry,
		ordersSent: ordersSent,
		bars:       bars,
		snapshots:  snapshots,
		malformed:  malformed,
		killswitch: killswitch,
		latency:    latency,
	}
}

// Handler returns the /metrics scrape handler for this registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server exposing /metrics on the given port until the
// context is cancelled.
func (p *Prometheus) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("telemetry: serve: %w", err)
	}
}
