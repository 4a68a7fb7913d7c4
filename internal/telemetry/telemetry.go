// Package telemetry exposes the bot's operational counters and gauges. The
// concrete Prometheus wiring lives in prometheus.go; loops depend only on the
// narrow Counter/Gauge interfaces so tests can run without a registry.
package telemetry

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
}

// Gauge is a set-latest-value metric.
type Gauge interface {
	Set(v float64)
}

// Metrics is the bundle of instruments the loops record into.
type Metrics struct {
	OrdersSent            Counter
	BarsProcessed         Counter
	SnapshotsEmitted      Counter
	MalformedEntries      Counter
	KillSwitchEngaged     Counter
	OrchestratorLatencyMs Gauge
}

type nopCounter struct{}

func (nopCounter) Inc() {}

type nopGauge struct{}

func (nopGauge) Set(float64) {}

// Nop returns a Metrics bundle that discards every observation.
func Nop() *Metrics {
	return &Metrics{
		OrdersSent:            nopCounter{},
		BarsProcessed:         nopCounter{},
		SnapshotsEmitted:      nopCounter{},
		MalformedEntries:      nopCounter{},
		KillSwitchEngaged:     nopCounter{},
		OrchestratorLatencyMs: nopGauge{},
	}
}
