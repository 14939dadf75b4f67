package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Runs         *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "provisioner",
			Name:      "runs_total",
			Help:      "Provision and deprovision runs by outcome.",
		}, []string{"workflow", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "provisioner",
			Name:      "step_duration_seconds",
			Help:      "Duration of each provisioning step.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 180},
		}, []string{"step", "outcome"}),
	}
}

func (m *Metrics) MustRegister(reg prometheus.Registerer) *Metrics {
	reg.MustRegister(m.Runs, m.StepDuration)
	return m
}

func (m *Metrics) ObserveRun(workflow, outcome string) {
	m.Runs.WithLabelValues(workflow, outcome).Inc()
}

func (m *Metrics) ObserveStep(step, outcome string, started time.Time) {
	m.StepDuration.WithLabelValues(step, outcome).Observe(time.Since(started).Seconds())
}
