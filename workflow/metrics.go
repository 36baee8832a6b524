// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/internal/telemetry"
)

// Metrics exposes Prometheus collectors that report workflow activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the metrics registered with the global registry. The
// collectors are created once so several orchestrators can share them.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the workflow collectors with reg.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		stageDuration: telemetry.MustRegister(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sqlexcel",
				Subsystem: "workflow",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each workflow stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		)),
		stageFailures: telemetry.MustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlexcel",
				Subsystem: "workflow",
				Name:      "stage_failures_total",
				Help:      "Workflow runs that stopped in a stage, by stage and reason.",
			},
			[]string{"stage", "reason"},
		)),
		runsActive: telemetry.MustRegister(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sqlexcel",
				Subsystem: "workflow",
				Name:      "runs_active",
				Help:      "Number of workflow runs in progress.",
			},
		)),
	}
}

func (m *Metrics) observeStage(stage Stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), status).Observe(d.Seconds())
}

func (m *Metrics) incFailure(stage Stage, reason string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(string(stage), reason).Inc()
}

func (m *Metrics) addActive(delta int) {
	if m == nil {
		return
	}
	m.runsActive.Add(float64(delta))
}
