// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/internal/telemetry"
)

// Metrics exposes Prometheus collectors that report task activity.
type Metrics struct {
	transitions   *prometheus.CounterVec
	subscriptions prometheus.Gauge
	running       prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the task collectors with reg.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		transitions: telemetry.MustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlexcel",
				Subsystem: "tasks",
				Name:      "transitions_total",
				Help:      "Task state transitions, by target state.",
			},
			[]string{"state"},
		)),
		subscriptions: telemetry.MustRegister(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sqlexcel",
				Subsystem: "tasks",
				Name:      "subscriptions_active",
				Help:      "Number of live task event subscriptions.",
			},
		)),
		running: telemetry.MustRegister(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sqlexcel",
				Subsystem: "tasks",
				Name:      "running",
				Help:      "Number of tasks whose agent is currently executing.",
			},
		)),
	}
}

func (m *Metrics) incTransition(state a2a.TaskState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) addSubscriptions(delta int) {
	if m == nil {
		return
	}
	m.subscriptions.Add(float64(delta))
}

func (m *Metrics) addRunning(delta int) {
	if m == nil {
		return
	}
	m.running.Add(float64(delta))
}
