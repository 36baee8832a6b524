// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/internal/telemetry"
)

// Metrics exposes Prometheus collectors for push delivery.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	verifications *prometheus.CounterVec
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

// MustNewMetrics registers the push collectors with reg.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		deliveries: telemetry.MustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlexcel",
				Subsystem: "push",
				Name:      "deliveries_total",
				Help:      "Push notifications sent, by outcome.",
			},
			[]string{"result"},
		)),
		verifications: telemetry.MustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlexcel",
				Subsystem: "push",
				Name:      "url_verifications_total",
				Help:      "Push notification URL ownership checks, by outcome.",
			},
			[]string{"result"},
		)),
	}
}

func (m *Metrics) incDelivery(ok bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) incVerification(ok bool) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
