// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// rpcInstruments records JSON-RPC traffic through the global OpenTelemetry meter.
type rpcInstruments struct {
	started       metric.Int64Counter
	receivedBytes metric.Int64Histogram
	latency       metric.Float64Histogram
}

var (
	rpcOnce    sync.Once
	sharedRPCs *rpcInstruments
)

func rpcMetrics() *rpcInstruments {
	rpcOnce.Do(func() {
		sharedRPCs = newRPCInstruments(otel.GetMeterProvider().Meter("github.com/go-a2a/sqlexcel/server"))
	})
	return sharedRPCs
}

func newRPCInstruments(m metric.Meter) *rpcInstruments {
	var (
		r   rpcInstruments
		err error
	)

	r.started, err = m.Int64Counter("rpc.server.started",
		metric.WithDescription("Count of started RPCs"),
	)
	if err != nil {
		otel.Handle(err)
		r.started = noop.Int64Counter{}
	}

	r.receivedBytes, err = m.Int64Histogram("rpc.server.request.size",
		metric.WithDescription("Bytes received per request"),
		metric.WithUnit("By"),
	)
	if err != nil {
		otel.Handle(err)
		r.receivedBytes = noop.Int64Histogram{}
	}

	r.latency, err = m.Float64Histogram("rpc.server.duration",
		metric.WithDescription("Elapsed time of an RPC until its response was written"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
		r.latency = noop.Float64Histogram{}
	}

	return &r
}

// begin records the start of a call and returns the function recording its end.
func (r *rpcInstruments) begin(ctx context.Context, method string, size int) func(code int) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("rpc.method", method))
	r.started.Add(ctx, 1, attrs)
	r.receivedBytes.Record(ctx, int64(size), attrs)

	return func(code int) {
		r.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
			metric.WithAttributes(
				attribute.String("rpc.method", method),
				attribute.String("rpc.jsonrpc.error_code", strconv.Itoa(code)),
			))
	}
}
