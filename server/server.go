// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes a [TaskManager] over HTTP: the agent card, the key set
// push notifications are signed with, and the JSON-RPC endpoint, whose streaming
// methods answer with server-sent events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/internal/pool"
)

// DefaultMaxBodyBytes bounds the size of a JSON-RPC request.
const DefaultMaxBodyBytes = 32 << 20

// Server implements the task protocol server.
type Server struct {
	card           *a2a.AgentCard
	tm             *TaskManager
	mux            *http.ServeMux
	endpoint       string
	maxBodyBytes   int64
	metricsHandler http.Handler
	logger         *slog.Logger
	tracer         trace.Tracer
	rpc            *rpcInstruments
}

// NewServer creates a new server publishing card and serving tm.
func NewServer(card *a2a.AgentCard, tm *TaskManager, opts ...Option) (*Server, error) {
	if card == nil {
		return nil, errors.New("agent card is required")
	}
	if tm == nil {
		return nil, errors.New("task manager is required")
	}
	if card.Capabilities.PushNotifications && !tm.PushNotificationsEnabled() {
		return nil, errors.New("agent card declares push notifications but the task manager has no push sender")
	}

	s := &Server{
		card:         card,
		tm:           tm,
		mux:          http.NewServeMux(),
		endpoint:     "/",
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       slog.Default(),
		tracer:       otel.GetTracerProvider().Tracer("github.com/go-a2a/sqlexcel/server"),
		rpc:          rpcMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerHandlers()
	return s, nil
}

// Card returns the agent card served by s.
func (s *Server) Card() *a2a.AgentCard {
	return s.card
}

// TaskManager returns the task manager served by s.
func (s *Server) TaskManager() *TaskManager {
	return s.tm
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET "+a2a.AgentCardWellKnownPath, s.handleAgentCard)
	if s.tm.sender != nil {
		s.mux.Handle("GET "+a2a.JWKSWellKnownPath, s.tm.sender.Signer().JWKSHandler())
	}
	if s.metricsHandler != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler)
	}
	s.mux.HandleFunc("POST "+s.endpoint, s.handleRPC)
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, s.card); err != nil {
		http.Error(w, "Failed to encode agent card", http.StatusInternalServerError)
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := s.tracer.Start(ctx, "a2a.server.rpc", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)); err != nil {
		s.writeError(ctx, w, nil, a2a.NewInvalidRequestError(err.Error()))
		return
	}

	var req a2a.JSONRPCRequest
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		s.writeError(ctx, w, nil, a2a.NewJSONParseError(err.Error()))
		return
	}
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	code := 0
	done := s.rpc.begin(ctx, req.Method, buf.Len())
	defer func() { done(code) }()

	if err := req.Validate(); err != nil {
		code = s.writeError(ctx, w, req.ID, err)
		return
	}

	if a2a.IsStreamingMethod(req.Method) {
		code = s.handleStream(ctx, w, &req)
		return
	}

	result, err := s.dispatch(ctx, &req)
	if err != nil {
		code = s.writeError(ctx, w, req.ID, err)
		return
	}
	s.writeJSON(ctx, w, a2a.NewJSONRPCResponse(req.ID, result))
}

func decodeParams[T any](req *a2a.JSONRPCRequest) (*T, error) {
	var params T
	if err := req.DecodeParams(&params); err != nil {
		return nil, err
	}
	return &params, nil
}

// result boxes a typed result without turning a nil pointer into a non-nil interface.
func result[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Server) dispatch(ctx context.Context, req *a2a.JSONRPCRequest) (any, error) {
	switch req.Method {
	case a2a.MethodTasksSend:
		params, err := decodeParams[a2a.TaskSendParams](req)
		if err != nil {
			return nil, err
		}
		return result(s.tm.SendTask(ctx, params))

	case a2a.MethodTasksGet:
		params, err := decodeParams[a2a.TaskQueryParams](req)
		if err != nil {
			return nil, err
		}
		return result(s.tm.GetTask(ctx, params))

	case a2a.MethodTasksCancel:
		params, err := decodeParams[a2a.TaskIDParams](req)
		if err != nil {
			return nil, err
		}
		return result(s.tm.CancelTask(ctx, params))

	case a2a.MethodTasksPushNotificationSet:
		if !s.card.Capabilities.PushNotifications {
			return nil, a2a.NewPushNotificationNotSupportedError()
		}
		params, err := decodeParams[a2a.TaskPushNotificationConfig](req)
		if err != nil {
			return nil, err
		}
		return result(s.tm.SetPushNotification(ctx, params))

	case a2a.MethodTasksPushNotificationGet:
		if !s.card.Capabilities.PushNotifications {
			return nil, a2a.NewPushNotificationNotSupportedError()
		}
		params, err := decodeParams[a2a.TaskIDParams](req)
		if err != nil {
			return nil, err
		}
		return result(s.tm.GetPushNotification(ctx, params))

	default:
		s.logger.WarnContext(ctx, "unexpected request method", "method", req.Method)
		return nil, a2a.NewMethodNotFoundError(req.Method)
	}
}

// handleStream answers tasks/sendSubscribe and tasks/resubscribe. Errors found before
// the stream starts are answered as a plain JSON-RPC error response.
func (s *Server) handleStream(ctx context.Context, w http.ResponseWriter, req *a2a.JSONRPCRequest) int {
	if !s.card.Capabilities.Streaming {
		return s.writeError(ctx, w, req.ID, a2a.NewUnsupportedOperationError("streaming is not supported"))
	}

	var (
		events <-chan a2a.StreamEvent
		err    error
	)
	switch req.Method {
	case a2a.MethodTasksSendSubscribe:
		var params *a2a.TaskSendParams
		if params, err = decodeParams[a2a.TaskSendParams](req); err == nil {
			events, err = s.tm.SendTaskSubscribe(ctx, params)
		}
	case a2a.MethodTasksResubscribe:
		var params *a2a.TaskQueryParams
		if params, err = decodeParams[a2a.TaskQueryParams](req); err == nil {
			events, err = s.tm.Resubscribe(ctx, params)
		}
	}
	if err != nil {
		return s.writeError(ctx, w, req.ID, err)
	}

	stream, err := newEventStream(w)
	if err != nil {
		return s.writeError(ctx, w, req.ID, a2a.NewInternalError(err.Error()))
	}
	for ev := range events {
		if err := stream.send(a2a.NewJSONRPCResponse(req.ID, ev)); err != nil {
			s.logger.InfoContext(ctx, "event stream closed by client", "task_id", ev.TaskID(), "error", err)
			return 0
		}
	}
	return 0
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, resp *a2a.JSONRPCResponse) {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	if err := json.MarshalWrite(buf, resp); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode response", "error", err)
		resp = a2a.NewJSONRPCErrorResponse(resp.ID, a2a.NewInternalError(fmt.Sprintf("failed to encode response: %v", err)))
		buf.Reset()
		if err := json.MarshalWrite(buf, resp); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

// writeError answers with err as a JSON-RPC error and returns its code.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, id any, err error) int {
	var rpcErr *a2a.JSONRPCError
	if !errors.As(err, &rpcErr) {
		rpcErr = a2a.NewInternalError(err.Error())
	}
	if rpcErr.Code == a2a.InternalErrorCode {
		s.logger.ErrorContext(ctx, "request failed", "code", rpcErr.Code, "error", rpcErr.Message)
	} else {
		s.logger.InfoContext(ctx, "request rejected", "code", rpcErr.Code, "error", rpcErr.Message)
	}
	s.writeJSON(ctx, w, a2a.NewJSONRPCErrorResponse(id, rpcErr))
	return rpcErr.Code
}
