// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to agents over the task protocol: JSON-RPC calls, event
// streams and agent card discovery.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/sqlexcel/a2a"
)

// DefaultTimeout bounds a non-streaming call unless [WithTimeout] says otherwise.
const DefaultTimeout = 2 * time.Minute

// Client calls a single agent.
type Client struct {
	url          string
	card         *a2a.AgentCard
	hc           *http.Client
	interceptors []Interceptor
	invoke       Invoker
	timeout      time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
}

// New creates a [Client] for the agent whose JSON-RPC endpoint is agentURL.
func New(agentURL string, opts ...Option) (*Client, error) {
	if agentURL == "" {
		return nil, NewValidationError("url", "agent url is required")
	}
	u, err := url.Parse(agentURL)
	if err != nil {
		return nil, NewValidationError("url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewValidationError("url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	c := &Client{
		url:     agentURL,
		hc:      &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		tracer:  otel.GetTracerProvider().Tracer("github.com/go-a2a/sqlexcel/client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.invoke = chainInterceptors(c.interceptors, func(_ context.Context, req *http.Request) (*http.Response, error) {
		return c.hc.Do(req)
	})
	return c, nil
}

// NewFromCard creates a [Client] for the agent described by card.
func NewFromCard(card *a2a.AgentCard, opts ...Option) (*Client, error) {
	if err := ValidateAgentCard(card); err != nil {
		return nil, err
	}
	c, err := New(card.URL, opts...)
	if err != nil {
		return nil, err
	}
	c.card = card
	return c, nil
}

// URL returns the endpoint c sends requests to.
func (c *Client) URL() string {
	return c.url
}

// Card returns the agent card c was created from, or nil.
func (c *Client) Card() *a2a.AgentCard {
	return c.card
}

// SendTask sends a message to a task and returns the task once the agent answered.
func (c *Client) SendTask(ctx context.Context, params *a2a.TaskSendParams, opts ...CallOption) (*a2a.Task, error) {
	if err := validateSend(params); err != nil {
		return nil, err
	}
	return call[a2a.Task](ctx, c, a2a.MethodTasksSend, params.ID, params, opts)
}

// GetTask returns the current state of a task.
func (c *Client) GetTask(ctx context.Context, params *a2a.TaskQueryParams, opts ...CallOption) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, NewValidationError("id", "task id is required")
	}
	return call[a2a.Task](ctx, c, a2a.MethodTasksGet, params.ID, params, opts)
}

// CancelTask asks the agent to cancel a task.
func (c *Client) CancelTask(ctx context.Context, params *a2a.TaskIDParams, opts ...CallOption) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, NewValidationError("id", "task id is required")
	}
	return call[a2a.Task](ctx, c, a2a.MethodTasksCancel, params.ID, params, opts)
}

// SetTaskPushNotification registers the push notification callback of a task.
func (c *Client) SetTaskPushNotification(ctx context.Context, params *a2a.TaskPushNotificationConfig, opts ...CallOption) (*a2a.TaskPushNotificationConfig, error) {
	if params.ID == "" {
		return nil, NewValidationError("id", "task id is required")
	}
	if params.PushNotificationConfig.URL == "" {
		return nil, NewValidationError("pushNotificationConfig.url", "push notification url is required")
	}
	return call[a2a.TaskPushNotificationConfig](ctx, c, a2a.MethodTasksPushNotificationSet, params.ID, params, opts)
}

// GetTaskPushNotification returns the push notification callback of a task.
func (c *Client) GetTaskPushNotification(ctx context.Context, params *a2a.TaskIDParams, opts ...CallOption) (*a2a.TaskPushNotificationConfig, error) {
	if params.ID == "" {
		return nil, NewValidationError("id", "task id is required")
	}
	return call[a2a.TaskPushNotificationConfig](ctx, c, a2a.MethodTasksPushNotificationGet, params.ID, params, opts)
}

// SendTaskSubscribe sends a message to a task and streams its updates.
//
// Only a [WithCallTimeout] option bounds the stream; the client-wide timeout does not.
func (c *Client) SendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams, opts ...CallOption) (*Stream, error) {
	if err := validateSend(params); err != nil {
		return nil, err
	}
	return c.stream(ctx, a2a.MethodTasksSendSubscribe, params.ID, params, opts)
}

// Resubscribe streams the updates of a task that is already running.
func (c *Client) Resubscribe(ctx context.Context, params *a2a.TaskQueryParams, opts ...CallOption) (*Stream, error) {
	if params.ID == "" {
		return nil, NewValidationError("id", "task id is required")
	}
	return c.stream(ctx, a2a.MethodTasksResubscribe, params.ID, params, opts)
}

func validateSend(params *a2a.TaskSendParams) error {
	if err := params.Validate(); err != nil {
		var rpcErr *a2a.JSONRPCError
		if errors.As(err, &rpcErr) {
			return NewValidationError("params", rpcErr.Message)
		}
		return NewValidationError("params", err.Error())
	}
	return nil
}

func (c *Client) callOptions(opts []CallOption) *callOptions {
	o := &callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (c *Client) startSpan(ctx context.Context, method, taskID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "a2a.client "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("a2a.task_id", taskID),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// call performs a unary JSON-RPC call and decodes its result into a T.
func call[T any](ctx context.Context, c *Client, method, taskID string, params any, opts []CallOption) (_ *T, err error) {
	ctx, span := c.startSpan(ctx, method, taskID)
	defer func() { endSpan(span, err) }()

	o := c.callOptions(opts)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := c.post(ctx, method, params, o.headers, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("read %s response", method), err)
	}
	result, err := decodeResponse(method, body)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, NewValidationError("result", fmt.Sprintf("decode %s result: %v", method, err))
	}
	return &out, nil
}

// decodeResponse returns the result of a JSON-RPC response, or its error as an [*RPCError].
func decodeResponse(method string, body []byte) ([]byte, error) {
	var resp a2a.RawJSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewValidationError("response", fmt.Sprintf("decode %s response: %v", method, err))
	}
	if resp.Error != nil {
		return nil, NewRPCError(method, resp.Error)
	}
	if len(resp.Result) == 0 {
		return nil, NewValidationError("response", fmt.Sprintf("%s response has neither result nor error", method))
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, method string, params any, headers http.Header, accept string) (*http.Response, error) {
	rpcReq, err := a2a.NewJSONRPCRequest(uuid.NewString(), method, params)
	if err != nil {
		return nil, NewValidationError("params", err.Error())
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, NewValidationError("params", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewValidationError("url", err.Error())
	}
	if !idempotentMethods[method] {
		req.GetBody = nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.invoke(ctx, req)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("%s request to %s", method, c.url), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return nil, NewHTTPError(resp.StatusCode, text, nil)
	}
	return resp, nil
}

func (c *Client) stream(ctx context.Context, method, taskID string, params any, opts []CallOption) (_ *Stream, err error) {
	ctx, span := c.startSpan(ctx, method, taskID)
	defer func() {
		if err != nil {
			endSpan(span, err)
		}
	}()

	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	cancel := context.CancelFunc(func() {})
	if o.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
	}

	resp, err := c.post(ctx, method, params, o.headers, "text/event-stream")
	if err != nil {
		cancel()
		return nil, err
	}

	// rejected before the stream started: the agent answered with a plain response
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		defer cancel()
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, NewNetworkError(fmt.Sprintf("read %s response", method), err)
		}
		if _, err := decodeResponse(method, body); err != nil {
			return nil, err
		}
		return nil, NewValidationError("response", fmt.Sprintf("%s answered with %q instead of an event stream", method, mt))
	}

	return newStream(method, resp.Body, func() {
		cancel()
		span.End()
	}), nil
}
