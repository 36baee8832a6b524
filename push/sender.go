// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/sqlexcel/a2a"
)

const (
	// ValidationTokenParam is the query parameter carrying the URL verification challenge.
	ValidationTokenParam = "validationToken"

	// NotificationTokenHeader carries the token the client registered with its push config.
	NotificationTokenHeader = "X-A2A-Notification-Token"

	// DefaultVerifyTimeout bounds a URL verification round trip.
	DefaultVerifyTimeout = 10 * time.Second
)

// Sender verifies callback URLs and delivers signed notifications to them.
type Sender struct {
	signer        *Signer
	client        *http.Client
	verifyTimeout time.Duration
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *Metrics
}

// Option configures a [Sender].
type Option func(*Sender)

// WithHTTPClient sets the HTTP client used for verification and delivery.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		s.client = client
	}
}

// WithVerifyTimeout bounds each URL verification.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *Sender) {
		s.verifyTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Sender) {
		s.tracer = tracer
	}
}

// WithMetrics sets the collectors deliveries are counted in.
func WithMetrics(m *Metrics) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

// NewSender returns a [Sender] signing with signer.
func NewSender(signer *Signer, opts ...Option) *Sender {
	s := &Sender{
		signer:        signer,
		client:        &http.Client{Timeout: 30 * time.Second},
		verifyTimeout: DefaultVerifyTimeout,
		logger:        slog.Default(),
		tracer:        otel.GetTracerProvider().Tracer("github.com/go-a2a/sqlexcel/push"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = defaultMetrics()
	}
	return s
}

// Signer returns the signer of s.
func (s *Sender) Signer() *Signer {
	return s.signer
}

// VerifyURL checks that whoever answers at rawURL controls it: a GET carrying a
// fresh validation token must answer with exactly that token. Any failure, including
// a timeout, is logged and reported as false.
func (s *Sender) VerifyURL(ctx context.Context, rawURL string) bool {
	ctx, span := s.tracer.Start(ctx, "push.sender.VerifyURL", trace.WithAttributes(attribute.String("push.url", rawURL)))
	defer span.End()

	ok := s.verifyURL(ctx, rawURL)
	s.metrics.incVerification(ok)
	span.SetAttributes(attribute.Bool("push.verified", ok))
	return ok
}

func (s *Sender) verifyURL(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		s.logger.WarnContext(ctx, "invalid push notification url", "url", rawURL, "error", err)
		return false
	}

	token := uuid.NewString()
	q := u.Query()
	q.Set(ValidationTokenParam, token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to create verification request", "url", rawURL, "error", err)
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "error during sending push-notification for URL", "url", rawURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.WarnContext(ctx, "push notification url verification rejected", "url", rawURL, "status", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read verification response", "url", rawURL, "error", err)
		return false
	}

	if strings.TrimSpace(string(body)) != token {
		s.logger.WarnContext(ctx, "push notification url verification failed", "url", rawURL)
		return false
	}
	s.logger.DebugContext(ctx, "verified push-notification URL", "url", rawURL)
	return true
}

// Send posts data to the callback of cfg with a signed bearer token. Delivery is
// attempted once; the returned error has already been logged and counted.
func (s *Sender) Send(ctx context.Context, cfg *a2a.PushNotificationConfig, data any) error {
	ctx, span := s.tracer.Start(ctx, "push.sender.Send", trace.WithAttributes(attribute.String("push.url", cfg.URL)))
	defer span.End()

	err := s.send(ctx, cfg, data)
	s.metrics.incDelivery(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "error during sending push-notification", "url", cfg.URL, "error", err)
		return err
	}
	s.logger.DebugContext(ctx, "push-notification sent", "url", cfg.URL)
	return nil
}

func (s *Sender) send(ctx context.Context, cfg *a2a.PushNotificationConfig, data any) error {
	body, err := json.Marshal(data, json.Deterministic(true))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	jwt, err := s.signer.Sign(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)
	if cfg.Token != "" {
		req.Header.Set(NotificationTokenHeader, cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("received non-OK response: %d %s: %s", resp.StatusCode, resp.Status, string(b))
	}
	return nil
}
