// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-a2a/sqlexcel/a2a"
)

// Interceptor defines a middleware function that can intercept and modify requests/responses.
type Interceptor func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error)

// Invoker represents the next handler in the interceptor chain.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// chainInterceptors chains multiple interceptors together.
func chainInterceptors(interceptors []Interceptor, invoker Invoker) Invoker {
	if len(interceptors) == 0 {
		return invoker
	}

	// Build the chain from right to left
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		next := invoker
		invoker = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return interceptor(ctx, req, next)
		}
	}

	return invoker
}

// LoggingInterceptor logs every request and the status it was answered with.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		start := time.Now()
		resp, err := invoker(ctx, req)
		if err != nil {
			logger.WarnContext(ctx, "agent request failed",
				"method", req.Method, "url", req.URL.String(), "elapsed", time.Since(start), "error", err)
			return resp, err
		}
		logger.DebugContext(ctx, "agent request",
			"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "elapsed", time.Since(start))
		return resp, err
	}
}

// RetryPolicy configures [RetryInterceptor].
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// RetryInterceptor retries requests that failed at the transport level or were
// answered with a retryable status code. Requests whose body cannot be replayed are
// attempted once; the [Client] marks every call that changes a task that way, so
// only reads are retried.
func RetryInterceptor(policy *RetryPolicy) Interceptor {
	attempts := max(policy.MaxAttempts, 1)
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		for attempt := 0; ; attempt++ {
			resp, err := invoker(ctx, req)
			if err == nil && !shouldRetry(resp.StatusCode) {
				return resp, nil
			}
			if attempt == attempts-1 || !replayable(req) {
				return resp, err
			}
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateDelay(policy, attempt)):
			}

			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// idempotentMethods are the calls an agent answers the same way when repeated.
// A repeated tasks/send hits a task the first attempt may already have finished.
var idempotentMethods = map[string]bool{
	a2a.MethodTasksGet:                 true,
	a2a.MethodTasksPushNotificationGet: true,
	a2a.MethodTasksResubscribe:         true,
}

// UserAgentInterceptor adds a user agent header to requests.
func UserAgentInterceptor(userAgent string) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		req.Header.Set("User-Agent", userAgent)
		return invoker(ctx, req)
	}
}

// HeaderInterceptor adds custom headers to requests.
func HeaderInterceptor(headers map[string]string) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		return invoker(ctx, req)
	}
}

// shouldRetry determines if a response should be retried based on status code.
func shouldRetry(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests
}

// calculateDelay calculates the delay for the next retry attempt.
func calculateDelay(policy *RetryPolicy, attempt int) time.Duration {
	return min(time.Duration(float64(policy.InitialDelay)*math.Pow(policy.Multiplier, float64(attempt))), policy.MaxDelay)
}
