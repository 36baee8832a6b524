// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/internal/telemetry"
	"github.com/go-a2a/sqlexcel/push"
	"github.com/go-a2a/sqlexcel/server"
)

const shutdownTimeout = 10 * time.Second

// listenFlags are the host and port flags of a server command.
type listenFlags struct {
	host string
	port int
}

func (f listenFlags) addr() string {
	return net.JoinHostPort(f.host, strconv.Itoa(f.port))
}

// publicURL is the URL published in the agent card.
func (f listenFlags) publicURL() string {
	host := f.host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(f.port)) + "/"
}

// serveAgent runs agent behind the task protocol until SIGINT or SIGTERM.
func (a *app) serveAgent(ctx context.Context, lf listenFlags, card func(url string) *a2a.AgentCard, agent server.Agent, contentTypes []string) error {
	c := card(lf.publicURL())

	var sender *push.Sender
	if c.Capabilities.PushNotifications {
		signer, err := push.NewSigner()
		if err != nil {
			return fmt.Errorf("create push signer: %w", err)
		}
		sender = push.NewSender(signer,
			push.WithLogger(a.logger),
			push.WithTracer(a.tracing.Tracer()),
			push.WithMetrics(push.MustNewMetrics(a.registry)),
		)
	}

	tm, err := server.NewTaskManager(server.TaskManagerConfig{
		Agent:                 agent,
		SupportedContentTypes: contentTypes,
		PushSender:            sender,
		Logger:                a.logger,
		Tracer:                a.tracing.Tracer(),
		Metrics:               server.MustNewMetrics(a.registry),
	})
	if err != nil {
		return err
	}
	srv, err := server.NewServer(c, tm,
		server.WithLogger(a.logger),
		server.WithTracer(a.tracing.Tracer()),
		server.WithMetricsHandler(telemetry.Handler(a.registry)),
	)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "agent starting", "name", c.Name, "url", c.URL, "push", sender != nil)
	return serveHTTP(ctx, a.logger, lf.addr(), srv)
}

// serveHTTP serves h on addr and shuts it down gracefully on SIGINT, SIGTERM
// or when ctx is done.
func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, h http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(ctx, "listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
