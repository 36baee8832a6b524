// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/push"
)

func TestPushServerDispatchesByTask(t *testing.T) {
	signer, err := push.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	sender := push.NewSender(signer,
		push.WithLogger(discard),
		push.WithMetrics(push.MustNewMetrics(prometheus.NewRegistry())),
	)
	receiver := push.NewReceiver("", push.WithKeySet(signer.PublicKeySet()), push.WithReceiverLogger(discard))

	ps := client.NewPushServer("", receiver, discard)
	ts := httptest.NewServer(ps.Handler())
	defer ts.Close()

	got := make(chan a2a.TaskState, 1)
	ps.RegisterHandler("task-1", func(ctx context.Context, task *a2a.Task) error {
		got <- task.Status.State
		return nil
	})

	ctx := context.Background()
	if !sender.VerifyURL(ctx, ts.URL) {
		t.Fatal("push server failed the validation challenge")
	}

	cfg := &a2a.PushNotificationConfig{URL: ts.URL}
	if err := sender.Send(ctx, cfg, &a2a.Task{ID: "task-2", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}); err != nil {
		t.Fatalf("Send for unregistered task failed: %v", err)
	}
	if err := sender.Send(ctx, cfg, &a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case state := <-got:
		if state != a2a.TaskStateCompleted {
			t.Errorf("state = %s, want completed", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	ps.UnregisterHandler("task-1")
	if err := sender.Send(ctx, cfg, &a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}); err != nil {
		t.Fatalf("Send after unregister failed: %v", err)
	}
	if len(got) != 0 {
		t.Error("handler called after it was unregistered")
	}
}
