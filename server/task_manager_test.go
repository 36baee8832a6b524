// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/push"
	"github.com/go-a2a/sqlexcel/server"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTaskManager(t *testing.T, agent server.Agent, mutate ...func(*server.TaskManagerConfig)) *server.TaskManager {
	t.Helper()
	cfg := server.TaskManagerConfig{
		Agent:   agent,
		Logger:  discard,
		Metrics: server.MustNewMetrics(prometheus.NewRegistry()),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	tm, err := server.NewTaskManager(cfg)
	if err != nil {
		t.Fatalf("NewTaskManager failed: %v", err)
	}
	return tm
}

func newPushSender(t *testing.T) *push.Sender {
	t.Helper()
	signer, err := push.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return push.NewSender(signer,
		push.WithLogger(discard),
		push.WithMetrics(push.MustNewMetrics(prometheus.NewRegistry())),
		push.WithVerifyTimeout(time.Second),
	)
}

func sendParams(id, text string) *a2a.TaskSendParams {
	return &a2a.TaskSendParams{
		ID:      id,
		Message: *a2a.NewTextMessage(a2a.RoleUser, text),
	}
}

func rpcCode(err error) int {
	var rpcErr *a2a.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// describe renders an event as "status:<state>[:final]" or "artifact:<name>".
func describe(ev a2a.StreamEvent) string {
	switch ev := ev.(type) {
	case *a2a.TaskStatusUpdateEvent:
		if ev.Final {
			return fmt.Sprintf("status:%s:final", ev.Status.State)
		}
		return fmt.Sprintf("status:%s", ev.Status.State)
	case *a2a.TaskArtifactUpdateEvent:
		return "artifact:" + ev.Artifact.Name
	default:
		return fmt.Sprintf("unknown:%T", ev)
	}
}

// collect drains ch until it is closed.
func collect(t *testing.T, ch <-chan a2a.StreamEvent) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, describe(ev))
		case <-timeout:
			t.Fatalf("stream not closed, received so far: %v", got)
		}
	}
}

func next(t *testing.T, ch <-chan a2a.StreamEvent) a2a.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("stream closed unexpectedly")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func echoAgent() server.Agent {
	return server.AgentFunc(func(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
		text := params.Message.Parts.Text()
		return server.Completed(a2a.NewTextMessage(a2a.RoleAgent, "echo: "+text), a2a.Artifact{
			Name:  "echo",
			Parts: a2a.Parts{&a2a.TextPart{Text: text}},
		}), nil
	})
}

func TestSendTaskCompletes(t *testing.T) {
	tm := newTaskManager(t, echoAgent())

	got, err := tm.SendTask(context.Background(), sendParams("task-1", "hello"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	if got.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", got.Status.State)
	}
	if diff := cmp.Diff("echo: hello", got.Status.Message.Parts.Text()); diff != "" {
		t.Errorf("status message mismatch (-want +got):\n%s", diff)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Name != "echo" {
		t.Errorf("artifacts = %+v, want one named echo", got.Artifacts)
	}

	var roles []a2a.Role
	for _, m := range got.History {
		roles = append(roles, m.Role)
	}
	if diff := cmp.Diff([]a2a.Role{a2a.RoleUser, a2a.RoleAgent}, roles); diff != "" {
		t.Errorf("history roles mismatch (-want +got):\n%s", diff)
	}
}

func TestSendTaskAgentOutcome(t *testing.T) {
	tests := map[string]struct {
		agent     server.AgentFunc
		wantState a2a.TaskState
		wantText  string
	}{
		"error": {
			agent: func(context.Context, *a2a.TaskSendParams, *server.Updater) (*server.Result, error) {
				return nil, errors.New("database unreachable")
			},
			wantState: a2a.TaskStateFailed,
			wantText:  "database unreachable",
		},
		"panic": {
			agent: func(context.Context, *a2a.TaskSendParams, *server.Updater) (*server.Result, error) {
				panic("boom")
			},
			wantState: a2a.TaskStateFailed,
			wantText:  "agent panic: boom",
		},
		"input required": {
			agent: func(context.Context, *a2a.TaskSendParams, *server.Updater) (*server.Result, error) {
				return server.InputRequired("which table?"), nil
			},
			wantState: a2a.TaskStateInputRequired,
			wantText:  "which table?",
		},
		"failed result": {
			agent: func(context.Context, *a2a.TaskSendParams, *server.Updater) (*server.Result, error) {
				return server.Failed("query rejected"), nil
			},
			wantState: a2a.TaskStateFailed,
			wantText:  "query rejected",
		},
		"unexpected state": {
			agent: func(context.Context, *a2a.TaskSendParams, *server.Updater) (*server.Result, error) {
				return &server.Result{State: a2a.TaskStateSubmitted}, nil
			},
			wantState: a2a.TaskStateFailed,
			wantText:  "agent finished in unexpected state submitted",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tm := newTaskManager(t, tt.agent)

			got, err := tm.SendTask(context.Background(), sendParams("task-1", "hi"))
			if err != nil {
				t.Fatalf("SendTask failed: %v", err)
			}
			if got.Status.State != tt.wantState {
				t.Errorf("state = %s, want %s", got.Status.State, tt.wantState)
			}
			if got.Status.Message == nil {
				t.Fatal("status message is nil")
			}
			if text := got.Status.Message.Parts.Text(); text != tt.wantText {
				t.Errorf("status message = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestSendTaskSubscribeEventOrder(t *testing.T) {
	agent := server.AgentFunc(func(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
		if err := u.Working(ctx, "generating SQL"); err != nil {
			return nil, err
		}
		if err := u.AddArtifact(ctx, a2a.Artifact{Name: "sql", Parts: a2a.Parts{&a2a.TextPart{Text: "SELECT 1"}}}); err != nil {
			return nil, err
		}
		return server.Completed(nil, a2a.Artifact{Name: "rows", Parts: a2a.Parts{&a2a.DataPart{Data: map[string]any{"n": 1}}}}), nil
	})
	tm := newTaskManager(t, agent)

	ch, err := tm.SendTaskSubscribe(context.Background(), sendParams("task-1", "count"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}

	want := []string{
		"status:working",
		"status:working",
		"artifact:sql",
		"artifact:rows",
		"status:completed:final",
	}
	if diff := cmp.Diff(want, collect(t, ch)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	got, err := tm.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(got.Artifacts) != 2 {
		t.Errorf("artifacts = %d, want 2", len(got.Artifacts))
	}
}

func TestInputRequiredThenResume(t *testing.T) {
	agent := server.AgentFunc(func(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
		if params.Message.Parts.Text() == "export" {
			return server.InputRequired("which format?"), nil
		}
		return server.Completed(a2a.NewTextMessage(a2a.RoleAgent, "done")), nil
	})
	tm := newTaskManager(t, agent)
	ctx := context.Background()

	first, err := tm.SendTask(ctx, sendParams("task-1", "export"))
	if err != nil {
		t.Fatalf("first SendTask failed: %v", err)
	}
	if first.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("state = %s, want input-required", first.Status.State)
	}

	second, err := tm.SendTask(ctx, sendParams("task-1", "xlsx"))
	if err != nil {
		t.Fatalf("second SendTask failed: %v", err)
	}
	if second.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", second.Status.State)
	}
	if len(second.History) != 4 {
		t.Errorf("history length = %d, want 4", len(second.History))
	}

	last, err := tm.SendTask(ctx, &a2a.TaskSendParams{ID: "task-1", Message: *a2a.NewTextMessage(a2a.RoleUser, "again"), HistoryLength: 1})
	if code := rpcCode(err); code != a2a.InvalidRequestErrorCode {
		t.Fatalf("resend of completed task: got (%v, %v), want code %d", last, err, a2a.InvalidRequestErrorCode)
	}

	trimmed, err := tm.AppendTaskHistory(ctx, "task-1", 1)
	if err != nil {
		t.Fatalf("AppendTaskHistory failed: %v", err)
	}
	if len(trimmed.History) != 1 || trimmed.History[0].Parts.Text() != "done" {
		t.Errorf("trimmed history = %+v, want the last agent message", trimmed.History)
	}
}

func TestSendTaskRejected(t *testing.T) {
	tests := map[string]struct {
		params   *a2a.TaskSendParams
		mutate   func(*server.TaskManagerConfig)
		wantCode int
	}{
		"missing id": {
			params:   sendParams("", "hi"),
			wantCode: a2a.InvalidParamsErrorCode,
		},
		"incompatible output modes": {
			params: &a2a.TaskSendParams{
				ID:                  "task-1",
				Message:             *a2a.NewTextMessage(a2a.RoleUser, "hi"),
				AcceptedOutputModes: []string{"image/png"},
			},
			mutate: func(cfg *server.TaskManagerConfig) {
				cfg.SupportedContentTypes = []string{"text", "application/json"}
			},
			wantCode: a2a.ContentTypeNotSupportedErrorCode,
		},
		"push without sender": {
			params: &a2a.TaskSendParams{
				ID:               "task-1",
				Message:          *a2a.NewTextMessage(a2a.RoleUser, "hi"),
				PushNotification: &a2a.PushNotificationConfig{URL: "http://localhost/notify"},
			},
			wantCode: a2a.PushNotificationNotSupportedErrorCode,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var mutate []func(*server.TaskManagerConfig)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			tm := newTaskManager(t, echoAgent(), mutate...)

			_, err := tm.SendTask(context.Background(), tt.params)
			if code := rpcCode(err); code != tt.wantCode {
				t.Errorf("SendTask() error = %v, want code %d", err, tt.wantCode)
			}
		})
	}
}

func TestUnknownTask(t *testing.T) {
	tm := newTaskManager(t, echoAgent())
	ctx := context.Background()

	if _, err := tm.GetTask(ctx, &a2a.TaskQueryParams{ID: "missing"}); rpcCode(err) != a2a.TaskNotFoundErrorCode {
		t.Errorf("GetTask() error = %v, want task not found", err)
	}
	if _, err := tm.CancelTask(ctx, &a2a.TaskIDParams{ID: "missing"}); rpcCode(err) != a2a.TaskNotFoundErrorCode {
		t.Errorf("CancelTask() error = %v, want task not found", err)
	}
	if _, err := tm.Resubscribe(ctx, &a2a.TaskQueryParams{ID: "missing"}); rpcCode(err) != a2a.TaskNotFoundErrorCode {
		t.Errorf("Resubscribe() error = %v, want task not found", err)
	}
}

// blockingAgent signals started and waits for release or cancellation.
type blockingAgent struct {
	started  chan struct{}
	release  chan struct{}
	canceled chan struct{}
}

func newBlockingAgent() *blockingAgent {
	return &blockingAgent{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		canceled: make(chan struct{}),
	}
}

func (a *blockingAgent) Invoke(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
	close(a.started)
	select {
	case <-a.release:
		return server.Completed(a2a.NewTextMessage(a2a.RoleAgent, "released")), nil
	case <-ctx.Done():
		close(a.canceled)
		return nil, ctx.Err()
	}
}

func TestCancelTask(t *testing.T) {
	agent := newBlockingAgent()
	tm := newTaskManager(t, agent)
	ctx := context.Background()

	ch, err := tm.SendTaskSubscribe(ctx, sendParams("task-1", "slow"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}
	if got := describe(next(t, ch)); got != "status:working" {
		t.Fatalf("first event = %s, want status:working", got)
	}
	<-agent.started

	canceled, err := tm.CancelTask(ctx, &a2a.TaskIDParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	if canceled.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state = %s, want canceled", canceled.Status.State)
	}
	if diff := cmp.Diff([]string{"status:canceled:final"}, collect(t, ch)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	select {
	case <-agent.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("agent context was not canceled")
	}

	if _, err := tm.CancelTask(ctx, &a2a.TaskIDParams{ID: "task-1"}); rpcCode(err) != a2a.TaskNotCancelableErrorCode {
		t.Errorf("second CancelTask() error = %v, want not cancelable", err)
	}

	got, err := tm.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state after agent returned = %s, want canceled", got.Status.State)
	}
}

func TestSendWhileRunning(t *testing.T) {
	agent := newBlockingAgent()
	tm := newTaskManager(t, agent)
	ctx := context.Background()

	ch, err := tm.SendTaskSubscribe(ctx, sendParams("task-1", "slow"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}
	<-agent.started

	if _, err := tm.SendTask(ctx, sendParams("task-1", "again")); rpcCode(err) != a2a.InvalidRequestErrorCode {
		t.Errorf("SendTask() while running error = %v, want invalid request", err)
	}

	close(agent.release)
	if diff := cmp.Diff([]string{"status:working", "status:completed:final"}, collect(t, ch)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestResubscribe(t *testing.T) {
	t.Run("running task", func(t *testing.T) {
		agent := newBlockingAgent()
		tm := newTaskManager(t, agent)
		ctx := context.Background()

		first, err := tm.SendTaskSubscribe(ctx, sendParams("task-1", "slow"))
		if err != nil {
			t.Fatalf("SendTaskSubscribe failed: %v", err)
		}
		<-agent.started

		second, err := tm.Resubscribe(ctx, &a2a.TaskQueryParams{ID: "task-1"})
		if err != nil {
			t.Fatalf("Resubscribe failed: %v", err)
		}
		close(agent.release)

		if diff := cmp.Diff([]string{"status:working", "status:completed:final"}, collect(t, first)); diff != "" {
			t.Errorf("first stream mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"status:completed:final"}, collect(t, second)); diff != "" {
			t.Errorf("second stream mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("finished task", func(t *testing.T) {
		tm := newTaskManager(t, echoAgent())
		ctx := context.Background()

		if _, err := tm.SendTask(ctx, sendParams("task-1", "hi")); err != nil {
			t.Fatalf("SendTask failed: %v", err)
		}
		ch, err := tm.Resubscribe(ctx, &a2a.TaskQueryParams{ID: "task-1"})
		if err != nil {
			t.Fatalf("Resubscribe failed: %v", err)
		}
		if diff := cmp.Diff([]string{"status:completed:final"}, collect(t, ch)); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSubscriberDisconnect(t *testing.T) {
	agent := newBlockingAgent()
	tm := newTaskManager(t, agent)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := tm.SendTaskSubscribe(ctx, sendParams("task-1", "slow"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}
	<-agent.started
	cancel()

	// the stream ends without a final event and the task keeps running
	collect(t, ch)
	close(agent.release)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := tm.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "task-1"})
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.Status.State == a2a.TaskStateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task did not complete after the subscriber left, state = %s", got.Status.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// callback is a push notification endpoint recording the tasks it receives.
type callback struct {
	*httptest.Server

	mu     sync.Mutex
	states []a2a.TaskState
}

func newCallback(t *testing.T, sender *push.Sender) *callback {
	t.Helper()
	return newGatedCallback(t, sender, nil)
}

// newGatedCallback returns a callback that holds every notification until gate
// is closed. A nil gate lets notifications through.
func newGatedCallback(t *testing.T, sender *push.Sender, gate <-chan struct{}) *callback {
	t.Helper()
	cb := &callback{}
	receiver := push.NewReceiver("", push.WithKeySet(sender.Signer().PublicKeySet()), push.WithReceiverLogger(discard))
	cb.Server = httptest.NewServer(receiver.Handler(func(ctx context.Context, body []byte) error {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		var task a2a.Task
		if err := json.Unmarshal(body, &task); err != nil {
			return err
		}
		cb.mu.Lock()
		cb.states = append(cb.states, task.Status.State)
		cb.mu.Unlock()
		return nil
	}))
	t.Cleanup(cb.Close)
	return cb
}

func (cb *callback) received() []a2a.TaskState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]a2a.TaskState(nil), cb.states...)
}

// waitReceived waits until the callback received n notifications and returns their states.
func (cb *callback) waitReceived(t *testing.T, n int) []a2a.TaskState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got := cb.received()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d push notifications, want %d", len(got), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPushNotifications(t *testing.T) {
	sender := newPushSender(t)
	cb := newCallback(t, sender)
	tm := newTaskManager(t, echoAgent(), func(cfg *server.TaskManagerConfig) {
		cfg.PushSender = sender
	})
	ctx := context.Background()

	params := sendParams("task-1", "hi")
	params.PushNotification = &a2a.PushNotificationConfig{URL: cb.URL + "/notify"}
	if _, err := tm.SendTask(ctx, params); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	want := []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCompleted}
	if diff := cmp.Diff(want, cb.waitReceived(t, len(want))); diff != "" {
		t.Errorf("notified states mismatch (-want +got):\n%s", diff)
	}

	got, err := tm.GetPushNotification(ctx, &a2a.TaskIDParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetPushNotification failed: %v", err)
	}
	if got.PushNotificationConfig.URL != cb.URL+"/notify" {
		t.Errorf("push url = %q, want %q", got.PushNotificationConfig.URL, cb.URL+"/notify")
	}
}

func TestSetPushNotification(t *testing.T) {
	sender := newPushSender(t)
	cb := newCallback(t, sender)
	liar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not the token")
	}))
	defer liar.Close()

	agent := newBlockingAgent()
	tm := newTaskManager(t, agent, func(cfg *server.TaskManagerConfig) {
		cfg.PushSender = sender
	})
	ctx := context.Background()

	if _, err := tm.SendTaskSubscribe(ctx, sendParams("task-1", "slow")); err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}
	<-agent.started

	_, err := tm.SetPushNotification(ctx, &a2a.TaskPushNotificationConfig{
		ID:                     "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: liar.URL},
	})
	if rpcCode(err) != a2a.InvalidParamsErrorCode {
		t.Errorf("SetPushNotification() with unverified url error = %v, want invalid params", err)
	}
	if tm.HasPushNotification(ctx, "task-1") {
		t.Error("config registered although the url failed verification")
	}
	if _, err := tm.GetPushNotification(ctx, &a2a.TaskIDParams{ID: "task-1"}); rpcCode(err) != a2a.InvalidParamsErrorCode {
		t.Errorf("GetPushNotification() without config error = %v, want invalid params", err)
	}

	if _, err := tm.SetPushNotification(ctx, &a2a.TaskPushNotificationConfig{
		ID:                     "missing",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: cb.URL},
	}); rpcCode(err) != a2a.TaskNotFoundErrorCode {
		t.Errorf("SetPushNotification() for unknown task error = %v, want task not found", err)
	}

	if _, err := tm.SetPushNotification(ctx, &a2a.TaskPushNotificationConfig{
		ID:                     "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: cb.URL},
	}); err != nil {
		t.Fatalf("SetPushNotification failed: %v", err)
	}
	close(agent.release)

	if diff := cmp.Diff([]a2a.TaskState{a2a.TaskStateCompleted}, cb.waitReceived(t, 1)); diff != "" {
		t.Errorf("notified states mismatch (-want +got):\n%s", diff)
	}
}

func TestSlowPushCallbackDoesNotBlockTask(t *testing.T) {
	sender := newPushSender(t)
	gate := make(chan struct{})
	cb := newGatedCallback(t, sender, gate)
	t.Cleanup(func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	})

	agent := newBlockingAgent()
	tm := newTaskManager(t, agent, func(cfg *server.TaskManagerConfig) {
		cfg.PushSender = sender
	})
	ctx := context.Background()

	params := sendParams("task-1", "slow")
	params.PushNotification = &a2a.PushNotificationConfig{URL: cb.URL}
	if _, err := tm.SendTaskSubscribe(ctx, params); err != nil {
		t.Fatalf("SendTaskSubscribe failed: %v", err)
	}
	<-agent.started

	canceled := make(chan error, 1)
	go func() {
		_, err := tm.CancelTask(ctx, &a2a.TaskIDParams{ID: "task-1"})
		canceled <- err
	}()
	select {
	case err := <-canceled:
		if err != nil {
			t.Fatalf("CancelTask failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CancelTask blocked behind a pending push notification")
	}
	if len(cb.received()) != 0 {
		t.Fatal("notification delivered before the callback was released")
	}

	close(gate)
	want := []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCanceled}
	if diff := cmp.Diff(want, cb.waitReceived(t, len(want))); diff != "" {
		t.Errorf("notified states mismatch (-want +got):\n%s", diff)
	}
}

func TestPushNotificationNotSupported(t *testing.T) {
	tm := newTaskManager(t, echoAgent())
	ctx := context.Background()

	if tm.PushNotificationsEnabled() {
		t.Fatal("push enabled without a sender")
	}
	_, err := tm.SetPushNotification(ctx, &a2a.TaskPushNotificationConfig{
		ID:                     "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "http://localhost/notify"},
	})
	if rpcCode(err) != a2a.PushNotificationNotSupportedErrorCode {
		t.Errorf("SetPushNotification() error = %v, want push not supported", err)
	}
}
