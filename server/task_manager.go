// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/push"
	"github.com/go-a2a/sqlexcel/server/task"
)

// DefaultSubscriptionBuffer is the capacity of a subscriber's event channel.
const DefaultSubscriptionBuffer = 16

// TaskManagerConfig holds the configuration of a [TaskManager].
type TaskManagerConfig struct {
	// Agent runs the domain logic of every task. Required.
	Agent Agent
	// SupportedContentTypes are the output modes the agent can produce. Empty accepts any.
	SupportedContentTypes []string
	// PushSender delivers push notifications. Nil disables push notifications.
	PushSender *push.Sender
	// Store holds the tasks. A fresh store is used when nil.
	Store *task.Store
	// PushConfigStore holds push configs. An in-memory store is used when nil.
	PushConfigStore task.PushNotificationConfigStore
	// SubscriptionBuffer is the capacity of subscriber channels.
	SubscriptionBuffer int

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
}

// TaskManager drives tasks through their lifecycle: it registers them, runs the
// [Agent], records every state change, fans updates out to subscribers and
// dispatches push notifications.
//
// All changes to one task, and the delivery of the events they produce, are
// serialized by a per-task transition lock. Push notifications are queued under
// that lock and sent in order by a per-task goroutine, so a slow callback never
// holds it. Different tasks proceed independently.
type TaskManager struct {
	agent                 Agent
	store                 *task.Store
	pushStore             task.PushNotificationConfigStore
	sender                *push.Sender
	supportedContentTypes []string
	subscriptionBuffer    int

	subs *subscriptions

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	runningMu sync.Mutex
	running   map[string]context.CancelFunc

	pushMu     sync.Mutex
	pushQueues map[string][]*a2a.Task

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// NewTaskManager creates a new [TaskManager].
func NewTaskManager(cfg TaskManagerConfig) (*TaskManager, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}

	tm := &TaskManager{
		agent:                 cfg.Agent,
		store:                 cfg.Store,
		pushStore:             cfg.PushConfigStore,
		sender:                cfg.PushSender,
		supportedContentTypes: cfg.SupportedContentTypes,
		subscriptionBuffer:    cfg.SubscriptionBuffer,
		subs:                  newSubscriptions(),
		locks:                 make(map[string]*sync.Mutex),
		running:               make(map[string]context.CancelFunc),
		pushQueues:            make(map[string][]*a2a.Task),
		logger:                cfg.Logger,
		tracer:                cfg.Tracer,
		metrics:               cfg.Metrics,
	}
	if tm.store == nil {
		tm.store = task.NewStore()
	}
	if tm.pushStore == nil {
		tm.pushStore = task.NewInMemoryPushNotificationConfigStore()
	}
	if tm.subscriptionBuffer <= 0 {
		tm.subscriptionBuffer = DefaultSubscriptionBuffer
	}
	if tm.logger == nil {
		tm.logger = slog.Default()
	}
	if tm.tracer == nil {
		tm.tracer = otel.GetTracerProvider().Tracer("github.com/go-a2a/sqlexcel/server")
	}
	if tm.metrics == nil {
		tm.metrics = defaultMetrics()
	}
	return tm, nil
}

// PushNotificationsEnabled reports whether the manager can deliver push notifications.
func (tm *TaskManager) PushNotificationsEnabled() bool {
	return tm.sender != nil
}

func (tm *TaskManager) startSpan(ctx context.Context, op, taskID string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "a2a.task_manager."+op,
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// lock returns the transition lock of a task.
func (tm *TaskManager) lock(taskID string) *sync.Mutex {
	tm.locksMu.Lock()
	defer tm.locksMu.Unlock()

	l, ok := tm.locks[taskID]
	if !ok {
		l = new(sync.Mutex)
		tm.locks[taskID] = l
	}
	return l
}

// SendTask runs a task to its next final state and returns it.
func (tm *TaskManager) SendTask(ctx context.Context, params *a2a.TaskSendParams) (_ *a2a.Task, err error) {
	ctx, span := tm.startSpan(ctx, "SendTask", params.ID)
	defer func() { endSpan(span, err) }()

	if err := tm.validateSend(ctx, params); err != nil {
		return nil, err
	}
	runCtx, err := tm.begin(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	tm.process(runCtx, params)

	return tm.GetTask(ctx, &a2a.TaskQueryParams{ID: params.ID, HistoryLength: params.HistoryLength})
}

// SendTaskSubscribe starts a task and returns the stream of its updates.
//
// The channel receives every status and artifact update in the order they are
// recorded and is closed after the final status event, or once ctx is done.
// Processing continues when the subscriber goes away.
func (tm *TaskManager) SendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) (_ <-chan a2a.StreamEvent, err error) {
	ctx, span := tm.startSpan(ctx, "SendTaskSubscribe", params.ID)
	defer func() { endSpan(span, err) }()

	if err := tm.validateSend(ctx, params); err != nil {
		return nil, err
	}
	sub := newSubscriber(tm.subscriptionBuffer, ctx.Done())
	runCtx, err := tm.begin(ctx, params, sub)
	if err != nil {
		return nil, err
	}
	go tm.process(runCtx, params)

	return sub.events, nil
}

// Resubscribe attaches to the updates of an existing task. A task that already
// reached a final state yields its current status once.
func (tm *TaskManager) Resubscribe(ctx context.Context, params *a2a.TaskQueryParams) (_ <-chan a2a.StreamEvent, err error) {
	ctx, span := tm.startSpan(ctx, "Resubscribe", params.ID)
	defer func() { endSpan(span, err) }()

	l := tm.lock(params.ID)
	l.Lock()
	defer l.Unlock()

	t, err := tm.store.Get(ctx, params.ID, 0)
	if err != nil {
		return nil, toRPCError(err)
	}

	if t.Status.State.IsFinal() {
		ch := make(chan a2a.StreamEvent, 1)
		ch <- &a2a.TaskStatusUpdateEvent{ID: t.ID, Status: t.Status, Final: true}
		close(ch)
		return ch, nil
	}

	sub := newSubscriber(tm.subscriptionBuffer, ctx.Done())
	tm.subscribe(params.ID, sub)
	tm.logger.InfoContext(ctx, "task resubscribed", "task_id", params.ID, "state", t.Status.State)
	return sub.events, nil
}

// GetTask returns a copy of a task with its history cut to params.HistoryLength entries.
func (tm *TaskManager) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (_ *a2a.Task, err error) {
	ctx, span := tm.startSpan(ctx, "GetTask", params.ID)
	defer func() { endSpan(span, err) }()

	t, err := tm.store.Get(ctx, params.ID, params.HistoryLength)
	if err != nil {
		tm.logger.InfoContext(ctx, "task not found", "task_id", params.ID)
		return nil, toRPCError(err)
	}
	return t, nil
}

// AppendTaskHistory returns a read-only copy of a task whose history holds at most
// the last limit entries. A limit of zero returns the full history.
func (tm *TaskManager) AppendTaskHistory(ctx context.Context, taskID string, limit int) (*a2a.Task, error) {
	return tm.GetTask(ctx, &a2a.TaskQueryParams{ID: taskID, HistoryLength: limit})
}

// CancelTask moves a task that has not finished yet to canceled and stops its agent.
func (tm *TaskManager) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (_ *a2a.Task, err error) {
	ctx, span := tm.startSpan(ctx, "CancelTask", params.ID)
	defer func() { endSpan(span, err) }()

	t, err := func() (*a2a.Task, error) {
		l := tm.lock(params.ID)
		l.Lock()
		defer l.Unlock()

		current, err := tm.store.Get(ctx, params.ID, 0)
		if err != nil {
			return nil, toRPCError(err)
		}
		if current.Status.State.IsTerminal() {
			tm.logger.InfoContext(ctx, "task cannot be canceled", "task_id", params.ID, "state", current.Status.State)
			return nil, a2a.NewTaskNotCancelableError(params.ID)
		}
		return tm.transitionLocked(ctx, params.ID, a2a.TaskStatus{State: a2a.TaskStateCanceled}, nil)
	}()
	if err != nil {
		return nil, err
	}

	tm.runningMu.Lock()
	cancel := tm.running[params.ID]
	tm.runningMu.Unlock()
	if cancel != nil {
		cancel()
	}

	tm.logger.InfoContext(ctx, "task canceled", "task_id", params.ID)
	return t, nil
}

// SetPushNotification registers the push config of a task after checking that the
// client controls its URL. Nothing is registered when the check fails.
func (tm *TaskManager) SetPushNotification(ctx context.Context, cfg *a2a.TaskPushNotificationConfig) (_ *a2a.TaskPushNotificationConfig, err error) {
	ctx, span := tm.startSpan(ctx, "SetPushNotification", cfg.ID)
	defer func() { endSpan(span, err) }()

	if tm.sender == nil {
		return nil, a2a.NewPushNotificationNotSupportedError()
	}
	if cfg.PushNotificationConfig.URL == "" {
		return nil, a2a.NewInvalidParamsError("push notification URL is missing")
	}
	if !tm.store.Exists(cfg.ID) {
		return nil, a2a.NewTaskNotFoundError(cfg.ID)
	}
	if !tm.sender.VerifyURL(ctx, cfg.PushNotificationConfig.URL) {
		return nil, a2a.NewInvalidParamsError("Push notification URL is invalid")
	}
	if err := tm.pushStore.SaveConfig(ctx, cfg.ID, &cfg.PushNotificationConfig); err != nil {
		return nil, a2a.NewInternalError(err.Error())
	}

	tm.logger.InfoContext(ctx, "task push notification configured", "task_id", cfg.ID)
	return cfg, nil
}

// GetPushNotification returns the push config of a task.
func (tm *TaskManager) GetPushNotification(ctx context.Context, params *a2a.TaskIDParams) (_ *a2a.TaskPushNotificationConfig, err error) {
	ctx, span := tm.startSpan(ctx, "GetPushNotification", params.ID)
	defer func() { endSpan(span, err) }()

	if tm.sender == nil {
		return nil, a2a.NewPushNotificationNotSupportedError()
	}
	if !tm.store.Exists(params.ID) {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	cfg, err := tm.pushStore.GetConfig(ctx, params.ID)
	if err != nil {
		return nil, a2a.NewInvalidParamsError("no push notification config registered for task")
	}
	return &a2a.TaskPushNotificationConfig{ID: params.ID, PushNotificationConfig: *cfg}, nil
}

// HasPushNotification reports whether a push config is registered for a task.
func (tm *TaskManager) HasPushNotification(ctx context.Context, taskID string) bool {
	return tm.pushStore.ExistsConfig(ctx, taskID)
}

func (tm *TaskManager) validateSend(ctx context.Context, params *a2a.TaskSendParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if !a2a.AreModalitiesCompatible(params.AcceptedOutputModes, tm.supportedContentTypes) {
		tm.logger.WarnContext(ctx, "unsupported output mode",
			"task_id", params.ID, "accepted", params.AcceptedOutputModes, "supported", tm.supportedContentTypes)
		return a2a.NewContentTypeNotSupportedError("")
	}
	if params.PushNotification != nil {
		if tm.sender == nil {
			return a2a.NewPushNotificationNotSupportedError()
		}
		if !tm.sender.VerifyURL(ctx, params.PushNotification.URL) {
			return a2a.NewInvalidParamsError("Push notification URL is invalid")
		}
	}
	return nil
}

// begin registers the task, its push config and sub under the transition lock and
// marks the task as running. The returned context outlives ctx and is canceled by
// CancelTask.
func (tm *TaskManager) begin(ctx context.Context, params *a2a.TaskSendParams, sub *subscriber) (context.Context, error) {
	l := tm.lock(params.ID)
	l.Lock()
	defer l.Unlock()

	tm.runningMu.Lock()
	_, busy := tm.running[params.ID]
	tm.runningMu.Unlock()
	if busy {
		return nil, a2a.NewInvalidRequestError(fmt.Sprintf("task %s is already being processed", params.ID))
	}

	t, created, err := tm.store.Upsert(ctx, params)
	if err != nil {
		var notUpdatable task.NotUpdatableError
		if errors.As(err, &notUpdatable) {
			return nil, a2a.NewInvalidRequestError(notUpdatable.Error())
		}
		return nil, a2a.NewInternalError(err.Error())
	}
	if created {
		tm.logger.InfoContext(ctx, "task created", "task_id", t.ID, "state", t.Status.State)
	}

	if params.PushNotification != nil {
		if err := tm.pushStore.SaveConfig(ctx, params.ID, params.PushNotification); err != nil {
			return nil, a2a.NewInternalError(err.Error())
		}
	}
	if sub != nil {
		tm.subscribe(params.ID, sub)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tm.runningMu.Lock()
	tm.running[params.ID] = cancel
	tm.runningMu.Unlock()
	tm.metrics.addRunning(1)

	return runCtx, nil
}

func (tm *TaskManager) finish(taskID string) {
	tm.runningMu.Lock()
	cancel := tm.running[taskID]
	delete(tm.running, taskID)
	tm.runningMu.Unlock()

	if cancel != nil {
		cancel()
	}
	tm.metrics.addRunning(-1)
}

// process moves the task to working, runs the agent and records its outcome.
func (tm *TaskManager) process(ctx context.Context, params *a2a.TaskSendParams) {
	defer tm.finish(params.ID)

	ctx, span := tm.startSpan(ctx, "process", params.ID)
	defer span.End()

	if _, err := tm.transition(ctx, params.ID, a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		tm.logger.WarnContext(ctx, "task could not start", "task_id", params.ID, "error", err)
		return
	}

	res, err := tm.invoke(ctx, params)
	if err != nil {
		span.RecordError(err)
		tm.logger.ErrorContext(ctx, "agent failed", "task_id", params.ID, "error", err)
	}
	status, artifacts := res.status(err)

	if _, err := tm.transition(ctx, params.ID, status, artifacts); err != nil {
		var notUpdatable task.NotUpdatableError
		if errors.As(err, &notUpdatable) {
			tm.logger.DebugContext(ctx, "dropping agent result of finished task", "task_id", params.ID, "state", notUpdatable.State)
			return
		}
		tm.logger.WarnContext(ctx, "failed to record agent result", "task_id", params.ID, "error", err)
	}
}

func (tm *TaskManager) invoke(ctx context.Context, params *a2a.TaskSendParams) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("agent panic: %v", r)
		}
	}()
	return tm.agent.Invoke(ctx, params, &Updater{tm: tm, taskID: params.ID})
}

func (tm *TaskManager) transition(ctx context.Context, taskID string, status a2a.TaskStatus, artifacts []a2a.Artifact) (*a2a.Task, error) {
	l := tm.lock(taskID)
	l.Lock()
	defer l.Unlock()

	return tm.transitionLocked(ctx, taskID, status, artifacts)
}

// transitionLocked records a status change, publishes the artifact events followed
// by the status event and sends a push notification. The caller holds the
// transition lock of the task.
func (tm *TaskManager) transitionLocked(ctx context.Context, taskID string, status a2a.TaskStatus, artifacts []a2a.Artifact) (*a2a.Task, error) {
	t, err := tm.store.SetStatus(ctx, taskID, status, artifacts...)
	if err != nil {
		return nil, err
	}
	tm.metrics.incTransition(t.Status.State)
	tm.logger.InfoContext(ctx, "task status updated", "task_id", taskID, "state", t.Status.State)

	for _, artifact := range artifacts {
		tm.publish(ctx, taskID, &a2a.TaskArtifactUpdateEvent{ID: taskID, Artifact: artifact})
	}
	tm.publish(ctx, taskID, &a2a.TaskStatusUpdateEvent{
		ID:     taskID,
		Status: t.Status,
		Final:  t.Status.State.IsFinal(),
	})
	tm.notify(ctx, t)

	return t, nil
}

func (tm *TaskManager) addArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) error {
	l := tm.lock(taskID)
	l.Lock()
	defer l.Unlock()

	t, err := tm.store.Update(ctx, taskID, func(t *a2a.Task) error {
		if t.Status.State.IsTerminal() {
			return task.NewNotUpdatableError(taskID, t.Status.State)
		}
		t.Artifacts = append(t.Artifacts, artifact)
		return nil
	})
	if err != nil {
		return err
	}
	tm.publish(ctx, taskID, &a2a.TaskArtifactUpdateEvent{ID: taskID, Artifact: artifact})
	tm.notify(ctx, t)
	return nil
}

func (tm *TaskManager) subscribe(taskID string, sub *subscriber) {
	tm.subs.add(taskID, sub)
	tm.metrics.addSubscriptions(1)

	go func() {
		select {
		case <-sub.done:
			l := tm.lock(taskID)
			l.Lock()
			if tm.subs.remove(taskID, sub) {
				sub.close()
				tm.metrics.addSubscriptions(-1)
				tm.logger.Debug("task subscriber disconnected", "task_id", taskID)
			}
			l.Unlock()
		case <-sub.closed:
		}
	}()
}

// publish delivers ev to every subscriber of the task and closes their streams
// after a final event. The caller holds the transition lock of the task.
func (tm *TaskManager) publish(ctx context.Context, taskID string, ev a2a.StreamEvent) {
	for _, sub := range tm.subs.list(taskID) {
		if !sub.send(ev) {
			tm.logger.DebugContext(ctx, "subscriber gone, event dropped", "task_id", taskID)
		}
	}
	if ev.IsFinal() {
		for _, sub := range tm.subs.removeAll(taskID) {
			sub.close()
			tm.metrics.addSubscriptions(-1)
		}
	}
}

// notify sends the task to its push callback, if one is registered.
func (tm *TaskManager) notify(ctx context.Context, t *a2a.Task) {
	if tm.sender == nil || !tm.pushStore.ExistsConfig(ctx, t.ID) {
		return
	}

	tm.pushMu.Lock()
	queue, delivering := tm.pushQueues[t.ID]
	tm.pushQueues[t.ID] = append(queue, t)
	tm.pushMu.Unlock()

	if !delivering {
		go tm.deliverPush(context.WithoutCancel(ctx), t.ID)
	}
}

// deliverPush sends the queued notifications of a task one at a time until the
// queue is empty.
func (tm *TaskManager) deliverPush(ctx context.Context, taskID string) {
	for {
		tm.pushMu.Lock()
		queue := tm.pushQueues[taskID]
		if len(queue) == 0 {
			delete(tm.pushQueues, taskID)
			tm.pushMu.Unlock()
			return
		}
		t := queue[0]
		tm.pushQueues[taskID] = queue[1:]
		tm.pushMu.Unlock()

		cfg, err := tm.pushStore.GetConfig(ctx, taskID)
		if err != nil {
			continue
		}
		// failures are logged and counted by the sender
		_ = tm.sender.Send(ctx, cfg, t)
	}
}

// toRPCError maps store errors to protocol errors.
func toRPCError(err error) error {
	var rpcErr *a2a.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var notFound task.NotFoundError
	if errors.As(err, &notFound) {
		return a2a.NewTaskNotFoundError(notFound.TaskID)
	}
	var notUpdatable task.NotUpdatableError
	if errors.As(err, &notUpdatable) {
		return a2a.NewInvalidRequestError(notUpdatable.Error())
	}
	return a2a.NewInternalError(err.Error())
}
