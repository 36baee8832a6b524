// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"slices"
	"sync"

	"github.com/go-a2a/sqlexcel/a2a"
)

// subscriber is one live stream of a task's events.
//
// events is closed exactly once, by whoever removes the subscriber from the
// registry, and always while holding the task's transition lock so that no
// publisher can be sending on it at the same time.
type subscriber struct {
	events chan a2a.StreamEvent
	done   <-chan struct{}
	closed chan struct{}
}

func newSubscriber(buffer int, done <-chan struct{}) *subscriber {
	return &subscriber{
		events: make(chan a2a.StreamEvent, buffer),
		done:   done,
		closed: make(chan struct{}),
	}
}

// send delivers ev unless the subscriber went away first.
func (s *subscriber) send(ev a2a.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *subscriber) close() {
	close(s.events)
	close(s.closed)
}

// subscriptions indexes subscribers by task id.
type subscriptions struct {
	mu     sync.Mutex
	byTask map[string][]*subscriber
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byTask: make(map[string][]*subscriber),
	}
}

func (s *subscriptions) add(taskID string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byTask[taskID] = append(s.byTask[taskID], sub)
}

func (s *subscriptions) list(taskID string) []*subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.byTask[taskID])
}

// remove unregisters sub and reports whether it was registered.
func (s *subscriptions) remove(taskID string, sub *subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.byTask[taskID]
	i := slices.Index(subs, sub)
	if i < 0 {
		return false
	}
	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(s.byTask, taskID)
	} else {
		s.byTask[taskID] = subs
	}
	return true
}

// removeAll unregisters and returns every subscriber of a task.
func (s *subscriptions) removeAll(taskID string) []*subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.byTask[taskID]
	delete(s.byTask, taskID)
	return subs
}

func (s *subscriptions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, subs := range s.byTask {
		n += len(subs)
	}
	return n
}
