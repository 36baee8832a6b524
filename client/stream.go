// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/go-a2a/sqlexcel/a2a"
)

// Stream is an open event stream of a task. Events are read lazily from the
// connection as the caller iterates.
type Stream struct {
	method  string
	body    io.ReadCloser
	reader  *bufio.Reader
	release func()
	once    sync.Once
}

func newStream(method string, body io.ReadCloser, release func()) *Stream {
	return &Stream{
		method:  method,
		body:    body,
		reader:  bufio.NewReader(body),
		release: release,
	}
}

// Close closes the stream connection.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.body.Close()
		s.release()
	})
	return err
}

// Events yields the events of the stream in the order the agent sent them.
//
// The sequence ends after the final event, on the first error, or when the caller
// stops iterating; the stream is closed in every case. A connection that ends
// before the final event yields an [*NetworkError] wrapping [io.ErrUnexpectedEOF].
func (s *Stream) Events() iter.Seq2[a2a.StreamEvent, error] {
	return func(yield func(a2a.StreamEvent, error) bool) {
		defer s.Close()

		for {
			data, err := s.next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				yield(nil, NewNetworkError(fmt.Sprintf("read %s stream", s.method), err))
				return
			}

			ev, err := s.decode(data)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) || ev.IsFinal() {
				return
			}
		}
	}
}

// Wait drains the stream and returns the final status together with every artifact
// received on the way.
func (s *Stream) Wait() (*a2a.TaskStatus, []a2a.Artifact, error) {
	var artifacts []a2a.Artifact
	for ev, err := range s.Events() {
		if err != nil {
			return nil, artifacts, err
		}
		switch ev := ev.(type) {
		case *a2a.TaskArtifactUpdateEvent:
			artifacts = append(artifacts, ev.Artifact)
		case *a2a.TaskStatusUpdateEvent:
			if ev.Final {
				return &ev.Status, artifacts, nil
			}
		}
	}
	return nil, artifacts, NewNetworkError(fmt.Sprintf("read %s stream", s.method), io.ErrUnexpectedEOF)
}

func (s *Stream) decode(data []byte) (a2a.StreamEvent, error) {
	result, err := decodeResponse(s.method, data)
	if err != nil {
		return nil, err
	}
	ev, err := a2a.UnmarshalStreamEvent(result)
	if err != nil {
		return nil, NewValidationError("result", fmt.Sprintf("decode %s event: %v", s.method, err))
	}
	return ev, nil
}

// next returns the data of the next server-sent event. Multi-line data is joined
// with newlines; comments and other fields are skipped.
func (s *Stream) next() ([]byte, error) {
	var data []byte
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && (len(line) == 0 || !errors.Is(err, io.EOF)) {
			if len(data) > 0 && errors.Is(err, io.EOF) {
				return data, nil
			}
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(data) > 0 {
				return data, nil
			}
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if data != nil {
			data = append(data, '\n')
		}
		data = append(data, value...)
	}
}
