// Package sse writes Server-Sent Events.
//
//	stream, err := sse.New(w, r)
//	if err != nil { return }
//	for msg := range alerts {
//	    if err := stream.Send("alert", msg); err != nil { return }
//	}
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrClosed = errors.New("sse: client went away")

// Stream is an open event stream to one client.
type Stream struct {
	w  http.ResponseWriter
	r  *http.Request
	rc *http.ResponseController
}

// New sets the event-stream headers and flushes them. It fails when the
// writer chain cannot flush.
func New(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: flush unsupported: %w", err)
	}
	return &Stream{w: w, r: r, rc: rc}, nil
}

// Send writes a named event with v encoded as JSON. Raw JSON ([]byte or
// json.RawMessage) is written as is.
func (s *Stream) Send(event string, v any) error {
	var payload []byte
	switch b := v.(type) {
	case []byte:
		payload = b
	case json.RawMessage:
		payload = b
	default:
		var err error
		if payload, err = json.Marshal(v); err != nil {
			return fmt.Errorf("sse: marshal: %w", err)
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return ErrClosed
		}
	}
	for _, line := range strings.Split(string(payload), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return ErrClosed
		}
	}
	return s.end()
}

// Comment writes a comment line, used as a heartbeat.
func (s *Stream) Comment(msg string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n", msg); err != nil {
		return ErrClosed
	}
	return s.end()
}

func (s *Stream) end() error {
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return ErrClosed
	}
	if err := s.rc.Flush(); err != nil {
		return ErrClosed
	}
	if s.r.Context().Err() != nil {
		return ErrClosed
	}
	return nil
}

// Done is closed when the client disconnects.
func (s *Stream) Done() <-chan struct{} { return s.r.Context().Done() }
