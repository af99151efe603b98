package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes Server-Sent Events to a response.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send writes one named event with a JSON data line.
func (s sseSink) Send(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, b)
	return err
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
