package controllers

import (
	"encoding/json"
	"net/http"
)

// sseSink writes Server-Sent Events to an HTTP response.
type sseSink struct {
	w http.ResponseWriter
}

func newSSESink(w http.ResponseWriter) sseSink {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return sseSink{w: w}
}

// Send writes one named event with a JSON data line.
func (s sseSink) Send(ev queueEvent) error {
	b, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: " + ev.Name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	_, err = s.w.Write([]byte("\n\n"))
	return err
}

// Comment writes an SSE comment line, used to open the stream.
func (s sseSink) Comment(text string) error {
	_, err := s.w.Write([]byte(": " + text + "\n\n"))
	return err
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
