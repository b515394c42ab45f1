// Package transport sends requests to the remote service. A Sender performs a
// single exchange; Retrier decorates any Sender with the overload retry policy
// and classifies failed responses.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Sender sends one request and returns the response with its body fully read.
// Only transport failures are returned as errors; status codes are not
// interpreted.
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Request ...
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body returns a fresh reader over the whole body for every attempt, so
	// the same bytes are sent when a request is repeated. Nil sends no body.
	Body          func() (io.Reader, error)
	ContentLength int64
}

// Response ...
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewJSONRequest encodes payload as the request body.
func NewJSONRequest(method, url string, payload interface{}) (Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode request body: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return Request{
		Method:        method,
		URL:           url,
		Header:        header,
		Body:          BytesBody(body),
		ContentLength: int64(len(body)),
	}, nil
}

// BytesBody returns a replayable body over data.
func BytesBody(data []byte) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		return bytes.NewReader(data), nil
	}
}

// DecodeJSON ...
func (r Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (r Response) successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
