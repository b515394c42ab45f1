package testing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bitrise-io/go-b2/b2/transport"
)

// Step is one scripted answer of a ScriptedSender.
type Step struct {
	Response transport.Response
	Err      error
}

// Status scripts a response with the given status code and body.
func Status(code int, body string) Step {
	return Step{Response: transport.Response{StatusCode: code, Header: http.Header{}, Body: []byte(body)}}
}

// Failure scripts a transport level failure.
func Failure(err error) Step {
	return Step{Err: err}
}

// RecordedRequest is a request seen by a ScriptedSender with its body read out.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// ScriptedSender is a transport.Sender that answers with a fixed sequence of
// steps and records every request it receives.
type ScriptedSender struct {
	mu       sync.Mutex
	steps    []Step
	requests []RecordedRequest
}

// NewScriptedSender ...
func NewScriptedSender(steps ...Step) *ScriptedSender {
	return &ScriptedSender{steps: steps}
}

// Send ...
func (s *ScriptedSender) Send(_ context.Context, req transport.Request) (transport.Response, error) {
	recorded := RecordedRequest{Method: req.Method, URL: req.URL, Header: req.Header}
	if req.Body != nil {
		r, err := req.Body()
		if err != nil {
			return transport.Response{}, err
		}
		body, err := io.ReadAll(r)
		if err != nil {
			return transport.Response{}, err
		}
		recorded.Body = body
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, recorded)
	if len(s.steps) == 0 {
		return transport.Response{}, fmt.Errorf("no scripted response for %s %s", req.Method, req.URL)
	}
	step := s.steps[0]
	s.steps = s.steps[1:]

	return step.Response, step.Err
}

// Requests returns the requests received so far.
func (s *ScriptedSender) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Remaining returns the number of unused steps.
func (s *ScriptedSender) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
