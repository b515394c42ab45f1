package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// RequestError is a non-success response from the remote service. It carries
// the status code and the structured error payload the service returned.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	// Attempts is the number of times the request was sent.
	Attempts int
}

type errorPayload struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRequestError(resp Response, attempts int) *RequestError {
	reqErr := &RequestError{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Attempts:   attempts,
	}

	var payload errorPayload
	if err := json.Unmarshal(resp.Body, &payload); err == nil {
		reqErr.Code = payload.Code
		reqErr.Message = payload.Message
	}

	return reqErr
}

func (e *RequestError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case len(e.Body) > 0:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Exhausted reports whether the service stayed overloaded for the whole retry budget.
func (e *RequestError) Exhausted() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// AsRequestError ...
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// IsStatus reports whether err is a RequestError with the given status code.
func IsStatus(err error, statusCode int) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.StatusCode == statusCode
}

// CheckStatus returns a RequestError for a non-success response that reached
// the caller without going through a Retrier.
func CheckStatus(resp Response) error {
	if resp.successful() {
		return nil
	}
	return newRequestError(resp, 1)
}
