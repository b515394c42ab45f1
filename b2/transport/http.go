package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPSender adapts a retryable HTTP client to the Sender interface. The
// client only repeats requests that failed at the connection level; status
// codes are left to the caller.
type HTTPSender struct {
	client *retryablehttp.Client
	logger log.Logger
}

// NewHTTPSender wraps client. Its CheckRetry policy is replaced so that
// response status codes never trigger a retry inside the client.
func NewHTTPSender(client *retryablehttp.Client, logger log.Logger) *HTTPSender {
	client.CheckRetry = connectionErrorRetryPolicy(logger)
	return &HTTPSender{
		client: client,
		logger: logger,
	}
}

// NewDefaultHTTPSender ...
func NewDefaultHTTPSender(logger log.Logger) *HTTPSender {
	return NewHTTPSender(retryhttp.NewClient(logger), logger)
}

// Send ...
func (s *HTTPSender) Send(ctx context.Context, r Request) (Response, error) {
	var body interface{}
	if r.Body != nil && r.ContentLength != 0 {
		body = retryablehttp.ReaderFunc(r.Body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	for key, values := range r.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.ContentLength = r.ContentLength
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", r.Method, redact(r.URL), err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			s.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func connectionErrorRetryPolicy(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil {
			return false, nil
		}
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, checkErr, err)
		return retry, checkErr
	}
}

// redact drops the query string, which can carry download authorization tokens.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
