// Package network implements the typed remote API calls on top of a
// transport.Sender and the account authorization.
package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-b2/b2/auth"
	"github.com/bitrise-io/go-b2/b2/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Error codes the service answers with when the account token is no longer valid.
const (
	codeExpiredAuthToken = "expired_auth_token"
	codeBadAuthToken     = "bad_auth_token"
)

// Session is the source of the account authorization.
type Session interface {
	Get(ctx context.Context) (auth.State, error)
	Invalidate()
}

// API ...
type API struct {
	sender  transport.Sender
	session Session
	logger  log.Logger
}

// NewAPI ...
func NewAPI(sender transport.Sender, session Session, logger log.Logger) *API {
	return &API{
		sender:  sender,
		session: session,
		logger:  logger,
	}
}

// call posts payload to the named operation and decodes the response into out.
func (a *API) call(ctx context.Context, operation string, payload, out interface{}) error {
	resp, err := a.authorized(ctx, func(state auth.State) (transport.Request, error) {
		req, err := transport.NewJSONRequest(http.MethodPost, state.Endpoint(operation), payload)
		if err != nil {
			return transport.Request{}, err
		}
		req.Header.Set("Authorization", state.Token)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// authorized sends the request built from the current authorization. When the
// service rejects the account token it authorizes again and repeats the call once.
func (a *API) authorized(ctx context.Context, build func(auth.State) (transport.Request, error)) (transport.Response, error) {
	for attempt := 1; ; attempt++ {
		state, err := a.session.Get(ctx)
		if err != nil {
			return transport.Response{}, err
		}

		req, err := build(state)
		if err != nil {
			return transport.Response{}, err
		}

		resp, err := a.sender.Send(ctx, req)
		if err != nil && attempt == 1 && tokenRejected(err) {
			a.logger.Warnf("Authorization token rejected, authorizing again")
			a.session.Invalidate()
			continue
		}
		return resp, err
	}
}

func (a *API) accountID(ctx context.Context) (string, error) {
	state, err := a.session.Get(ctx)
	if err != nil {
		return "", err
	}
	return state.AccountID, nil
}

func tokenRejected(err error) bool {
	reqErr, ok := transport.AsRequestError(err)
	if !ok || reqErr.StatusCode != http.StatusUnauthorized {
		return false
	}
	return reqErr.Code == codeExpiredAuthToken || reqErr.Code == codeBadAuthToken
}

// EscapeFileName percent-encodes a file name for headers and URLs, keeping
// the "/" separators.
func EscapeFileName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "%2F", "/")
}
