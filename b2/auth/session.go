// Package auth keeps the account authorization every remote call depends on.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bitrise-io/go-b2/b2/kv"
	"github.com/bitrise-io/go-b2/b2/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "b2:authorization"

// Credentials identify the account and the endpoint authorization is requested from.
type Credentials struct {
	AccountID      string
	KeyID          string
	ApplicationKey string
	// APIURL is the authorization endpoint host, e.g. https://api.backblazeb2.com.
	APIURL     string
	APIVersion int
}

// State is one complete authorization result. A refresh always replaces the
// whole value.
type State struct {
	AccountID               string    `json:"accountId"`
	Token                   string    `json:"authorizationToken"`
	APIURL                  string    `json:"apiUrl"`
	DownloadURL             string    `json:"downloadUrl"`
	RecommendedPartSize     int64     `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64     `json:"absoluteMinimumPartSize"`
	APIVersion              int       `json:"apiVersion"`
	CachedAt                time.Time `json:"cachedAt"`
}

// Endpoint returns the URL of the named API operation.
func (s State) Endpoint(operation string) string {
	return fmt.Sprintf("%s/b2api/v%d/%s", s.APIURL, s.APIVersion, operation)
}

// Session hands out the cached authorization, refreshing it when it is
// missing, expired or invalidated. Concurrent refreshes are coalesced.
type Session struct {
	sender transport.Sender
	store  kv.Store
	creds  Credentials
	ttl    time.Duration
	logger log.Logger
	now    func() time.Time

	group      singleflight.Group
	mu         sync.Mutex
	generation uint64
	forced     bool
}

// NewSession ...
func NewSession(sender transport.Sender, store kv.Store, creds Credentials, ttl time.Duration, logger log.Logger) *Session {
	if creds.APIVersion == 0 {
		creds.APIVersion = 1
	}
	if creds.KeyID == "" {
		creds.KeyID = creds.AccountID
	}
	return &Session{
		sender: sender,
		store:  store,
		creds:  creds,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the current authorization.
func (s *Session) Get(ctx context.Context) (State, error) {
	s.mu.Lock()
	generation, forced := s.generation, s.forced
	s.mu.Unlock()

	if !forced {
		state, ok := s.cached()
		if ok {
			return state, nil
		}
	}

	ch := s.group.DoChan(strconv.FormatUint(generation, 10), func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), generation)
	})
	select {
	case <-ctx.Done():
		return State{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return State{}, res.Err
		}
		return res.Val.(State), nil
	}
}

// Invalidate makes the next Get authorize again regardless of the TTL.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.generation++
	s.forced = true
	s.mu.Unlock()

	if err := s.store.Forget(cacheKey); err != nil {
		s.logger.Warnf("Failed to forget cached authorization: %s", err)
	}
}

// RecommendedPartSize returns the part size the service advised at authorization time.
func (s *Session) RecommendedPartSize(ctx context.Context) (int64, error) {
	state, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return state.RecommendedPartSize, nil
}

func (s *Session) cached() (State, bool) {
	data, ok, err := s.store.Get(cacheKey)
	if err != nil {
		s.logger.Warnf("Failed to read cached authorization: %s", err)
		return State{}, false
	}
	if !ok {
		return State{}, false
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warnf("Ignoring malformed cached authorization: %s", err)
		return State{}, false
	}
	return state, true
}

func (s *Session) refresh(ctx context.Context, generation uint64) (State, error) {
	s.logger.Debugf("Authorizing account %s", s.creds.KeyID)

	state, err := s.authorize(ctx)
	if err != nil {
		return State{}, fmt.Errorf("authorize account: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return State{}, fmt.Errorf("encode authorization: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		// Invalidated while authorizing; the caller still gets the fresh token
		// but the next Get authorizes again.
		return state, nil
	}
	if err := s.store.Set(cacheKey, data, s.ttl); err != nil {
		s.logger.Warnf("Failed to cache authorization: %s", err)
	}
	s.forced = false

	return state, nil
}

func (s *Session) authorize(ctx context.Context) (State, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(s.creds.KeyID + ":" + s.creds.ApplicationKey))
	header := http.Header{}
	header.Set("Authorization", "Basic "+credentials)

	url := fmt.Sprintf("%s/b2api/v%d/b2_authorize_account", s.creds.APIURL, s.creds.APIVersion)
	resp, err := s.sender.Send(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    url,
		Header: header,
	})
	if err != nil {
		return State{}, err
	}
	if err := transport.CheckStatus(resp); err != nil {
		return State{}, err
	}

	var state State
	if err := resp.DecodeJSON(&state); err != nil {
		return State{}, err
	}
	if state.Token == "" || state.APIURL == "" {
		return State{}, fmt.Errorf("incomplete authorization response")
	}
	if state.AccountID == "" {
		state.AccountID = s.creds.AccountID
	}
	state.APIVersion = s.creds.APIVersion
	state.CachedAt = s.now().UTC().Round(0)

	return state, nil
}
