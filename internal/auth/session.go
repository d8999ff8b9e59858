package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const signInPath = "/auth/anonymous"

var (
	errMissingBaseURL = errors.New("auth: base url is required")
	// ErrNotSignedIn indicates no usable session token is held.
	ErrNotSignedIn = errors.New("auth: not signed in")
)

// SessionConfig configures the device-side identity session.
type SessionConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Session is the device-side identity provider. It signs in anonymously
// against the backend on first use, caches the session token in memory, and
// re-signs-in when the token expires. An unreachable backend resolves to "no
// current user" rather than an error, so offline writes queue instead of
// failing.
type Session struct {
	baseURL    string
	httpClient *http.Client
	clock      func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	token     string
	userID    string
	expiresAt time.Time
}

// NewSession constructs a Session against the given backend base URL.
func NewSession(cfg SessionConfig) (*Session, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		clock:      clock,
		logger:     logger,
	}, nil
}

// CurrentUserID returns the current user identifier, triggering an implicit
// anonymous sign-in when no session is held. It returns an empty id when the
// backend cannot be reached; identity can change between calls, so callers
// must not cache the result beyond a single operation.
func (s *Session) CurrentUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionValid() {
		return s.userID, nil
	}

	if err := s.signIn(ctx); err != nil {
		s.logger.Warn("anonymous sign-in failed", zap.Error(err))
		return "", nil
	}
	return s.userID, nil
}

// Token returns the bearer token for the current session, signing in first if
// needed. Unlike CurrentUserID, an unreachable backend is an error here: a
// remote call without a token cannot succeed anyway.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionValid() {
		return s.token, nil
	}
	if err := s.signIn(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	return s.token, nil
}

// SignOut drops the cached session. The next remote-touching operation starts
// a fresh anonymous identity.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.userID = ""
	s.expiresAt = time.Time{}
}

func (s *Session) sessionValid() bool {
	return s.token != "" && s.clock().Before(s.expiresAt)
}

type signInResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// signIn performs the anonymous sign-in round trip. Callers hold s.mu.
func (s *Session) signIn(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+signInPath, http.NoBody)
	if err != nil {
		return err
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: sign-in returned status %d", response.StatusCode)
	}

	var payload signInResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return err
	}
	if payload.AccessToken == "" || payload.UserID == "" {
		return errors.New("auth: sign-in response missing token or user id")
	}

	s.token = payload.AccessToken
	s.userID = payload.UserID
	s.expiresAt = s.clock().Add(time.Duration(payload.ExpiresIn) * time.Second)

	s.logger.Info("signed in anonymously", zap.String("user_id", payload.UserID))
	return nil
}
