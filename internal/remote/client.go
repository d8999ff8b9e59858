// Package remote implements the device-side client for the cloud activity
// API. It satisfies [activity.RemoteStore]; failures stay opaque to the
// synchronization repository, which reacts only to success or failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sporttracker/sporttracker/internal/activity"
)

var (
	errMissingBaseURL     = errors.New("remote: base url is required")
	errMissingTokenSource = errors.New("remote: token source is required")
)

// TokenSource supplies the bearer token for authorized requests.
// Implemented by [auth.Session].
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientConfig configures the remote store client.
type ClientConfig struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks JSON over HTTP to the cloud activity collection.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client against the given backend base URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenSource
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type listResponse struct {
	Activities []activity.Activity `json:"activities"`
}

// GetActivities fetches the full remote record set for the user. The read is
// idempotent, so transient failures are retried with backoff.
func (c *Client) GetActivities(ctx context.Context, userID string) ([]activity.Activity, error) {
	var payload listResponse
	err := retry(ctx, defaultMaxAttempts, func() error {
		return c.do(ctx, http.MethodGet, "/activities", nil, &payload)
	})
	if err != nil {
		return nil, err
	}

	// The API scopes by token subject; a mismatched caller-supplied scope
	// would silently read another identity's data, so fail loudly instead.
	for _, record := range payload.Activities {
		if record.UserID != "" && record.UserID != userID {
			return nil, fmt.Errorf("remote: response scoped to a different user")
		}
	}
	return payload.Activities, nil
}

type upsertResponse struct {
	ID string `json:"id"`
}

// SaveActivity creates or replaces the record remotely, keyed by its id.
func (c *Client) SaveActivity(ctx context.Context, userID string, record activity.Activity) error {
	record.UserID = userID
	return c.do(ctx, http.MethodPost, "/activities", record, &upsertResponse{})
}

// UpdateActivity rewrites an existing remote record.
func (c *Client) UpdateActivity(ctx context.Context, userID string, record activity.Activity) error {
	record.UserID = userID
	return c.do(ctx, http.MethodPut, "/activities/"+record.ID, record, &upsertResponse{})
}

// DeleteActivity removes the remote record. Absent ids succeed.
func (c *Client) DeleteActivity(ctx context.Context, userID, id string) error {
	return c.do(ctx, http.MethodDelete, "/activities/"+id, nil, nil)
}

type syncRequest struct {
	Activities []activity.Activity `json:"activities"`
}

type syncResponse struct {
	Accepted int `json:"accepted"`
}

// SyncActivities pushes a batch upsert; the backend resolves conflicts.
func (c *Client) SyncActivities(ctx context.Context, userID string, records []activity.Activity) error {
	for i := range records {
		records[i].UserID = userID
	}
	var payload syncResponse
	if err := c.do(ctx, http.MethodPost, "/activities/sync", syncRequest{Activities: records}, &payload); err != nil {
		return err
	}
	c.logger.Debug("batch sync pushed",
		zap.Int("sent", len(records)),
		zap.Int("accepted", payload.Accepted))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote: %s %s returned status %d", method, path, response.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
