package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sporttracker/sporttracker/internal/activity"
)

type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL: baseURL,
		Tokens:  &staticTokens{token: "session-token"},
	})
	if err != nil {
		t.Fatalf("construct client: %v", err)
	}
	return client
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	if _, err := NewClient(ClientConfig{Tokens: &staticTokens{}}); err == nil {
		t.Fatal("expected missing base url error")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected missing token source error")
	}
}

func TestGetActivitiesSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"activities": []activity.Activity{{ID: "act-1", UserID: "user-1"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	records, err := client.GetActivities(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get activities: %v", err)
	}
	if len(records) != 1 || records[0].ID != "act-1" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestGetActivitiesRejectsForeignScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"activities": []activity.Activity{{ID: "act-1", UserID: "someone-else"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GetActivities(context.Background(), "user-1"); err == nil {
		t.Fatal("expected a scope mismatch error")
	}
}

func TestGetActivitiesRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"activities": []activity.Activity{}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GetActivities(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected the third attempt to succeed: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSaveActivityDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.SaveActivity(context.Background(), "user-1", activity.Activity{ID: "act-1"})
	if err == nil {
		t.Fatal("expected the save to fail")
	}
	if calls.Load() != 1 {
		t.Fatalf("mutations must get a single attempt, got %d", calls.Load())
	}
}

func TestSaveActivityStampsOwner(t *testing.T) {
	var received activity.Activity
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": received.ID})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.SaveActivity(context.Background(), "user-1", activity.Activity{ID: "act-1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if received.UserID != "user-1" {
		t.Fatalf("expected the payload scoped to user-1, got %q", received.UserID)
	}
}

func TestDeleteActivityTargetsRecordPath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.DeleteActivity(context.Background(), "user-1", "act-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if path != "/activities/act-1" {
		t.Fatalf("unexpected request path %q", path)
	}
}

func TestSyncActivitiesPushesBatch(t *testing.T) {
	var request syncRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/sync" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"accepted": len(request.Activities)})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	batch := []activity.Activity{{ID: "act-1"}, {ID: "act-2"}}
	if err := client.SyncActivities(context.Background(), "user-1", batch); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(request.Activities) != 2 {
		t.Fatalf("expected 2 records pushed, got %d", len(request.Activities))
	}
	for _, record := range request.Activities {
		if record.UserID != "user-1" {
			t.Fatalf("expected every record scoped to user-1, got %q", record.UserID)
		}
	}
}

func TestClientPropagatesTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("the request must not reach the backend without a token")
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		Tokens:  &staticTokens{err: errors.New("not signed in")},
	})
	if err != nil {
		t.Fatalf("construct client: %v", err)
	}
	if err := client.SaveActivity(context.Background(), "user-1", activity.Activity{ID: "act-1"}); err == nil {
		t.Fatal("expected the token failure to propagate")
	}
}
