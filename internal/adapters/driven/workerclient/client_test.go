package workerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

func TestTrigger(t *testing.T) {
	var gotPath, gotKey string
	var gotBody driven.StageWorkerRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Internal-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stage":"embed","processed":2,"failed":0}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, InternalKey: "secret"})

	raw, err := client.Trigger(context.Background(), domain.JobTypeEmbed, driven.StageWorkerRequest{ConcurrencyDocs: 7})
	require.NoError(t, err)

	assert.Equal(t, "/internal/workers/embed", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, 7, gotBody.ConcurrencyDocs)
	assert.JSONEq(t, `{"stage":"embed","processed":2,"failed":0}`, string(raw))
}

func TestTriggerErrorStatusIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "stage run already in progress", http.StatusConflict)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})

	_, err := client.Trigger(context.Background(), domain.JobTypeChunk, driven.StageWorkerRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Equal(t, 1, calls, "HTTP error statuses must not be retried")
}

func TestTriggerRetriesConnectionFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Kill the connection without a response
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})

	raw, err := client.Trigger(context.Background(), domain.JobTypeChunk, driven.StageWorkerRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 2, calls)
}

func TestTriggerContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Trigger(ctx, domain.JobTypeChunk, driven.StageWorkerRequest{})
	require.Error(t, err)
}
