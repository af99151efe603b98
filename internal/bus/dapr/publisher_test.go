package dapr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
)

func TestPublishPostsToSidecar(t *testing.T) {
	var gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPublisher(srv.URL + "/")
	require.NoError(t, p.Publish(context.Background(), "orderpubsub", "orders", event.Event{ID: 7}))

	assert.Equal(t, "/v1.0/publish/orderpubsub/orders", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"id":7}`, gotBody)
}

func TestPublishNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pubsub orderpubsub not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewPublisher(srv.URL).Publish(context.Background(), "orderpubsub", "orders", event.Event{ID: 1})
	assert.ErrorIs(t, err, bus.ErrPublishFailed)
	assert.ErrorContains(t, err, "404")
}

func TestPublishCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewPublisher(srv.URL).Publish(ctx, "p", "t", event.Event{ID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := NewPublisher(addr).Publish(context.Background(), "p", "t", event.Event{ID: 1})
	assert.ErrorIs(t, err, bus.ErrPublishFailed)
}

func TestPublishClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewPublisher(srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	err := p.Publish(context.Background(), "orderpubsub", "orders", event.Event{ID: 1})
	assert.ErrorIs(t, err, bus.ErrPublishFailed)
}
