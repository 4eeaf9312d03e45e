package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	body := []byte(`{"sequence":1}`)
	got := sign("hunter2", body)

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(body)
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), got)
	require.NotEqual(t, got, sign("other", body))
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.CreateSubscription(ctx, WebhookSubscription{
		ID:        "sub1",
		URL:       receiver.URL,
		Secret:    "hunter2",
		CreatedAt: time.Now().Unix(),
	}))

	dispatcher := NewWebhookDispatcher(store, nil)
	go dispatcher.Run(ctx)

	evt := entry(7, "escrow.payment.released")
	dispatcher.Enqueue(ctx, evt)

	select {
	case req := <-received:
		body := <-bodies
		require.Equal(t, "escrow.payment.released", req.Header.Get("X-Tradevault-Event"))
		require.Equal(t, "7", req.Header.Get("X-Tradevault-Sequence"))
		require.Equal(t, sign("hunter2", body), req.Header.Get("X-Tradevault-Signature"))
		var delivered JournalEntry
		require.NoError(t, json.Unmarshal(body, &delivered))
		require.Equal(t, int64(7), delivered.Sequence)
		require.Equal(t, "escrow.payment.released", delivered.Event.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestDispatcherFiltersByEventType(t *testing.T) {
	hits := make(chan string, 4)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Header.Get("X-Tradevault-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.CreateSubscription(ctx, WebhookSubscription{
		ID:         "disputes-only",
		URL:        receiver.URL,
		Secret:     "s",
		EventTypes: []string{"escrow.dispute.raised"},
		CreatedAt:  time.Now().Unix(),
	}))

	dispatcher := NewWebhookDispatcher(store, nil)
	go dispatcher.Run(ctx)

	dispatcher.Enqueue(ctx, entry(1, "escrow.order.created"))
	dispatcher.Enqueue(ctx, entry(2, "escrow.dispute.raised"))

	select {
	case eventType := <-hits:
		require.Equal(t, "escrow.dispute.raised", eventType)
	case <-time.After(5 * time.Second):
		t.Fatal("matching webhook was not delivered")
	}
	select {
	case eventType := <-hits:
		t.Fatalf("unexpected delivery for %q", eventType)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionMatches(t *testing.T) {
	all := WebhookSubscription{}
	require.True(t, all.Matches("escrow.order.created"))
	require.True(t, all.Matches("escrow.dispute.resolved"))

	filtered := WebhookSubscription{EventTypes: []string{"escrow.dispute.raised", "escrow.dispute.resolved"}}
	require.True(t, filtered.Matches("escrow.dispute.raised"))
	require.False(t, filtered.Matches("escrow.order.created"))
}
