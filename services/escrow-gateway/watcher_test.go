package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcherPollPersistsAndAdvancesCursor(t *testing.T) {
	store := newTestStore(t)
	node := &stubNodeClient{entries: []JournalEntry{
		entry(1, "escrow.order.created"),
		entry(2, "escrow.payment.released"),
		entry(3, "escrow.dispute.raised"),
	}}
	watcher := NewEventWatcher(node, store, nil, nil)
	ctx := context.Background()

	next := watcher.poll(ctx, 0)
	require.Equal(t, int64(3), next)

	stored, err := store.EventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, "escrow.payment.released", stored[1].Event.Type)

	// Cursor survives restarts through the sqlite journal.
	seq, err := store.LastEventSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), seq)
}

func TestWatcherPollSkipsAlreadySeen(t *testing.T) {
	store := newTestStore(t)
	node := &stubNodeClient{entries: []JournalEntry{
		entry(1, "escrow.order.created"),
		entry(2, "escrow.dispute.raised"),
	}}
	watcher := NewEventWatcher(node, store, nil, nil)
	ctx := context.Background()

	require.Equal(t, int64(2), watcher.poll(ctx, 0))

	// Re-polling past the cursor yields nothing new and keeps the cursor put.
	require.Equal(t, int64(2), watcher.poll(ctx, 2))
	stored, err := store.EventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestWatcherPollToleratesFetchErrors(t *testing.T) {
	store := newTestStore(t)
	node := &stubNodeClient{err: errors.New("node unreachable")}
	watcher := NewEventWatcher(node, store, nil, nil)

	require.Equal(t, int64(5), watcher.poll(context.Background(), 5))
}

func TestWatcherPollFeedsDispatcher(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSubscription(ctx, WebhookSubscription{
		ID: "sub1", URL: "https://observer.example.com/hook", Secret: "s", CreatedAt: 1,
	}))
	dispatcher := NewWebhookDispatcher(store, nil)
	node := &stubNodeClient{entries: []JournalEntry{entry(1, "escrow.order.created")}}
	watcher := NewEventWatcher(node, store, dispatcher, nil)

	watcher.poll(ctx, 0)

	// The task was queued but never run, so it is still pending on the channel.
	require.Len(t, dispatcher.tasks, 1)
	task := <-dispatcher.tasks
	require.Equal(t, "sub1", task.subscription.ID)
	require.Equal(t, int64(1), task.entry.Sequence)
}
