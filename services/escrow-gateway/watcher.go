package main

import (
	"context"
	"log/slog"
	"time"
)

// EventWatcher polls the custody daemon's event journal, persists new entries
// locally, and hands matching events to the webhook dispatcher. The sqlite
// journal doubles as the resume cursor across restarts.
type EventWatcher struct {
	node         NodeClient
	store        *SQLiteStore
	dispatcher   *WebhookDispatcher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewEventWatcher(node NodeClient, store *SQLiteStore, dispatcher *WebhookDispatcher, logger *slog.Logger) *EventWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWatcher{
		node:         node,
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger,
		pollInterval: 5 * time.Second,
		batchSize:    100,
	}
}

// Run starts the polling loop until the context is cancelled.
func (w *EventWatcher) Run(ctx context.Context) {
	if w.node == nil || w.store == nil {
		return
	}
	interval := w.pollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	after, err := w.store.LastEventSequence(ctx)
	if err != nil {
		w.logger.Error("read event cursor", "err", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			after = w.poll(ctx, after)
		}
	}
}

func (w *EventWatcher) poll(ctx context.Context, after int64) int64 {
	batch := w.batchSize
	if batch <= 0 {
		batch = 100
	}
	entries, err := w.node.FetchEvents(ctx, after, batch)
	if err != nil {
		w.logger.Warn("fetch events", "err", err, "after", after)
		return after
	}
	if len(entries) == 0 {
		return after
	}
	lastSeq := after
	for _, entry := range entries {
		if entry.Event == nil {
			continue
		}
		if err := w.store.StoreEvent(ctx, entry); err != nil {
			w.logger.Error("store event", "err", err, "sequence", entry.Sequence)
			return lastSeq
		}
		if w.dispatcher != nil {
			w.dispatcher.Enqueue(ctx, entry)
		}
		if entry.Sequence > lastSeq {
			lastSeq = entry.Sequence
		}
	}
	return lastSeq
}
