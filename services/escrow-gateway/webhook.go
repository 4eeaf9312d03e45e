package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tradevault/observability"
)

const (
	maxDeliveryAttempts = 5
	deliveryTimeout     = 10 * time.Second
)

type deliveryTask struct {
	entry        JournalEntry
	subscription WebhookSubscription
	attempt      int
}

// WebhookDispatcher fans journal entries out to registered subscriptions.
// Each delivery carries an HMAC-SHA256 signature of the body under
// X-Tradevault-Signature so receivers can authenticate the origin. Failed
// deliveries retry with exponential backoff up to maxDeliveryAttempts.
type WebhookDispatcher struct {
	store   *SQLiteStore
	client  *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	tasks chan deliveryTask
	wg    sync.WaitGroup
}

func NewWebhookDispatcher(store *SQLiteStore, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		store:   store,
		client:  &http.Client{Timeout: deliveryTimeout},
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		tasks:   make(chan deliveryTask, 1024),
	}
}

// Run consumes the delivery queue until the context is cancelled.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.tasks:
			d.deliver(ctx, task)
		}
	}
}

// Enqueue schedules delivery of the entry to every matching subscription.
func (d *WebhookDispatcher) Enqueue(ctx context.Context, entry JournalEntry) {
	if entry.Event == nil {
		return
	}
	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		d.logger.Error("list subscriptions", "err", err)
		return
	}
	for _, sub := range subs {
		if !sub.Matches(entry.Event.Type) {
			continue
		}
		select {
		case d.tasks <- deliveryTask{entry: entry, subscription: sub, attempt: 1}:
		default:
			observability.WebhookDeliveries.WithLabelValues("dropped").Inc()
			d.logger.Warn("webhook queue full, dropping delivery",
				"subscription", sub.ID, "sequence", entry.Sequence)
		}
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, task deliveryTask) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	body, err := json.Marshal(task.entry)
	if err != nil {
		d.logger.Error("encode webhook body", "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.subscription.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("build webhook request", "err", err, "url", task.subscription.URL)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tradevault-Event", task.entry.Event.Type)
	req.Header.Set("X-Tradevault-Sequence", strconv.FormatInt(task.entry.Sequence, 10))
	req.Header.Set("X-Tradevault-Signature", sign(task.subscription.Secret, body))

	resp, err := d.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			observability.WebhookDeliveries.WithLabelValues("delivered").Inc()
			return
		}
	}
	observability.WebhookDeliveries.WithLabelValues("failed").Inc()
	if task.attempt >= maxDeliveryAttempts {
		observability.WebhookDeliveries.WithLabelValues("exhausted").Inc()
		d.logger.Warn("webhook delivery exhausted",
			"subscription", task.subscription.ID, "sequence", task.entry.Sequence)
		return
	}
	backoff := time.Duration(1<<uint(task.attempt)) * time.Second
	task.attempt++
	d.wg.Add(1)
	go func(t deliveryTask) {
		defer d.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			select {
			case d.tasks <- t:
			default:
				observability.WebhookDeliveries.WithLabelValues("dropped").Inc()
			}
		}
	}(task)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
