package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts escrow operations by method and outcome. The
	// outcome label carries the error taxonomy bucket ("ok", "validation",
	// "unauthorized", "invalid_state", "not_found", "transfer",
	// "inconsistency", "internal").
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradevault",
		Subsystem: "escrow",
		Name:      "operations_total",
		Help:      "Escrow operations processed, labelled by method and outcome.",
	}, []string{"method", "outcome"})

	// CustodyLocked tracks the aggregate value currently held by the vault,
	// in the smallest currency unit.
	CustodyLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradevault",
		Subsystem: "escrow",
		Name:      "custody_locked_units",
		Help:      "Total value held in custody across live orders.",
	})

	// EventsEmitted counts journaled notifications by event type.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradevault",
		Subsystem: "escrow",
		Name:      "events_emitted_total",
		Help:      "Notifications appended to the event journal.",
	}, []string{"type"})

	// WebhookDeliveries counts gateway webhook delivery attempts by result.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradevault",
		Subsystem: "gateway",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts, labelled by result.",
	}, []string{"result"})
)
