package escrow

import (
	"encoding/hex"
	"strconv"

	"tradevault/core/types"
)

const (
	EventTypeOrderCreated    = "escrow.order.created"
	EventTypePaymentReleased = "escrow.payment.released"
	EventTypeDisputeRaised   = "escrow.dispute.raised"
	EventTypeDisputeResolved = "escrow.dispute.resolved"
)

// NewOrderCreatedEvent returns the canonical payload for a newly created
// order.
func NewOrderCreatedEvent(o *Order) *types.Event {
	evt := newOrderEvent(EventTypeOrderCreated, o)
	if o != nil {
		evt.Attributes["quantity"] = strconv.FormatUint(o.Quantity, 10)
		evt.Attributes["itemName"] = o.ItemName
	}
	return evt
}

// NewPaymentReleasedEvent returns the canonical payload emitted when the buyer
// releases the custodied amount to the seller.
func NewPaymentReleasedEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypePaymentReleased, o)
}

// NewDisputeRaisedEvent returns the canonical payload emitted when a
// participant opens a dispute. The raiser identity rides along so observers
// can tell which side escalated.
func NewDisputeRaisedEvent(o *Order, raiser [20]byte) *types.Event {
	evt := newOrderEvent(EventTypeDisputeRaised, o)
	evt.Attributes["raiser"] = hex.EncodeToString(raiser[:])
	return evt
}

// NewDisputeResolvedEvent returns the canonical payload emitted when the
// arbitrator settles a dispute.
func NewDisputeResolvedEvent(o *Order, buyerWins bool) *types.Event {
	evt := newOrderEvent(EventTypeDisputeResolved, o)
	if buyerWins {
		evt.Attributes["outcome"] = "buyer"
	} else {
		evt.Attributes["outcome"] = "seller"
	}
	return evt
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["fee"] = sanitized.Fee.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
