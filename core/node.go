package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"tradevault/core/events"
	"tradevault/core/types"
	"tradevault/native/escrow"
	"tradevault/observability"
	"tradevault/state"
)

// Node is the execution front of the custody service. It owns the ledger and
// the escrow engine and serializes every public operation behind a single
// mutex, which is the "atomic, serializable application of each operation"
// the engine's design assumes. All notifications raised by the engine pass
// through the node's event journal before reaching any external observer.
type Node struct {
	mu      sync.Mutex
	ledger  *state.Ledger
	engine  *escrow.Engine
	journal *eventJournal
}

type journalEmitter struct {
	journal *eventJournal
}

func (e journalEmitter) Emit(evt events.Event) {
	payloadEvt, ok := evt.(interface{ Event() *types.Event })
	if !ok || payloadEvt.Event() == nil {
		return
	}
	entry := e.journal.append(payloadEvt.Event())
	observability.EventsEmitted.WithLabelValues(entry.Event.Type).Inc()
}

// NewNode wires a ledger and a configured escrow engine into a serving node.
func NewNode(ledger *state.Ledger, engine *escrow.Engine) *Node {
	node := &Node{
		ledger:  ledger,
		engine:  engine,
		journal: newEventJournal(defaultJournalCapacity),
	}
	engine.SetState(ledger)
	engine.SetEmitter(journalEmitter{journal: node.journal})
	return node
}

// Ledger exposes the backing ledger for read-side consumers (metrics, CLI).
func (n *Node) Ledger() *state.Ledger { return n.ledger }

// Arbitrator returns the configured arbitrator identity.
func (n *Node) Arbitrator() [20]byte { return n.engine.Arbitrator() }

// ArbitrationFee returns a copy of the configured arbitration fee.
func (n *Node) ArbitrationFee() *big.Int { return n.engine.ArbitrationFee() }

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, escrow.ErrSettlementInconsistency):
		return "inconsistency"
	case errors.Is(err, escrow.ErrValidation):
		return "validation"
	case errors.Is(err, escrow.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, escrow.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, escrow.ErrNotFound):
		return "not_found"
	case errors.Is(err, escrow.ErrTransferFailed):
		return "transfer"
	default:
		return "internal"
	}
}

func (n *Node) record(method string, err error) {
	observability.OperationsTotal.WithLabelValues(method, outcomeLabel(err)).Inc()
	if total, totalErr := n.ledger.CustodyTotal(); totalErr == nil {
		f, _ := new(big.Float).SetInt(total).Float64()
		observability.CustodyLocked.Set(f)
	}
}

// CreateOrder locks the buyer's funds and opens a new custodied order.
func (n *Node) CreateOrder(ref string, buyer, seller [20]byte, quantity uint64, itemName string, lockedFunds *big.Int) (*escrow.Order, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	order, err := n.engine.Create(ref, buyer, seller, quantity, itemName, lockedFunds)
	n.record("escrow_createOrder", err)
	return order, err
}

// ConfirmDelivery marks the order as received by the buyer.
func (n *Node) ConfirmDelivery(ref string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err == nil {
		err = n.engine.ConfirmDelivery(id, caller)
	}
	n.record("escrow_confirmDelivery", err)
	return err
}

// ReleasePayment settles a received order in favour of the seller.
func (n *Node) ReleasePayment(ref string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err == nil {
		err = n.engine.ReleasePayment(id, caller)
	}
	n.record("escrow_releasePayment", err)
	return err
}

// RaiseDispute freezes the order pending arbitration.
func (n *Node) RaiseDispute(ref string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err == nil {
		err = n.engine.RaiseDispute(id, caller)
	}
	n.record("escrow_raiseDispute", err)
	return err
}

// ResolveDispute applies the arbitrator's verdict to a disputed order.
func (n *Node) ResolveDispute(ref string, caller [20]byte, buyerWins bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err == nil {
		err = n.engine.ResolveDispute(id, caller, buyerWins)
	}
	n.record("escrow_resolveDispute", err)
	return err
}

// GetOrder returns the order record for a reference string.
func (n *Node) GetOrder(ref string) (*escrow.Order, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err != nil {
		return nil, err
	}
	return n.engine.Get(id)
}

// GetStatus returns the lifecycle status for a reference string.
func (n *Node) GetStatus(ref string) (escrow.OrderStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := escrow.DeriveOrderID(ref)
	if err != nil {
		return 0, err
	}
	return n.engine.Status(id)
}

// Balance returns the spendable balance of an address.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.ledger.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Deposit credits externally settled value to an address. This is the
// operator-facing on-ramp; the escrow engine never mints value itself.
func (n *Node) Deposit(addr [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", escrow.ErrValidation)
	}
	acc, err := n.ledger.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return n.ledger.PutAccount(addr[:], acc)
}

// CustodyTotal returns the aggregate value currently held by the vault.
func (n *Node) CustodyTotal() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.CustodyTotal()
}

// EventsAfter returns up to limit journaled notifications with sequence
// greater than the cursor.
func (n *Node) EventsAfter(cursor int64, limit int) []SequencedEvent {
	return n.journal.after(cursor, limit)
}

// SubscribeEvents registers a live notification consumer resuming after the
// cursor. The backlog covers retained entries past the cursor; cancel must be
// called when the consumer disconnects.
func (n *Node) SubscribeEvents(cursor int64) (<-chan SequencedEvent, func(), []SequencedEvent) {
	return n.journal.subscribe(cursor, 64)
}
