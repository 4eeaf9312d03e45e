package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"tradevault/native/escrow"
	"tradevault/state"
	"tradevault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	buyer      = testAddr(0x01)
	seller     = testAddr(0x02)
	arbitrator = testAddr(0x03)
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	ledger := state.NewLedger(storage.NewMemDB())
	engine := escrow.NewEngine()
	if err := engine.SetArbitrator(arbitrator, big.NewInt(1)); err != nil {
		t.Fatalf("configure arbitrator: %v", err)
	}
	node := NewNode(ledger, engine)
	if err := node.Deposit(buyer, big.NewInt(10_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	return node
}

func TestNodeLifecycle(t *testing.T) {
	node := newTestNode(t)

	order, err := node.CreateOrder("order1", buyer, seller, 2, "vaccine batch", big.NewInt(1001))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected net amount 1000, got %s", order.Amount)
	}

	total, err := node.CustodyTotal()
	if err != nil {
		t.Fatalf("custody total: %v", err)
	}
	if total.Cmp(big.NewInt(1001)) != 0 {
		t.Fatalf("expected custody 1001, got %s", total)
	}

	if err := node.ConfirmDelivery("order1", buyer); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	status, err := node.GetStatus("order1")
	if err != nil || status != escrow.StatusReceived {
		t.Fatalf("expected received, got %v (%v)", status, err)
	}

	if err := node.ReleasePayment("order1", buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	balance, err := node.Balance(seller)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("seller should hold 1000, got %s", balance)
	}

	total, _ = node.CustodyTotal()
	if total.Sign() != 0 {
		t.Fatalf("custody should drain to zero, got %s", total)
	}
}

func TestNodeDisputePath(t *testing.T) {
	node := newTestNode(t)
	if _, err := node.CreateOrder("order3", buyer, seller, 1, "insulin", big.NewInt(1001)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := node.RaiseDispute("order3", seller); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if err := node.ResolveDispute("order3", arbitrator, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	balance, err := node.Balance(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// 10000 deposited, 1001 locked, 1001 returned by the verdict.
	if balance.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("buyer should be made whole, got %s", balance)
	}
}

func TestNodeJournal(t *testing.T) {
	node := newTestNode(t)
	if _, err := node.CreateOrder("order1", buyer, seller, 1, "beans", big.NewInt(1001)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := node.RaiseDispute("order1", buyer); err != nil {
		t.Fatalf("dispute: %v", err)
	}

	entries := node.EventsAfter(0, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Sequence != 1 || entries[1].Sequence != 2 {
		t.Fatalf("sequences must be monotonically increasing, got %d %d", entries[0].Sequence, entries[1].Sequence)
	}
	if entries[0].Event.Type != escrow.EventTypeOrderCreated {
		t.Fatalf("unexpected first event %s", entries[0].Event.Type)
	}
	if entries[1].Event.Type != escrow.EventTypeDisputeRaised {
		t.Fatalf("unexpected second event %s", entries[1].Event.Type)
	}

	resumed := node.EventsAfter(1, 10)
	if len(resumed) != 1 || resumed[0].Sequence != 2 {
		t.Fatalf("cursor must skip already-seen entries, got %v", resumed)
	}
}

func TestNodeSubscribe(t *testing.T) {
	node := newTestNode(t)
	if _, err := node.CreateOrder("order1", buyer, seller, 1, "beans", big.NewInt(1001)); err != nil {
		t.Fatalf("create: %v", err)
	}

	updates, cancel, backlog := node.SubscribeEvents(0)
	defer cancel()
	if len(backlog) != 1 || backlog[0].Event.Type != escrow.EventTypeOrderCreated {
		t.Fatalf("backlog must replay retained entries, got %v", backlog)
	}

	if err := node.RaiseDispute("order1", seller); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	select {
	case entry := <-updates:
		if entry.Event.Type != escrow.EventTypeDisputeRaised {
			t.Fatalf("unexpected live event %s", entry.Event.Type)
		}
	default:
		t.Fatalf("expected a live journal entry")
	}
}

func TestNodeDepositValidation(t *testing.T) {
	node := newTestNode(t)
	if err := node.Deposit(seller, big.NewInt(0)); !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("zero deposit must fail, got %v", err)
	}
	if err := node.Deposit(seller, nil); !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("nil deposit must fail, got %v", err)
	}
}

func TestOutcomeLabel(t *testing.T) {
	cases := map[string]error{
		"ok":            nil,
		"validation":    escrow.ErrValidation,
		"unauthorized":  escrow.ErrUnauthorized,
		"invalid_state": escrow.ErrInvalidState,
		"not_found":     escrow.ErrNotFound,
		"transfer":      escrow.ErrTransferFailed,
		"inconsistency": escrow.ErrSettlementInconsistency,
		"internal":      errors.New("boom"),
	}
	for want, err := range cases {
		if got := outcomeLabel(err); got != want {
			t.Fatalf("outcomeLabel(%v) = %q, want %q", err, got, want)
		}
	}
}
