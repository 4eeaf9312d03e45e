package escrow

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"tradevault/core/events"
	"tradevault/core/types"
)

type engineState interface {
	OrderCreate(*Order) error
	OrderPut(*Order) error
	OrderGet(id [32]byte) (*Order, bool)
	OrderExists(id [32]byte) bool
	CustodyCredit(id [32]byte, amt *big.Int) error
	CustodyDebit(id [32]byte, amt *big.Int) error
	VaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

// Engine is the dispute and settlement state machine. It validates every
// operation against the access policy and the transition table, commits the
// resulting record to the ledger, and is the only component that instructs
// the custody vault to move value.
//
// Ordering contract: for settling operations the new status and dispute flag
// are committed to the ledger before any transfer is issued, so a re-entrant
// call triggered by an outgoing transfer observes the post-transition state
// and its own guards reject a replay.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	arbitrator [20]byte
	fee        *big.Int
	nowFn      func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers must
// configure the state backend and the arbitrator before invoking operations.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		fee:     big.NewInt(0),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetArbitrator configures the process-wide arbitrator identity and the fixed
// arbitration fee. Validated once here, not re-derived per call.
func (e *Engine) SetArbitrator(addr [20]byte, fee *big.Int) error {
	if addr == zeroAddress {
		return errNoArbitrator
	}
	if fee == nil || fee.Sign() <= 0 {
		return validationf("arbitration fee must be positive")
	}
	e.arbitrator = addr
	e.fee = new(big.Int).Set(fee)
	return nil
}

// Arbitrator returns the configured arbitrator identity.
func (e *Engine) Arbitrator() [20]byte { return e.arbitrator }

// ArbitrationFee returns a copy of the configured fee.
func (e *Engine) ArbitrationFee() *big.Int { return cloneBigInt(e.fee) }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(orderEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadOrder(id [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return order, nil
}

func (e *Engine) storeOrder(o *Order) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.OrderPut(o)
}

// transfer moves value between ledger accounts. Failures here wrap
// ErrTransferFailed; callers decide whether a failure after a committed
// status advance must be escalated to a settlement inconsistency.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer amount", ErrTransferFailed)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	fromAcc = fromAcc.EnsureDefaults()
	toAcc = toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Create initialises a new order in custody. The caller becomes the buyer and
// the full lockedFunds amount moves from the buyer to the vault before the
// record is written; the net amount owed to the seller is lockedFunds minus
// the arbitration fee.
func (e *Engine) Create(ref string, buyer, seller [20]byte, quantity uint64, itemName string, lockedFunds *big.Int) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := checkCreationParties(e.arbitrator, buyer, seller); err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, validationf("quantity must be positive")
	}
	trimmedName := strings.TrimSpace(itemName)
	if trimmedName == "" {
		return nil, validationf("item name must not be empty")
	}
	locked := cloneBigInt(lockedFunds)
	if locked.Cmp(e.fee) <= 0 {
		return nil, validationf("locked funds %s must exceed arbitration fee %s", locked, e.fee)
	}
	id, err := DeriveOrderID(ref)
	if err != nil {
		return nil, err
	}
	if e.state.OrderExists(id) {
		return nil, validationf("order reference %q already used", ref)
	}
	vault := e.state.VaultAddress()
	if err := e.transfer(buyer, vault, locked); err != nil {
		return nil, err
	}
	if err := e.state.CustodyCredit(id, locked); err != nil {
		return nil, err
	}
	order := &Order{
		ID:        id,
		Buyer:     buyer,
		Seller:    seller,
		Amount:    new(big.Int).Sub(locked, e.fee),
		Fee:       cloneBigInt(e.fee),
		Quantity:  quantity,
		ItemName:  trimmedName,
		CreatedAt: e.now(),
		Status:    StatusCreated,
	}
	if err := e.state.OrderCreate(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// ConfirmDelivery records that the buyer received the goods. Buyer only,
// Created orders only. No funds move.
func (e *Engine) ConfirmDelivery(id [32]byte, caller [20]byte) error {
	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if !isBuyer(order, caller) {
		return unauthorizedf("only the buyer may confirm delivery")
	}
	if order.Status != StatusCreated {
		return invalidStatef("cannot confirm delivery in status %s", order.Status)
	}
	if !canTransition(order.Status, StatusReceived) {
		return invalidStatef("transition %s -> %s not permitted", order.Status, StatusReceived)
	}
	order.Status = StatusReceived
	return e.storeOrder(order)
}

// ReleasePayment settles a received, undisputed order: the net amount goes to
// the seller and the arbitration fee is refunded to the buyer. Buyer only.
// The terminal status is committed before any transfer is issued.
func (e *Engine) ReleasePayment(id [32]byte, caller [20]byte) error {
	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if !isBuyer(order, caller) {
		return unauthorizedf("only the buyer may release payment")
	}
	if order.Status != StatusReceived {
		return invalidStatef("cannot release payment in status %s", order.Status)
	}
	if order.DisputeRaised {
		return invalidStatef("cannot release payment while a dispute is open")
	}
	if !canTransition(order.Status, StatusCompleted) {
		return invalidStatef("transition %s -> %s not permitted", order.Status, StatusCompleted)
	}
	order.Status = StatusCompleted
	order.CompletedAt = e.now()
	if err := e.storeOrder(order); err != nil {
		return err
	}
	if err := e.settle(order, []payout{
		{to: order.Seller, amount: order.Amount},
		{to: order.Buyer, amount: order.Fee},
	}); err != nil {
		return err
	}
	e.emit(NewPaymentReleasedEvent(order))
	return nil
}

// RaiseDispute freezes the order pending arbitration. Buyer or seller may
// raise it from Created or Received.
func (e *Engine) RaiseDispute(id [32]byte, caller [20]byte) error {
	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if !isParticipant(order, caller) {
		return unauthorizedf("only the buyer or seller may raise a dispute")
	}
	if order.Status != StatusCreated && order.Status != StatusReceived {
		return invalidStatef("cannot raise dispute in status %s", order.Status)
	}
	if !canTransition(order.Status, StatusDisputed) {
		return invalidStatef("transition %s -> %s not permitted", order.Status, StatusDisputed)
	}
	order.Status = StatusDisputed
	order.DisputeRaised = true
	if err := e.storeOrder(order); err != nil {
		return err
	}
	e.emit(NewDisputeRaisedEvent(order, caller))
	return nil
}

// ResolveDispute settles a disputed order according to the arbitrator's
// verdict. If the buyer wins, the full locked value (amount plus fee) returns
// to the buyer; otherwise the seller receives the amount and the arbitrator
// collects the fee. Arbitrator only; the only path out of Disputed.
func (e *Engine) ResolveDispute(id [32]byte, caller [20]byte, buyerWins bool) error {
	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if !isArbitrator(e.arbitrator, caller) {
		return unauthorizedf("only the arbitrator may resolve a dispute")
	}
	if order.Status != StatusDisputed {
		return invalidStatef("cannot resolve dispute in status %s", order.Status)
	}
	if !canTransition(order.Status, StatusCompleted) {
		return invalidStatef("transition %s -> %s not permitted", order.Status, StatusCompleted)
	}
	order.Status = StatusCompleted
	order.DisputeRaised = false
	order.CompletedAt = e.now()
	if err := e.storeOrder(order); err != nil {
		return err
	}
	var transfers []payout
	if buyerWins {
		transfers = []payout{{to: order.Buyer, amount: order.LockedFunds()}}
	} else {
		transfers = []payout{
			{to: order.Seller, amount: order.Amount},
			{to: e.arbitrator, amount: order.Fee},
		}
	}
	if err := e.settle(order, transfers); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(order, buyerWins))
	return nil
}

// Get returns a copy of the order record.
func (e *Engine) Get(id [32]byte) (*Order, error) {
	return e.loadOrder(id)
}

// Status returns the current lifecycle status of the order.
func (e *Engine) Status(id [32]byte) (OrderStatus, error) {
	order, err := e.loadOrder(id)
	if err != nil {
		return 0, err
	}
	return order.Status, nil
}

type payout struct {
	to     [20]byte
	amount *big.Int
}

// settle executes the ordered transfers out of the vault and releases the
// custody bookkeeping for the order. It runs strictly after the terminal
// status has been committed, so any failure here leaves the record advanced
// with custody out of step; that condition is reported as a settlement
// inconsistency rather than rolled back.
func (e *Engine) settle(order *Order, transfers []payout) error {
	vault := e.state.VaultAddress()
	for _, t := range transfers {
		if err := e.transfer(vault, t.to, t.amount); err != nil {
			return fmt.Errorf("%w: order %x: %v", ErrSettlementInconsistency, order.ID[:4], err)
		}
	}
	if err := e.state.CustodyDebit(order.ID, order.LockedFunds()); err != nil {
		return fmt.Errorf("%w: order %x: %v", ErrSettlementInconsistency, order.ID[:4], err)
	}
	return nil
}
