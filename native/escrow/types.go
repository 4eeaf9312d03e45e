package escrow

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OrderStatus represents the lifecycle states of a custodied order.
type OrderStatus uint8

const (
	StatusCreated OrderStatus = iota
	StatusReceived
	StatusDisputed
	StatusCompleted
)

// statusTransitions is the closed transition table. Every status mutation in
// the engine goes through canTransition; no other code path assigns Status.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusCreated:  {StatusReceived, StatusDisputed},
	StatusReceived: {StatusCompleted, StatusDisputed},
	StatusDisputed: {StatusCompleted},
}

func canTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusReceived, StatusDisputed, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transition.
func (s OrderStatus) Terminal() bool { return s == StatusCompleted }

func (s OrderStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusReceived:
		return "received"
	case StatusDisputed:
		return "disputed"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Order captures the immutable metadata and runtime status of a single
// custodied trade. The identifier is the keccak256 hash of the caller-supplied
// reference string, so external systems can address orders by the string they
// chose while the ledger keys stay fixed-width. Identifiers are never
// recycled, even after completion.
type Order struct {
	ID            [32]byte
	Buyer         [20]byte
	Seller        [20]byte
	Amount        *big.Int
	Fee           *big.Int
	Quantity      uint64
	ItemName      string
	CreatedAt     int64
	CompletedAt   int64
	Status        OrderStatus
	DisputeRaised bool
}

// DeriveOrderID maps a caller-supplied reference string to the internal
// fixed-width key.
func DeriveOrderID(ref string) ([32]byte, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return [32]byte{}, validationf("order reference must not be empty")
	}
	return ethcrypto.Keccak256Hash([]byte(trimmed)), nil
}

// LockedFunds returns the total value held in custody for the order while it
// is live: the net amount owed to the seller plus the arbitration fee.
func (o *Order) LockedFunds() *big.Int {
	total := big.NewInt(0)
	if o == nil {
		return total
	}
	if o.Amount != nil {
		total.Add(total, o.Amount)
	}
	if o.Fee != nil {
		total.Add(total, o.Fee)
	}
	return total
}

// Clone returns a deep copy of the order so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if o.Fee != nil {
		clone.Fee = new(big.Int).Set(o.Fee)
	} else {
		clone.Fee = big.NewInt(0)
	}
	return &clone
}

// SanitizeOrder validates and normalises the supplied order, returning a
// cloned instance with non-nil amount fields. The original value is not
// mutated.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, validationf("nil order")
	}
	clone := o.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, validationf("order amount must be positive")
	}
	if clone.Fee.Sign() < 0 {
		return nil, validationf("arbitration fee must be non-negative")
	}
	if clone.Quantity == 0 {
		return nil, validationf("order quantity must be positive")
	}
	if strings.TrimSpace(clone.ItemName) == "" {
		return nil, validationf("order item name must not be empty")
	}
	if !clone.Status.Valid() {
		return nil, validationf("invalid order status: %d", clone.Status)
	}
	return clone, nil
}
