package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradevault/core/types"
	"tradevault/native/escrow"
	"tradevault/storage"
)

// ErrOrderExists is returned when a creation-time put hits a key that is
// already populated. Identifiers are never recycled, so this also fires for
// completed orders.
var ErrOrderExists = errors.New("state: order identifier already exists")

var (
	orderPrefix   = []byte("escrow/order/")
	custodyPrefix = []byte("escrow/custody/")
	custodyTotal  = []byte("escrow/custody-total")
	accountPrefix = []byte("account/")
)

// Ledger is the durable record store backing the escrow engine: order records
// keyed by derived identifier, account balances, and the custody bookkeeping
// that tracks how much value the vault holds per live order. It has no
// business logic of its own.
type Ledger struct {
	db    storage.Database
	vault [20]byte
}

// NewLedger wraps the given key-value backend. The vault address is derived
// deterministically so every deployment with the same backend agrees on where
// custodied value sits.
func NewLedger(db storage.Database) *Ledger {
	var vault [20]byte
	sum := ethcrypto.Keccak256([]byte("tradevault/custody-vault"))
	copy(vault[:], sum[12:])
	return &Ledger{db: db, vault: vault}
}

// VaultAddress returns the address of the custody vault account.
func (l *Ledger) VaultAddress() [20]byte { return l.vault }

// storedOrder is the persisted wire form of an order record.
type storedOrder struct {
	ID            string `json:"id"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	Quantity      uint64 `json:"quantity"`
	ItemName      string `json:"itemName"`
	CreatedAt     int64  `json:"createdAt"`
	CompletedAt   int64  `json:"completedAt,omitempty"`
	Status        uint8  `json:"status"`
	DisputeRaised bool   `json:"disputeRaised,omitempty"`
}

func encodeOrder(o *escrow.Order) ([]byte, error) {
	sanitized, err := escrow.SanitizeOrder(o)
	if err != nil {
		return nil, err
	}
	stored := storedOrder{
		ID:            hex.EncodeToString(sanitized.ID[:]),
		Buyer:         hex.EncodeToString(sanitized.Buyer[:]),
		Seller:        hex.EncodeToString(sanitized.Seller[:]),
		Amount:        sanitized.Amount.String(),
		Fee:           sanitized.Fee.String(),
		Quantity:      sanitized.Quantity,
		ItemName:      sanitized.ItemName,
		CreatedAt:     sanitized.CreatedAt,
		CompletedAt:   sanitized.CompletedAt,
		Status:        uint8(sanitized.Status),
		DisputeRaised: sanitized.DisputeRaised,
	}
	return json.Marshal(stored)
}

func decodeOrder(raw []byte) (*escrow.Order, error) {
	var stored storedOrder
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode order: %w", err)
	}
	order := &escrow.Order{
		Quantity:      stored.Quantity,
		ItemName:      stored.ItemName,
		CreatedAt:     stored.CreatedAt,
		CompletedAt:   stored.CompletedAt,
		Status:        escrow.OrderStatus(stored.Status),
		DisputeRaised: stored.DisputeRaised,
	}
	idBytes, err := hex.DecodeString(stored.ID)
	if err != nil || len(idBytes) != 32 {
		return nil, fmt.Errorf("state: decode order: malformed id %q", stored.ID)
	}
	copy(order.ID[:], idBytes)
	if err := decodeAddr(stored.Buyer, &order.Buyer); err != nil {
		return nil, err
	}
	if err := decodeAddr(stored.Seller, &order.Seller); err != nil {
		return nil, err
	}
	order.Amount, err = parseBig(stored.Amount)
	if err != nil {
		return nil, err
	}
	order.Fee, err = parseBig(stored.Fee)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func decodeAddr(s string, out *[20]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 20 {
		return fmt.Errorf("state: malformed address %q", s)
	}
	copy(out[:], b)
	return nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed amount %q", s)
	}
	return v, nil
}

func orderKey(id [32]byte) []byte   { return append(append([]byte(nil), orderPrefix...), id[:]...) }
func custodyKey(id [32]byte) []byte { return append(append([]byte(nil), custodyPrefix...), id[:]...) }
func accountKey(addr []byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr...)
}

// OrderCreate stores a brand new order record, failing if the identifier has
// ever been used before.
func (l *Ledger) OrderCreate(o *escrow.Order) error {
	if o == nil {
		return fmt.Errorf("state: nil order")
	}
	exists, err := l.db.Has(orderKey(o.ID))
	if err != nil {
		return err
	}
	if exists {
		return ErrOrderExists
	}
	return l.OrderPut(o)
}

// OrderPut overwrites the record for an existing order. Callers go through
// the engine's transition functions; the ledger does not re-validate the
// lifecycle.
func (l *Ledger) OrderPut(o *escrow.Order) error {
	raw, err := encodeOrder(o)
	if err != nil {
		return err
	}
	return l.db.Put(orderKey(o.ID), raw)
}

// OrderGet returns the stored order, or false if the identifier was never
// created.
func (l *Ledger) OrderGet(id [32]byte) (*escrow.Order, bool) {
	raw, err := l.db.Get(orderKey(id))
	if err != nil {
		return nil, false
	}
	order, err := decodeOrder(raw)
	if err != nil {
		return nil, false
	}
	return order, true
}

// OrderExists reports whether the identifier has ever been used.
func (l *Ledger) OrderExists(id [32]byte) bool {
	exists, err := l.db.Has(orderKey(id))
	return err == nil && exists
}

// GetAccount loads the account record for an address, returning a zeroed
// account when none exists yet.
func (l *Ledger) GetAccount(addr []byte) (*types.Account, error) {
	raw, err := l.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	if err != nil {
		return nil, err
	}
	acc := &types.Account{}
	if err := json.Unmarshal(raw, acc); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return acc.EnsureDefaults(), nil
}

// PutAccount persists the account record for an address.
func (l *Ledger) PutAccount(addr []byte, account *types.Account) error {
	raw, err := json.Marshal(account.EnsureDefaults())
	if err != nil {
		return err
	}
	return l.db.Put(accountKey(addr), raw)
}

// CustodyCredit records that amt has entered the vault on behalf of the
// order, updating both the per-order ledger and the aggregate total.
func (l *Ledger) CustodyCredit(id [32]byte, amt *big.Int) error {
	return l.adjustCustody(id, amt, false)
}

// CustodyDebit records that amt has left the vault on behalf of the order.
// Debiting below zero is refused: it would mean settlement paid out more than
// was ever locked.
func (l *Ledger) CustodyDebit(id [32]byte, amt *big.Int) error {
	return l.adjustCustody(id, amt, true)
}

func (l *Ledger) adjustCustody(id [32]byte, amt *big.Int, debit bool) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: custody adjustment must be non-negative")
	}
	locked, err := l.readBig(custodyKey(id))
	if err != nil {
		return err
	}
	total, err := l.readBig(custodyTotal)
	if err != nil {
		return err
	}
	if debit {
		if locked.Cmp(amt) < 0 {
			return fmt.Errorf("state: custody debit %s exceeds locked %s", amt, locked)
		}
		locked.Sub(locked, amt)
		total.Sub(total, amt)
	} else {
		locked.Add(locked, amt)
		total.Add(total, amt)
	}
	if err := l.db.Put(custodyKey(id), []byte(locked.String())); err != nil {
		return err
	}
	return l.db.Put(custodyTotal, []byte(total.String()))
}

// OrderLocked returns the value currently held in custody for the order.
func (l *Ledger) OrderLocked(id [32]byte) (*big.Int, error) {
	return l.readBig(custodyKey(id))
}

// CustodyTotal returns the aggregate value held in custody across all live
// orders. Invariant: equals the sum of amount+fee over all non-completed
// orders.
func (l *Ledger) CustodyTotal() (*big.Int, error) {
	return l.readBig(custodyTotal)
}

func (l *Ledger) readBig(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed custody value %q", raw)
	}
	return v, nil
}
