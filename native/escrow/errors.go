package escrow

import (
	"errors"
	"fmt"
)

// Error taxonomy for the escrow engine. Every failure an operation can report
// wraps exactly one of these sentinels so callers (RPC, gateway, tests) can
// classify with errors.Is without string matching.
var (
	// ErrValidation covers malformed input: zero quantity, empty item name,
	// insufficient locked funds, duplicate identifier at creation.
	ErrValidation = errors.New("escrow: invalid input")
	// ErrUnauthorized is returned when the caller lacks the role an
	// operation requires. The order record is left untouched.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidState is returned when an operation is invoked while the
	// order does not permit it.
	ErrInvalidState = errors.New("escrow: invalid order state")
	// ErrNotFound is returned for identifiers that were never created.
	ErrNotFound = errors.New("escrow: order not found")
	// ErrTransferFailed wraps a failure of the value-transfer primitive
	// observed before any state was committed.
	ErrTransferFailed = errors.New("escrow: transfer failed")
	// ErrSettlementInconsistency is raised when a settlement transfer fails
	// after the terminal status was already committed. The record has
	// advanced but custody no longer matches it; the condition is surfaced,
	// never rolled back.
	ErrSettlementInconsistency = errors.New("escrow: settlement inconsistency")

	errNilState     = errors.New("escrow engine: state not configured")
	errNoArbitrator = errors.New("escrow engine: arbitrator not configured")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
