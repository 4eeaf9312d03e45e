package escrow

import (
	"errors"
	"testing"
)

func TestRolePredicates(t *testing.T) {
	buyer := newTestAddress(0x01)
	seller := newTestAddress(0x02)
	arb := newTestAddress(0x03)
	stranger := newTestAddress(0x04)
	order := &Order{Buyer: buyer, Seller: seller}

	if !isBuyer(order, buyer) || isBuyer(order, seller) || isBuyer(order, stranger) {
		t.Fatalf("isBuyer must match only the buyer")
	}
	if !isSeller(order, seller) || isSeller(order, buyer) {
		t.Fatalf("isSeller must match only the seller")
	}
	if !isParticipant(order, buyer) || !isParticipant(order, seller) || isParticipant(order, stranger) {
		t.Fatalf("isParticipant must match exactly buyer and seller")
	}
	if !isArbitrator(arb, arb) || isArbitrator(arb, stranger) {
		t.Fatalf("isArbitrator must match only the configured identity")
	}
	if isArbitrator(zeroAddress, zeroAddress) {
		t.Fatalf("the null sentinel never acts as arbitrator")
	}
	if isBuyer(nil, buyer) || isParticipant(nil, buyer) {
		t.Fatalf("predicates on a nil order are false")
	}
}

func TestCheckCreationParties(t *testing.T) {
	buyer := newTestAddress(0x01)
	seller := newTestAddress(0x02)
	arb := newTestAddress(0x03)

	if err := checkCreationParties(arb, buyer, seller); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}
	if err := checkCreationParties(zeroAddress, buyer, seller); err == nil {
		t.Fatalf("unconfigured arbitrator must be rejected")
	}
	if err := checkCreationParties(arb, arb, seller); !errors.Is(err, ErrValidation) {
		t.Fatalf("arbitrator as buyer must be rejected, got %v", err)
	}
	if err := checkCreationParties(arb, buyer, arb); !errors.Is(err, ErrValidation) {
		t.Fatalf("arbitrator as seller must be rejected, got %v", err)
	}
	if err := checkCreationParties(arb, buyer, zeroAddress); !errors.Is(err, ErrValidation) {
		t.Fatalf("null seller must be rejected, got %v", err)
	}
}
