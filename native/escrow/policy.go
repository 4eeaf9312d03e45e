package escrow

// Access control predicates. All are pure functions of the caller identity and
// the order's current fields so they can be tested in isolation; none of them
// touches state.

var zeroAddress [20]byte

func isBuyer(o *Order, caller [20]byte) bool {
	return o != nil && o.Buyer == caller
}

func isSeller(o *Order, caller [20]byte) bool {
	return o != nil && o.Seller == caller
}

func isParticipant(o *Order, caller [20]byte) bool {
	return isBuyer(o, caller) || isSeller(o, caller)
}

func isArbitrator(arbitrator, caller [20]byte) bool {
	return arbitrator != zeroAddress && arbitrator == caller
}

// checkCreationParties guards order creation: the configured arbitrator must
// be a real identity distinct from both trading parties, otherwise the
// dispute path would be judged by an interested party.
func checkCreationParties(arbitrator, buyer, seller [20]byte) error {
	if arbitrator == zeroAddress {
		return errNoArbitrator
	}
	if seller == zeroAddress {
		return validationf("seller address must not be the null sentinel")
	}
	if arbitrator == buyer || arbitrator == seller {
		return validationf("arbitrator must be distinct from buyer and seller")
	}
	return nil
}
