package types

// Event represents a structured notification raised by a state transition and
// relayed to off-chain observers. Attributes are flat string pairs so the
// payload survives any transport unchanged.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
