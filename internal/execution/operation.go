// Package execution submits stake operations to the chain and tracks
// their inclusion/finalization outcome.
package execution

// Direction separates the buy-low (add stake) and sell-high (remove
// stake) watchers.
type Direction string

const (
	AddStake    Direction = "add"
	RemoveStake Direction = "remove"
)

// Operation is one candidate stake movement constructed when the price
// trigger fires. The safety gate may shrink AmountTao or reject the
// operation before it reaches the executor.
type Operation struct {
	Direction         Direction
	AmountTao         float64
	Netuid            uint16
	PriceAtSubmission float64
	RateTolerance     float64
}
