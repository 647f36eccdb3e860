// Package risk guards stake submissions against the price moving
// between the trigger sample and the actual extrinsic.
package risk

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/pulpytale/bittensor-utils/internal/execution"
	"github.com/pulpytale/bittensor-utils/internal/metrics"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
)

// Reason explains why the gate rejected an operation.
type Reason string

const (
	ReasonExceedsRateTolerance  Reason = "exceeds_rate_tolerance"
	ReasonPartialAmountTooSmall Reason = "partial_amount_too_small"
)

// Decision is the gate verdict. When Accepted, Operation carries the
// possibly reduced amount to submit.
type Decision struct {
	Accepted  bool
	Operation execution.Operation
	Reason    Reason
	// RecheckPrice and Slippage are populated only when safe staking
	// re-read the price.
	RecheckPrice float64
	Slippage     float64
}

// Gate evaluates candidate operations against the safe-staking policy.
type Gate struct {
	client       subtensor.Client
	safeStaking  bool
	allowPartial bool
	log          zerolog.Logger
}

// New builds a Gate. With safeStaking disabled the gate is a pass-through.
func New(client subtensor.Client, safeStaking, allowPartial bool, log zerolog.Logger) *Gate {
	return &Gate{client: client, safeStaking: safeStaking, allowPartial: allowPartial, log: log}
}

// Evaluate applies the rate-tolerance policy to op. With safe staking
// enabled it re-reads the price immediately before submission so the
// slippage it bounds is measured against the freshest observation. A
// non-nil error means the re-read itself failed and carries the chain
// classification.
func (g *Gate) Evaluate(ctx context.Context, op execution.Operation) (Decision, error) {
	if !g.safeStaking {
		return Decision{Accepted: true, Operation: op}, nil
	}

	current, err := g.client.SubnetPrice(ctx, op.Netuid)
	if err != nil {
		return Decision{}, err
	}

	// A zero trigger price makes the slippage fraction meaningless (and
	// would poison the partial scaling with NaN), so the movement is
	// treated as unbounded and the operation rejected outright.
	if op.PriceAtSubmission <= 0 {
		decision := Decision{RecheckPrice: current, Reason: ReasonExceedsRateTolerance}
		metrics.RejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		g.log.Warn().
			Float64("price_at_submission", op.PriceAtSubmission).
			Float64("recheck_price", current).
			Msg("trigger price not positive, cannot bound slippage")
		return decision, nil
	}

	// Adverse movement is a rising price for buys and a falling price
	// for sells.
	slippage := (current - op.PriceAtSubmission) / op.PriceAtSubmission
	if op.Direction == execution.RemoveStake {
		slippage = -slippage
	}
	decision := Decision{RecheckPrice: current, Slippage: slippage}

	if math.IsNaN(slippage) || math.IsInf(slippage, 1) {
		decision.Reason = ReasonExceedsRateTolerance
		metrics.RejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		return decision, nil
	}

	if slippage <= op.RateTolerance {
		decision.Accepted = true
		decision.Operation = op
		return decision, nil
	}

	if !g.allowPartial {
		decision.Reason = ReasonExceedsRateTolerance
		metrics.RejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		g.log.Warn().
			Float64("slippage", slippage).
			Float64("tolerance", op.RateTolerance).
			Msg("price moved beyond tolerance")
		return decision, nil
	}

	// Shrink the amount so the effective overspend stays inside the
	// tolerance. The scale shrinks as slippage grows and never exceeds 1.
	scaled := op.AmountTao * (op.RateTolerance / slippage)
	if scaled <= 0 {
		decision.Reason = ReasonPartialAmountTooSmall
		metrics.RejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		return decision, nil
	}

	op.AmountTao = scaled
	decision.Accepted = true
	decision.Operation = op
	g.log.Info().
		Float64("slippage", slippage).
		Float64("amount_tao", scaled).
		Msg("partial stake within tolerance")
	return decision, nil
}
