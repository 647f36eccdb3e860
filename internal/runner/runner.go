// Package runner drives the poll-decide-act loop: it samples the subnet
// price, fires the threshold trigger, applies the safety gate, and hands
// accepted operations to the executor, one cycle at a time.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pulpytale/bittensor-utils/internal/config"
	"github.com/pulpytale/bittensor-utils/internal/execution"
	"github.com/pulpytale/bittensor-utils/internal/metrics"
	"github.com/pulpytale/bittensor-utils/internal/monitor"
	"github.com/pulpytale/bittensor-utils/internal/risk"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
)

// Status is the terminal condition of a run.
type Status int

const (
	Running Status = iota
	StoppedByLimit
	StoppedByCancellation
	StoppedByFatalError
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case StoppedByLimit:
		return "stopped_by_limit"
	case StoppedByCancellation:
		return "stopped_by_cancellation"
	case StoppedByFatalError:
		return "stopped_by_fatal_error"
	}
	return "unknown"
}

// ExitCode maps a terminal status to the process exit code.
func ExitCode(s Status) int {
	switch s {
	case StoppedByLimit, StoppedByCancellation:
		return 0
	case StoppedByFatalError:
		return 1
	}
	return 1
}

// State is the single piece of mutable run state. SwapsCompleted counts
// confirmed successes only, so a restart can be reasoned about from the
// outside.
type State struct {
	SwapsCompleted int
	LastPrice      float64
	HasLastPrice   bool
	Status         Status
}

// transientRetryBudget bounds how many consecutive transient poll
// failures are retried before the run stops.
const transientRetryBudget = 5

// Controller owns the run loop for one direction (buy-low add stake, or
// sell-high remove stake).
type Controller struct {
	cfg       *config.Config
	direction execution.Direction
	monitor   *monitor.Monitor
	gate      *risk.Gate
	executor  *execution.Executor
	log       zerolog.Logger

	state State

	// interval and the backoff knobs are fields so tests can shrink them.
	interval       time.Duration
	retryBudget    uint64
	backoffInitial time.Duration
	backoffCeiling time.Duration
}

// New wires a Controller. cfg must already be validated.
func New(cfg *config.Config, direction execution.Direction, m *monitor.Monitor, g *risk.Gate, e *execution.Executor, log zerolog.Logger) *Controller {
	interval := cfg.Interval()
	return &Controller{
		cfg:            cfg,
		direction:      direction,
		monitor:        m,
		gate:           g,
		executor:       e,
		log:            log,
		interval:       interval,
		retryBudget:    transientRetryBudget,
		backoffInitial: interval / 2,
		backoffCeiling: 4 * interval,
	}
}

// State returns a copy of the current run state.
func (c *Controller) State() State { return c.state }

// Run executes the loop until the swap limit is reached, the context is
// canceled, or a fatal error occurs. The returned state carries the
// terminal status; the error is non-nil only for fatal stops.
func (c *Controller) Run(ctx context.Context) (State, error) {
	if err := c.cfg.Validate(); err != nil {
		c.state.Status = StoppedByFatalError
		return c.state, fmt.Errorf("config: %w", err)
	}
	c.state = State{Status: Running}

	c.log.Info().
		Str("direction", string(c.direction)).
		Uint16("netuid", c.cfg.Run.TargetNetuid).
		Float64("threshold_tao", c.cfg.Run.ThresholdTao).
		Float64("amount_tao", c.cfg.Run.AmountTao).
		Msg("watcher started")

	for c.cfg.Run.MaxSwaps == 0 || c.state.SwapsCompleted < c.cfg.Run.MaxSwaps {
		if ctx.Err() != nil {
			return c.stop(StoppedByCancellation, nil)
		}

		sample, err := c.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.stop(StoppedByCancellation, nil)
			}
			return c.stop(StoppedByFatalError, fmt.Errorf("price poll: %w", err))
		}
		c.state.LastPrice = sample.PriceTao
		c.state.HasLastPrice = true
		c.log.Info().
			Float64("price_tao", sample.PriceTao).
			Float64("threshold_tao", c.cfg.Run.ThresholdTao).
			Msg("price sampled")

		balances := c.monitor.Snapshot(ctx)
		c.monitor.LogBalances(balances)

		if c.triggered(sample.PriceTao) {
			metrics.TriggersTotal.Inc()
			done, err := c.cycle(ctx, sample, balances)
			if err != nil {
				return c.stop(StoppedByFatalError, err)
			}
			if done && c.cfg.Run.MaxSwaps != 0 && c.state.SwapsCompleted >= c.cfg.Run.MaxSwaps {
				break
			}
		}

		if !c.sleep(ctx) {
			return c.stop(StoppedByCancellation, nil)
		}
	}

	return c.stop(StoppedByLimit, nil)
}

// triggered applies the inclusive threshold comparison: buys fire when
// the price falls to or below the threshold, sells when it rises to or
// above it.
func (c *Controller) triggered(price float64) bool {
	if c.direction == execution.RemoveStake {
		return price >= c.cfg.Run.ThresholdTao
	}
	return price <= c.cfg.Run.ThresholdTao
}

// cycle runs trigger → gate → execute for one sample. It returns true
// when a swap completed; a non-nil error is fatal.
func (c *Controller) cycle(ctx context.Context, sample monitor.Sample, balances monitor.Balances) (bool, error) {
	amount, ok := c.stakeableAmount(balances)
	if !ok {
		return false, nil
	}

	op := execution.Operation{
		Direction:         c.direction,
		AmountTao:         amount,
		Netuid:            c.cfg.Run.TargetNetuid,
		PriceAtSubmission: sample.PriceTao,
		RateTolerance:     c.cfg.Safety.RateTolerance,
	}

	decision, err := c.gate.Evaluate(ctx, op)
	if err != nil {
		if subtensor.IsTransient(err) {
			c.log.Warn().Err(err).Msg("safety re-check unavailable, skipping cycle")
			return false, nil
		}
		return false, fmt.Errorf("safety gate: %w", err)
	}
	if !decision.Accepted {
		// A rejected cycle is a no-op: it neither counts toward the
		// swap limit nor stops the run.
		c.log.Warn().Str("reason", string(decision.Reason)).Msg("stake operation rejected")
		return false, nil
	}

	// A shutdown signal must not abort an extrinsic the chain may
	// already have accepted; the run stops at the next cycle boundary.
	result, err := c.executor.Execute(context.WithoutCancel(ctx), decision.Operation)
	if err != nil {
		switch subtensor.KindOf(err) {
		case subtensor.KindRejected, subtensor.KindInclusionTimeout, subtensor.KindFinalizationTimeout:
			// Financial submissions are never retried automatically;
			// surface the failure and let the operator diagnose.
			c.log.Error().Err(err).Msg("stake cycle failed")
			return false, nil
		default:
			return false, fmt.Errorf("execute: %w", err)
		}
	}

	c.state.SwapsCompleted++
	c.log.Info().
		Str("tx", string(result.TxRef)).
		Bool("dry_run", result.DryRun).
		Int("swaps_completed", c.state.SwapsCompleted).
		Msg("stake operation succeeded")
	return true, nil
}

// stakeableAmount applies the liquid balance gate for buys: skip when
// the balance is unknown or empty, clamp to the available balance when
// partial staking is allowed.
func (c *Controller) stakeableAmount(balances monitor.Balances) (float64, bool) {
	requested := c.cfg.Run.AmountTao
	if c.direction == execution.RemoveStake {
		return requested, true
	}
	if balances.ColdkeyTao == nil {
		c.log.Warn().Msg("coldkey balance unavailable, skipping this interval")
		return 0, false
	}
	available := *balances.ColdkeyTao
	if available <= 0 {
		c.log.Warn().Msg("no liquid TAO available in coldkey balance")
		return 0, false
	}
	if available < requested {
		if !c.cfg.Safety.AllowPartial {
			c.log.Warn().
				Float64("available_tao", available).
				Float64("requested_tao", requested).
				Msg("insufficient coldkey balance, enable allow-partial to stake what is available")
			return 0, false
		}
		return available, true
	}
	return requested, true
}

// sample polls the price, retrying transient failures with bounded
// exponential backoff. Non-transient errors and budget exhaustion are
// returned to the caller as fatal.
func (c *Controller) sample(ctx context.Context) (monitor.Sample, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoffInitial
	eb.MaxInterval = c.backoffCeiling
	eb.MaxElapsedTime = 0

	var out monitor.Sample
	operation := func() error {
		sample, err := c.monitor.Sample(ctx)
		if err != nil {
			if !subtensor.IsTransient(err) {
				return backoff.Permanent(err)
			}
			c.log.Warn().Err(err).Msg("price poll failed, backing off")
			return err
		}
		out = sample
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(eb, c.retryBudget), ctx))
	if err != nil {
		return monitor.Sample{}, err
	}
	return out, nil
}

// sleep waits one interval, returning false when the context is
// canceled first.
func (c *Controller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Controller) stop(status Status, err error) (State, error) {
	c.state.Status = status
	event := c.log.Info()
	if err != nil {
		event = c.log.Error().Err(err)
	}
	event.
		Str("status", status.String()).
		Int("swaps_completed", c.state.SwapsCompleted).
		Msg("watcher stopped")
	return c.state, err
}
