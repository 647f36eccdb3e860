package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulpytale/bittensor-utils/internal/journal"
	"github.com/pulpytale/bittensor-utils/internal/metrics"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
	"github.com/pulpytale/bittensor-utils/internal/wallet"
)

// Default wait budgets for the optional block waits.
const (
	DefaultInclusionTimeout    = 90 * time.Second
	DefaultFinalizationTimeout = 5 * time.Minute
)

// Result reports a successful submission.
type Result struct {
	TxRef  subtensor.TxRef
	DryRun bool
}

// Options tune how the executor waits on the chain.
type Options struct {
	WaitForInclusion    bool
	WaitForFinalization bool
	DryRun              bool
	InclusionTimeout    time.Duration
	FinalizationTimeout time.Duration
}

// Executor turns accepted operations into extrinsics. One instance
// serves one wallet/hotkey pair.
type Executor struct {
	client  subtensor.Client
	wallet  string
	hotkey  string
	secrets wallet.SecretProvider
	opts    Options
	journal journal.Recorder
	log     zerolog.Logger
}

// New builds an Executor. journal may be nil to skip audit recording.
func New(client subtensor.Client, walletName, hotkey string, secrets wallet.SecretProvider, opts Options, rec journal.Recorder, log zerolog.Logger) *Executor {
	if opts.InclusionTimeout <= 0 {
		opts.InclusionTimeout = DefaultInclusionTimeout
	}
	if opts.FinalizationTimeout <= 0 {
		opts.FinalizationTimeout = DefaultFinalizationTimeout
	}
	return &Executor{
		client:  client,
		wallet:  walletName,
		hotkey:  hotkey,
		secrets: secrets,
		opts:    opts,
		journal: rec,
		log:     log,
	}
}

// Execute submits op and, when configured, waits for inclusion and
// finalization. Dry-run performs no chain call and reports success with
// a synthetic reference. Failures carry the chain error classification;
// submission-level rejections are never retried here.
func (e *Executor) Execute(ctx context.Context, op Operation) (Result, error) {
	if e.opts.DryRun {
		ref := subtensor.TxRef("dry-" + uuid.NewString())
		e.log.Info().
			Str("direction", string(op.Direction)).
			Uint16("netuid", op.Netuid).
			Float64("amount_tao", op.AmountTao).
			Float64("price_tao", op.PriceAtSubmission).
			Msg("dry run: would submit stake operation")
		e.record(op, ref, true, "success")
		metrics.StakesTotal.WithLabelValues("dry_run").Inc()
		return Result{TxRef: ref, DryRun: true}, nil
	}

	ref, err := e.submit(ctx, op)
	if err != nil {
		e.record(op, "", false, "submit_failed")
		metrics.StakesTotal.WithLabelValues("submit_failed").Inc()
		return Result{}, err
	}
	e.log.Info().Str("tx", string(ref)).Float64("amount_tao", op.AmountTao).Msg("extrinsic submitted")

	if e.opts.WaitForInclusion {
		included, err := e.client.AwaitInclusion(ctx, ref, e.opts.InclusionTimeout)
		if err != nil {
			e.record(op, ref, false, "inclusion_error")
			metrics.StakesTotal.WithLabelValues("inclusion_error").Inc()
			return Result{}, err
		}
		if !included {
			e.record(op, ref, false, "inclusion_timeout")
			metrics.StakesTotal.WithLabelValues("inclusion_timeout").Inc()
			return Result{}, subtensor.NewError(subtensor.KindInclusionTimeout, "awaitInclusion",
				fmt.Errorf("tx %s not included within %s", ref, e.opts.InclusionTimeout))
		}

		if e.opts.WaitForFinalization {
			finalized, err := e.client.AwaitFinalization(ctx, ref, e.opts.FinalizationTimeout)
			if err != nil {
				e.record(op, ref, false, "finalization_error")
				metrics.StakesTotal.WithLabelValues("finalization_error").Inc()
				return Result{}, err
			}
			if !finalized {
				e.record(op, ref, false, "finalization_timeout")
				metrics.StakesTotal.WithLabelValues("finalization_timeout").Inc()
				return Result{}, subtensor.NewError(subtensor.KindFinalizationTimeout, "awaitFinalization",
					fmt.Errorf("tx %s not finalized within %s", ref, e.opts.FinalizationTimeout))
			}
		}
	}

	e.record(op, ref, false, "success")
	metrics.StakesTotal.WithLabelValues("success").Inc()
	return Result{TxRef: ref}, nil
}

func (e *Executor) submit(ctx context.Context, op Operation) (subtensor.TxRef, error) {
	password, err := e.secrets.ColdkeyPassword(e.wallet)
	if err != nil {
		return "", subtensor.NewError(subtensor.KindFatal, "submit", err)
	}

	switch op.Direction {
	case RemoveStake:
		return e.client.RemoveStake(ctx, subtensor.UnstakeRequest{
			Wallet:       e.wallet,
			ValidatorKey: e.hotkey,
			Netuid:       op.Netuid,
			AmountTao:    op.AmountTao,
			Password:     password,
		})
	default:
		return e.client.AddStake(ctx, subtensor.StakeRequest{
			Wallet:    e.wallet,
			Hotkey:    e.hotkey,
			Netuid:    op.Netuid,
			AmountTao: op.AmountTao,
			Password:  password,
		})
	}
}

func (e *Executor) record(op Operation, ref subtensor.TxRef, dryRun bool, result string) {
	if e.journal == nil {
		return
	}
	e.journal.Record(journal.Entry{
		Time:      time.Now(),
		Direction: string(op.Direction),
		Netuid:    op.Netuid,
		AmountTao: op.AmountTao,
		PriceTao:  op.PriceAtSubmission,
		TxRef:     string(ref),
		DryRun:    dryRun,
		Result:    result,
	})
}
