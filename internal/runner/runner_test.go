package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulpytale/bittensor-utils/internal/config"
	"github.com/pulpytale/bittensor-utils/internal/execution"
	"github.com/pulpytale/bittensor-utils/internal/monitor"
	"github.com/pulpytale/bittensor-utils/internal/risk"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
	"github.com/pulpytale/bittensor-utils/internal/subtensor/stub"
	"github.com/pulpytale/bittensor-utils/internal/wallet"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Wallet.Name = "c0"
	cfg.Run.AmountTao = 0.5
	cfg.Run.ThresholdTao = 0.0017
	return cfg
}

func newTestController(cfg *config.Config, client *stub.Client, direction execution.Direction) *Controller {
	log := zerolog.Nop()
	mon := monitor.New(client, "5Coldkey", "5Hotkey", cfg.Run.OriginNetuid, cfg.Run.TargetNetuid, log)
	gate := risk.New(client, cfg.Safety.SafeStaking, cfg.Safety.AllowPartial, log)
	exec := execution.New(client, cfg.Wallet.Name, "5Hotkey", wallet.StaticSecretProvider("pw"), execution.Options{
		WaitForInclusion: true,
		DryRun:           cfg.Run.DryRun,
	}, nil, log)
	ctrl := New(cfg, direction, mon, gate, exec, log)
	ctrl.interval = time.Millisecond
	ctrl.backoffInitial = time.Millisecond
	ctrl.backoffCeiling = 4 * time.Millisecond
	return ctrl
}

func transientErr() error {
	return subtensor.NewError(subtensor.KindTransient, "subnetPrice", errors.New("timeout"))
}

func TestTriggerOnThirdSampleSubmitsFullAmount(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0020, 0.0018, 0.0016},
		BalanceTao: 10,
		Included:   true,
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if state.SwapsCompleted != 1 {
		t.Fatalf("expected one swap, got %d", state.SwapsCompleted)
	}
	if client.PriceCalls() != 3 {
		t.Fatalf("expected three polls, got %d", client.PriceCalls())
	}
	if len(client.StakeReqs) != 1 {
		t.Fatalf("expected one submission, got %d", len(client.StakeReqs))
	}
	if client.StakeReqs[0].AmountTao != 0.5 {
		t.Fatalf("expected configured amount, got %f", client.StakeReqs[0].AmountTao)
	}
}

func TestThresholdComparisonIsInclusive(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0017},
		BalanceTao: 10,
		Included:   true,
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.SwapsCompleted != 1 {
		t.Fatalf("price equal to threshold must trigger, swaps %d", state.SwapsCompleted)
	}
}

func TestMaxSwapsOneStopsAfterSingleSuccess(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 10,
		Included:   true,
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit || state.SwapsCompleted != 1 {
		t.Fatalf("expected limit stop after one swap, got %s/%d", state.Status, state.SwapsCompleted)
	}
	if len(client.StakeReqs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(client.StakeReqs))
	}
}

func TestMaxSwapsZeroRunsUntilCanceled(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 1000,
		Included:   true,
	}
	cfg := testConfig()
	cfg.Run.MaxSwaps = 0
	ctrl := newTestController(cfg, client, execution.AddStake)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	state, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByCancellation {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if state.SwapsCompleted < 2 {
		t.Fatalf("expected unbounded run to keep swapping, got %d", state.SwapsCompleted)
	}
}

func TestTransientPollsRetriedThenNormalCycle(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0, 0, 0.0020, 0.0016},
		PriceErrs:  []error{transientErr(), transientErr(), nil, nil},
		BalanceTao: 10,
		Included:   true,
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit || state.SwapsCompleted != 1 {
		t.Fatalf("expected clean finish after transient polls, got %s/%d", state.Status, state.SwapsCompleted)
	}
	if client.PriceCalls() != 4 {
		t.Fatalf("expected four polls, got %d", client.PriceCalls())
	}
}

func TestRetryBudgetExhaustionIsFatal(t *testing.T) {
	client := &stub.Client{
		PriceErrs: []error{transientErr(), transientErr(), transientErr(), transientErr()},
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)
	ctrl.retryBudget = 2

	state, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatalf("expected fatal error after retry budget")
	}
	if state.Status != StoppedByFatalError {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if state.SwapsCompleted != 0 {
		t.Fatalf("no swap may be counted, got %d", state.SwapsCompleted)
	}
}

func TestFatalPollErrorStopsRun(t *testing.T) {
	client := &stub.Client{
		PriceErrs: []error{subtensor.NewError(subtensor.KindFatal, "subnetPrice", errors.New("unknown netuid"))},
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if state.Status != StoppedByFatalError {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if client.PriceCalls() != 1 {
		t.Fatalf("fatal errors must not be retried, got %d polls", client.PriceCalls())
	}
}

func TestRejectedGateCycleDoesNotCountAgainstLimit(t *testing.T) {
	// Trigger at 0.0016, re-check sees 0.0018 (12.5% adverse) and is
	// rejected; the next cycle re-checks at an unchanged price and goes
	// through.
	client := &stub.Client{
		Prices:     []float64{0.0016, 0.0018, 0.0016, 0.0016},
		BalanceTao: 10,
		Included:   true,
	}
	cfg := testConfig()
	cfg.Safety.SafeStaking = true
	cfg.Safety.RateTolerance = 0.05
	ctrl := newTestController(cfg, client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit || state.SwapsCompleted != 1 {
		t.Fatalf("expected one counted swap, got %s/%d", state.Status, state.SwapsCompleted)
	}
	if len(client.StakeReqs) != 1 {
		t.Fatalf("rejected cycle must not submit, got %d submissions", len(client.StakeReqs))
	}
	if client.PriceCalls() != 4 {
		t.Fatalf("expected four price reads, got %d", client.PriceCalls())
	}
}

func TestSubmissionRejectionFailsCycleAndContinues(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 10,
		SubmitErr:  subtensor.NewError(subtensor.KindRejected, "addStake", errors.New("insufficient balance")),
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	state, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByCancellation {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if state.SwapsCompleted != 0 {
		t.Fatalf("failed cycles must not count, got %d", state.SwapsCompleted)
	}
}

func TestDryRunNeverSubmits(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 10,
	}
	cfg := testConfig()
	cfg.Run.DryRun = true
	ctrl := newTestController(cfg, client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit || state.SwapsCompleted != 1 {
		t.Fatalf("dry run must still count as success, got %s/%d", state.Status, state.SwapsCompleted)
	}
	if len(client.StakeReqs) != 0 {
		t.Fatalf("dry run must not submit, saw %d submissions", len(client.StakeReqs))
	}
}

func TestInsufficientBalanceSkipsWithoutPartial(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 0.2,
		Included:   true,
	}
	ctrl := newTestController(testConfig(), client, execution.AddStake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	state, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.SwapsCompleted != 0 || len(client.StakeReqs) != 0 {
		t.Fatalf("expected skipped cycles, swaps=%d submissions=%d", state.SwapsCompleted, len(client.StakeReqs))
	}
}

func TestInsufficientBalanceClampsWithPartial(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0016},
		BalanceTao: 0.2,
		Included:   true,
	}
	cfg := testConfig()
	cfg.Safety.AllowPartial = true
	ctrl := newTestController(cfg, client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.SwapsCompleted != 1 || len(client.StakeReqs) != 1 {
		t.Fatalf("expected one clamped swap, swaps=%d submissions=%d", state.SwapsCompleted, len(client.StakeReqs))
	}
	if client.StakeReqs[0].AmountTao != 0.2 {
		t.Fatalf("expected amount clamped to balance, got %f", client.StakeReqs[0].AmountTao)
	}
}

func TestSellDirectionTriggersOnRise(t *testing.T) {
	client := &stub.Client{
		Prices:     []float64{0.0018, 0.0021},
		BalanceTao: 10,
		Included:   true,
	}
	cfg := testConfig()
	cfg.Run.ThresholdTao = 0.0020
	ctrl := newTestController(cfg, client, execution.RemoveStake)

	state, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if state.Status != StoppedByLimit || state.SwapsCompleted != 1 {
		t.Fatalf("expected one unstake, got %s/%d", state.Status, state.SwapsCompleted)
	}
	if len(client.UnstakeReqs) != 1 || len(client.StakeReqs) != 0 {
		t.Fatalf("expected one remove-stake submission, stake=%d unstake=%d", len(client.StakeReqs), len(client.UnstakeReqs))
	}
	if client.PriceCalls() != 2 {
		t.Fatalf("expected two polls, got %d", client.PriceCalls())
	}
}

func TestInvalidConfigNeverEntersLoop(t *testing.T) {
	client := &stub.Client{Prices: []float64{0.0016}}
	cfg := testConfig()
	cfg.Run.AmountTao = 0
	ctrl := newTestController(cfg, client, execution.AddStake)

	state, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if state.Status != StoppedByFatalError {
		t.Fatalf("unexpected status: %s", state.Status)
	}
	if client.PriceCalls() != 0 {
		t.Fatalf("loop must not start on invalid config")
	}
}

func TestExitCodes(t *testing.T) {
	if ExitCode(StoppedByLimit) != 0 || ExitCode(StoppedByCancellation) != 0 {
		t.Fatalf("clean stops must exit zero")
	}
	if ExitCode(StoppedByFatalError) == 0 {
		t.Fatalf("fatal stop must exit non-zero")
	}
}
