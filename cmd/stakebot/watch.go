package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pulpytale/bittensor-utils/internal/config"
	"github.com/pulpytale/bittensor-utils/internal/execution"
	"github.com/pulpytale/bittensor-utils/internal/journal"
	"github.com/pulpytale/bittensor-utils/internal/metrics"
	"github.com/pulpytale/bittensor-utils/internal/monitor"
	"github.com/pulpytale/bittensor-utils/internal/risk"
	"github.com/pulpytale/bittensor-utils/internal/runner"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
	"github.com/pulpytale/bittensor-utils/internal/util"
	"github.com/pulpytale/bittensor-utils/internal/wallet"
)

// watchFlags collects the shared flag surface of the buy and sell
// watchers.
type watchFlags struct {
	configPath       string
	keystorePath     string
	endpoint         string
	validatorKey     string
	noWaitInclusion  bool
	waitFinalization bool
}

func addWatchFlags(cmd *cobra.Command, cfg *config.Config, flags *watchFlags) {
	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "optional YAML config file")
	f.StringVar(&flags.keystorePath, "wallet.path", wallet.DefaultKeystorePath, "wallet keystore directory")
	f.StringVar(&flags.endpoint, "endpoint", "", "explicit websocket RPC endpoint (overrides --network)")

	f.StringVar(&cfg.Wallet.Name, "wallet.name", cfg.Wallet.Name, "name of the coldkey wallet")
	f.StringVar(&cfg.Wallet.Hotkey, "wallet.hotkey", cfg.Wallet.Hotkey, "hotkey name stored under the wallet")
	f.StringVar(&cfg.Run.Network, "network", cfg.Run.Network, "subtensor network to target (finney, test, local, mainnet)")
	f.Uint16Var(&cfg.Run.OriginNetuid, "origin-netuid", cfg.Run.OriginNetuid, "netuid to monitor existing stake on")
	f.Uint16Var(&cfg.Run.TargetNetuid, "netuid", cfg.Run.TargetNetuid, "netuid to stake on when conditions are met")
	f.Float64Var(&cfg.Run.AmountTao, "amount-tao", cfg.Run.AmountTao, "amount of stake (in TAO) per operation")
	f.Float64Var(&cfg.Run.ThresholdTao, "threshold-tao", cfg.Run.ThresholdTao, "trigger price in TAO")
	f.Float64Var(&cfg.Run.IntervalSecs, "interval", cfg.Run.IntervalSecs, "polling interval in seconds between price checks")
	f.IntVar(&cfg.Run.MaxSwaps, "max-swaps", cfg.Run.MaxSwaps, "maximum stake operations before exiting (0 = run forever)")
	f.BoolVar(&cfg.Run.DryRun, "dry-run", cfg.Run.DryRun, "only log what would happen without submitting extrinsics")
	f.BoolVar(&cfg.Safety.SafeStaking, "safe-staking", cfg.Safety.SafeStaking, "re-check the price immediately before submission")
	f.BoolVar(&cfg.Safety.AllowPartial, "allow-partial", cfg.Safety.AllowPartial, "allow partial staking when the tolerance would be exceeded")
	f.Float64Var(&cfg.Safety.RateTolerance, "rate-tolerance", cfg.Safety.RateTolerance, "maximum price ratio increase allowed when safe staking")
	f.BoolVar(&flags.waitFinalization, "wait-for-finalization", false, "wait for block finalization before reporting success")
	f.BoolVar(&flags.noWaitInclusion, "no-wait-for-inclusion", false, "return immediately after submitting the extrinsic")

	f.StringVar(&cfg.App.MetricsAddr, "metrics-addr", cfg.App.MetricsAddr, "prometheus metrics address (empty to disable)")
	f.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "log level")
	f.StringVar(&cfg.App.JournalPath, "journal", cfg.App.JournalPath, "JSONL journal file for stake operations (empty to disable)")
}

func newBuyCmd() *cobra.Command {
	cfg := config.Default()
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Add stake when the alpha price falls to or below the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, cfg, &flags, execution.AddStake)
		},
	}
	addWatchFlags(cmd, cfg, &flags)
	return cmd
}

func newSellCmd() *cobra.Command {
	cfg := config.Default()
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Remove stake when the alpha price rises to or above the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, cfg, &flags, execution.RemoveStake)
		},
	}
	addWatchFlags(cmd, cfg, &flags)
	cmd.Flags().StringVar(&flags.validatorKey, "validator", "", "ss58 hotkey of the validator to unstake from")
	_ = cmd.MarkFlagRequired("validator")
	return cmd
}

func runWatch(cmd *cobra.Command, cfg *config.Config, flags *watchFlags, direction execution.Direction) error {
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return &exitError{code: exitConfig, err: err}
		}
		// Flags set on the command line win over the file.
		mergeFileConfig(cmd, cfg, loaded)
	}
	applySubmissionFlags(cmd, cfg, flags)

	if err := cfg.Validate(); err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("invalid configuration: %w", err)}
	}

	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := dial(ctx, cfg, flags, log)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	defer client.Close()
	log.Info().Str("network", cfg.Run.Network).Msg("connected")

	hotkeySS58, err := wallet.HotkeySS58(flags.keystorePath, cfg.Wallet.Name, cfg.Wallet.Hotkey)
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("load hotkey %q from wallet %q: %w", cfg.Wallet.Hotkey, cfg.Wallet.Name, err)}
	}
	coldkeySS58, err := wallet.ColdkeySS58(flags.keystorePath, cfg.Wallet.Name)
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("load coldkey from wallet %q: %w", cfg.Wallet.Name, err)}
	}
	log.Info().Str("hotkey", hotkeySS58).Msg("wallet loaded")

	var rec journal.Recorder
	if cfg.App.JournalPath != "" {
		jsonl, err := journal.NewJSONL(cfg.App.JournalPath)
		if err != nil {
			return &exitError{code: exitFatal, err: fmt.Errorf("open journal: %w", err)}
		}
		defer jsonl.Close()
		rec = jsonl
	}

	executorHotkey := hotkeySS58
	if direction == execution.RemoveStake {
		executorHotkey = flags.validatorKey
	}

	mon := monitor.New(client, coldkeySS58, hotkeySS58, cfg.Run.OriginNetuid, cfg.Run.TargetNetuid, log)
	gate := risk.New(client, cfg.Safety.SafeStaking, cfg.Safety.AllowPartial, log)
	exec := execution.New(client, cfg.Wallet.Name, executorHotkey, wallet.NewEnvSecretProvider(), execution.Options{
		WaitForInclusion:    cfg.Submission.WaitForInclusion,
		WaitForFinalization: cfg.Submission.WaitForFinalization,
		DryRun:              cfg.Run.DryRun,
	}, rec, log)

	ctrl := runner.New(cfg, direction, mon, gate, exec, log)
	state, err := ctrl.Run(ctx)
	if err != nil {
		return &exitError{code: runner.ExitCode(state.Status), err: err}
	}
	log.Info().Int("swaps_completed", state.SwapsCompleted).Msg("finished")
	if code := runner.ExitCode(state.Status); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

func dial(ctx context.Context, cfg *config.Config, flags *watchFlags, log zerolog.Logger) (subtensor.Client, error) {
	if flags.endpoint != "" {
		return subtensor.DialEndpoint(ctx, flags.endpoint, log)
	}
	return subtensor.Dial(ctx, cfg.Run.Network, log)
}

// applySubmissionFlags folds the inclusion/finalization switches into
// cfg only when given on the command line, so file values survive.
func applySubmissionFlags(cmd *cobra.Command, cfg *config.Config, flags *watchFlags) {
	if cmd.Flags().Changed("no-wait-for-inclusion") {
		cfg.Submission.WaitForInclusion = !flags.noWaitInclusion
	}
	if cmd.Flags().Changed("wait-for-finalization") {
		cfg.Submission.WaitForFinalization = flags.waitFinalization
	}
}

// mergeFileConfig overlays file values onto cfg for every flag the user
// did not set explicitly.
func mergeFileConfig(cmd *cobra.Command, cfg, file *config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("wallet.name") {
		cfg.Wallet.Name = file.Wallet.Name
	}
	if !set("wallet.hotkey") {
		cfg.Wallet.Hotkey = file.Wallet.Hotkey
	}
	if !set("network") {
		cfg.Run.Network = file.Run.Network
	}
	if !set("origin-netuid") {
		cfg.Run.OriginNetuid = file.Run.OriginNetuid
	}
	if !set("netuid") {
		cfg.Run.TargetNetuid = file.Run.TargetNetuid
	}
	if !set("amount-tao") {
		cfg.Run.AmountTao = file.Run.AmountTao
	}
	if !set("threshold-tao") {
		cfg.Run.ThresholdTao = file.Run.ThresholdTao
	}
	if !set("interval") {
		cfg.Run.IntervalSecs = file.Run.IntervalSecs
	}
	if !set("max-swaps") {
		cfg.Run.MaxSwaps = file.Run.MaxSwaps
	}
	if !set("dry-run") {
		cfg.Run.DryRun = file.Run.DryRun
	}
	if !set("safe-staking") {
		cfg.Safety.SafeStaking = file.Safety.SafeStaking
	}
	if !set("allow-partial") {
		cfg.Safety.AllowPartial = file.Safety.AllowPartial
	}
	if !set("rate-tolerance") {
		cfg.Safety.RateTolerance = file.Safety.RateTolerance
	}
	if !set("no-wait-for-inclusion") {
		cfg.Submission.WaitForInclusion = file.Submission.WaitForInclusion
	}
	if !set("wait-for-finalization") {
		cfg.Submission.WaitForFinalization = file.Submission.WaitForFinalization
	}
	if !set("metrics-addr") {
		cfg.App.MetricsAddr = file.App.MetricsAddr
	}
	if !set("log-level") {
		cfg.App.LogLevel = file.App.LogLevel
	}
	if !set("journal") {
		cfg.App.JournalPath = file.App.JournalPath
	}
}
