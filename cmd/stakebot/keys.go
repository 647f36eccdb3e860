package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulpytale/bittensor-utils/internal/config"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
	"github.com/pulpytale/bittensor-utils/internal/util"
	"github.com/pulpytale/bittensor-utils/internal/wallet"
)

func newKeysCmd() *cobra.Command {
	var (
		keystorePath string
		hotkey       string
		network      string
		endpoint     string
		netuid       uint16
		prefixes     []string
		logLevel     string
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List local wallets registered on a subnet metagraph",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := util.NewConsoleLogger(logLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			wallets, err := wallet.Scan(keystorePath, hotkey, prefixes...)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			if len(wallets) == 0 {
				log.Warn().Str("path", keystorePath).Msg("no wallets found")
				return nil
			}

			var client subtensor.Client
			if endpoint != "" {
				client, err = subtensor.DialEndpoint(ctx, endpoint, log)
			} else {
				client, err = subtensor.Dial(ctx, network, log)
			}
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer client.Close()

			hotkeys, err := client.MetagraphHotkeys(ctx, netuid)
			if err != nil {
				return &exitError{code: exitFatal, err: fmt.Errorf("metagraph for netuid %d: %w", netuid, err)}
			}

			for _, reg := range wallet.Registered(wallets, hotkeys) {
				fmt.Fprintf(cmd.OutOrStdout(), "Wallet Name: %s, UID: %d\n", reg.Wallet.Name, reg.UID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&keystorePath, "wallet.path", wallet.DefaultKeystorePath, "wallet keystore directory")
	f.StringVar(&hotkey, "wallet.hotkey", "default", "hotkey name to resolve under each wallet")
	f.StringVar(&network, "network", subtensor.NetworkLocal, "subtensor network to query")
	f.StringVar(&endpoint, "endpoint", "", "explicit websocket RPC endpoint (overrides --network)")
	f.Uint16Var(&netuid, "netuid", config.DefaultTargetNetuid, "netuid whose metagraph to check")
	f.StringSliceVar(&prefixes, "prefix", nil, "only include wallets whose name starts with one of these prefixes")
	f.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
