// Package subtensor defines the chain client boundary: typed access to
// subnet prices, balances, and stake extrinsics on a subtensor network.
package subtensor

import (
	"fmt"
	"strings"
)

// Network names accepted by the CLI and mapped to chain endpoints.
const (
	NetworkFinney  = "finney"
	NetworkTest    = "test"
	NetworkLocal   = "local"
	NetworkMainnet = "mainnet"
)

var endpoints = map[string]string{
	NetworkFinney:  "wss://entrypoint-finney.opentensor.ai:443",
	NetworkTest:    "wss://test.finney.opentensor.ai:443",
	NetworkLocal:   "ws://127.0.0.1:9944",
	NetworkMainnet: "wss://entrypoint-finney.opentensor.ai:443",
}

// Endpoint resolves a network name to its websocket RPC endpoint.
func Endpoint(network string) (string, error) {
	ep, ok := endpoints[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return "", fmt.Errorf("unknown network %q", network)
	}
	return ep, nil
}

// ValidNetwork reports whether the name maps to a known endpoint.
func ValidNetwork(network string) bool {
	_, ok := endpoints[strings.ToLower(strings.TrimSpace(network))]
	return ok
}

// RaoPerTao is the number of rao in one TAO.
const RaoPerTao = 1_000_000_000

// TaoFromRao converts a raw rao amount into TAO.
func TaoFromRao(rao uint64) float64 { return float64(rao) / RaoPerTao }

// RaoFromTao converts a TAO amount into rao, truncating sub-rao dust.
func RaoFromTao(tao float64) uint64 {
	if tao <= 0 {
		return 0
	}
	return uint64(tao * RaoPerTao)
}

// FormatTao renders a TAO amount the way balances are logged: nine
// decimal places and the currency unit.
func FormatTao(tao float64) string { return fmt.Sprintf("%.9f TAO", tao) }

// TxRef identifies a submitted extrinsic.
type TxRef string

// StakeRequest describes an add-stake extrinsic to submit.
type StakeRequest struct {
	Wallet    string
	Hotkey    string
	Netuid    uint16
	AmountTao float64
	// Password unlocks the coldkey for signing. Supplied by a
	// wallet.SecretProvider, never logged.
	Password string
}

// UnstakeRequest describes a remove-stake extrinsic to submit.
type UnstakeRequest struct {
	Wallet       string
	ValidatorKey string
	Netuid       uint16
	AmountTao    float64
	Password     string
}
