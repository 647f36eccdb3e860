// Package monitor polls the chain for the subnet alpha price and the
// operator's balances. It performs exactly one chain read per call and
// leaves retry policy to the caller.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulpytale/bittensor-utils/internal/metrics"
	"github.com/pulpytale/bittensor-utils/internal/subtensor"
)

// Sample is a single price observation. Not persisted; consumed
// immediately by the trigger check.
type Sample struct {
	PriceTao   float64
	ObservedAt time.Time
}

// Balances is a best-effort snapshot of the operator's funds around one
// poll cycle. A nil field means the read failed and was logged.
type Balances struct {
	ColdkeyTao  *float64
	OriginStake *float64
	TargetStake *float64
}

// Monitor reads prices and balances for one origin/target netuid pair.
type Monitor struct {
	client  subtensor.Client
	coldkey string
	hotkey  string
	origin  uint16
	target  uint16
	log     zerolog.Logger
}

// New builds a Monitor. coldkey and hotkey are ss58 addresses used only
// for the balance snapshot.
func New(client subtensor.Client, coldkey, hotkey string, origin, target uint16, log zerolog.Logger) *Monitor {
	return &Monitor{
		client:  client,
		coldkey: coldkey,
		hotkey:  hotkey,
		origin:  origin,
		target:  target,
		log:     log,
	}
}

// Sample queries the current alpha price of the target netuid once.
// Errors keep their transient/fatal classification from the client.
func (m *Monitor) Sample(ctx context.Context) (Sample, error) {
	price, err := m.client.SubnetPrice(ctx, m.target)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return Sample{}, err
	}
	metrics.PollsTotal.WithLabelValues("ok").Inc()
	metrics.LastPrice.Set(price)
	return Sample{PriceTao: price, ObservedAt: time.Now()}, nil
}

// Snapshot reads coldkey balance and origin/target stake. Each read is
// independent; failures are logged and leave the field nil.
func (m *Monitor) Snapshot(ctx context.Context) Balances {
	var out Balances
	if balance, err := m.client.Balance(ctx, m.coldkey); err != nil {
		m.log.Warn().Err(err).Msg("coldkey balance unavailable")
	} else {
		out.ColdkeyTao = &balance
	}
	if stake, err := m.client.StakeForHotkey(ctx, m.hotkey, m.origin); err != nil {
		m.log.Warn().Err(err).Uint16("netuid", m.origin).Msg("origin stake unavailable")
	} else {
		out.OriginStake = &stake
	}
	if stake, err := m.client.StakeForHotkey(ctx, m.hotkey, m.target); err != nil {
		m.log.Warn().Err(err).Uint16("netuid", m.target).Msg("target stake unavailable")
	} else {
		out.TargetStake = &stake
	}
	return out
}

// LogBalances emits one info line in the balances format the operator
// watches during long runs.
func (m *Monitor) LogBalances(b Balances) {
	event := m.log.Info()
	event.Str("coldkey", formatOptional(b.ColdkeyTao))
	event.Str("origin_stake", formatOptional(b.OriginStake))
	event.Str("target_stake", formatOptional(b.TargetStake))
	event.Msg("balances")
}

func formatOptional(tao *float64) string {
	if tao == nil {
		return "n/a"
	}
	return subtensor.FormatTao(*tao)
}
