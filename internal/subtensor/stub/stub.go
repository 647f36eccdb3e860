// Package stub provides an in-memory Client with scripted responses for
// tests and offline runs.
package stub

import (
	"context"
	"sync"
	"time"

	"github.com/pulpytale/bittensor-utils/internal/subtensor"
)

// Client replays scripted prices and records submitted extrinsics.
// The zero value is usable; all fields are optional.
type Client struct {
	mu sync.Mutex

	// Prices is consumed one entry per SubnetPrice call; the last entry
	// repeats once the script is exhausted.
	Prices []float64
	// PriceErrs is consumed alongside Prices; a nil entry means success.
	PriceErrs []error
	priceCall int

	BalanceTao float64
	BalanceErr error
	StakeTao   map[uint16]float64
	Hotkeys    []string

	SubmitRef subtensor.TxRef
	SubmitErr error
	Included  bool
	Finalized bool
	AwaitErr  error

	StakeReqs   []subtensor.StakeRequest
	UnstakeReqs []subtensor.UnstakeRequest
}

var _ subtensor.Client = (*Client)(nil)

// PriceCalls reports how many times SubnetPrice was invoked.
func (c *Client) PriceCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priceCall
}

func (c *Client) SubnetPrice(ctx context.Context, netuid uint16) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.priceCall
	c.priceCall++
	if i < len(c.PriceErrs) && c.PriceErrs[i] != nil {
		return 0, c.PriceErrs[i]
	}
	if len(c.Prices) == 0 {
		return 0, subtensor.NewError(subtensor.KindFatal, "subnetPrice", nil)
	}
	if i >= len(c.Prices) {
		i = len(c.Prices) - 1
	}
	return c.Prices[i], nil
}

func (c *Client) Balance(ctx context.Context, coldkey string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.BalanceTao, nil
}

func (c *Client) StakeForHotkey(ctx context.Context, hotkey string, netuid uint16) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StakeTao[netuid], nil
}

func (c *Client) MetagraphHotkeys(ctx context.Context, netuid uint16) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Hotkeys))
	copy(out, c.Hotkeys)
	return out, nil
}

func (c *Client) AddStake(ctx context.Context, req subtensor.StakeRequest) (subtensor.TxRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	c.StakeReqs = append(c.StakeReqs, req)
	if c.SubmitRef == "" {
		return "stub-tx", nil
	}
	return c.SubmitRef, nil
}

func (c *Client) RemoveStake(ctx context.Context, req subtensor.UnstakeRequest) (subtensor.TxRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	c.UnstakeReqs = append(c.UnstakeReqs, req)
	if c.SubmitRef == "" {
		return "stub-tx", nil
	}
	return c.SubmitRef, nil
}

func (c *Client) AwaitInclusion(ctx context.Context, ref subtensor.TxRef, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AwaitErr != nil {
		return false, c.AwaitErr
	}
	return c.Included, nil
}

func (c *Client) AwaitFinalization(ctx context.Context, ref subtensor.TxRef, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AwaitErr != nil {
		return false, c.AwaitErr
	}
	return c.Finalized, nil
}

func (c *Client) Close() error { return nil }
