package subtensor

import (
	"context"
	"time"
)

// Client is the chain surface the watcher loops consume. Reads return
// TAO-denominated values; writes submit extrinsics and report a TxRef
// usable with the await calls.
type Client interface {
	// SubnetPrice returns the current alpha token price of netuid in TAO.
	SubnetPrice(ctx context.Context, netuid uint16) (float64, error)

	// Balance returns the liquid TAO balance of a coldkey address.
	Balance(ctx context.Context, coldkey string) (float64, error)

	// StakeForHotkey returns the stake a hotkey holds on netuid, in TAO.
	StakeForHotkey(ctx context.Context, hotkey string, netuid uint16) (float64, error)

	// MetagraphHotkeys returns the hotkey addresses registered on netuid,
	// indexed by UID.
	MetagraphHotkeys(ctx context.Context, netuid uint16) ([]string, error)

	// AddStake submits an add-stake extrinsic.
	AddStake(ctx context.Context, req StakeRequest) (TxRef, error)

	// RemoveStake submits a remove-stake extrinsic.
	RemoveStake(ctx context.Context, req UnstakeRequest) (TxRef, error)

	// AwaitInclusion blocks until the extrinsic is seen in a block or the
	// timeout elapses. Returns false on expiry without error.
	AwaitInclusion(ctx context.Context, ref TxRef, timeout time.Duration) (bool, error)

	// AwaitFinalization blocks until the containing block finalizes or
	// the timeout elapses. Returns false on expiry without error.
	AwaitFinalization(ctx context.Context, ref TxRef, timeout time.Duration) (bool, error)

	// Close releases the underlying connection.
	Close() error
}
