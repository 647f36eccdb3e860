package subtensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// RPC methods exposed by the subtensor gateway this client talks to.
const (
	methodSubnetPrice      = "subtensor_subnetPrice"
	methodBalance          = "subtensor_balance"
	methodStakeForHotkey   = "subtensor_stakeForHotkey"
	methodMetagraphHotkeys = "subtensor_metagraphHotkeys"
	methodAddStake         = "subtensor_addStake"
	methodRemoveStake      = "subtensor_removeStake"
	methodAwaitInclusion   = "subtensor_awaitInclusion"
	methodAwaitFinalized   = "subtensor_awaitFinalization"
)

// RPC error codes the gateway uses for structured failures.
const (
	codeUnknownNetuid = -32001
	codeRejected      = -32010
)

const defaultCallTimeout = 30 * time.Second

// WSClient implements Client over a JSON-RPC 2.0 websocket connection.
type WSClient struct {
	endpoint string
	log      zerolog.Logger

	conn      *websocket.Conn
	writeMu   sync.Mutex
	requestID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse

	closeOnce sync.Once
	closed    chan struct{}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Dial connects to the named network and starts the read loop.
func Dial(ctx context.Context, network string, log zerolog.Logger) (*WSClient, error) {
	endpoint, err := Endpoint(network)
	if err != nil {
		return nil, NewError(KindFatal, "dial", err)
	}
	return DialEndpoint(ctx, endpoint, log)
}

// DialEndpoint connects to an explicit websocket URL. Useful for local
// gateways and tests.
func DialEndpoint(ctx context.Context, endpoint string, log zerolog.Logger) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, NewError(KindTransient, "dial", err)
	}
	c := &WSClient{
		endpoint: endpoint,
		log:      log,
		conn:     conn,
		pending:  make(map[uint64]chan rpcResponse),
		closed:   make(chan struct{}),
	}
	log.Debug().Str("endpoint", endpoint).Msg("rpc connected")
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Warn().Err(err).Msg("rpc connection lost")
			}
			c.failPending(err)
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *WSClient) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- rpcResponse{ID: id, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
}

func (c *WSClient) call(ctx context.Context, method string, params any, result any) error {
	id := c.requestID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return NewError(KindTransient, method, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return NewError(KindTransient, method, ctx.Err())
	case <-c.closed:
		return NewError(KindTransient, method, fmt.Errorf("connection closed"))
	case resp := <-ch:
		if resp.Error != nil {
			return NewError(classifyRPC(resp.Error), method, resp.Error)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return NewError(KindFatal, method, fmt.Errorf("decode result: %w", err))
		}
		return nil
	}
}

func classifyRPC(err *rpcError) Kind {
	switch err.Code {
	case codeUnknownNetuid:
		return KindFatal
	case codeRejected:
		return KindRejected
	}
	return KindTransient
}

// SubnetPrice returns the alpha price of netuid in TAO.
func (c *WSClient) SubnetPrice(ctx context.Context, netuid uint16) (float64, error) {
	var rao uint64
	if err := c.call(ctx, methodSubnetPrice, []any{netuid}, &rao); err != nil {
		return 0, err
	}
	return TaoFromRao(rao), nil
}

// Balance returns the liquid TAO balance of a coldkey address.
func (c *WSClient) Balance(ctx context.Context, coldkey string) (float64, error) {
	var rao uint64
	if err := c.call(ctx, methodBalance, []any{coldkey}, &rao); err != nil {
		return 0, err
	}
	return TaoFromRao(rao), nil
}

// StakeForHotkey returns the stake a hotkey holds on netuid, in TAO.
func (c *WSClient) StakeForHotkey(ctx context.Context, hotkey string, netuid uint16) (float64, error) {
	var rao uint64
	if err := c.call(ctx, methodStakeForHotkey, []any{hotkey, netuid}, &rao); err != nil {
		return 0, err
	}
	return TaoFromRao(rao), nil
}

// MetagraphHotkeys returns the registered hotkeys of netuid indexed by UID.
func (c *WSClient) MetagraphHotkeys(ctx context.Context, netuid uint16) ([]string, error) {
	var hotkeys []string
	if err := c.call(ctx, methodMetagraphHotkeys, []any{netuid}, &hotkeys); err != nil {
		return nil, err
	}
	return hotkeys, nil
}

type stakeParams struct {
	Wallet    string `json:"wallet"`
	Hotkey    string `json:"hotkey"`
	Netuid    uint16 `json:"netuid"`
	AmountRao uint64 `json:"amount_rao"`
	Password  string `json:"password"`
}

// AddStake submits an add-stake extrinsic and returns its reference.
func (c *WSClient) AddStake(ctx context.Context, req StakeRequest) (TxRef, error) {
	params := stakeParams{
		Wallet:    req.Wallet,
		Hotkey:    req.Hotkey,
		Netuid:    req.Netuid,
		AmountRao: RaoFromTao(req.AmountTao),
		Password:  req.Password,
	}
	var ref string
	if err := c.call(ctx, methodAddStake, params, &ref); err != nil {
		return "", err
	}
	return TxRef(ref), nil
}

// RemoveStake submits a remove-stake extrinsic and returns its reference.
func (c *WSClient) RemoveStake(ctx context.Context, req UnstakeRequest) (TxRef, error) {
	params := stakeParams{
		Wallet:    req.Wallet,
		Hotkey:    req.ValidatorKey,
		Netuid:    req.Netuid,
		AmountRao: RaoFromTao(req.AmountTao),
		Password:  req.Password,
	}
	var ref string
	if err := c.call(ctx, methodRemoveStake, params, &ref); err != nil {
		return "", err
	}
	return TxRef(ref), nil
}

func (c *WSClient) await(ctx context.Context, method string, ref TxRef, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var done bool
	err := c.call(ctx, method, []any{string(ref)}, &done)
	if err != nil {
		if KindOf(err) == KindTransient && ctx.Err() != nil {
			// Wait budget elapsed, not a connectivity failure.
			return false, nil
		}
		return false, err
	}
	return done, nil
}

// AwaitInclusion blocks until ref is seen in a block or timeout elapses.
func (c *WSClient) AwaitInclusion(ctx context.Context, ref TxRef, timeout time.Duration) (bool, error) {
	return c.await(ctx, methodAwaitInclusion, ref, timeout)
}

// AwaitFinalization blocks until the containing block finalizes or timeout elapses.
func (c *WSClient) AwaitFinalization(ctx context.Context, ref TxRef, timeout time.Duration) (bool, error) {
	return c.await(ctx, methodAwaitFinalized, ref, timeout)
}

// Close tears down the websocket connection.
func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
