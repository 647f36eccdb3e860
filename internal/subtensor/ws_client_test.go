package subtensor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// fakeGateway answers JSON-RPC calls over a websocket the way the
// subtensor gateway does.
func fakeGateway(t *testing.T, handle func(req rpcRequest) rpcResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := handle(req)
			resp.JSONRPC = "2.0"
			resp.ID = req.ID
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func dialTest(t *testing.T, server *httptest.Server) *WSClient {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := DialEndpoint(context.Background(), endpoint, zerolog.Nop())
	if err != nil {
		t.Fatalf("DialEndpoint returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func result(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func TestWSClientSubnetPrice(t *testing.T) {
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		if req.Method != methodSubnetPrice {
			return rpcResponse{Error: &rpcError{Code: -32601, Message: "unknown method"}}
		}
		return rpcResponse{Result: result(uint64(1_700_000))} // 0.0017 TAO
	})
	defer server.Close()

	client := dialTest(t, server)
	price, err := client.SubnetPrice(context.Background(), 117)
	if err != nil {
		t.Fatalf("SubnetPrice returned error: %v", err)
	}
	if price != 0.0017 {
		t.Fatalf("unexpected price: %f", price)
	}
}

func TestWSClientAddStake(t *testing.T) {
	var got stakeParams
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		switch req.Method {
		case methodAddStake:
			data, _ := json.Marshal(req.Params)
			if err := json.Unmarshal(data, &got); err != nil {
				return rpcResponse{Error: &rpcError{Code: -32602, Message: "bad params"}}
			}
			return rpcResponse{Result: result("0xabc")}
		default:
			return rpcResponse{Error: &rpcError{Code: -32601, Message: "unknown method"}}
		}
	})
	defer server.Close()

	client := dialTest(t, server)
	ref, err := client.AddStake(context.Background(), StakeRequest{
		Wallet:    "c0",
		Hotkey:    "5Hot",
		Netuid:    117,
		AmountTao: 0.5,
		Password:  "pw",
	})
	if err != nil {
		t.Fatalf("AddStake returned error: %v", err)
	}
	if ref != "0xabc" {
		t.Fatalf("unexpected tx ref: %s", ref)
	}
	if got.Wallet != "c0" || got.Netuid != 117 || got.AmountRao != 500_000_000 {
		t.Fatalf("unexpected params: %+v", got)
	}
}

func TestWSClientClassifiesRejection(t *testing.T) {
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{Error: &rpcError{Code: codeRejected, Message: "insufficient balance"}}
	})
	defer server.Close()

	client := dialTest(t, server)
	_, err := client.AddStake(context.Background(), StakeRequest{Wallet: "c0", AmountTao: 1})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
	if KindOf(err) != KindRejected {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
}

func TestWSClientClassifiesUnknownNetuid(t *testing.T) {
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{Error: &rpcError{Code: codeUnknownNetuid, Message: "unknown netuid"}}
	})
	defer server.Close()

	client := dialTest(t, server)
	_, err := client.SubnetPrice(context.Background(), 9999)
	if err == nil {
		t.Fatalf("expected error")
	}
	if KindOf(err) != KindFatal {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
}

func TestWSClientAwaitTimeoutIsNotAnError(t *testing.T) {
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		// Never answer the await call inside the wait budget.
		time.Sleep(200 * time.Millisecond)
		return rpcResponse{Result: result(true)}
	})
	defer server.Close()

	client := dialTest(t, server)
	included, err := client.AwaitInclusion(context.Background(), "0xabc", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitInclusion returned error: %v", err)
	}
	if included {
		t.Fatalf("expected timeout to report not included")
	}
}

func TestWSClientMetagraphHotkeys(t *testing.T) {
	server := fakeGateway(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{Result: result([]string{"5A", "5B"})}
	})
	defer server.Close()

	client := dialTest(t, server)
	hotkeys, err := client.MetagraphHotkeys(context.Background(), 117)
	if err != nil {
		t.Fatalf("MetagraphHotkeys returned error: %v", err)
	}
	if len(hotkeys) != 2 || hotkeys[0] != "5A" {
		t.Fatalf("unexpected hotkeys: %v", hotkeys)
	}
}
