package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type handlerFunc func(method string, params json.RawMessage) (interface{}, *RPCError)

func newServer(t *testing.T, handle handlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		var raw struct {
			Params json.RawMessage `json:"params"`
		}
		body := new(bytes.Buffer)
		if _, err := body.ReadFrom(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal([]byte(body.String()), &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.Unmarshal([]byte(body.String()), &raw)

		result, rpcErr := handle(req.Method, raw.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCall_Result(t *testing.T) {
	srv := newServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "chain_getInfo" {
			return nil, &RPCError{Code: -32601, Message: "method not found"}
		}
		return map[string]uint64{"height": 77}, nil
	})

	var info struct {
		Height uint64 `json:"height"`
	}
	c := New(srv.URL, 0)
	for i := 0; i < 3; i++ {
		if err := c.Call(context.Background(), "chain_getInfo", nil, &info); err != nil {
			t.Fatalf("Call() error: %v", err)
		}
	}
	if info.Height != 77 {
		t.Errorf("height = %d, want 77", info.Height)
	}
}

func TestCall_RPCError(t *testing.T) {
	srv := newServer(t, func(string, json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -5, Message: "double spend", Data: json.RawMessage(`"ki"`)}
	})

	err := New(srv.URL, 0).Call(context.Background(), "tx_submit", map[string]string{"hex": "00"}, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -5 || rpcErr.Message != "double spend" || string(rpcErr.Data) != `"ki"` {
		t.Errorf("RPCError = %+v", rpcErr)
	}
}

func TestCall_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, 0).Call(context.Background(), "chain_getInfo", nil, nil)
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusBadGateway {
		t.Fatalf("Call() error = %v, want StatusError 502", err)
	}
}

func TestCall_MismatchedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":999,"result":1}`))
	}))
	defer srv.Close()

	if err := New(srv.URL, 0).Call(context.Background(), "chain_getInfo", nil, nil); err == nil {
		t.Fatal("Call() accepted a response for another request")
	}
}

func TestCall_ConnectionRefused(t *testing.T) {
	srv := newServer(t, nil)
	url := srv.URL
	srv.Close()

	if err := New(url, time.Second).Call(context.Background(), "chain_getInfo", nil, nil); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestCall_Cancelled(t *testing.T) {
	srv := newServer(t, func(string, json.RawMessage) (interface{}, *RPCError) {
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(srv.URL, 0).Call(ctx, "chain_getInfo", nil, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
