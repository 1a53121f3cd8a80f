package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHeadSubscriber(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" || len(req.Params) != 1 || req.Params[0] != "newHeads" {
			t.Errorf("unexpected subscribe request %+v", req)
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0xsub"})
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]any{
				"subscription": "0xsub",
				"result":       map[string]any{"number": "0x10", "hash": "0xabc", "timestamp": "0x5"},
			},
		})
		// 保持连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	sub, err := NewHeadSubscriber(HeadSubscriberConfig{URL: "ws" + strings.TrimPrefix(ts.URL, "http")})
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	heads := make(chan Head, 1)
	errc := make(chan error, 1)
	go func() { errc <- sub.Run(ctx, heads) }()

	select {
	case h := <-heads:
		if h.Number != 16 || h.Hash != "0xabc" || h.Timestamp != 5 {
			t.Fatalf("unexpected head %+v", h)
		}
	case <-ctx.Done():
		t.Fatalf("no head received")
	}
	cancel()
	if err := <-errc; err == nil {
		t.Fatalf("expected context error")
	}
}

func TestHeadSubscriberRequiresURL(t *testing.T) {
	if _, err := NewHeadSubscriber(HeadSubscriberConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
