package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Head 新区块头的精简信息。
type Head struct {
	Number    uint64
	Hash      string
	Timestamp uint64
}

type HeadSubscriberConfig struct {
	URL          string
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// 断线重连的退避区间
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Dialer         *websocket.Dialer
	Logger         *zap.Logger
}

// HeadSubscriber 通过 eth_subscribe newHeads 订阅新区块，用于按区块触发定价。
type HeadSubscriber struct {
	cfg    HeadSubscriberConfig
	logger *zap.Logger
}

func NewHeadSubscriber(cfg HeadSubscriberConfig) (*HeadSubscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket url required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HeadSubscriber{cfg: cfg, logger: cfg.Logger.With(zap.String("component", "head-subscriber"))}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number    string `json:"number"`
			Hash      string `json:"hash"`
			Timestamp string `json:"timestamp"`
		} `json:"result"`
	} `json:"params,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Run 持续推送新区块，断线后按退避重连，直到 ctx 结束。
// out 满时丢弃区块，不阻塞读取。
func (s *HeadSubscriber) Run(ctx context.Context, out chan<- Head) error {
	backoff := s.cfg.InitialBackoff
	for {
		err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("head subscription dropped, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *HeadSubscriber) session(ctx context.Context, out chan<- Head) error {
	conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	if err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	var ack rpcMessage
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read subscribe ack: %w", err)
	}
	if ack.Error != nil {
		return fmt.Errorf("subscribe rejected: %s", ack.Error.Message)
	}
	s.logger.Info("subscribed to new heads")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}
		head, err := parseHead(msg)
		if err != nil {
			s.logger.Warn("bad head notification", zap.Error(err))
			continue
		}
		select {
		case out <- head:
		default:
			s.logger.Warn("head channel full, dropping", zap.Uint64("block", head.Number))
		}
	}
}

func parseHead(msg rpcMessage) (Head, error) {
	r := msg.Params.Result
	num, err := hexutil.DecodeUint64(r.Number)
	if err != nil {
		return Head{}, fmt.Errorf("block number %q: %w", r.Number, err)
	}
	h := Head{Number: num, Hash: r.Hash}
	if r.Timestamp != "" {
		if ts, err := hexutil.DecodeUint64(r.Timestamp); err == nil {
			h.Timestamp = ts
		}
	}
	return h, nil
}
