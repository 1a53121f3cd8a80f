package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"arm-pricer-go/internal/retry"
	"arm-pricer-go/reference"
)

const maxBodyBytes = 4 << 20

// RequestObserver 每次 API 调用结束后回调（包含重试），用于指标。
type RequestObserver func(provider string, elapsed time.Duration, err error)

// HTTPConfig 各 HTTP 适配器共用的配置。
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// MinInterval 同一 API 两次请求的最小间隔。
	MinInterval time.Duration
	Retry       retry.Config
	HTTPClient  *http.Client
	Logger      *zap.Logger
	Observer    RequestObserver
}

func applyHTTPDefaults(cfg *HTTPConfig, d HTTPConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = d.MinInterval
	}
	if cfg.Retry.InitialBackoff == 0 && cfg.Retry.MaxRetries == 0 {
		cfg.Retry = d.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// StatusError 非 2xx 响应。
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Code, body)
}

// Unwrap 400/404/422 视为没有路由。
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return reference.ErrQuoteUnavailable
	}
	return nil
}

func isTooManyRequests(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// jsonClient 只对 HTTP 429 重试，其它错误立即返回。
type jsonClient struct {
	name     string
	baseURL  string
	headers  map[string]string
	hc       *http.Client
	limiter  RateLimiter
	retry    retry.Config
	logger   *zap.Logger
	observer RequestObserver
}

func newJSONClient(name string, cfg HTTPConfig, headers map[string]string) *jsonClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &jsonClient{
		name:     name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		headers:  headers,
		hc:       hc,
		limiter:  NewIntervalLimiter(cfg.MinInterval),
		retry:    cfg.Retry,
		logger:   cfg.Logger.With(zap.String("provider", name)),
		observer: cfg.Observer,
	}
}

func (c *jsonClient) get(ctx context.Context, path string, params url.Values, out any) error {
	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, full, nil, out)
}

func (c *jsonClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, data, out)
}

func (c *jsonClient) do(ctx context.Context, method, fullURL string, body []byte, out any) error {
	start := time.Now()
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("rate limited, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
	}
	err := retry.DoVoid(ctx, c.retry, isTooManyRequests, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: limiter: %w", c.name, err)
		}
		return c.once(ctx, method, fullURL, body, out)
	})
	if errors.Is(err, retry.ErrExhausted) {
		err = fmt.Errorf("%s: %w: %w", c.name, reference.ErrRateLimited, err)
	}
	if c.observer != nil {
		c.observer(c.name, time.Since(start), err)
	}
	return err
}

func (c *jsonClient) once(ctx context.Context, method, fullURL string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: c.name, Code: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// parseAmount 解析十进制整数字符串；空值或 0 视为没有报价。
func parseAmount(provider, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s: empty amount: %w", provider, reference.ErrQuoteUnavailable)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", provider, s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%s: zero amount: %w", provider, reference.ErrQuoteUnavailable)
	}
	return v, nil
}
