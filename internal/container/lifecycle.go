package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager 按注册顺序启动，逆序停止。只停止已经启动成功的组件。
type LifecycleManager struct {
	logger *zap.Logger

	mu         sync.Mutex
	components []namedComponent
	// started 前 started 个组件已启动
	started int
}

func NewLifecycleManager(logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{logger: logger}
}

func (m *LifecycleManager) Register(name string, component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: component})
}

// StartAll 任一组件启动失败时回滚已启动的组件。
// 组件的 Start/Stop/Health 都在锁外调用，/healthz 请求不会和停止互相等待。
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	comps := append([]namedComponent(nil), m.components...)
	from := m.started
	m.mu.Unlock()

	for i := from; i < len(comps); i++ {
		c := comps[i]
		if err := c.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start %s: %w", c.name, err), m.StopAll())
		}
		m.mu.Lock()
		m.started = i + 1
		m.mu.Unlock()
		m.logger.Debug("component started", zap.String("component", c.name))
	}
	return nil
}

func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	comps := append([]namedComponent(nil), m.components[:m.started]...)
	m.started = 0
	m.mu.Unlock()

	var errs []error
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", comps[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 汇总所有不健康的组件。
func (m *LifecycleManager) CheckHealth() error {
	m.mu.Lock()
	comps := append([]namedComponent(nil), m.components...)
	m.mu.Unlock()

	var errs []error
	for _, c := range comps {
		if err := c.Health(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// metricsServer 暴露 /metrics 和 /healthz。
// 端口在 Start 中同步监听，地址被占用时启动直接失败。
type metricsServer struct {
	addr    string
	metrics http.Handler
	health  func() error
	logger  *zap.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func (s *metricsServer) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/healthz", s.serveHealth)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *metricsServer) serveHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health != nil {
		if err := s.health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

// Addr 实际监听地址，配置为 :0 时有用。
func (s *metricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *metricsServer) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *metricsServer) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return errors.New("not serving")
	}
	return nil
}

// Hook 用函数组装的组件，例如配置热更新。
type Hook struct {
	OnStart func(ctx context.Context) error
	OnStop  func() error
}

func (h Hook) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h Hook) Stop() error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop()
}

func (h Hook) Health() error { return nil }
