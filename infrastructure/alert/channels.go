package alert

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LogChannel 把告警写入 zap 日志
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{
		logger: logger.Named("alert"),
		name:   name,
	}
}

// Send 按级别写日志，arm 已在 Fields 中。
func (c *LogChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("alertEvent", alert.Event), zap.Time("alertTime", alert.Timestamp))
	for _, k := range sortedKeys(alert.Fields) {
		fields = append(fields, zap.Any(k, alert.Fields[k]))
	}
	switch alert.Level {
	case LevelCritical, LevelError:
		c.logger.Error(alert.Message, fields...)
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

// ConsoleChannel 彩色输出到终端，默认 stderr，不和 stdout 上的工具输出混在一起。
type ConsoleChannel struct {
	name string
	out  io.Writer
}

func NewConsoleChannel(name string) *ConsoleChannel {
	return &ConsoleChannel{name: name, out: os.Stderr}
}

func (c *ConsoleChannel) Send(alert Alert) error {
	_, err := fmt.Fprintln(c.out, formatConsole(alert))
	return err
}

func formatConsole(alert Alert) string {
	colorReset := "\033[0m"
	colorCode := colorReset
	switch alert.Level {
	case LevelInfo:
		colorCode = "\033[32m" // 绿色
	case LevelWarning:
		colorCode = "\033[33m" // 黄色
	case LevelError:
		colorCode = "\033[31m" // 红色
	case LevelCritical:
		colorCode = "\033[35m" // 紫色
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %s", colorCode, alert.Level, colorReset,
		alert.Timestamp.Format("2006-01-02 15:04:05"))
	if alert.ARM != "" {
		fmt.Fprintf(&b, " %s", alert.ARM)
	}
	fmt.Fprintf(&b, " - %s", alert.Message)
	if len(alert.Fields) > 0 {
		b.WriteString(" |")
		for _, k := range sortedKeys(alert.Fields) {
			if k == "arm" {
				continue
			}
			fmt.Fprintf(&b, " %s=%v", k, alert.Fields[k])
		}
	}
	return b.String()
}

// Name 返回通道名称
func (c *ConsoleChannel) Name() string {
	return c.name
}

// MockChannel 记录告警，用于测试
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
	mu        sync.Mutex
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
