package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"arm-pricer-go/monitor/logschema"
)

// Logger 封装 zap，附带定价流程的事件日志。
type Logger struct {
	*zap.Logger
	config Config
	files  []io.Closer
}

// Config 日志配置
type Config struct {
	Level      string   // debug, info, warn, error
	Outputs    []string // stdout, stderr, file
	OutputFile string   // Outputs 含 file 时写入
	ErrorFile  string   // 错误日志单独文件
	Format     string   // json 或 console，文件总是 json
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 按 Outputs 组装 tee core。命令行工具把日志写到 stderr，stdout 留给表格输出。
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []string{"stdout"}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	streamEnc := zapcore.NewJSONEncoder(encCfg)
	if cfg.Format == "console" {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		streamEnc = zapcore.NewConsoleEncoder(devCfg)
	}

	l := &Logger{config: cfg}
	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(streamEnc, zapcore.Lock(os.Stdout), level))
		case "stderr":
			cores = append(cores, zapcore.NewCore(streamEnc, zapcore.Lock(os.Stderr), level))
		case "file":
			if cfg.OutputFile == "" {
				return nil, l.closeAll(errors.New("log output file requires outputFile"))
			}
			f, err := l.open(cfg.OutputFile)
			if err != nil {
				return nil, err
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), f, level))
		default:
			return nil, l.closeAll(fmt.Errorf("unknown log output %q", out))
		}
	}
	if cfg.ErrorFile != "" {
		f, err := l.open(cfg.ErrorFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), f, zapcore.ErrorLevel))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return l, nil
}

func (l *Logger) open(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, l.closeAll(fmt.Errorf("open log file %s: %w", path, err))
	}
	l.files = append(l.files, f)
	return zapcore.Lock(f), nil
}

func (l *Logger) closeAll(cause error) error {
	errs := []error{cause}
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// Wrap 包装已有的 zap.Logger，测试中常用。
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l, config: DefaultConfig()}
}

// WithFields 添加字段返回新的 logger，文件句柄仍归原 logger 管理。
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(toZap(fields)...), config: l.config}
}

// Event 记录定价流程事件，字段按 logschema 校验；不合规时照常输出并带上 schemaError。
func Event(l *zap.Logger, event string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	zf := toZap(fields)
	if err := logschema.Validate(event, fields); err != nil {
		zf = append(zf, zap.String("schemaError", err.Error()))
	}
	zf = append(zf, zap.String("event", event))
	l.Info(event, zf...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	l.Error("error_event", append(toZap(context), zap.Error(err))...)
}

// Risk 需要关注但不中断流程的事件，例如借贷边界矛盾。字段同样按 logschema 校验。
func Risk(l *zap.Logger, event string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	zf := toZap(fields)
	if err := logschema.Validate(event, fields); err != nil {
		zf = append(zf, zap.String("schemaError", err.Error()))
	}
	l.Warn("risk_event", append(zf, zap.String("event", event))...)
}

// Close 刷盘并关闭日志文件。
func (l *Logger) Close() error {
	err := l.Sync()
	errs := []error{err}
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// toZap 按 key 排序，输出顺序稳定。
func toZap(fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys)+2)
	for _, k := range keys {
		out = append(out, field(k, fields[k]))
	}
	return out
}

// field 价格类型实现了 Stringer，按字符串输出以免被序列化成空对象。
func field(k string, v interface{}) zap.Field {
	switch x := v.(type) {
	case error:
		return zap.NamedError(k, x)
	case time.Duration:
		return zap.Duration(k, x)
	case fmt.Stringer:
		return zap.Stringer(k, x)
	default:
		return zap.Any(k, v)
	}
}
