// Package logger 提供统一的日志工具
//
// 对外保持 Debug/Info/Warn/Error 的 printf 风格接口，底层使用 zap，
// 可选通过 lumberjack 输出到滚动日志文件。
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// Options 日志配置
type Options struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
	// JSON 控制台输出是否使用 JSON 格式
	JSON bool `mapstructure:"json" yaml:"json"`
	// File 日志文件路径，为空时不写文件
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultOptions 默认日志配置
func DefaultOptions() Options {
	return Options{
		Level:      "INFO",
		Console:    true,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// Logger 日志记录器
type Logger struct {
	mu    sync.RWMutex
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
	file  *lumberjack.Logger
}

// 全局默认 logger
var defaultLogger = New(DefaultOptions())

// New 创建新的 Logger 实例
func New(opts Options) *Logger {
	l := &Logger{level: zap.NewAtomicLevelAt(ParseLevel(opts.Level).zapLevel())}
	l.build(opts)
	return l
}

// NewNop 创建不输出任何内容的 Logger（测试用）
func NewNop() *Logger {
	l := &Logger{level: zap.NewAtomicLevel()}
	l.base = zap.NewNop()
	l.sugar = l.base.Sugar()
	return l
}

// FromZap 包装已有的 zap.Logger
func FromZap(z *zap.Logger) *Logger {
	l := &Logger{level: zap.NewAtomicLevel(), base: z}
	l.sugar = z.Sugar()
	return l
}

func (l *Logger) build(opts Options) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if opts.Console {
		var enc zapcore.Encoder
		if opts.JSON {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), l.level))
	}
	if opts.File != "" {
		// 文件始终使用 JSON，便于后续检索
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(l.file), l.level))
	}

	var base *zap.Logger
	if len(cores) == 0 {
		base = zap.NewNop()
	} else {
		base = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	}
	l.base = base
	l.sugar = base.Sugar()
}

// Init 使用指定配置重建默认 logger
func Init(opts Options) {
	next := New(opts)
	old := defaultLogger
	defaultLogger = next
	zap.ReplaceGlobals(next.base)
	if old != nil {
		_ = old.Close()
	}
}

// Default 获取默认 logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault 替换默认 logger（测试用）
func SetDefault(l *Logger) {
	defaultLogger = l
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Zap 返回底层 *zap.Logger，用于输出结构化字段
func (l *Logger) Zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	s := l.sugar
	l.mu.RUnlock()

	switch level {
	case DEBUG:
		s.Debugf(format, args...)
	case INFO:
		s.Infof(format, args...)
	case WARN:
		s.Warnf(format, args...)
	default:
		s.Errorf(format, args...)
	}
}

// Debug 输出 DEBUG 级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info 输出 INFO 级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn 输出 WARN 级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error 输出 ERROR 级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// LogEvent 记录带分类的事件日志
func (l *Logger) LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	status := "OK"
	if !ok {
		status = "NG"
	}

	msg := fmt.Sprintf("%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
	if ok {
		l.log(INFO, "%s", msg)
	} else {
		l.log(ERROR, "%s", msg)
	}
}

// Sync 刷新缓冲
func (l *Logger) Sync() {
	_ = l.Zap().Sync()
}

// Close 关闭 logger，释放资源
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.base.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// 包级别便捷函数
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	defaultLogger.LogEvent(category, ok, elapsedMs, detail)
}

// L 返回默认 logger 的 *zap.Logger
func L() *zap.Logger { return defaultLogger.Zap() }

// Sync 刷新默认 logger
func Sync() { defaultLogger.Sync() }
