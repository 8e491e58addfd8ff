package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"ERROR":   ERROR,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

func TestLogEventLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core))

	l.LogEvent("OCR", true, 12.5, "识别到 2 个文本")
	l.LogEvent("TAP", false, 3, "点击失败")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("期望 2 条日志, 实际 %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel {
		t.Errorf("成功事件应为 INFO, 实际 %v", entries[0].Level)
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Errorf("失败事件应为 ERROR, 实际 %v", entries[1].Level)
	}
	if !strings.Contains(entries[1].Message, "NG") {
		t.Errorf("失败事件应包含 NG: %s", entries[1].Message)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotap.log")
	l := New(Options{Level: "debug", File: path, MaxSizeMB: 1})

	l.Info("写入文件 %d", 42)
	if err := l.Close(); err != nil {
		t.Fatalf("关闭 logger 失败: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "写入文件 42") {
		t.Errorf("日志文件内容不正确: %s", data)
	}
}

func TestLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filtered.log")
	l := New(Options{Level: "warn", File: path, MaxSizeMB: 1})

	l.Debug("不应出现")
	l.Warn("应出现")
	_ = l.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "不应出现") {
		t.Error("DEBUG 日志不应写入 WARN 级别的 logger")
	}
	if !strings.Contains(string(data), "应出现") {
		t.Error("WARN 日志应写入")
	}
}
