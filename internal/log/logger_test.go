package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/ethresponder/internal/config"
)

func TestNewInvalid(t *testing.T) {
	tests := []config.LogConfig{
		{Level: "verbose", Format: "json"},
		{Level: "info", Format: "xml"},
		{Level: "info", Format: "json", Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}}},
	}
	for _, cfg := range tests {
		if _, err := New(cfg, &bytes.Buffer{}); err == nil {
			t.Errorf("New(%+v) should return error, got nil", cfg)
		}
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithField("protocol", "arp").Info("reply sent")
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", lines[0], err)
	}
	if rec["msg"] != "reply sent" || rec["protocol"] != "arp" || rec["level"] != "info" {
		t.Errorf("Unexpected record: %v", rec)
	}
	if l.IsDebugEnabled() {
		t.Error("Expected debug to be disabled at info level")
	}
}

func TestPatternOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:   "debug",
		Format:  "pattern",
		Pattern: "[%level] %field %msg\n",
	}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithFields(map[string]interface{}{"b": 2, "a": "x"}).Debug("frame dropped")

	if got, want := buf.String(), "[debug] a=x,b=2 frame dropped\n"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFormatterTime(t *testing.T) {
	f := &formatter{pattern: "%time %msg", time: "15:04"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "hello",
		Data:    logrus.Fields{},
	}
	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "03:04 hello" {
		t.Errorf("Expected %q, got %q", "03:04 hello", out)
	}
	if getCaller(entry) != "unknown" || getFunc(entry) != "unknown" {
		t.Error("Expected unknown caller without caller reporting")
	}
	if getGoroutineID() == "unknown" {
		t.Error("Expected a goroutine id")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responder.log")
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:  "info",
		Format: "text",
		Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{
			Enabled:  true,
			Path:     path,
			Rotation: config.RotationConfig{MaxSizeMB: 1},
		}},
	}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithError(os.ErrClosed).Warn("driver closed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "driver closed") {
		t.Errorf("Expected file to contain message, got %q", data)
	}
	if !strings.Contains(buf.String(), "driver closed") {
		t.Errorf("Expected stdout writer to contain message, got %q", buf.String())
	}
}

func TestInitReplacesLogger(t *testing.T) {
	before := GetLogger()
	if before == nil {
		t.Fatal("Expected a default logger before Init")
	}
	if err := Init(config.LogConfig{Level: "debug", Format: "text"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { SetLogger(before) })

	if !GetLogger().IsDebugEnabled() {
		t.Error("Expected debug logger after Init")
	}
}

func fileLog(path string) config.LogConfig {
	return config.LogConfig{
		Level:   "info",
		Format:  "text",
		Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true, Path: path}},
	}
}

func TestInitSwitchesLogFile(t *testing.T) {
	before := GetLogger()
	t.Cleanup(func() {
		mu.Lock()
		prev := installed
		logger, installed = before, nil
		mu.Unlock()
		if prev != nil {
			prev.Close()
		}
	})

	dir := t.TempDir()
	first, second := filepath.Join(dir, "first.log"), filepath.Join(dir, "second.log")

	if err := Init(fileLog(first)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	old := GetLogger()
	old.Info("before reload")

	if err := Init(fileLog(second)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	GetLogger().Info("after reload")

	data, _ := os.ReadFile(first)
	if !strings.Contains(string(data), "before reload") || strings.Contains(string(data), "after reload") {
		t.Errorf("Unexpected first log file contents %q", data)
	}
	data, _ = os.ReadFile(second)
	if !strings.Contains(string(data), "after reload") || strings.Contains(string(data), "before reload") {
		t.Errorf("Unexpected second log file contents %q", data)
	}
}

func TestConsoleOnlyOutput(t *testing.T) {
	var buf bytes.Buffer
	out, err := newOutput(&buf, config.FileOutputConfig{})
	if err != nil {
		t.Fatalf("newOutput failed: %v", err)
	}
	if out.Writer != &buf || out.file != nil {
		t.Errorf("Expected the console writer alone, got %+v", out)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close without a file should succeed: %v", err)
	}
}
