package logger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerFieldsAndSource(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	ctx := context.Background()
	l.Info(ctx, "observation processed", String("key", "abc"), Int64("impressions", 40), Error(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["key"] != "abc" {
		t.Errorf("expected key field, got %v", fields["key"])
	}
	if fields["error"] != "boom" {
		t.Errorf("expected error field, got %v", fields["error"])
	}
	src, _ := fields["source"].(string)
	if !strings.Contains(src, "logger_test.go:") {
		t.Errorf("expected source to point at this file, got %q", src)
	}
}

func TestLoggerNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core)).Named("worker").Named("worker-1")

	l.Warn(context.Background(), "slow fetch")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "worker.worker-1" {
		t.Errorf("unexpected logger name %q", entries[0].LoggerName)
	}
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		if err := SetLevelString(in); err != nil {
			t.Fatalf("SetLevelString(%q) returned %v", in, err)
		}
		if Level() != want {
			t.Errorf("SetLevelString(%q): level %v, want %v", in, Level(), want)
		}
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
