package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestNewSlogServiceLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Info("stream started", LogFields{"topic": "records"})

	out := buf.String()
	if !strings.Contains(out, "stream started") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "records") {
		t.Errorf("output missing field value: %s", out)
	}
}

func TestNewSlogServiceLoggerNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a nil logger")
		}
	}()
	NewSlogServiceLogger(nil)
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	child := logger.With(LogFields{"component": "dispatcher"})
	child.Info("running", nil)

	if !strings.Contains(buf.String(), "dispatcher") {
		t.Errorf("output missing inherited field: %s", buf.String())
	}
}

func TestErrorIncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Error("publish failed", errors.New("broker gone"), LogFields{"topic": "records"})

	out := buf.String()
	if !strings.Contains(out, "broker gone") {
		t.Errorf("output missing error: %s", out)
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	service := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	adapter := NewWatermillAdapter(service)
	adapter.Info("publisher ready", watermill.LogFields{"system": "kafka"})
	adapter.With(watermill.LogFields{"topic": "records"}).Debug("ignored at info level", nil)

	out := buf.String()
	if !strings.Contains(out, "publisher ready") || !strings.Contains(out, "kafka") {
		t.Errorf("adapter output incomplete: %s", out)
	}
}
