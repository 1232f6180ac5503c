package transitions

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
)

type glogCompatLogger struct {
	logger glog.Logger
}

func (l glogCompatLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogCompatLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogCompatLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogCompatLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogCompatLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogCompatLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogCompatLogger) WithContext(ctx context.Context) Logger {
	if l.logger == nil {
		return NewFmtLogger(nil).WithContext(ctx)
	}
	return glogCompatLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogCompatLogger) WithFields(fields map[string]any) Logger {
	if l.logger == nil {
		return NewFmtLogger(nil).WithFields(fields)
	}
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogCompatLogger{logger: fl.WithFields(fields)}
	}
	return l
}

func TestLoggerCompatibilityBaseLoggerAndFmtFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	logger := glogCompatLogger{logger: base}

	m, err := NewMachine(walkConfig(), nil, nil, WithLogger(logger))
	if err != nil {
		t.Fatalf("new machine with base logger: %v", err)
	}
	model := NewModel()
	if err := m.Bind(model); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := m.Trigger(context.Background(), model, "advance"); err != nil {
		t.Fatalf("trigger with base logger: %v", err)
	}
	logged := buf.String()
	if strings.TrimSpace(logged) == "" {
		t.Fatalf("expected go-logger BaseLogger output")
	}
	if !strings.Contains(logged, "trigger") {
		t.Fatalf("expected structured correlation fields in BaseLogger output, got %q", logged)
	}

	fallback, err := NewMachine(walkConfig(), nil, nil, WithLogger(nil))
	if err != nil {
		t.Fatalf("new machine with nil logger: %v", err)
	}
	if _, ok := fallback.logger.(*FmtLogger); !ok {
		t.Fatalf("expected nil logger to normalize to FmtLogger fallback")
	}
	model2 := NewModel()
	if err := fallback.Bind(model2); err != nil {
		t.Fatalf("bind fallback: %v", err)
	}
	if _, err := fallback.Trigger(context.Background(), model2, "advance"); err != nil {
		t.Fatalf("trigger with fallback logger: %v", err)
	}
}

func TestFmtLoggerWritesLevelAndSortedFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFmtLogger(buf)

	logger.WithFields(map[string]any{"machine": "m1", "attempt": 2}).Info("transition committed source=%s", "A")

	line := buf.String()
	if !strings.Contains(line, "INFO") {
		t.Fatalf("missing level tag: %q", line)
	}
	if !strings.Contains(line, "transition committed source=A") {
		t.Fatalf("missing formatted message: %q", line)
	}
	if !strings.Contains(line, "attempt=2 machine=m1") {
		t.Fatalf("fields should be sorted by key: %q", line)
	}
}

func TestFmtLoggerNilReceiverIsSafe(t *testing.T) {
	var logger *FmtLogger
	if got := logger.WithContext(context.Background()); got == nil {
		t.Fatal("nil receiver should produce a usable logger")
	}
	if got := logger.WithFields(map[string]any{"k": "v"}); got == nil {
		t.Fatal("nil receiver should produce a usable logger")
	}
}
