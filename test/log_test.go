package test

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/painlessmesh/gomesh/pkg/mesh/definition"
)

func newCapturingLogger(buf *bytes.Buffer) *definition.DefaultLogger {
	return &definition.DefaultLogger{Logger: log.New(buf, "", 0)}
}

func TestDefaultLoggerTagsLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newCapturingLogger(&buf)

	l.Info("node up")
	l.Warnf("neighbor %d unreachable", 7)
	l.Error("dropped frame")

	out := buf.String()
	if !strings.Contains(out, "[INFO]: node up") {
		t.Fatalf("expected INFO line, got %q", out)
	}
	if !strings.Contains(out, "[WARN]: neighbor 7 unreachable") {
		t.Fatalf("expected WARN line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR]: dropped frame") {
		t.Fatalf("expected ERROR line, got %q", out)
	}
}

func TestDefaultLoggerDebugGatedByToggle(t *testing.T) {
	var buf bytes.Buffer
	l := newCapturingLogger(&buf)

	l.Debug("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output before ToggleDebug, got %q", buf.String())
	}

	l.ToggleDebug(true)
	l.Debugf("now visible %d", 1)
	if !strings.Contains(buf.String(), "[DEBUG]: now visible 1") {
		t.Fatalf("expected DEBUG line after ToggleDebug(true), got %q", buf.String())
	}
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	n := definition.NewNoopLogger()
	n.ToggleDebug(true)
	n.Info("ignored")
	n.Debug("ignored")
	n.Error("ignored")
}
