package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Test", "hidden %d", 1)
	l.Warn("Test", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO message written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] [Test] shown 2") {
		t.Errorf("missing WARN line: %q", out)
	}
}

func TestSilentDropsErrors(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Test", "nope")
	if buf.Len() != 0 {
		t.Fatalf("SILENT logger wrote %q", buf.String())
	}
}

func TestModuleLogger(t *testing.T) {
	var buf bytes.Buffer
	m := New(DEBUG, &buf, false).ForModule("Processor")
	m.Debugf("frame %d", 7)
	if !strings.Contains(buf.String(), "[DEBUG] [Processor] frame 7") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestColorPrefix(t *testing.T) {
	var buf bytes.Buffer
	New(INFO, &buf, true).Info("", "hello")
	if !strings.Contains(buf.String(), levelColors[INFO]+"[INFO]"+resetColor+" hello") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"Error", ERROR, false},
		{"none", SILENT, false},
		{"loud", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var l LogLevel
	if err := l.UnmarshalText([]byte("warn")); err != nil || l != WARN {
		t.Fatalf("UnmarshalText = %v, %v", l, err)
	}
	if err := l.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatal("expected error for bogus level")
	}
}
