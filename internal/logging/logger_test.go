package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"", log.InfoLevel},
		{"debug", log.DebugLevel},
		{" WARN ", log.WarnLevel},
		{"error", log.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestInitWriterFiltersByLevel(t *testing.T) {
	t.Cleanup(func() { Logger = nil })

	var buf bytes.Buffer
	if err := InitWriter(&buf, "warn"); err != nil {
		t.Fatal(err)
	}
	Info("hidden")
	Warn("shown", "query", "travel")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "query=travel") {
		t.Errorf("missing warn line: %q", out)
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	Logger = nil
	Info("x")
	Debug("x")
	Warn("x")
	Error("x")
	if WithPrefix("p") != nil {
		t.Error("expected nil prefix logger before Init")
	}
}

func TestInitCreatesDatedFile(t *testing.T) {
	t.Cleanup(func() {
		Close()
		Logger = nil
	})

	dir := t.TempDir()
	if err := Init(Options{Dir: dir, Level: "debug", Version: "test"}); err != nil {
		t.Fatal(err)
	}
	Debug("paging", "dir", "forward")
	Close()

	name := filepath.Join(dir, "newsfeed-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "newsfeed started") || !strings.Contains(string(data), "dir=forward") {
		t.Errorf("unexpected log contents: %q", data)
	}
}

func TestOpenEventLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	f, err := OpenEventLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !strings.HasPrefix(filepath.Base(f.Name()), "events-") {
		t.Errorf("unexpected name %s", f.Name())
	}
}
