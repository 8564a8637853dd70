// internal/logger/logger_test.go
//
// Verifies the daily JSON file sink and level filtering.

package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewWritesDailyJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New(Options{Dir: dir, Level: "warn", Now: func() time.Time { return day }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("dropped", "k", 1)
	log.Warnw("kept", "tenant", "acme")
	_ = log.Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "2026-03-14.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want only the warn line:\n%s", len(lines), raw)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["level"] != "warn" || rec["tenant"] != "acme" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir(), Level: "loud"}); err == nil {
		t.Fatal("unknown level accepted")
	}
}
