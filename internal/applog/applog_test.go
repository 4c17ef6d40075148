package applog_test

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/display/internal/applog"
)

func TestDailyRotator_CreatesFileOnFirstWrite(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, "", 7)
	defer r.Close()

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}

	today := time.Now().Format("2006-01-02")
	name := filepath.Join(dir, "display-"+today+".log")
	if _, err := os.Stat(name); err != nil {
		t.Errorf("expected log file %q to exist: %v", name, err)
	}
}

func TestDailyRotator_RotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, "viewer", 7)
	defer r.Close()

	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetNow(func() time.Time { return day1 })
	if _, err := r.Write([]byte("day1\n")); err != nil {
		t.Fatal(err)
	}

	r.SetNow(func() time.Time { return day1.AddDate(0, 0, 1) })
	if _, err := r.Write([]byte("day2\n")); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "viewer-*.log"))
	if len(matches) != 2 {
		t.Errorf("expected 2 log files after rotation, got %d", len(matches))
	}
	if got, want := r.FileName(day1), filepath.Join(dir, "viewer-2026-01-01.log"); got != want {
		t.Errorf("FileName: got %q want %q", got, want)
	}
}

func TestDailyRotator_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, "", 3)

	// A file from another prefix is never pruned.
	other := filepath.Join(dir, "server-2025-12-01.log")
	os.WriteFile(other, nil, 0644)

	for i := 1; i <= 5; i++ {
		day := i
		r.SetNow(func() time.Time { return time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC) })
		if _, err := r.Write([]byte("entry\n")); err != nil {
			t.Fatal(err)
		}
	}
	r.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "display-*.log"))
	if len(matches) != 3 {
		t.Errorf("expected 3 log files after pruning, got %d: %v", len(matches), matches)
	}
	for _, name := range matches {
		base := filepath.Base(name)
		if base == "display-2026-01-01.log" || base == "display-2026-01-02.log" {
			t.Errorf("old file %q should have been pruned", base)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated log file removed: %v", err)
	}
}

func TestInit_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "newlogs")
	_, closer, err := applog.Init(applog.InitConfig{LogDir: dir, LogLevel: "info"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected log dir %q to be created: %v", dir, err)
	}
}

func TestInit_ParsesLogLevel(t *testing.T) {
	cases := []struct {
		input string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},     // empty defaults to info
		{"WARN", slog.LevelWarn}, // case insensitive
	}
	for _, tc := range cases {
		got := applog.ParseLevel(tc.input)
		if got != tc.level {
			t.Errorf("ParseLevel(%q): got %v want %v", tc.input, got, tc.level)
		}
	}
}

func TestInit_StdlibLogRedirected(t *testing.T) {
	dir := t.TempDir()
	_, closer, err := applog.Init(applog.InitConfig{LogDir: dir, LogLevel: "info"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	log.Print("stdlib-log-test-marker")

	today := time.Now().Format("2006-01-02")
	name := filepath.Join(dir, "display-"+today+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "stdlib-log-test-marker") {
		t.Errorf("stdlib log output not found in log file; file contents: %q", string(data))
	}
}

func TestInit_ConsoleJSON(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := applog.Init(applog.InitConfig{LogDir: dir, Format: "json", Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("published", "bytes", 12)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &rec); err != nil {
		t.Fatalf("console output is not one JSON record: %v: %q", err, console.String())
	}
	if rec["msg"] != "published" || rec["bytes"] != 12.0 {
		t.Errorf("unexpected record: %v", rec)
	}
}
