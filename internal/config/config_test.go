package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sheet:\n  spreadsheet_id: abc123\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Sheet.Name != "Email Log" {
		t.Errorf("sheet name = %q", cfg.Sheet.Name)
	}
	if cfg.Ingest.BatchLimit != 10 {
		t.Errorf("batch limit = %d, want 10", cfg.Ingest.BatchLimit)
	}
	if cfg.ItemDelay() != 500*time.Millisecond {
		t.Errorf("item delay = %v, want 500ms", cfg.ItemDelay())
	}
	if cfg.Ingest.Query != "is:unread in:inbox" {
		t.Errorf("query = %q", cfg.Ingest.Query)
	}
	if cfg.State.WatermarkFile == "" || cfg.State.HistoryDB == "" {
		t.Error("state paths not defaulted")
	}
}

func TestLoadRequiresSpreadsheetID(t *testing.T) {
	if _, err := Load(writeConfig(t, "sheet:\n  name: Log\n")); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sheet:
  spreadsheet_id: abc123
  name: Inbox Feed
ingest:
  batch_limit: 20
  item_delay_ms: 100
serve:
  poll_interval: 90s
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sheet.Name != "Inbox Feed" {
		t.Errorf("sheet name = %q", cfg.Sheet.Name)
	}
	if cfg.Ingest.BatchLimit != 20 {
		t.Errorf("batch limit = %d", cfg.Ingest.BatchLimit)
	}
	if cfg.PollInterval() != 90*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
}

func TestPollIntervalBadValueDefaults(t *testing.T) {
	var cfg Config
	cfg.Serve.PollInterval = "soon"
	if cfg.PollInterval() != 5*time.Minute {
		t.Errorf("poll interval = %v, want 5m", cfg.PollInterval())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	var cfg Config
	cfg.Sheet.SpreadsheetID = "abc123"
	cfg.Ingest.BatchLimit = 15
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Sheet.SpreadsheetID != "abc123" || loaded.Ingest.BatchLimit != 15 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}
