// Package state persists mailsheet's bookkeeping between runs: the
// watermark file that bounds which mail is considered new, and the
// run history database.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Watermark persists the "last processed" timestamp to a JSON file.
// The file holds a single object with last_processed and updated_at
// fields, both RFC 3339. A missing or unreadable file is a valid
// state meaning "no watermark yet".
type Watermark struct {
	path string
}

type watermarkRecord struct {
	LastProcessed string `json:"last_processed"`
	UpdatedAt     string `json:"updated_at"`
}

// NewWatermark creates a watermark store backed by the file at path.
func NewWatermark(path string) *Watermark {
	return &Watermark{path: path}
}

// Load returns the persisted watermark. The second return is false when
// no usable watermark exists; Load never fails.
func (w *Watermark) Load() (time.Time, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return time.Time{}, false
	}
	var rec watermarkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, rec.LastProcessed)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Save persists t as the new watermark. A zero t stamps the current
// time instead. The write goes through a temp file and rename so a
// concurrent reader never sees a partial record.
func (w *Watermark) Save(t time.Time) error {
	now := time.Now().UTC()
	if t.IsZero() {
		t = now
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(watermarkRecord{
		LastProcessed: t.UTC().Format(time.RFC3339),
		UpdatedAt:     now.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".watermark-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}
