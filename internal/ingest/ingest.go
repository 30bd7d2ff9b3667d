// Package ingest drives one batch of mail through the pipeline: list
// unread candidates, drop ids the sheet already has, fetch, extract,
// append, mark read, then advance the watermark.
package ingest

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/akarpov/mailsheet/internal/extract"
	"github.com/akarpov/mailsheet/internal/state"
)

// Source is the mailbox side of the pipeline.
type Source interface {
	// ListUnread returns candidate message ids. The since bound is a
	// best-effort optimization; correctness comes from dedup by id.
	ListUnread(ctx context.Context, since time.Time) ([]string, error)

	// Fetch retrieves the full message for an id.
	Fetch(ctx context.Context, id string) (*gmailapi.Message, error)

	// MarkRead acknowledges a message so it is not listed again.
	MarkRead(ctx context.Context, id string) error
}

// Sink is the spreadsheet side of the pipeline.
type Sink interface {
	// ExistingIDs returns the message ids already recorded downstream.
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)

	// Append writes one record as a new row.
	Append(ctx context.Context, rec extract.Record) error
}

// Config bounds a single run.
type Config struct {
	BatchLimit int
	ItemDelay  time.Duration
}

// Summary reports what a run did.
type Summary struct {
	Listed    int
	Skipped   int
	Processed int
	Newest    time.Time
}

// Controller runs the ingestion pipeline. It is strictly sequential:
// one message at a time with a fixed delay between items.
type Controller struct {
	source    Source
	sink      Sink
	watermark *state.Watermark
	cfg       Config
	logger    *log.Logger
}

// New creates a controller.
func New(source Source, sink Sink, watermark *state.Watermark, cfg Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		source:    source,
		sink:      sink,
		watermark: watermark,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes one batch. Only setup faults (listing candidates,
// reading the dedup index) are returned as errors; per-item faults are
// logged and skipped so one bad message never aborts the batch. A
// message is marked read only after its row is appended, so a crash
// between the two re-reads the message next run and the dedup index
// drops it: a bounded duplicate skip, never data loss.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	since, _ := c.watermark.Load()

	ids, err := c.source.ListUnread(ctx, since)
	if err != nil {
		return summary, err
	}
	summary.Listed = len(ids)
	if len(ids) == 0 {
		c.logger.Info("no unread messages")
		return summary, nil
	}

	index, err := c.sink.ExistingIDs(ctx)
	if err != nil {
		return summary, err
	}
	c.logger.Info("run started", "candidates", len(ids), "already_recorded", len(index))

	// Skips count against the batch cap, matching the listing order.
	if c.cfg.BatchLimit > 0 && len(ids) > c.cfg.BatchLimit {
		ids = ids[:c.cfg.BatchLimit]
	}

	for _, id := range ids {
		if _, seen := index[id]; seen {
			summary.Skipped++
			c.logger.Debug("already recorded, skipping", "id", id)
			continue
		}

		msg, err := c.source.Fetch(ctx, id)
		if err != nil || msg == nil {
			c.logger.Warn("failed to fetch message", "id", id, "error", err)
			continue
		}

		rec := extract.FromMessage(msg)

		if err := c.sink.Append(ctx, rec); err != nil {
			c.logger.Warn("failed to append row", "id", id, "subject", rec.Subject, "error", err)
			c.pause()
			continue
		}

		if err := c.source.MarkRead(ctx, id); err != nil {
			// The row is committed; leaving the message unread only
			// costs a dedup skip next run.
			c.logger.Warn("failed to mark read", "id", id, "error", err)
		}

		summary.Processed++
		if rec.Date.After(summary.Newest) {
			summary.Newest = rec.Date
		}
		c.logger.Info("processed message", "id", id, "from", rec.From, "subject", rec.Subject)

		c.pause()
	}

	if err := c.saveWatermark(since, summary); err != nil {
		c.logger.Warn("failed to save watermark", "error", err)
	}

	c.logger.Info("run complete",
		"listed", summary.Listed,
		"skipped", summary.Skipped,
		"processed", summary.Processed,
	)
	return summary, nil
}

// saveWatermark advances the watermark from the run's newest emitted
// date. The watermark only moves forward: a batch of older mail (the
// provider's date filter is best-effort) never rewinds it. A run that
// emitted rows but had no parseable dates stamps now; a run that
// emitted nothing leaves the watermark untouched.
func (c *Controller) saveWatermark(since time.Time, summary Summary) error {
	switch {
	case !summary.Newest.IsZero():
		if !summary.Newest.After(since) {
			return nil
		}
		return c.watermark.Save(summary.Newest)
	case summary.Processed > 0:
		return c.watermark.Save(time.Time{})
	default:
		return nil
	}
}

// pause is the fixed inter-item delay that keeps the run under the
// downstream rate limits.
func (c *Controller) pause() {
	if c.cfg.ItemDelay > 0 {
		time.Sleep(c.cfg.ItemDelay)
	}
}
