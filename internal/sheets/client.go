// Package sheets is the spreadsheet side of the pipeline, backed by
// the Google Sheets API. Row layout is fixed:
// From | Subject | Date | Content | Message_ID. Column E is the dedup
// key and stays hidden from casual viewers.
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/akarpov/mailsheet/internal/extract"
)

// Sheets caps a cell at 50k characters.
const cellLimit = 50000

var headerRow = []any{"From", "Subject", "Date", "Content", "Message_ID"}

// Client appends rows to one sheet tab and reads back dedup keys.
type Client struct {
	srv           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// New creates a Sheets client over an authenticated HTTP client.
func New(ctx context.Context, httpClient *http.Client, spreadsheetID, sheetName string, logger *log.Logger) (*Client, error) {
	srv, err := sheetsapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// ExistingIDs reads column E and returns the set of message ids the
// sheet already holds. The header row is skipped.
func (c *Client) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	resp, err := c.srv.Spreadsheets.Values.
		Get(c.spreadsheetID, c.sheetName+"!E:E").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read existing message ids: %w", err)
	}

	ids := make(map[string]struct{})
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// Append writes one record as a new row.
func (c *Client) Append(ctx context.Context, rec extract.Record) error {
	content := rec.Content
	if len(content) > cellLimit {
		content = content[:cellLimit]
	}

	values := &sheetsapi.ValueRange{
		Values: [][]any{{
			rec.From,
			rec.Subject,
			rec.Date.UTC().Format(time.RFC3339),
			content,
			rec.MessageID,
		}},
	}

	resp, err := c.srv.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:E", values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	if resp.Updates != nil {
		c.logger.Debug("appended row", "id", rec.MessageID, "cells", resp.Updates.UpdatedCells)
	}
	return nil
}

// EnsureFormatted makes sure the tab exists with the expected header
// and formatting. Idempotent; safe to call on every run.
func (c *Client) EnsureFormatted(ctx context.Context) error {
	sheetID, err := c.findSheetID(ctx)
	if err != nil {
		return err
	}
	if sheetID < 0 {
		sheetID, err = c.addSheet(ctx)
		if err != nil {
			return err
		}
		c.logger.Info("created sheet tab", "name", c.sheetName)
	}

	if _, err := c.srv.Spreadsheets.Values.
		Update(c.spreadsheetID, c.sheetName+"!A1:E1", &sheetsapi.ValueRange{
			Values: [][]any{headerRow},
		}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	if _, err := c.srv.Spreadsheets.
		BatchUpdate(c.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: formattingRequests(sheetID),
		}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to format sheet: %w", err)
	}
	return nil
}

// findSheetID resolves the tab by title; -1 when absent.
func (c *Client) findSheetID(ctx context.Context) (int64, error) {
	spreadsheet, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == c.sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return -1, nil
}

func (c *Client) addSheet(ctx context.Context) (int64, error) {
	resp, err := c.srv.Spreadsheets.
		BatchUpdate(c.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{
					Properties: &sheetsapi.SheetProperties{Title: c.sheetName},
				},
			}},
		}).
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to add sheet %q: %w", c.sheetName, err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			return r.AddSheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("add sheet reply missing properties")
}

func formattingRequests(sheetID int64) []*sheetsapi.Request {
	columnWidth := func(start, end int64, pixels int64) *sheetsapi.Request {
		return &sheetsapi.Request{
			UpdateDimensionProperties: &sheetsapi.UpdateDimensionPropertiesRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: start,
					EndIndex:   end,
				},
				Properties: &sheetsapi.DimensionProperties{PixelSize: pixels},
				Fields:     "pixelSize",
			},
		}
	}

	return []*sheetsapi.Request{
		{
			RepeatCell: &sheetsapi.RepeatCellRequest{
				Range: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   5,
				},
				Cell: &sheetsapi.CellData{
					UserEnteredFormat: &sheetsapi.CellFormat{
						BackgroundColor:     &sheetsapi.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
						TextFormat:          &sheetsapi.TextFormat{Bold: true},
						HorizontalAlignment: "CENTER",
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		columnWidth(0, 1, 200),
		columnWidth(1, 2, 300),
		columnWidth(2, 3, 150),
		columnWidth(3, 4, 400),
		{
			// Message_ID is bookkeeping, not for readers.
			UpdateDimensionProperties: &sheetsapi.UpdateDimensionPropertiesRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 4,
					EndIndex:   5,
				},
				Properties: &sheetsapi.DimensionProperties{HiddenByUser: true},
				Fields:     "hiddenByUser",
			},
		},
		{
			UpdateSheetProperties: &sheetsapi.UpdateSheetPropertiesRequest{
				Properties: &sheetsapi.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheetsapi.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}
}
