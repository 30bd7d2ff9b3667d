// Package gmail is the mailbox side of the pipeline, backed by the
// Gmail REST API.
package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const user = "me"

// Client lists, fetches and acknowledges messages for one mailbox.
type Client struct {
	srv    *gmailapi.Service
	query  string
	logger *log.Logger
}

// New creates a Gmail client over an authenticated HTTP client. The
// query narrows listings (e.g. "is:unread in:inbox").
func New(ctx context.Context, httpClient *http.Client, query string, logger *log.Logger) (*Client, error) {
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{srv: srv, query: query, logger: logger}, nil
}

// ListUnread returns ids of messages matching the configured query.
// A non-zero since adds a best-effort after: clause; Gmail's date
// filter has day granularity and may return messages at or before the
// boundary, so callers still dedup by id.
func (c *Client) ListUnread(ctx context.Context, since time.Time) ([]string, error) {
	query := c.query
	if !since.IsZero() {
		query += " after:" + since.Format("2006/01/02")
	}

	resp, err := c.srv.Users.Messages.List(user).Q(query).MaxResults(50).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	c.logger.Debug("listed messages", "query", query, "count", len(ids))
	return ids, nil
}

// Fetch retrieves the full message, headers and MIME tree included.
func (c *Client) Fetch(ctx context.Context, id string) (*gmailapi.Message, error) {
	msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// MarkRead removes the UNREAD label so the message is not listed again.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.srv.Users.Messages.Modify(user, id, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark message %s read: %w", id, err)
	}
	return nil
}
