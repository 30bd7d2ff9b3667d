// Package extract turns raw Gmail messages into normalized records
// ready to be appended to a sheet.
package extract

import (
	"encoding/base64"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	// Sheets get noisy fast; cap fallback bodies hard.
	htmlBodyLimit = 1000
	snippetLimit  = 500
)

// Record is one extracted email, normalized for downstream use.
type Record struct {
	From      string
	Subject   string
	Date      time.Time
	Content   string
	MessageID string
	ThreadID  string
}

var (
	addrRe = regexp.MustCompile(`<(.+?)>`)

	wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}
)

// FromMessage extracts a Record from a full-format Gmail message. It is
// total: any malformed header, body or encoding degrades to a usable
// fallback instead of failing the batch.
func FromMessage(msg *gmailapi.Message) Record {
	rec := Record{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Date:      time.Now().UTC(),
	}

	var dateHeader, fromHeader, subjectHeader string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				fromHeader = h.Value
			case "Subject":
				subjectHeader = h.Value
			case "Date":
				dateHeader = h.Value
			}
		}
	}

	rec.From = senderAddress(fromHeader)
	rec.Subject = decodeSubject(subjectHeader)
	if t, err := mail.ParseDate(dateHeader); err == nil {
		rec.Date = t
	}
	rec.Content = extractBody(msg)

	return rec
}

// senderAddress pulls the bare address out of a From header. Headers
// without angle brackets are returned verbatim.
func senderAddress(header string) string {
	if m := addrRe.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return header
}

// decodeSubject decodes RFC 2047 encoded-words, each with its declared
// charset. Undecodable input is returned as-is rather than dropped.
func decodeSubject(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return toValidUTF8(header)
	}
	return toValidUTF8(decoded)
}

// extractBody picks the best available body, in priority order:
// a top-level text/plain part, a text/plain part nested inside
// multipart/alternative, the top-level payload (HTML stripped to text,
// capped), and finally the provider snippet, capped.
func extractBody(msg *gmailapi.Message) string {
	payload := msg.Payload
	if payload != nil {
		for _, part := range payload.Parts {
			if part.MimeType == "text/plain" {
				if text := decodePartBody(part.Body); text != "" {
					return text
				}
			}
		}
		for _, part := range payload.Parts {
			if part.MimeType != "multipart/alternative" {
				continue
			}
			for _, sub := range part.Parts {
				if sub.MimeType == "text/plain" {
					if text := decodePartBody(sub.Body); text != "" {
						return text
					}
				}
			}
		}
		if text := decodePartBody(payload.Body); text != "" {
			if isHTML(payload.MimeType, text) {
				text = stripHTML(text)
			}
			return truncate(text, htmlBodyLimit)
		}
	}
	return truncate(msg.Snippet, snippetLimit)
}

func decodePartBody(body *gmailapi.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		// Gmail usually omits padding.
		data, err = base64.RawURLEncoding.DecodeString(body.Data)
		if err != nil {
			return ""
		}
	}
	return toValidUTF8(string(data))
}

func isHTML(mimeType, text string) bool {
	if strings.HasPrefix(mimeType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<")
}

// stripHTML reduces an HTML document to its text content. Script and
// style bodies are dropped entirely.
func stripHTML(s string) string {
	var (
		sb   strings.Builder
		skip int
	)
	tz := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.StartTagToken:
			name, _ := tz.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "tr", "li":
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(tz.Text())
			}
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Avoid splitting a multi-byte rune at the cut point.
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
