package extract

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func msgWithHeaders(headers map[string]string) *gmailapi.Message {
	payload := &gmailapi.MessagePart{}
	for name, value := range headers {
		payload.Headers = append(payload.Headers, &gmailapi.MessagePartHeader{
			Name: name, Value: value,
		})
	}
	return &gmailapi.Message{Id: "m1", ThreadId: "t1", Payload: payload}
}

func TestSenderAddress(t *testing.T) {
	cases := []struct {
		header, want string
	}{
		{"Alice Example <alice@example.com>", "alice@example.com"},
		{"bob@example.com", "bob@example.com"},
		{"", ""},
		{`"Quoted, Name" <quoted@example.com>`, "quoted@example.com"},
	}
	for _, c := range cases {
		rec := FromMessage(msgWithHeaders(map[string]string{"From": c.header}))
		if rec.From != c.want {
			t.Errorf("sender %q: got %q, want %q", c.header, rec.From, c.want)
		}
	}
}

func TestSubjectDecoding(t *testing.T) {
	cases := []struct {
		header, want string
	}{
		{"plain subject", "plain subject"},
		{"Hi =?UTF-8?B?8J+YgA==?=", "Hi 😀"},
		{"=?UTF-8?Q?caf=C3=A9?=", "café"},
		{"=?ISO-8859-1?Q?f=FCr?= dich", "für dich"},
		{"", ""},
	}
	for _, c := range cases {
		rec := FromMessage(msgWithHeaders(map[string]string{"Subject": c.header}))
		if rec.Subject != c.want {
			t.Errorf("subject %q: got %q, want %q", c.header, rec.Subject, c.want)
		}
	}
}

func TestSubjectUndecodableFallsBackToRaw(t *testing.T) {
	header := "=?UTF-8?X?bogus?="
	rec := FromMessage(msgWithHeaders(map[string]string{"Subject": header}))
	if rec.Subject == "" {
		t.Errorf("undecodable subject should fall back to raw header, got empty")
	}
}

func TestDateParsing(t *testing.T) {
	rec := FromMessage(msgWithHeaders(map[string]string{
		"Date": "Tue, 10 Jun 2025 09:30:00 +0200",
	}))
	want := time.Date(2025, 6, 10, 7, 30, 0, 0, time.UTC)
	if !rec.Date.Equal(want) {
		t.Errorf("got %v, want instant equal to %v", rec.Date, want)
	}
}

func TestMalformedDateFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	rec := FromMessage(msgWithHeaders(map[string]string{"Date": "not a date"}))
	after := time.Now().UTC()

	if rec.Date.Before(before.Add(-time.Second)) || rec.Date.After(after.Add(time.Second)) {
		t.Errorf("fallback date %v not within [%v, %v]", rec.Date, before, after)
	}
}

func TestBodyPrefersTopLevelPlainText(t *testing.T) {
	msg := &gmailapi.Message{
		Id: "m1",
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: b64("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: b64("plain wins")}},
			},
		},
	}
	if got := FromMessage(msg).Content; got != "plain wins" {
		t.Errorf("got %q, want plain text part", got)
	}
}

func TestBodyFindsPlainTextInAlternative(t *testing.T) {
	msg := &gmailapi.Message{
		Id: "m1",
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailapi.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmailapi.MessagePart{
						{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: b64("<b>no</b>")}},
						{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: b64("nested plain")}},
					},
				},
			},
		},
	}
	if got := FromMessage(msg).Content; got != "nested plain" {
		t.Errorf("got %q, want nested plain text part", got)
	}
}

func TestBodyHTMLFallbackStripsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 2000)
	msg := &gmailapi.Message{
		Id: "m1",
		Payload: &gmailapi.MessagePart{
			MimeType: "text/html",
			Body:     &gmailapi.MessagePartBody{Data: b64("<html><style>.a{}</style><body><p>hello</p>" + long + "</body></html>")},
		},
	}
	got := FromMessage(msg).Content
	if strings.Contains(got, "<p>") || strings.Contains(got, ".a{}") {
		t.Errorf("markup not stripped: %q", got)
	}
	if !strings.Contains(got, "hello") {
		t.Errorf("text content lost: %q", got)
	}
	if len(got) > 1000 {
		t.Errorf("html fallback length = %d, want <= 1000", len(got))
	}
}

func TestBodySnippetFallbackTruncates(t *testing.T) {
	msg := &gmailapi.Message{
		Id:      "m1",
		Snippet: strings.Repeat("s", 600),
	}
	got := FromMessage(msg).Content
	if len(got) != 500 {
		t.Errorf("snippet fallback length = %d, want 500", len(got))
	}
}

func TestBodyInvalidBase64SkipsToNextCandidate(t *testing.T) {
	msg := &gmailapi.Message{
		Id:      "m1",
		Snippet: "snippet text",
		Payload: &gmailapi.MessagePart{
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: "!!!not-base64!!!"}},
			},
		},
	}
	if got := FromMessage(msg).Content; got != "snippet text" {
		t.Errorf("got %q, want snippet fallback", got)
	}
}

func TestIDsCopiedVerbatim(t *testing.T) {
	msg := &gmailapi.Message{Id: "abc123", ThreadId: "thr456"}
	rec := FromMessage(msg)
	if rec.MessageID != "abc123" || rec.ThreadID != "thr456" {
		t.Errorf("ids not copied: %+v", rec)
	}
}

func TestEmptyMessageDoesNotPanic(t *testing.T) {
	rec := FromMessage(&gmailapi.Message{})
	if rec.Content != "" || rec.Subject != "" || rec.From != "" {
		t.Errorf("expected empty fields, got %+v", rec)
	}
	if rec.Date.IsZero() {
		t.Error("date should fall back to now, not zero")
	}
}
