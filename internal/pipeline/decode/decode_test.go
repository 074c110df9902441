package decode

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func header(name, value string) *gmail.MessagePartHeader {
	return &gmail.MessagePartHeader{Name: name, Value: value}
}

func TestDecodeNilPayload(t *testing.T) {
	_, err := Decode(&gmail.Message{Id: "m1"}, "me@example.com")
	if !errors.Is(err, pipedomain.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeCaseInsensitiveHeaders(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				header("FROM", "Alice Smith <Alice@Example.com>"),
				header("subject", "Closing docs"),
				header("to", "me@example.com"),
			},
			Body: &gmail.MessagePartBody{Data: b64("see attached")},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if email.FromAddress != "alice@example.com" {
		t.Errorf("FromAddress = %q, want lowercased alice@example.com", email.FromAddress)
	}
	if email.FromName != "Alice Smith" {
		t.Errorf("FromName = %q", email.FromName)
	}
	if email.Subject != "Closing docs" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if email.BodyText != "see attached" {
		t.Errorf("BodyText = %q", email.BodyText)
	}
}

func TestDecodeQuotedCommaRecipient(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				header("From", "bob@example.com"),
				header("To", `"Doe, Jane" <jane@example.com>, bob2@example.com`),
			},
			Body: &gmail.MessagePartBody{Data: b64("hi")},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(email.Recipients) != 2 {
		t.Fatalf("got %d recipients, want 2: %+v", len(email.Recipients), email.Recipients)
	}
	if email.Recipients[0].Address != "jane@example.com" || email.Recipients[0].Name != "Doe, Jane" {
		t.Errorf("first recipient = %+v", email.Recipients[0])
	}
	if email.Recipients[1].Address != "bob2@example.com" {
		t.Errorf("second recipient = %+v", email.Recipients[1])
	}
	if email.Recipients[0].Kind != pipedomain.RecipientTo {
		t.Errorf("recipient kind = %q", email.Recipients[0].Kind)
	}
}

func TestDecodeHTMLOnlyMultipart(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				header("From", "sender@example.com"),
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: b64("<p>Hello &amp; welcome</p>")},
				},
			},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if email.BodyHTML != "<p>Hello &amp; welcome</p>" {
		t.Errorf("BodyHTML = %q, want raw HTML preserved", email.BodyHTML)
	}
	if email.BodyText != "Hello & welcome" {
		t.Errorf("BodyText = %q, want tag-stripped text", email.BodyText)
	}
}

func TestDecodePrefersPlainOverHTML(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers:  []*gmail.MessagePartHeader{header("From", "s@example.com")},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/related",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
					},
				},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<b>html body</b>")}},
			},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if email.BodyText != "plain body" {
		t.Errorf("BodyText = %q, want nested plain part", email.BodyText)
	}
	if email.BodyHTML != "<b>html body</b>" {
		t.Errorf("BodyHTML = %q", email.BodyHTML)
	}
}

func TestDecodeDirection(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		labels []string
		want   string
	}{
		{"inbound", "other@example.com", []string{"INBOX"}, pipedomain.DirectionInbound},
		{"sent label", "other@example.com", []string{"SENT"}, pipedomain.DirectionOutbound},
		{"owner is sender, no label", "Me@Example.com", nil, pipedomain.DirectionOutbound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &gmail.Message{
				Id:       "m1",
				LabelIds: tt.labels,
				Payload: &gmail.MessagePart{
					MimeType: "text/plain",
					Headers:  []*gmail.MessagePartHeader{header("From", tt.from)},
					Body:     &gmail.MessagePartBody{Data: b64("x")},
				},
			}
			email, err := Decode(msg, "me@example.com")
			if err != nil {
				t.Fatal(err)
			}
			if email.Direction != tt.want {
				t.Errorf("Direction = %q, want %q", email.Direction, tt.want)
			}
		})
	}
}

func TestDecodeDateFallback(t *testing.T) {
	internal := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	msg := &gmail.Message{
		Id:           "m1",
		InternalDate: internal.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				header("From", "a@example.com"),
				header("Date", "not a date"),
			},
			Body: &gmail.MessagePartBody{Data: b64("x")},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !email.ReceivedAt.Equal(internal) {
		t.Errorf("ReceivedAt = %v, want internal date %v", email.ReceivedAt, internal)
	}
}

func TestDecodeMessageIDHeaderFallback(t *testing.T) {
	msg := &gmail.Message{
		Id: "gmail-id-1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  []*gmail.MessagePartHeader{header("From", "a@example.com")},
			Body:     &gmail.MessagePartBody{Data: b64("x")},
		},
	}

	email, err := Decode(msg, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if email.MessageIDHeader != "gmail-id-1" {
		t.Errorf("MessageIDHeader = %q, want provider id fallback", email.MessageIDHeader)
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags(`<div>Price:&nbsp;&lt;100&gt;   &quot;firm&quot;</div>`)
	want := `Price: <100> "firm"`
	if got != want {
		t.Errorf("stripTags = %q, want %q", got, want)
	}
}
