// Package decode converts raw Gmail messages into normalized email
// records.
package decode

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"google.golang.org/api/gmail/v1"
)

var (
	addrPattern = regexp.MustCompile(`^\s*"?([^"<]*)"?\s*<([^>]+)>\s*$`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// Decode builds a NormalizedEmail from a full-format Gmail message.
// The caller owns the returned record until it is persisted.
func Decode(msg *gmail.Message, ownerAddress string) (*pipedomain.NormalizedEmail, error) {
	if msg == nil || msg.Payload == nil {
		return nil, fmt.Errorf("%w: message has no payload", pipedomain.ErrDecode)
	}

	headers := msg.Payload.Headers

	messageIDHeader := getHeader(headers, "Message-ID")
	if messageIDHeader == "" {
		// Some providers omit the header; fall back to the internal id.
		messageIDHeader = msg.Id
	}

	fromAddress, fromName := parseAddress(getHeader(headers, "From"))

	recipients := make(pipedomain.RecipientList, 0)
	recipients = append(recipients, parseAddressList(getHeader(headers, "To"), pipedomain.RecipientTo)...)
	recipients = append(recipients, parseAddressList(getHeader(headers, "Cc"), pipedomain.RecipientCc)...)
	recipients = append(recipients, parseAddressList(getHeader(headers, "Bcc"), pipedomain.RecipientBcc)...)

	bodyText, bodyHTML := extractBody(msg.Payload)

	labels := pipedomain.StringList(msg.LabelIds)
	direction := pipedomain.DirectionInbound
	if hasLabel(msg.LabelIds, "SENT") || strings.EqualFold(fromAddress, ownerAddress) {
		direction = pipedomain.DirectionOutbound
	}

	receivedAt := parseDate(getHeader(headers, "Date"))
	if receivedAt.IsZero() {
		receivedAt = time.Unix(msg.InternalDate/1000, 0)
	}

	return &pipedomain.NormalizedEmail{
		MessageID:       msg.Id,
		MessageIDHeader: messageIDHeader,
		ThreadID:        msg.ThreadId,
		Direction:       direction,
		Subject:         getHeader(headers, "Subject"),
		BodyText:        bodyText,
		BodyHTML:        bodyHTML,
		Snippet:         msg.Snippet,
		FromAddress:     fromAddress,
		FromName:        fromName,
		Recipients:      recipients,
		ReceivedAt:      receivedAt,
		Labels:          labels,
	}, nil
}

// getHeader looks a header up case-insensitively.
func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// parseAddress splits `"Name" <addr>` or a bare address into its parts.
func parseAddress(raw string) (address, name string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if parsed, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(parsed.Address), parsed.Name
	}
	if m := addrPattern.FindStringSubmatch(raw); m != nil {
		return strings.ToLower(strings.TrimSpace(m[2])), strings.TrimSpace(m[1])
	}
	return strings.ToLower(strings.Trim(raw, "<> ")), ""
}

// parseAddressList splits on commas outside quoted segments, then parses
// each entry.
func parseAddressList(raw, kind string) []pipedomain.Recipient {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var entries []string
	var current strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			entries = append(entries, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	entries = append(entries, current.String())

	recipients := make([]pipedomain.Recipient, 0, len(entries))
	for _, entry := range entries {
		address, name := parseAddress(entry)
		if address == "" {
			continue
		}
		recipients = append(recipients, pipedomain.Recipient{
			Address: address,
			Name:    name,
			Kind:    kind,
		})
	}
	return recipients
}

// extractBody walks the part tree iteratively, preferring text/plain and
// deriving plain text from HTML only when no plain part exists.
func extractBody(payload *gmail.MessagePart) (bodyText, bodyHTML string) {
	// Single-part message: the payload is the body.
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		data := decodeBase64URL(payload.Body.Data)
		if payload.MimeType == "text/html" {
			return stripTags(data), data
		}
		return data, ""
	}

	var plain, html string
	stack := make([]*gmail.MessagePart, 0, len(payload.Parts))
	for i := len(payload.Parts) - 1; i >= 0; i-- {
		stack = append(stack, payload.Parts[i])
	}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if part.Body != nil && part.Body.Data != "" {
			switch part.MimeType {
			case "text/plain":
				if plain == "" {
					plain = decodeBase64URL(part.Body.Data)
				}
			case "text/html":
				if html == "" {
					html = decodeBase64URL(part.Body.Data)
				}
			}
		}
		for i := len(part.Parts) - 1; i >= 0; i-- {
			stack = append(stack, part.Parts[i])
		}
	}

	if plain != "" {
		return plain, html
	}
	if html != "" {
		return stripTags(html), html
	}
	return "", ""
}

// decodeBase64URL decodes Gmail body data, degrading gracefully: padded
// url decoding, then raw, then the input itself. Non-UTF8 payloads pass
// through as raw bytes rather than crashing the decoder.
func decodeBase64URL(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return data
}

// stripTags derives a plain-text fallback from HTML.
func stripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	return strings.Join(strings.Fields(text), " ")
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t
	}
	return time.Time{}
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
