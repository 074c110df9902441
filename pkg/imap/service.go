// Package imap is the IMAP mail provider. Connections using it store
// the account password sealed in the refresh-credential column; the
// watermark is "uidvalidity:lastuid" since IMAP has no change log.
package imap

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	conndomain "mailpilot-backend/internal/connection/domain"
	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomessage "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

type Service struct {
	fullSyncWindow uint32
}

func NewService(fullSyncWindow int) *Service {
	if fullSyncWindow <= 0 {
		fullSyncWindow = 50
	}
	return &Service{fullSyncWindow: uint32(fullSyncWindow)}
}

func (s *Service) dial(conn *conndomain.MailConnection) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", conn.IMAPHost, conn.IMAPPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", pipedomain.ErrSyncTransport, addr, err)
	}
	// IMAP has no refresh exchange; a rejected login is the auth-fatal
	// condition for these connections.
	if err := c.Login(conn.EmailAddress, conn.RefreshToken); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: login for %s rejected: %v", pipedomain.ErrAuth, conn.EmailAddress, err)
	}
	return c, nil
}

// parseWatermark splits "uidvalidity:lastuid".
func parseWatermark(watermark string) (uidValidity, lastUID uint32, ok bool) {
	parts := strings.SplitN(watermark, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	v, err1 := strconv.ParseUint(parts[0], 10, 32)
	u, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(v), uint32(u), true
}

func formatWatermark(uidValidity, lastUID uint32) string {
	return fmt.Sprintf("%d:%d", uidValidity, lastUID)
}

func (s *Service) Sync(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.SyncResult, error) {
	c, err := s.dial(conn)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("%w: select INBOX: %v", pipedomain.ErrSyncTransport, err)
	}

	if conn.LastHistoryID != nil && *conn.LastHistoryID != "" {
		uidValidity, lastUID, ok := parseWatermark(*conn.LastHistoryID)
		if ok && uidValidity == mbox.UidValidity {
			return s.incrementalSync(c, mbox, lastUID)
		}
		// UIDVALIDITY changed (or malformed watermark): the stored
		// position no longer means anything, same as an expired
		// Gmail history id.
		log.Printf("[IMAP] Watermark invalid for connection %s (uidvalidity changed), running full sync", conn.ID)
	}

	return s.fullSync(c, mbox)
}

func (s *Service) incrementalSync(c *client.Client, mbox *imap.MailboxStatus, lastUID uint32) (*pipedomain.SyncResult, error) {
	seqset := new(imap.SeqSet)
	seqset.AddRange(lastUID+1, 0) // lastUID+1:*

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	var refs []pipedomain.MessageRef
	maxUID := lastUID
	for msg := range messages {
		// An N:* fetch echoes the newest message even when nothing is
		// new; only UIDs past the watermark count.
		if msg.Uid <= lastUID {
			continue
		}
		refs = append(refs, pipedomain.MessageRef{ID: strconv.FormatUint(uint64(msg.Uid), 10)})
		if msg.Uid > maxUID {
			maxUID = msg.Uid
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch: %v", pipedomain.ErrSyncTransport, err)
	}

	return &pipedomain.SyncResult{
		Refs:         refs,
		NewHistoryID: formatWatermark(mbox.UidValidity, maxUID),
		FullSync:     false,
	}, nil
}

func (s *Service) fullSync(c *client.Client, mbox *imap.MailboxStatus) (*pipedomain.SyncResult, error) {
	if mbox.Messages == 0 {
		return &pipedomain.SyncResult{
			NewHistoryID: formatWatermark(mbox.UidValidity, 0),
			FullSync:     true,
		}, nil
	}

	from := uint32(1)
	if mbox.Messages > s.fullSyncWindow {
		from = mbox.Messages - s.fullSyncWindow + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	var refs []pipedomain.MessageRef
	var maxUID uint32
	for msg := range messages {
		refs = append(refs, pipedomain.MessageRef{ID: strconv.FormatUint(uint64(msg.Uid), 10)})
		if msg.Uid > maxUID {
			maxUID = msg.Uid
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch recent window: %v", pipedomain.ErrSyncTransport, err)
	}

	return &pipedomain.SyncResult{
		Refs:         refs,
		NewHistoryID: formatWatermark(mbox.UidValidity, maxUID),
		FullSync:     true,
	}, nil
}

func (s *Service) FetchEmail(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.NormalizedEmail, error) {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad IMAP uid %q", pipedomain.ErrDecode, messageID)
	}

	c, err := s.dial(conn)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("%w: select INBOX: %v", pipedomain.ErrSyncTransport, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch %d: %v", pipedomain.ErrSyncTransport, uid, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %d not found", pipedomain.ErrDecode, uid)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("%w: message %d has no body section", pipedomain.ErrDecode, uid)
	}

	email, err := decodeMessage(body, conn.EmailAddress)
	if err != nil {
		return nil, err
	}
	email.ID = uuid.New().String()
	email.ConnectionID = conn.ID
	email.MessageID = messageID
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = msg.InternalDate
	}
	return email, nil
}

// decodeMessage parses a raw RFC 822 body into the normalized form.
func decodeMessage(body io.Reader, ownerAddress string) (*pipedomain.NormalizedEmail, error) {
	mr, err := gomessage.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipedomain.ErrDecode, err)
	}

	header := mr.Header
	email := &pipedomain.NormalizedEmail{}
	email.Subject, _ = header.Subject()
	email.MessageIDHeader, _ = header.MessageID()

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		email.FromAddress = strings.ToLower(from[0].Address)
		email.FromName = from[0].Name
	}
	for _, field := range []struct{ header, kind string }{
		{"To", pipedomain.RecipientTo},
		{"Cc", pipedomain.RecipientCc},
		{"Bcc", pipedomain.RecipientBcc},
	} {
		if list, err := header.AddressList(field.header); err == nil {
			for _, addr := range list {
				email.Recipients = append(email.Recipients, pipedomain.Recipient{
					Address: strings.ToLower(addr.Address),
					Name:    addr.Name,
					Kind:    field.kind,
				})
			}
		}
	}

	if date, err := header.Date(); err == nil {
		email.ReceivedAt = date
	}

	email.Direction = pipedomain.DirectionInbound
	if strings.EqualFold(email.FromAddress, ownerAddress) {
		email.Direction = pipedomain.DirectionOutbound
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		var contentType string
		if h, ok := part.Header.(interface {
			ContentType() (string, map[string]string, error)
		}); ok {
			contentType, _, _ = h.ContentType()
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if email.BodyText == "" {
				email.BodyText = string(data)
			}
		case "text/html":
			if email.BodyHTML == "" {
				email.BodyHTML = string(data)
			}
		}
	}
	if email.BodyText == "" && email.BodyHTML != "" {
		email.BodyText = stripTags(email.BodyHTML)
	}
	if email.BodyText != "" {
		snippet := strings.Join(strings.Fields(email.BodyText), " ")
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		email.Snippet = snippet
	}
	return email, nil
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DeleteMessage flags the message deleted and expunges.
func (s *Service) DeleteMessage(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) error {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return fmt.Errorf("bad IMAP uid %q", messageID)
	}

	c, err := s.dial(conn)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("select INBOX: %v", err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("store deleted flag: %v", err)
	}
	return c.Expunge(nil)
}

// Revoke is a no-op for IMAP; there is no grant to invalidate.
func (s *Service) Revoke(ctx context.Context, conn *conndomain.MailConnection) error {
	return nil
}

// VerifyLogin dials the server and authenticates once, confirming the
// supplied credentials before a connection is stored.
func (s *Service) VerifyLogin(conn *conndomain.MailConnection) error {
	c, err := s.dial(conn)
	if err != nil {
		return err
	}
	c.Logout()
	return nil
}
