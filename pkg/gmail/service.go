package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
	"mailpilot-backend/internal/pipeline/decode"
	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const revokeEndpoint = "https://oauth2.googleapis.com/revoke"

// refreshWindow: tokens with less remaining lifetime than this are
// exchanged before any provider call.
const refreshWindow = 5 * time.Minute

// Service is the Gmail mail provider. It implements
// pipedomain.MailProvider.
type Service struct {
	clientID       string
	clientSecret   string
	fullSyncWindow int64
}

func NewService(clientID, clientSecret string, fullSyncWindow int) *Service {
	if fullSyncWindow <= 0 {
		fullSyncWindow = 50
	}
	return &Service{
		clientID:       clientID,
		clientSecret:   clientSecret,
		fullSyncWindow: int64(fullSyncWindow),
	}
}

// notifyTokenSource wraps an oauth2 token source to persist refreshed
// credentials through a callback.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback conndomain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(conndomain.TokenUpdate{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			Expiry:       t.Expiry,
		}); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// getValidToken returns a usable access token, exchanging the refresh
// credential when expiry is near. A rejected exchange maps to ErrAuth:
// the grant was revoked and the connection must be deactivated, not
// retried.
func (s *Service) getValidToken(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (oauth2.TokenSource, error) {
	token := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       conn.TokenExpiry,
	}

	// Force the exchange now rather than racing expiry mid-sync.
	if conn.RefreshToken != "" && time.Until(conn.TokenExpiry) < refreshWindow {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	if _, err := wrapped.Token(); err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: token refresh rejected: %v", pipedomain.ErrAuth, err)
		}
		return nil, fmt.Errorf("%w: token refresh: %v", pipedomain.ErrSyncTransport, err)
	}

	return oauth2.ReuseTokenSource(nil, wrapped), nil
}

func (s *Service) gmailService(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (*gmail.Service, error) {
	source, err := s.getValidToken(ctx, conn, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, source)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create Gmail service: %v", pipedomain.ErrSyncTransport, err)
	}
	return srv, nil
}

// Sync fetches message refs added since the connection watermark. An
// expired watermark (history 404) falls back to a bounded full sync with
// a fresh watermark from the profile; any other incremental failure
// propagates as a transport error.
func (s *Service) Sync(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.SyncResult, error) {
	srv, err := s.gmailService(ctx, conn, onTokenRefresh)
	if err != nil {
		return nil, err
	}
	return s.sync(srv, conn)
}

// sync picks incremental or full based on the stored watermark.
func (s *Service) sync(srv *gmail.Service, conn *conndomain.MailConnection) (*pipedomain.SyncResult, error) {
	if conn.LastHistoryID != nil && *conn.LastHistoryID != "" {
		start, parseErr := strconv.ParseUint(*conn.LastHistoryID, 10, 64)
		if parseErr != nil {
			// Unparsable watermark is as good as expired.
			log.Printf("[Gmail] Connection %s has malformed watermark %q, running full sync", conn.ID, *conn.LastHistoryID)
			return s.fullSync(srv, conn)
		}

		result, err := s.incrementalSync(srv, start)
		if err == nil {
			return result, nil
		}
		if isHistoryExpired(err) {
			log.Printf("[Gmail] Watermark %d expired for connection %s, falling back to full sync", start, conn.ID)
			return s.fullSync(srv, conn)
		}
		return nil, fmt.Errorf("%w: incremental sync for connection %s: %v", pipedomain.ErrSyncTransport, conn.ID, err)
	}

	return s.fullSync(srv, conn)
}

// isHistoryExpired distinguishes the watermark-not-recognized condition
// from generic failures. Gmail signals it with a 404 on history.list.
func isHistoryExpired(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// incrementalSync collects every added message id since the start
// position, across all labels and all pages.
func (s *Service) incrementalSync(srv *gmail.Service, startHistoryID uint64) (*pipedomain.SyncResult, error) {
	var refs []pipedomain.MessageRef
	var latestHistoryID uint64
	seen := make(map[string]bool)

	pageToken := ""
	for {
		call := srv.Users.History.List("me").
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, err
		}

		if resp.HistoryId > latestHistoryID {
			latestHistoryID = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				refs = append(refs, pipedomain.MessageRef{
					ID:       added.Message.Id,
					ThreadID: added.Message.ThreadId,
				})
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	newPosition := strconv.FormatUint(latestHistoryID, 10)
	if latestHistoryID == 0 {
		newPosition = strconv.FormatUint(startHistoryID, 10)
	}
	return &pipedomain.SyncResult{Refs: refs, NewHistoryID: newPosition, FullSync: false}, nil
}

// fullSync lists the most recent messages with no label filter and
// sources a fresh watermark from the account profile, not from the
// failed incremental call.
func (s *Service) fullSync(srv *gmail.Service, conn *conndomain.MailConnection) (*pipedomain.SyncResult, error) {
	listResp, err := srv.Users.Messages.List("me").MaxResults(s.fullSyncWindow).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: full sync listing for connection %s: %v", pipedomain.ErrSyncTransport, conn.ID, err)
	}

	profile, err := srv.Users.GetProfile("me").Do()
	if err != nil {
		return nil, fmt.Errorf("%w: profile fetch for connection %s: %v", pipedomain.ErrSyncTransport, conn.ID, err)
	}

	refs := make([]pipedomain.MessageRef, 0, len(listResp.Messages))
	for _, msg := range listResp.Messages {
		refs = append(refs, pipedomain.MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
	}

	return &pipedomain.SyncResult{
		Refs:         refs,
		NewHistoryID: strconv.FormatUint(profile.HistoryId, 10),
		FullSync:     true,
	}, nil
}

// FetchEmail retrieves a single message in full format and decodes it.
func (s *Service) FetchEmail(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) (*pipedomain.NormalizedEmail, error) {
	srv, err := s.gmailService(ctx, conn, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Do()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to retrieve message %s: %v", pipedomain.ErrSyncTransport, messageID, err)
	}

	email, err := decode.Decode(msg, conn.EmailAddress)
	if err != nil {
		return nil, err
	}
	email.ID = uuid.New().String()
	email.ConnectionID = conn.ID
	return email, nil
}

// DeleteMessage moves the message to trash at the provider. Best-effort;
// the ledger, not the provider, is what prevents re-ingestion.
func (s *Service) DeleteMessage(ctx context.Context, conn *conndomain.MailConnection, messageID string, onTokenRefresh conndomain.TokenUpdateFunc) error {
	srv, err := s.gmailService(ctx, conn, onTokenRefresh)
	if err != nil {
		return err
	}

	_, err = srv.Users.Messages.Trash("me", messageID).Do()
	if err != nil {
		return fmt.Errorf("unable to trash message %s: %v", messageID, err)
	}
	return nil
}

// Revoke invalidates the connection's grant. Failures are logged by the
// caller, never thrown.
func (s *Service) Revoke(ctx context.Context, conn *conndomain.MailConnection) error {
	form := url.Values{"token": {conn.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, "POST", revokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// Watch registers the mailbox for Pub/Sub push notifications.
func (s *Service) Watch(ctx context.Context, conn *conndomain.MailConnection, topicName string, onTokenRefresh conndomain.TokenUpdateFunc) error {
	srv, err := s.gmailService(ctx, conn, onTokenRefresh)
	if err != nil {
		return err
	}

	// Clear any existing watch first; Gmail allows one per user.
	_ = srv.Users.Stop("me").Do()

	req := &gmail.WatchRequest{TopicName: topicName}
	resp, err := srv.Users.Watch("me", req).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %v", err)
	}
	log.Printf("[Gmail] Watch started for connection %s. Expiration: %d, HistoryId: %d", conn.ID, resp.Expiration, resp.HistoryId)
	return nil
}

// StopWatch stops push notifications for the mailbox.
func (s *Service) StopWatch(ctx context.Context, conn *conndomain.MailConnection, onTokenRefresh conndomain.TokenUpdateFunc) error {
	srv, err := s.gmailService(ctx, conn, onTokenRefresh)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop("me").Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %v", err)
	}
	return nil
}

func (s *Service) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailModifyScope},
	}
}

// AuthURL builds the consent URL for connecting a mailbox. offline
// access and forced consent are required to receive a refresh token.
func (s *Service) AuthURL(redirectURL, state string) string {
	return s.oauthConfig(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for tokens and resolves the
// mailbox address from the Gmail profile.
func (s *Service) ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, string, error) {
	config := s.oauthConfig(redirectURL)

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("code exchange failed: %v", err)
	}

	client := oauth2.NewClient(ctx, config.TokenSource(ctx, token))
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, "", fmt.Errorf("unable to create Gmail service: %v", err)
	}

	profile, err := srv.Users.GetProfile("me").Do()
	if err != nil {
		return nil, "", fmt.Errorf("unable to read Gmail profile: %v", err)
	}

	return token, profile.EmailAddress, nil
}
