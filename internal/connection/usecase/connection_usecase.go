package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
	"mailpilot-backend/internal/connection/repository"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/crypto"
	"mailpilot-backend/pkg/gmail"
	"mailpilot-backend/pkg/imap"

	"github.com/google/uuid"
)

// ConnectionUsecase manages mailbox connections: consent, credential
// storage and teardown.
type ConnectionUsecase interface {
	GmailAuthURL(state string) string
	ConnectGmail(ctx context.Context, userID, code string) (*conndomain.MailConnection, error)
	ConnectIMAP(userID, emailAddress, password, host string, port int) (*conndomain.MailConnection, error)
	List(userID string) ([]*conndomain.MailConnection, error)
	Disconnect(ctx context.Context, userID, connectionID string) error
}

type connectionUsecase struct {
	connections  repository.ConnectionRepository
	gmailService *gmail.Service
	imapService  *imap.Service
	sealer       *crypto.Sealer
	cfg          *config.Config
	redirectURL  string
}

func NewConnectionUsecase(connections repository.ConnectionRepository, gmailService *gmail.Service, imapService *imap.Service, sealer *crypto.Sealer, cfg *config.Config) ConnectionUsecase {
	return &connectionUsecase{
		connections:  connections,
		gmailService: gmailService,
		imapService:  imapService,
		sealer:       sealer,
		cfg:          cfg,
		redirectURL:  getRedirectURL(cfg),
	}
}

func getRedirectURL(cfg *config.Config) string {
	// The frontend completes the consent flow and posts the code back.
	return "postmessage"
}

func (u *connectionUsecase) GmailAuthURL(state string) string {
	return u.gmailService.AuthURL(u.redirectURL, state)
}

// ConnectGmail exchanges the consent code, seals the refresh token and
// stores the connection with an empty watermark. The first sync cycle
// performs the initial full sync and sets it.
func (u *connectionUsecase) ConnectGmail(ctx context.Context, userID, code string) (*conndomain.MailConnection, error) {
	token, emailAddress, err := u.gmailService.ExchangeCode(ctx, code, u.redirectURL)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		return nil, errors.New("consent did not grant offline access, reconnect the mailbox")
	}

	if existing, err := u.connections.FindByEmailAddress(emailAddress); err == nil && existing != nil && existing.Active {
		return nil, fmt.Errorf("mailbox %s is already connected", emailAddress)
	}

	sealed, err := u.sealer.Seal(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	conn := &conndomain.MailConnection{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           conndomain.ProviderGmail,
		EmailAddress:       emailAddress,
		AccessToken:        token.AccessToken,
		RefreshTokenSealed: sealed,
		RefreshToken:       token.RefreshToken,
		TokenExpiry:        token.Expiry,
		Active:             true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := u.connections.Create(conn); err != nil {
		return nil, err
	}

	// Push registration is best-effort; the scheduler still covers the
	// mailbox by polling.
	if u.cfg.GoogleProjectID != "" {
		topic := fmt.Sprintf("projects/%s/topics/%s", u.cfg.GoogleProjectID, u.cfg.GooglePubSubTopic)
		if err := u.gmailService.Watch(ctx, conn, topic, nil); err != nil {
			log.Printf("[Connection] Watch registration failed for %s: %v", emailAddress, err)
		}
	}

	return conn, nil
}

// ConnectIMAP verifies the credentials against the server before the
// sealed password is stored.
func (u *connectionUsecase) ConnectIMAP(userID, emailAddress, password, host string, port int) (*conndomain.MailConnection, error) {
	if port <= 0 {
		port = 993
	}

	probe := &conndomain.MailConnection{
		EmailAddress: emailAddress,
		RefreshToken: password,
		IMAPHost:     host,
		IMAPPort:     port,
	}
	if err := u.imapService.VerifyLogin(probe); err != nil {
		if errors.Is(err, pipedomain.ErrAuth) {
			return nil, errors.New("IMAP server rejected the credentials")
		}
		return nil, fmt.Errorf("IMAP connection failed: %w", err)
	}

	if existing, err := u.connections.FindByEmailAddress(emailAddress); err == nil && existing != nil && existing.Active {
		return nil, fmt.Errorf("mailbox %s is already connected", emailAddress)
	}

	sealed, err := u.sealer.Seal(password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}

	conn := &conndomain.MailConnection{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           conndomain.ProviderIMAP,
		EmailAddress:       emailAddress,
		RefreshTokenSealed: sealed,
		RefreshToken:       password,
		IMAPHost:           host,
		IMAPPort:           port,
		Active:             true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := u.connections.Create(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (u *connectionUsecase) List(userID string) ([]*conndomain.MailConnection, error) {
	return u.connections.FindActiveByUser(userID)
}

// Disconnect revokes the provider grant (best-effort) and deactivates
// the connection. Stored emails and classifications survive.
func (u *connectionUsecase) Disconnect(ctx context.Context, userID, connectionID string) error {
	conn, err := u.connections.FindByID(connectionID)
	if err != nil {
		return err
	}
	if conn == nil || conn.UserID != userID {
		return errors.New("connection not found")
	}

	if conn.Provider == conndomain.ProviderGmail {
		if plain, err := u.sealer.Open(conn.RefreshTokenSealed); err == nil {
			conn.RefreshToken = plain
		}
		if err := u.gmailService.StopWatch(ctx, conn, nil); err != nil {
			log.Printf("[Connection] StopWatch failed for %s: %v", conn.EmailAddress, err)
		}
		if err := u.gmailService.Revoke(ctx, conn); err != nil {
			log.Printf("[Connection] Revoke failed for %s: %v", conn.EmailAddress, err)
		}
	}

	return u.connections.Deactivate(connectionID)
}
