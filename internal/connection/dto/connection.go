package dto

import (
	"time"

	conndomain "mailpilot-backend/internal/connection/domain"
)

type ConnectGmailRequest struct {
	Code string `json:"code" binding:"required"`
}

type ConnectIMAPRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	Host         string `json:"host" binding:"required"`
	Port         int    `json:"port"`
}

// ConnectionResponse is the public view of a connection; credentials
// never leave the server.
type ConnectionResponse struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	EmailAddress string     `json:"email_address"`
	Active       bool       `json:"active"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func ToConnectionResponse(conn *conndomain.MailConnection) *ConnectionResponse {
	return &ConnectionResponse{
		ID:           conn.ID,
		Provider:     conn.Provider,
		EmailAddress: conn.EmailAddress,
		Active:       conn.Active,
		LastSyncAt:   conn.LastSyncAt,
		CreatedAt:    conn.CreatedAt,
	}
}

type ConnectionsResponse struct {
	Connections []*ConnectionResponse `json:"connections"`
}
