package delivery

import (
	"net/http"

	conndto "mailpilot-backend/internal/connection/dto"
	"mailpilot-backend/internal/connection/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConnectionHandler struct {
	connectionUsecase usecase.ConnectionUsecase
}

func NewConnectionHandler(connectionUsecase usecase.ConnectionUsecase) *ConnectionHandler {
	return &ConnectionHandler{
		connectionUsecase: connectionUsecase,
	}
}

func (h *ConnectionHandler) GmailAuthURL(c *gin.Context) {
	state := uuid.New().String()
	c.JSON(http.StatusOK, gin.H{
		"auth_url": h.connectionUsecase.GmailAuthURL(state),
		"state":    state,
	})
}

func (h *ConnectionHandler) ConnectGmail(c *gin.Context) {
	var req conndto.ConnectGmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conn, err := h.connectionUsecase.ConnectGmail(c.Request.Context(), userID, req.Code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, conndto.ToConnectionResponse(conn))
}

func (h *ConnectionHandler) ConnectIMAP(c *gin.Context) {
	var req conndto.ConnectIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conn, err := h.connectionUsecase.ConnectIMAP(userID, req.EmailAddress, req.Password, req.Host, req.Port)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, conndto.ToConnectionResponse(conn))
}

func (h *ConnectionHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	conns, err := h.connectionUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*conndto.ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		resp = append(resp, conndto.ToConnectionResponse(conn))
	}
	c.JSON(http.StatusOK, conndto.ConnectionsResponse{Connections: resp})
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")
	connectionID := c.Param("id")

	if err := h.connectionUsecase.Disconnect(c.Request.Context(), userID, connectionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "connection disconnected"})
}
