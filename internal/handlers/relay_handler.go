package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shoprelay/internal/services"
)

// RelayHandler exposes the chat widget endpoints and the admin relay /
// sweep triggers.
type RelayHandler struct {
	relay      *services.RelayService
	dispatcher *services.Dispatcher
	logger     *logrus.Logger
}

func NewRelayHandler(relay *services.RelayService, dispatcher *services.Dispatcher, logger *logrus.Logger) *RelayHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RelayHandler{relay: relay, dispatcher: dispatcher, logger: logger}
}

// OpenSession starts a widget conversation.
func (h *RelayHandler) OpenSession(c *gin.Context) {
	var req services.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	if fields := validateOpenSession(&req); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{Error: "Invalid session payload", Fields: fields})
		return
	}

	session, err := h.relay.OpenSession(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to open session: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to open session", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// validateOpenSession collects every invalid field instead of failing on
// the first one.
func validateOpenSession(req *services.OpenSessionRequest) []FieldError {
	var fields []FieldError
	if req.Message == "" {
		fields = append(fields, FieldError{Field: "message", Message: "message is required"})
	} else if len(req.Message) > 4096 {
		fields = append(fields, FieldError{Field: "message", Message: "message exceeds 4096 characters"})
	}
	if len(req.VisitorName) > 200 {
		fields = append(fields, FieldError{Field: "visitor_name", Message: "name exceeds 200 characters"})
	}
	if len(req.VisitorEmail) > 320 {
		fields = append(fields, FieldError{Field: "visitor_email", Message: "email exceeds 320 characters"})
	}
	return fields
}

type visitorMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostMessage appends a visitor message to an open session.
func (h *RelayHandler) PostMessage(c *gin.Context) {
	var req visitorMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	msg, err := h.relay.PostVisitorMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		h.logger.Errorf("Failed to post visitor message: %v", err)
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to post message", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

type adminRelayRequest struct {
	ChatID  int64  `json:"chat_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// AdminRelay forwards an admin console message to a Telegram chat. Unlike
// the webhook path, a send failure here propagates so the console can show
// a retry affordance.
func (h *RelayHandler) AdminRelay(c *gin.Context) {
	var req adminRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	if err := h.relay.AdminRelay(c.Request.Context(), req.ChatID, req.Message); err != nil {
		h.logger.Errorf("Admin relay to chat %d failed: %v", req.ChatID, err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to deliver message", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "delivered"})
}

// RunSweep triggers one notification sweep and returns its counts.
func (h *RelayHandler) RunSweep(c *gin.Context) {
	result, err := h.dispatcher.Run(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Sweep failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "sweep completed", Data: result})
}

// RegisterRelayRoutes mounts widget and admin relay endpoints.
func RegisterRelayRoutes(r *gin.RouterGroup, handler *RelayHandler) {
	chat := r.Group("/chat")
	{
		chat.POST("/sessions", handler.OpenSession)
		chat.POST("/sessions/:id/messages", handler.PostMessage)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/relay", handler.AdminRelay)
		admin.POST("/sweeps/:name", handler.RunSweep)
	}
}
