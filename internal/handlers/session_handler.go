package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shoprelay/internal/services"
)

// SessionHandler is the back-office session management API.
type SessionHandler struct {
	sessionService *services.SessionService
	logger         *logrus.Logger
}

func NewSessionHandler(sessionService *services.SessionService, logger *logrus.Logger) *SessionHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SessionHandler{sessionService: sessionService, logger: logger}
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	var req services.SessionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}

	sessions, total, err := h.sessionService.ListSessions(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list sessions: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list sessions", Message: err.Error()})
		return
	}

	pages := int(total) / req.PageSize
	if int(total)%req.PageSize > 0 {
		pages++
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     sessions,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pages,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessionService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) UpdateSession(c *gin.Context) {
	var req services.SessionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	session, err := h.sessionService.UpdateSession(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.logger.Errorf("Failed to update session %s: %v", c.Param("id"), err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to update session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) RateSession(c *gin.Context) {
	var req services.SessionRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	if err := h.sessionService.RateSession(c.Request.Context(), c.Param("id"), &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to rate session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "rating recorded"})
}

func (h *SessionHandler) MarkRead(c *gin.Context) {
	if err := h.sessionService.MarkMessagesRead(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to mark messages read", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "messages marked read"})
}

type sessionBulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *SessionHandler) BulkDelete(c *gin.Context) {
	var req sessionBulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	deleted, err := h.sessionService.DeleteSessions(c.Request.Context(), req.IDs)
	if err != nil {
		h.logger.Errorf("Failed to bulk-delete sessions: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to delete sessions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "sessions deleted", Data: gin.H{"deleted": deleted}})
}

// RegisterSessionRoutes mounts the admin session API.
func RegisterSessionRoutes(r *gin.RouterGroup, handler *SessionHandler) {
	sessions := r.Group("/admin/sessions")
	{
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:id", handler.GetSession)
		sessions.PATCH("/:id", handler.UpdateSession)
		sessions.POST("/:id/rate", handler.RateSession)
		sessions.POST("/:id/read", handler.MarkRead)
		sessions.DELETE("", handler.BulkDelete)
	}
}
