package handlers

import (
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shoprelay/internal/services"
)

// WebhookHandler is the inbound endpoint for Telegram updates. The platform
// retries anything that is not a 2xx, so every classifiable update —
// including no-ops and business-rule misses — is acknowledged with 200;
// only malformed JSON earns a 500.
type WebhookHandler struct {
	router *services.CommandRouter
	relay  *services.RelayService
	logger *logrus.Logger
}

func NewWebhookHandler(router *services.CommandRouter, relay *services.RelayService, logger *logrus.Logger) *WebhookHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebhookHandler{router: router, relay: relay, logger: logger}
}

func (h *WebhookHandler) HandleUpdate(c *gin.Context) {
	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request.Body).Decode(&update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid update payload"})
		return
	}

	ctx := c.Request.Context()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(c, &update)
	case update.Message != nil && update.Message.ReplyToMessage != nil:
		h.handleReply(c, &update)
	case update.Message != nil && update.Message.Text != "":
		in := inboundFrom(update.Message)
		if err := h.router.HandleMessage(ctx, in, update.Message.Text); err != nil {
			h.logger.Errorf("Failed to handle message from chat %d: %v", in.ChatID, err)
		}
	default:
		// Unclassifiable or empty update: acknowledge with no side effect.
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleReply routes the text to the session matching the replied-to
// message id. A miss degrades into ordinary bot conversation; an admin
// reply that does match must never reach the command router.
func (h *WebhookHandler) handleReply(c *gin.Context, update *tgbotapi.Update) {
	ctx := c.Request.Context()
	msg := update.Message

	_, matched, err := h.relay.RouteReply(ctx, msg.ReplyToMessage.MessageID, msg.MessageID, msg.Text)
	if err != nil {
		h.logger.Errorf("Failed to route reply to message %d: %v", msg.ReplyToMessage.MessageID, err)
		return
	}
	if matched {
		return
	}

	in := inboundFrom(msg)
	if err := h.router.HandleMessage(ctx, in, msg.Text); err != nil {
		h.logger.Errorf("Failed to handle uncorrelated reply from chat %d: %v", in.ChatID, err)
	}
}

func (h *WebhookHandler) handleCallback(c *gin.Context, update *tgbotapi.Update) {
	cb := update.CallbackQuery
	if cb.Message == nil || cb.Data == "" {
		return
	}

	in := services.Inbound{ChatID: cb.Message.Chat.ID}
	if cb.From != nil {
		in.FirstName = cb.From.FirstName
		in.LastName = cb.From.LastName
		in.Username = cb.From.UserName
	}
	if err := h.router.HandleCallback(c.Request.Context(), in, cb.Data); err != nil {
		h.logger.Errorf("Failed to handle callback %q from chat %d: %v", cb.Data, in.ChatID, err)
	}
}

func inboundFrom(msg *tgbotapi.Message) services.Inbound {
	in := services.Inbound{ChatID: msg.Chat.ID}
	if msg.From != nil {
		in.FirstName = msg.From.FirstName
		in.LastName = msg.From.LastName
		in.Username = msg.From.UserName
	}
	return in
}

// RegisterWebhookRoutes mounts the Telegram webhook endpoint.
func RegisterWebhookRoutes(r *gin.RouterGroup, handler *WebhookHandler) {
	r.POST("/telegram/webhook", handler.HandleUpdate)
}
