package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shoprelay/internal/config"
	"shoprelay/internal/models"
	"shoprelay/pkg/utils"
)

// RelayService owns the widget side of the support chat: it opens sessions,
// forwards visitor messages to the admin chat and routes admin replies back
// to the session they belong to, keyed by the platform message id of the
// first relay send.
type RelayService struct {
	db     *gorm.DB
	logger *logrus.Logger
	sender Sender
	hub    *AdminHub
	cfg    *config.Config
}

func NewRelayService(db *gorm.DB, logger *logrus.Logger, sender Sender, hub *AdminHub, cfg *config.Config) *RelayService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RelayService{db: db, logger: logger, sender: sender, hub: hub, cfg: cfg}
}

// OpenSessionRequest starts a widget conversation.
type OpenSessionRequest struct {
	VisitorName  string `json:"visitor_name"`
	VisitorEmail string `json:"visitor_email"`
	VisitorPhone string `json:"visitor_phone"`
	Message      string `json:"message" binding:"required"`
}

// OpenSession creates a session for a first visitor message, relays it to
// the admin chat and persists the returned platform message id as the
// session's correlation id. Replies cannot precede that first send, so the
// window between session creation and correlation-id persistence never sees
// a routable reply in practice.
func (s *RelayService) OpenSession(ctx context.Context, req *OpenSessionRequest) (*models.ChatSession, error) {
	if !utils.ValidateMessage(req.Message) {
		return nil, fmt.Errorf("invalid message body")
	}

	session := &models.ChatSession{
		ID:           utils.GenerateSessionID(),
		VisitorName:  req.VisitorName,
		VisitorEmail: utils.NormalizeEmail(req.VisitorEmail),
		VisitorPhone: req.VisitorPhone,
		Status:       "active",
		StartedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	msg := &models.ChatMessage{
		SessionID: session.ID,
		Sender:    "visitor",
		Body:      req.Message,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to store first message: %w", err)
	}

	relayText := s.renderRelay(session, req.Message)
	platformID, err := s.sender.Send(ctx, s.cfg.Telegram.AdminChatID, relayText, nil)
	if err != nil {
		// The session stays usable from the widget; only reply routing is
		// unavailable until a later relay send succeeds.
		s.logger.Errorf("Failed to relay new session %s to admin chat: %v", session.ID, err)
		return session, nil
	}

	if err := s.setCorrelationID(ctx, session, platformID); err != nil {
		s.logger.Errorf("Failed to persist correlation id for session %s: %v", session.ID, err)
	}

	s.broadcast("session_opened", session.ID, session)
	return session, nil
}

// PostVisitorMessage appends a visitor message to an open session and
// relays it to the admin chat.
func (s *RelayService) PostVisitorMessage(ctx context.Context, sessionID, body string) (*models.ChatMessage, error) {
	if !utils.ValidateMessage(body) {
		return nil, fmt.Errorf("invalid message body")
	}

	var session models.ChatSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if session.Status == "closed" {
		return nil, fmt.Errorf("session %s is closed", sessionID)
	}

	msg := &models.ChatMessage{
		SessionID: session.ID,
		Sender:    "visitor",
		Body:      body,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	platformID, err := s.sender.Send(ctx, s.cfg.Telegram.AdminChatID, s.renderRelay(&session, body), nil)
	if err != nil {
		s.logger.Errorf("Failed to relay message for session %s: %v", session.ID, err)
	} else if session.CorrelationID == nil {
		// A session whose first relay send failed gets its correlation id
		// from the first send that succeeds.
		if err := s.setCorrelationID(ctx, &session, platformID); err != nil {
			s.logger.Errorf("Failed to persist correlation id for session %s: %v", session.ID, err)
		}
	}

	s.broadcast("visitor_message", session.ID, msg)
	return msg, nil
}

// RouteReply maps an admin reply's "in-reply-to" platform message id back
// to the session it belongs to and appends an admin message there. The
// second return value reports whether a session matched; a miss is not an
// error, the caller degrades the text into ordinary bot conversation.
func (s *RelayService) RouteReply(ctx context.Context, replyToID, platformMsgID int, text string) (*models.ChatMessage, bool, error) {
	var session models.ChatSession
	err := s.db.WithContext(ctx).First(&session, "correlation_id = ?", replyToID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up session by correlation id %d: %w", replyToID, err)
	}

	msg := &models.ChatMessage{
		SessionID:     session.ID,
		Sender:        "admin",
		Body:          text,
		PlatformMsgID: &platformMsgID,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, true, fmt.Errorf("failed to store admin reply: %w", err)
	}

	s.logger.Infof("Routed admin reply %d to session %s", platformMsgID, session.ID)
	s.broadcast("admin_message", session.ID, msg)
	return msg, true, nil
}

// AdminRelay forwards an admin console message to a Telegram chat with the
// support prefix.
func (s *RelayService) AdminRelay(ctx context.Context, chatID int64, message string) error {
	if !utils.ValidateMessage(message) {
		return fmt.Errorf("invalid message body")
	}
	text := "👨‍💼 <b>Support reply:</b>\n\n" + message
	if _, err := s.sender.Send(ctx, chatID, text, nil); err != nil {
		return err
	}
	return nil
}

func (s *RelayService) setCorrelationID(ctx context.Context, session *models.ChatSession, platformID int) error {
	// Set-once: never reassign a correlation id that is already present.
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ? AND correlation_id IS NULL", session.ID).
		Update("correlation_id", platformID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		session.CorrelationID = &platformID
	}
	return nil
}

func (s *RelayService) renderRelay(session *models.ChatSession, body string) string {
	var b strings.Builder
	b.WriteString("💬 <b>New message</b>\n")
	name := session.VisitorName
	if name == "" {
		name = "Visitor"
	}
	b.WriteString(fmt.Sprintf("From: %s", name))
	if session.VisitorEmail != "" {
		b.WriteString(fmt.Sprintf(" (%s)", session.VisitorEmail))
	}
	b.WriteString(fmt.Sprintf("\nSession: %s\n\n%s", session.ID, body))
	return b.String()
}

func (s *RelayService) broadcast(event, sessionID string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(AdminEvent{
		Type:      event,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	})
}
