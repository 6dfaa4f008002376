package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shoprelay/internal/models"
)

// SessionService is the back-office side of the support chat: listing,
// triage and lifecycle of chat sessions.
type SessionService struct {
	db     *gorm.DB
	logger *logrus.Logger
	hub    *AdminHub
}

func NewSessionService(db *gorm.DB, logger *logrus.Logger, hub *AdminHub) *SessionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &SessionService{db: db, logger: logger, hub: hub}
}

// SessionListRequest filters the session list.
type SessionListRequest struct {
	Page      int      `form:"page,default=1"`
	PageSize  int      `form:"page_size,default=20"`
	Status    []string `form:"status"`
	Priority  []string `form:"priority"`
	Category  string   `form:"category"`
	Starred   *bool    `form:"starred"`
	Search    string   `form:"search"`
	SortBy    string   `form:"sort_by,default=started_at"`
	SortOrder string   `form:"sort_order,default=desc"`
}

// SessionUpdateRequest patches triage fields; nil fields are untouched.
type SessionUpdateRequest struct {
	Status     *string `json:"status"`
	Category   *string `json:"category"`
	Priority   *string `json:"priority"`
	AssigneeID *uint   `json:"assignee_id"`
	Tags       *string `json:"tags"`
	Starred    *bool   `json:"starred"`
}

// SessionRateRequest records post-closure feedback.
type SessionRateRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback"`
}

func (s *SessionService) ListSessions(ctx context.Context, req *SessionListRequest) ([]models.ChatSession, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.ChatSession{})
	if len(req.Status) > 0 {
		query = query.Where("status IN ?", req.Status)
	}
	if len(req.Priority) > 0 {
		query = query.Where("priority IN ?", req.Priority)
	}
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	if req.Starred != nil {
		query = query.Where("starred = ?", *req.Starred)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("visitor_name LIKE ? OR visitor_email LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	sortBy := req.SortBy
	switch sortBy {
	case "started_at", "updated_at", "priority", "status":
	default:
		sortBy = "started_at"
	}
	order := sortBy + " DESC"
	if req.SortOrder == "asc" {
		order = sortBy + " ASC"
	}

	var sessions []models.ChatSession
	err := query.Order(order).
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.WithContext(ctx).Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return &session, nil
}

// UpdateSession patches triage fields. Moving to closed stamps ended_at;
// reopening clears it, keeping the ended-iff-closed invariant.
func (s *SessionService) UpdateSession(ctx context.Context, id string, req *SessionUpdateRequest) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	updates := map[string]interface{}{}
	if req.Status != nil {
		switch *req.Status {
		case "active", "waiting", "closed":
		default:
			return nil, fmt.Errorf("invalid status %q", *req.Status)
		}
		updates["status"] = *req.Status
		if *req.Status == "closed" {
			updates["ended_at"] = time.Now()
		} else {
			updates["ended_at"] = nil
		}
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.AssigneeID != nil {
		updates["assignee_id"] = *req.AssigneeID
	}
	if req.Tags != nil {
		updates["tags"] = *req.Tags
	}
	if req.Starred != nil {
		updates["starred"] = *req.Starred
	}
	if len(updates) == 0 {
		return &session, nil
	}

	if err := s.db.WithContext(ctx).Model(&session).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(AdminEvent{Type: "session_updated", SessionID: session.ID, Data: session, Timestamp: time.Now()})
	}
	return &session, nil
}

// RateSession records a 1-5 rating with feedback, allowed only after
// closure.
func (s *SessionService) RateSession(ctx context.Context, id string, req *SessionRateRequest) error {
	var session models.ChatSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if session.Status != "closed" {
		return fmt.Errorf("session %s is not closed", id)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}

	return s.db.WithContext(ctx).Model(&session).
		Updates(map[string]interface{}{"rating": req.Rating, "feedback": req.Feedback}).Error
}

// DeleteSessions bulk-deletes sessions, removing owned messages first.
func (s *SessionService) DeleteSessions(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&models.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&models.ChatSession{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete sessions: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infof("Bulk-deleted %d sessions", deleted)
	return deleted, nil
}

// MarkMessagesRead marks every unread message of a session as read.
func (s *SessionService) MarkMessagesRead(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("session_id = ? AND read = ?", sessionID, false).
		Update("read", true).Error
}
