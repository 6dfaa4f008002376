package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shoprelay/internal/models"
	"shoprelay/pkg/utils"
)

func newSessionServiceForTest(t *testing.T) (*SessionService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSessionService(db, logrus.New(), nil), db
}

func seedSession(t *testing.T, db *gorm.DB, name, status string) *models.ChatSession {
	t.Helper()
	session := &models.ChatSession{
		ID:          utils.GenerateSessionID(),
		VisitorName: name,
		Status:      status,
		StartedAt:   time.Now(),
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

func TestSessionService_ListFilters(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()

	seedSession(t, db, "Alice", "active")
	seedSession(t, db, "Bob", "closed")
	seedSession(t, db, "Alicia", "active")

	sessions, total, err := svc.ListSessions(ctx, &SessionListRequest{Status: []string{"active"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(sessions) != 2 {
		t.Fatalf("expected 2 active sessions, got total=%d len=%d", total, len(sessions))
	}

	sessions, total, err = svc.ListSessions(ctx, &SessionListRequest{Search: "Alic"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 search hits, got %d", total)
	}
	for _, s := range sessions {
		if s.VisitorName == "Bob" {
			t.Fatal("search must not match Bob")
		}
	}
}

func TestSessionService_ListPagination(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedSession(t, db, "Visitor", "active")
	}

	sessions, total, err := svc.ListSessions(ctx, &SessionListRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(sessions) != 2 {
		t.Fatalf("expected page 2 of 5 with 2 rows, got total=%d len=%d", total, len(sessions))
	}
}

func TestSessionService_CloseAndReopen(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()
	session := seedSession(t, db, "Alice", "active")

	closed := "closed"
	if _, err := svc.UpdateSession(ctx, session.ID, &SessionUpdateRequest{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	var stored models.ChatSession
	db.First(&stored, "id = ?", session.ID)
	if stored.Status != "closed" || stored.EndedAt == nil {
		t.Fatalf("expected closed with ended_at, got status=%q ended_at=%v", stored.Status, stored.EndedAt)
	}

	active := "active"
	if _, err := svc.UpdateSession(ctx, session.ID, &SessionUpdateRequest{Status: &active}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	// Reload into a fresh struct; gorm leaves stale fields in place when
	// scanning NULL into a reused destination.
	stored = models.ChatSession{}
	db.First(&stored, "id = ?", session.ID)
	if stored.Status != "active" || stored.EndedAt != nil {
		t.Fatalf("expected reopen to clear ended_at, got status=%q ended_at=%v", stored.Status, stored.EndedAt)
	}
}

func TestSessionService_UpdateRejectsBadStatus(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	session := seedSession(t, db, "Alice", "active")

	bad := "archived"
	if _, err := svc.UpdateSession(context.Background(), session.ID, &SessionUpdateRequest{Status: &bad}); err == nil {
		t.Fatal("expected an invalid status to be rejected")
	}
}

func TestSessionService_RateRequiresClosed(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()
	session := seedSession(t, db, "Alice", "active")

	if err := svc.RateSession(ctx, session.ID, &SessionRateRequest{Rating: 5}); err == nil {
		t.Fatal("expected rating an open session to fail")
	}

	db.Model(&models.ChatSession{}).Where("id = ?", session.ID).Update("status", "closed")
	if err := svc.RateSession(ctx, session.ID, &SessionRateRequest{Rating: 4, Feedback: "quick and helpful"}); err != nil {
		t.Fatalf("rate closed session: %v", err)
	}

	var stored models.ChatSession
	db.First(&stored, "id = ?", session.ID)
	if stored.Rating == nil || *stored.Rating != 4 || stored.Feedback != "quick and helpful" {
		t.Fatalf("expected rating persisted, got rating=%v feedback=%q", stored.Rating, stored.Feedback)
	}

	if err := svc.RateSession(ctx, session.ID, &SessionRateRequest{Rating: 9}); err == nil {
		t.Fatal("expected an out-of-range rating to fail")
	}
}

func TestSessionService_BulkDeleteCascadesMessages(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()

	doomed := seedSession(t, db, "Alice", "closed")
	kept := seedSession(t, db, "Bob", "active")
	db.Create(&models.ChatMessage{SessionID: doomed.ID, Sender: "visitor", Body: "bye"})
	db.Create(&models.ChatMessage{SessionID: kept.ID, Sender: "visitor", Body: "hi"})

	deleted, err := svc.DeleteSessions(ctx, []string{doomed.ID, "missing-id"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}

	var msgCount int64
	db.Model(&models.ChatMessage{}).Where("session_id = ?", doomed.ID).Count(&msgCount)
	if msgCount != 0 {
		t.Fatalf("expected messages of the deleted session gone, got %d", msgCount)
	}
	db.Model(&models.ChatMessage{}).Where("session_id = ?", kept.ID).Count(&msgCount)
	if msgCount != 1 {
		t.Fatalf("expected the other session's messages untouched, got %d", msgCount)
	}
}

func TestSessionService_MarkMessagesRead(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()
	session := seedSession(t, db, "Alice", "active")

	db.Create(&models.ChatMessage{SessionID: session.ID, Sender: "visitor", Body: "one"})
	db.Create(&models.ChatMessage{SessionID: session.ID, Sender: "visitor", Body: "two"})

	if err := svc.MarkMessagesRead(ctx, session.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	var unread int64
	db.Model(&models.ChatMessage{}).Where("session_id = ? AND read = ?", session.ID, false).Count(&unread)
	if unread != 0 {
		t.Fatalf("expected no unread messages, got %d", unread)
	}
}

func TestSessionService_GetSessionOrdersMessages(t *testing.T) {
	svc, db := newSessionServiceForTest(t)
	ctx := context.Background()
	session := seedSession(t, db, "Alice", "active")

	first := models.ChatMessage{SessionID: session.ID, Sender: "visitor", Body: "first"}
	db.Create(&first)
	db.Model(&first).Update("created_at", time.Now().Add(-time.Minute))
	db.Create(&models.ChatMessage{SessionID: session.ID, Sender: "admin", Body: "second"})

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Body != "first" || got.Messages[1].Body != "second" {
		t.Fatalf("expected ascending order, got %q then %q", got.Messages[0].Body, got.Messages[1].Body)
	}
}
