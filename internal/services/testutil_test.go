package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shoprelay/internal/config"
	"shoprelay/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:services_" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.TelegramCustomer{},
		&models.ProductSubscription{},
		&models.AbandonedCart{},
		&models.Product{},
		&models.Order{},
		&models.OrderStatusHistory{},
		&models.Shipment{},
		&models.SupportMessage{},
		&models.DailyStats{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Relay.SendDelay = 0
	cfg.Telegram.AdminChatID = 777
	return cfg
}

type sentMessage struct {
	ChatID   int64
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

// fakeSender records every send and can be told to fail specific calls.
type fakeSender struct {
	mu     sync.Mutex
	sends  []sentMessage
	calls  int
	nextID int
	failOn map[int]bool // 1-based call index -> fail
}

func newFakeSender() *fakeSender {
	return &fakeSender{failOn: make(map[int]bool)}
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failOn[f.calls] {
		return 0, fmt.Errorf("simulated send failure on call %d", f.calls)
	}
	f.sends = append(f.sends, sentMessage{ChatID: chatID, Text: text, Keyboard: keyboard})
	f.nextID++
	return 1000 + f.nextID, nil
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sends))
	copy(out, f.sends)
	return out
}
