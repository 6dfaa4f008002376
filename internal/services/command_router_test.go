package services

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"shoprelay/internal/models"
)

func newRouterForTest(t *testing.T) (*CommandRouter, *fakeSender) {
	t.Helper()
	db := newTestDB(t)
	sender := newFakeSender()
	return NewCommandRouter(db, logrus.New(), sender, testConfig()), sender
}

func testInbound(chatID int64) Inbound {
	return Inbound{ChatID: chatID, FirstName: "Test", Username: "tester"}
}

func TestCommandRouter_StartShowsMenu(t *testing.T) {
	router, sender := newRouterForTest(t)

	if err := router.HandleMessage(context.Background(), testInbound(100), "/start"); err != nil {
		t.Fatalf("handle /start: %v", err)
	}

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Text, "Welcome") {
		t.Errorf("expected a greeting, got %q", sent[0].Text)
	}
	if sent[0].Keyboard == nil {
		t.Error("expected the main menu keyboard")
	}

	var customer models.TelegramCustomer
	if err := router.db.First(&customer, "chat_id = ?", int64(100)).Error; err != nil {
		t.Fatalf("expected customer row to exist: %v", err)
	}
	if customer.LastActiveAt == nil {
		t.Error("expected last_active_at to be stamped")
	}
}

func TestCommandRouter_StartDeepLinkLinksEmail(t *testing.T) {
	router, sender := newRouterForTest(t)

	code := base64.StdEncoding.EncodeToString([]byte("Shopper@Example.COM"))
	if err := router.HandleMessage(context.Background(), testInbound(101), "/start link_"+code); err != nil {
		t.Fatalf("handle deep link: %v", err)
	}

	var customer models.TelegramCustomer
	if err := router.db.First(&customer, "chat_id = ?", int64(101)).Error; err != nil {
		t.Fatalf("load customer: %v", err)
	}
	if customer.Email != "shopper@example.com" {
		t.Fatalf("expected linked email to be normalized, got %q", customer.Email)
	}
	if !strings.Contains(sender.sent()[0].Text, "Account linked") {
		t.Errorf("expected link confirmation, got %q", sender.sent()[0].Text)
	}
}

func TestCommandRouter_EmailLookupIsCaseInsensitive(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	order := models.Order{OrderNumber: "ORD-1001", Email: "shopper@example.com", Status: "shipped", TotalCents: 4599}
	if err := router.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	// /myorders without a linked email asks for one and sets the pending
	// question on the customer row.
	if err := router.HandleMessage(ctx, testInbound(102), "/myorders"); err != nil {
		t.Fatalf("handle /myorders: %v", err)
	}
	var customer models.TelegramCustomer
	router.db.First(&customer, "chat_id = ?", int64(102))
	if customer.State != models.StateAwaitingEmail {
		t.Fatalf("expected awaiting_email state, got %q", customer.State)
	}

	// The follow-up email matches regardless of case and clears the state.
	if err := router.HandleMessage(ctx, testInbound(102), "  Shopper@Example.COM "); err != nil {
		t.Fatalf("handle email reply: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "ORD-1001") {
		t.Fatalf("expected the order in the reply, got %q", reply.Text)
	}

	router.db.First(&customer, "chat_id = ?", int64(102))
	if customer.State != models.StateIdle {
		t.Errorf("expected state cleared, got %q", customer.State)
	}
	if customer.Email != "shopper@example.com" {
		t.Errorf("expected email remembered normalized, got %q", customer.Email)
	}

	// Next /myorders skips the email question.
	if err := router.HandleMessage(ctx, testInbound(102), "/myorders"); err != nil {
		t.Fatalf("handle second /myorders: %v", err)
	}
	reply = sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "ORD-1001") {
		t.Fatalf("expected a direct order list, got %q", reply.Text)
	}
}

func TestCommandRouter_TrackOrderClearsStateEvenOnMiss(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	if err := router.HandleMessage(ctx, testInbound(103), "/track"); err != nil {
		t.Fatalf("handle /track: %v", err)
	}
	var customer models.TelegramCustomer
	router.db.First(&customer, "chat_id = ?", int64(103))
	if customer.State != models.StateAwaitingOrderID {
		t.Fatalf("expected awaiting_order_id state, got %q", customer.State)
	}

	if err := router.HandleMessage(ctx, testInbound(103), "ORD-NOPE"); err != nil {
		t.Fatalf("handle order number: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "No order matching") {
		t.Fatalf("expected a miss message, got %q", reply.Text)
	}

	router.db.First(&customer, "chat_id = ?", int64(103))
	if customer.State != models.StateIdle {
		t.Errorf("expected state cleared after a miss, got %q", customer.State)
	}
}

func TestCommandRouter_TrackOrderPrefixMatch(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	order := models.Order{OrderNumber: "ORD-2002", Email: "a@b.com", Status: "shipped", TotalCents: 1200}
	if err := router.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	ship := models.Shipment{OrderID: order.ID, Carrier: "DHL", TrackingNumber: "JD014600003"}
	if err := router.db.Create(&ship).Error; err != nil {
		t.Fatalf("seed shipment: %v", err)
	}

	if err := router.HandleMessage(ctx, testInbound(104), "/track"); err != nil {
		t.Fatalf("handle /track: %v", err)
	}
	if err := router.HandleMessage(ctx, testInbound(104), "ORD-20"); err != nil {
		t.Fatalf("handle partial order number: %v", err)
	}

	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "ORD-2002") || !strings.Contains(reply.Text, "JD014600003") {
		t.Fatalf("expected order and tracking number in reply, got %q", reply.Text)
	}
}

func TestCommandRouter_ProductPaginationClampsPage(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf"}
	for _, n := range names {
		if err := router.db.Create(&models.Product{Name: n, PriceCents: 999, Stock: 3, Active: true}).Error; err != nil {
			t.Fatalf("seed product %s: %v", n, err)
		}
	}

	// Page size is 5, so 7 products make 2 pages. Page 9 clamps to the last.
	if err := router.HandleCallback(ctx, testInbound(105), "products_9"); err != nil {
		t.Fatalf("handle products callback: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "page 2/2") {
		t.Fatalf("expected a clamped last page, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Golf") {
		t.Errorf("expected second-page products, got %q", reply.Text)
	}

	if err := router.HandleCallback(ctx, testInbound(105), "products_0"); err != nil {
		t.Fatalf("handle first page: %v", err)
	}
	reply = sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "page 1/2") || !strings.Contains(reply.Text, "Alpha") {
		t.Fatalf("expected the first page, got %q", reply.Text)
	}
}

func TestCommandRouter_ProductListSkipsInactive(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	router.db.Create(&models.Product{Name: "Visible", PriceCents: 100, Stock: 1, Active: true})
	hidden := models.Product{Name: "Hidden", PriceCents: 100, Stock: 1}
	router.db.Create(&hidden)
	// Force the flag off; gorm skips zero-value fields with a column default.
	router.db.Model(&hidden).Update("active", false)

	if err := router.HandleMessage(ctx, testInbound(106), "/products"); err != nil {
		t.Fatalf("handle /products: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "Visible") || strings.Contains(reply.Text, "Hidden") {
		t.Fatalf("expected only active products, got %q", reply.Text)
	}
}

func TestCommandRouter_TogglePreferenceReRendersFreshRow(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	if err := router.HandleCallback(ctx, testInbound(107), "toggle_stock"); err != nil {
		t.Fatalf("handle toggle: %v", err)
	}
	var customer models.TelegramCustomer
	router.db.First(&customer, "chat_id = ?", int64(107))
	if !customer.NotifyStock {
		t.Fatal("expected stock alerts toggled on")
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "Stock alerts: 🔔 on") {
		t.Fatalf("expected the panel to reflect the new value, got %q", reply.Text)
	}

	// Toggling again flips it back.
	if err := router.HandleCallback(ctx, testInbound(107), "toggle_stock"); err != nil {
		t.Fatalf("handle second toggle: %v", err)
	}
	router.db.First(&customer, "chat_id = ?", int64(107))
	if customer.NotifyStock {
		t.Fatal("expected stock alerts toggled back off")
	}
}

func TestCommandRouter_SubscribeIsIdempotent(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	product := models.Product{Name: "Rare item", PriceCents: 5000, Stock: 0, LowStockLevel: 5, Active: true}
	if err := router.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := router.HandleCallback(ctx, testInbound(108), "subscribe_1"); err != nil {
			t.Fatalf("handle subscribe (attempt %d): %v", i+1, err)
		}
	}

	var count int64
	router.db.Model(&models.ProductSubscription{}).
		Where("product_id = ? AND chat_id = ?", product.ID, int64(108)).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected a single subscription row, got %d", count)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "Rare item") {
		t.Errorf("expected confirmation naming the product, got %q", reply.Text)
	}
}

func TestCommandRouter_SubscribeUnknownProduct(t *testing.T) {
	router, sender := newRouterForTest(t)

	if err := router.HandleCallback(context.Background(), testInbound(109), "subscribe_404"); err != nil {
		t.Fatalf("handle subscribe: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "no longer exists") {
		t.Fatalf("expected a graceful miss, got %q", reply.Text)
	}
}

func TestCommandRouter_FreeTextGoesToSupport(t *testing.T) {
	router, sender := newRouterForTest(t)

	if err := router.HandleMessage(context.Background(), testInbound(110), "where is my invoice?"); err != nil {
		t.Fatalf("handle free text: %v", err)
	}

	var msg models.SupportMessage
	if err := router.db.First(&msg, "chat_id = ?", int64(110)).Error; err != nil {
		t.Fatalf("expected a stored support message: %v", err)
	}
	if msg.Body != "where is my invoice?" {
		t.Fatalf("unexpected support message body %q", msg.Body)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "forwarded your message") {
		t.Errorf("expected a support acknowledgement, got %q", reply.Text)
	}
}

func TestCommandRouter_CategoriesBrowse(t *testing.T) {
	router, sender := newRouterForTest(t)
	ctx := context.Background()

	router.db.Create(&models.Product{Name: "Mug", PriceCents: 900, Stock: 4, Category: "Kitchen", Active: true})
	router.db.Create(&models.Product{Name: "Lamp", PriceCents: 2400, Stock: 2, Category: "Home", Active: true})

	if err := router.HandleMessage(ctx, testInbound(111), "/categories"); err != nil {
		t.Fatalf("handle /categories: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if reply.Keyboard == nil || len(reply.Keyboard.InlineKeyboard) != 3 {
		t.Fatalf("expected 2 category buttons plus menu, got %+v", reply.Keyboard)
	}

	if err := router.HandleCallback(ctx, testInbound(111), "category_Kitchen"); err != nil {
		t.Fatalf("handle category callback: %v", err)
	}
	reply = sender.sent()[len(sender.sent())-1]
	if !strings.Contains(reply.Text, "Mug") || strings.Contains(reply.Text, "Lamp") {
		t.Fatalf("expected only Kitchen products, got %q", reply.Text)
	}
}

func TestCommandRouter_UnknownCallbackFallsBackToMenu(t *testing.T) {
	router, sender := newRouterForTest(t)

	if err := router.HandleCallback(context.Background(), testInbound(112), "bogus_payload"); err != nil {
		t.Fatalf("handle unknown callback: %v", err)
	}
	reply := sender.sent()[len(sender.sent())-1]
	if reply.Keyboard == nil || !strings.Contains(reply.Text, "What can I help you with?") {
		t.Fatalf("expected a menu fallback, got %q", reply.Text)
	}
}
