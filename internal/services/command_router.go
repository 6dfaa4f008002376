package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shoprelay/internal/config"
	"shoprelay/internal/models"
	"shoprelay/pkg/utils"
)

// CommandRouter turns direct bot interactions into exactly one outbound
// response plus storage mutations. Pagination state travels inside callback
// payloads; the only state kept between requests is the per-customer
// conversation state on the TelegramCustomer row.
type CommandRouter struct {
	db     *gorm.DB
	logger *logrus.Logger
	sender Sender
	cfg    *config.Config
}

func NewCommandRouter(db *gorm.DB, logger *logrus.Logger, sender Sender, cfg *config.Config) *CommandRouter {
	if logger == nil {
		logger = logrus.New()
	}
	return &CommandRouter{db: db, logger: logger, sender: sender, cfg: cfg}
}

// Inbound identifies the caller of a bot interaction.
type Inbound struct {
	ChatID    int64
	FirstName string
	LastName  string
	Username  string
}

// HandleMessage routes free text or a slash command.
func (r *CommandRouter) HandleMessage(ctx context.Context, in Inbound, text string) error {
	customer, err := r.upsertCustomer(ctx, in)
	if err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	var reply string
	var keyboard *tgbotapi.InlineKeyboardMarkup

	switch {
	case strings.HasPrefix(text, "/start"):
		reply, keyboard = r.handleStart(ctx, customer, text)
	case text == "/help":
		reply, keyboard = r.renderMenu(customer)
	case text == "/products":
		reply, keyboard, err = r.renderProductsPage(ctx, 0)
	case text == "/myorders":
		reply, err = r.handleMyOrders(ctx, customer)
	case text == "/track":
		reply, err = r.promptOrderID(ctx, customer)
	case text == "/subscribe":
		reply, keyboard, err = r.renderRestockCandidates(ctx)
	case text == "/notifications":
		reply, keyboard = r.renderNotificationPanel(customer)
	case text == "/categories":
		reply, keyboard, err = r.renderCategories(ctx)
	case customer.State == models.StateAwaitingEmail && strings.Contains(text, "@"):
		reply, err = r.lookupOrdersByEmail(ctx, customer, text)
	case customer.State == models.StateAwaitingOrderID:
		reply, err = r.trackOrder(ctx, customer, text)
	default:
		reply, keyboard, err = r.forwardToSupport(ctx, customer, text)
	}
	if err != nil {
		return err
	}

	_, err = r.sender.Send(ctx, in.ChatID, reply, keyboard)
	return err
}

// HandleCallback routes an inline keyboard button press.
func (r *CommandRouter) HandleCallback(ctx context.Context, in Inbound, data string) error {
	customer, err := r.upsertCustomer(ctx, in)
	if err != nil {
		return err
	}

	var reply string
	var keyboard *tgbotapi.InlineKeyboardMarkup

	switch {
	case data == "menu":
		reply, keyboard = r.renderMenu(customer)
	case strings.HasPrefix(data, "products_"):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, "products_"))
		reply, keyboard, err = r.renderProductsPage(ctx, page)
	case data == "myorders":
		reply, err = r.handleMyOrders(ctx, customer)
	case data == "track":
		reply, err = r.promptOrderID(ctx, customer)
	case data == "subscribe":
		reply, keyboard, err = r.renderRestockCandidates(ctx)
	case strings.HasPrefix(data, "subscribe_"):
		reply, err = r.subscribeToRestock(ctx, customer, strings.TrimPrefix(data, "subscribe_"))
	case data == "notifications":
		reply, keyboard = r.renderNotificationPanel(customer)
	case strings.HasPrefix(data, "toggle_"):
		reply, keyboard, err = r.togglePreference(ctx, customer, strings.TrimPrefix(data, "toggle_"))
	case data == "categories":
		reply, keyboard, err = r.renderCategories(ctx)
	case strings.HasPrefix(data, "category_"):
		reply, keyboard, err = r.renderCategoryProducts(ctx, strings.TrimPrefix(data, "category_"))
	default:
		r.logger.Warnf("Unknown callback payload %q from chat %d", data, in.ChatID)
		reply, keyboard = r.renderMenu(customer)
	}
	if err != nil {
		return err
	}

	_, err = r.sender.Send(ctx, in.ChatID, reply, keyboard)
	return err
}

// upsertCustomer keeps at most one row per chat id and stamps the
// last-interaction time on every inbound interaction.
func (r *CommandRouter) upsertCustomer(ctx context.Context, in Inbound) (*models.TelegramCustomer, error) {
	now := time.Now()
	customer := &models.TelegramCustomer{
		ChatID:       in.ChatID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		LastActiveAt: &now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "last_active_at", "updated_at"}),
	}).Create(customer).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer %d: %w", in.ChatID, err)
	}

	// Re-read so preference flags and conversation state reflect the stored
	// row, not the upsert struct.
	var stored models.TelegramCustomer
	if err := r.db.WithContext(ctx).First(&stored, "chat_id = ?", in.ChatID).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", in.ChatID, err)
	}
	return &stored, nil
}

func (r *CommandRouter) setState(ctx context.Context, customer *models.TelegramCustomer, state string) error {
	if err := r.db.WithContext(ctx).Model(&models.TelegramCustomer{}).
		Where("chat_id = ?", customer.ChatID).
		Update("state", state).Error; err != nil {
		return fmt.Errorf("failed to update conversation state: %w", err)
	}
	customer.State = state
	return nil
}

func (r *CommandRouter) handleStart(ctx context.Context, customer *models.TelegramCustomer, text string) (string, *tgbotapi.InlineKeyboardMarkup) {
	greeting := fmt.Sprintf("👋 Welcome to %s!", r.storeName())

	// /start link_<code> carries a base64 account-link code from the store
	// website.
	if param := strings.TrimSpace(strings.TrimPrefix(text, "/start")); strings.HasPrefix(param, "link_") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(param, "link_"))
		email := utils.NormalizeEmail(string(decoded))
		if err != nil || !strings.Contains(email, "@") {
			greeting += "\n\n⚠️ Failed to link your account. Please try the link from the website again."
		} else if err := r.db.WithContext(ctx).Model(&models.TelegramCustomer{}).
			Where("chat_id = ?", customer.ChatID).
			Update("email", email).Error; err != nil {
			r.logger.Errorf("Failed to link email for chat %d: %v", customer.ChatID, err)
			greeting += "\n\n⚠️ Failed to link your account. Please try again later."
		} else {
			customer.Email = email
			greeting += fmt.Sprintf("\n\n🔗 Account linked to <b>%s</b>.", email)
		}
	}

	text, keyboard := r.renderMenu(customer)
	return greeting + "\n\n" + text, keyboard
}

func (r *CommandRouter) renderMenu(_ *models.TelegramCustomer) (string, *tgbotapi.InlineKeyboardMarkup) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍 Products", "products_0"),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Categories", "categories"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 My orders", "myorders"),
			tgbotapi.NewInlineKeyboardButtonData("🚚 Track order", "track"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Notifications", "notifications"),
			tgbotapi.NewInlineKeyboardButtonData("📬 Restock alerts", "subscribe"),
		),
	)
	return "What can I help you with?", &keyboard
}

func (r *CommandRouter) renderProductsPage(ctx context.Context, page int) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	pageSize := r.cfg.Relay.ProductsPageSize

	// Total pages are recomputed from the current count on every request,
	// never cached.
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("active = ?", true).Count(&count).Error; err != nil {
		return "", nil, fmt.Errorf("failed to count products: %w", err)
	}
	if count == 0 {
		return "🛍 No products available right now.", nil, nil
	}

	totalPages := int(math.Ceil(float64(count) / float64(pageSize)))
	if page < 0 {
		page = 0
	}
	if page >= totalPages {
		page = totalPages - 1
	}

	var products []models.Product
	err := r.db.WithContext(ctx).Where("active = ?", true).
		Order("name ASC").Offset(page * pageSize).Limit(pageSize).
		Find(&products).Error
	if err != nil {
		return "", nil, fmt.Errorf("failed to list products: %w", err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🛍 <b>Products</b> (page %d/%d)\n\n", page+1, totalPages))
	for _, p := range products {
		b.WriteString(fmt.Sprintf("<b>%s</b> — %s\n%s\n\n", p.Name, utils.FormatCents(p.PriceCents), stockLabel(p.Stock)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("products_%d", page-1)))
	}
	if page < totalPages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("products_%d", page+1)))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Menu", "menu")))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return b.String(), &keyboard, nil
}

func stockLabel(stock int) string {
	if stock > 0 {
		return fmt.Sprintf("✅ In stock (%d)", stock)
	}
	return "❌ Out of stock"
}

func (r *CommandRouter) handleMyOrders(ctx context.Context, customer *models.TelegramCustomer) (string, error) {
	if customer.Email != "" {
		return r.renderOrders(ctx, customer.Email)
	}
	if err := r.setState(ctx, customer, models.StateAwaitingEmail); err != nil {
		return "", err
	}
	return "📦 Please send me the email address you ordered with.", nil
}

func (r *CommandRouter) lookupOrdersByEmail(ctx context.Context, customer *models.TelegramCustomer, text string) (string, error) {
	email := utils.NormalizeEmail(text)
	reply, err := r.renderOrders(ctx, email)
	if err != nil {
		return "", err
	}

	// Remember the email for next time and clear the pending question.
	if err := r.db.WithContext(ctx).Model(&models.TelegramCustomer{}).
		Where("chat_id = ?", customer.ChatID).
		Updates(map[string]interface{}{"email": email, "state": models.StateIdle}).Error; err != nil {
		return "", fmt.Errorf("failed to store email: %w", err)
	}
	customer.Email = email
	customer.State = models.StateIdle
	return reply, nil
}

func (r *CommandRouter) renderOrders(ctx context.Context, email string) (string, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).
		Order("created_at DESC").Limit(r.cfg.Relay.OrderLookupLimit).
		Find(&orders).Error
	if err != nil {
		return "", fmt.Errorf("failed to look up orders: %w", err)
	}
	if len(orders) == 0 {
		return fmt.Sprintf("📦 No orders found for <b>%s</b>.", email), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Your orders</b> (%s)\n\n", email))
	for _, o := range orders {
		b.WriteString(fmt.Sprintf("<b>%s</b> — %s — %s\nPlaced %s\n\n",
			o.OrderNumber, statusLabel(o.Status), utils.FormatCents(o.TotalCents), utils.FormatTime(o.CreatedAt)))
	}
	b.WriteString("Send /track to follow a specific order.")
	return b.String(), nil
}

func (r *CommandRouter) promptOrderID(ctx context.Context, customer *models.TelegramCustomer) (string, error) {
	if err := r.setState(ctx, customer, models.StateAwaitingOrderID); err != nil {
		return "", err
	}
	return "🚚 Please send me your order number.", nil
}

func (r *CommandRouter) trackOrder(ctx context.Context, customer *models.TelegramCustomer, query string) (string, error) {
	if err := r.setState(ctx, customer, models.StateIdle); err != nil {
		return "", err
	}

	query = strings.TrimSpace(query)
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Shipment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC").Limit(r.cfg.Relay.HistoryLimit)
		}).
		Where("order_number LIKE ?", query+"%").
		Order("created_at DESC").
		First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return fmt.Sprintf("🚚 No order matching <b>%s</b> was found.", query), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to track order: %w", err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚚 <b>Order %s</b>\nStatus: %s\nTotal: %s\n",
		order.OrderNumber, statusLabel(order.Status), utils.FormatCents(order.TotalCents)))
	if order.Shipment != nil && order.Shipment.TrackingNumber != "" {
		b.WriteString(fmt.Sprintf("Shipped via %s, tracking <code>%s</code>\n",
			order.Shipment.Carrier, order.Shipment.TrackingNumber))
	}
	if len(order.StatusHistory) > 0 {
		b.WriteString("\nRecent updates:\n")
		for _, h := range order.StatusHistory {
			b.WriteString(fmt.Sprintf("• %s — %s", utils.FormatTime(h.CreatedAt), statusLabel(h.Status)))
			if h.Note != "" {
				b.WriteString(" (" + h.Note + ")")
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func statusLabel(status string) string {
	switch status {
	case "pending":
		return "⏳ Pending"
	case "paid":
		return "💳 Paid"
	case "shipped":
		return "🚚 Shipped"
	case "delivered":
		return "✅ Delivered"
	case "cancelled":
		return "❌ Cancelled"
	default:
		return status
	}
}

func (r *CommandRouter) renderRestockCandidates(ctx context.Context) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("active = ? AND stock <= low_stock_level", true).
		Order("name ASC").Limit(10).
		Find(&products).Error
	if err != nil {
		return "", nil, fmt.Errorf("failed to list restock candidates: %w", err)
	}
	if len(products) == 0 {
		return "📬 Everything is well stocked right now — nothing to subscribe to.", nil, nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		label := fmt.Sprintf("%s (%s)", p.Name, stockLabel(p.Stock))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("subscribe_%d", p.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Menu", "menu")))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return "📬 Pick a product and I'll ping you when it's back in stock:", &keyboard, nil
}

func (r *CommandRouter) subscribeToRestock(ctx context.Context, customer *models.TelegramCustomer, rawID string) (string, error) {
	productID, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return "📬 That product no longer exists.", nil
	}

	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, uint(productID)).Error; err != nil {
		return "📬 That product no longer exists.", nil
	}

	sub := &models.ProductSubscription{ProductID: product.ID, ChatID: customer.ChatID}
	err = r.db.WithContext(ctx).
		Where("product_id = ? AND chat_id = ?", product.ID, customer.ChatID).
		FirstOrCreate(sub).Error
	if err != nil {
		return "", fmt.Errorf("failed to create subscription: %w", err)
	}
	return fmt.Sprintf("📬 You'll be notified when <b>%s</b> is back in stock.", product.Name), nil
}

func (r *CommandRouter) renderNotificationPanel(customer *models.TelegramCustomer) (string, *tgbotapi.InlineKeyboardMarkup) {
	flag := func(on bool) string {
		if on {
			return "🔔 on"
		}
		return "🔕 off"
	}
	text := fmt.Sprintf("🔔 <b>Notification settings</b>\n\nOrder updates: %s\nPromotions: %s\nStock alerts: %s",
		flag(customer.NotifyOrders), flag(customer.NotifyPromos), flag(customer.NotifyStock))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Toggle orders", "toggle_orders"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Toggle promotions", "toggle_promotions"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Toggle stock alerts", "toggle_stock"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏠 Menu", "menu"),
		),
	)
	return text, &keyboard
}

// togglePreference flips one flag, then re-renders the panel from the row
// that was just written so the UI never shows stale state.
func (r *CommandRouter) togglePreference(ctx context.Context, customer *models.TelegramCustomer, key string) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	var column string
	switch key {
	case "orders":
		column = "notify_orders"
	case "promotions":
		column = "notify_promos"
	case "stock":
		column = "notify_stock"
	default:
		text, keyboard := r.renderNotificationPanel(customer)
		return text, keyboard, nil
	}

	err := r.db.WithContext(ctx).Model(&models.TelegramCustomer{}).
		Where("chat_id = ?", customer.ChatID).
		Update(column, gorm.Expr("NOT "+column)).Error
	if err != nil {
		return "", nil, fmt.Errorf("failed to toggle %s: %w", key, err)
	}

	var updated models.TelegramCustomer
	if err := r.db.WithContext(ctx).First(&updated, "chat_id = ?", customer.ChatID).Error; err != nil {
		return "", nil, fmt.Errorf("failed to reload customer: %w", err)
	}
	text, keyboard := r.renderNotificationPanel(&updated)
	return text, keyboard, nil
}

func (r *CommandRouter) renderCategories(ctx context.Context) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	var categories []string
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("active = ? AND category <> ''", true).
		Distinct("category").Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return "", nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if len(categories) == 0 {
		return "🗂 No categories yet.", nil, nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, cat := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cat, "category_"+cat),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Menu", "menu")))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return "🗂 Browse by category:", &keyboard, nil
}

func (r *CommandRouter) renderCategoryProducts(ctx context.Context, category string) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("active = ? AND category = ?", true, category).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return "", nil, fmt.Errorf("failed to list category products: %w", err)
	}
	if len(products) == 0 {
		return fmt.Sprintf("🗂 No products in <b>%s</b>.", category), nil, nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s</b>\n\n", category))
	for _, p := range products {
		b.WriteString(fmt.Sprintf("<b>%s</b> — %s\n%s\n\n", p.Name, utils.FormatCents(p.PriceCents), stockLabel(p.Stock)))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗂 Categories", "categories"),
			tgbotapi.NewInlineKeyboardButtonData("🏠 Menu", "menu"),
		),
	)
	return b.String(), &keyboard, nil
}

// forwardToSupport stores unmatched free text as a support message and
// acknowledges with the main menu.
func (r *CommandRouter) forwardToSupport(ctx context.Context, customer *models.TelegramCustomer, text string) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	msg := &models.SupportMessage{
		ChatID:   customer.ChatID,
		Username: customer.Username,
		Body:     text,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return "", nil, fmt.Errorf("failed to store support message: %w", err)
	}

	reply, keyboard := r.renderMenu(customer)
	return "💬 Thanks! I've forwarded your message to our support team — they'll get back to you soon.\n\n" + reply, keyboard, nil
}

func (r *CommandRouter) storeName() string {
	if r.cfg.Relay.WebsiteBaseURL != "" {
		return strings.TrimPrefix(strings.TrimPrefix(r.cfg.Relay.WebsiteBaseURL, "https://"), "http://")
	}
	return "our store"
}
