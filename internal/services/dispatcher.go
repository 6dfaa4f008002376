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
)

// SweepResult aggregates one batch run for observability. A failed
// candidate is retried only on the next scheduled sweep, if still eligible.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Dispatcher runs the notification sweeps. Every sweep selects candidates
// under a hard eligibility predicate, sends sequentially with a fixed
// inter-send delay, and stamps the processed marker only after a successful
// send. Overlapping runs are safe because eligibility excludes anything
// already marked.
type Dispatcher struct {
	db     *gorm.DB
	logger *logrus.Logger
	sender Sender
	cfg    *config.Config
}

func NewDispatcher(db *gorm.DB, logger *logrus.Logger, sender Sender, cfg *config.Config) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{db: db, logger: logger, sender: sender, cfg: cfg}
}

// Run executes the sweep with the given name.
func (d *Dispatcher) Run(ctx context.Context, name string) (*SweepResult, error) {
	switch name {
	case "abandoned-carts":
		return d.SweepAbandonedCarts(ctx)
	case "low-stock":
		return d.SweepLowStock(ctx)
	case "back-in-stock":
		return d.SweepBackInStock(ctx)
	default:
		return nil, fmt.Errorf("unknown sweep %q", name)
	}
}

// SweepNames lists the sweeps Run accepts.
func SweepNames() []string {
	return []string{"abandoned-carts", "low-stock", "back-in-stock"}
}

// SweepAbandonedCarts reminds customers about carts older than the reminder
// age that were neither recovered nor already reminded.
func (d *Dispatcher) SweepAbandonedCarts(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-d.cfg.Relay.CartReminderAge)

	var carts []models.AbandonedCart
	err := d.db.WithContext(ctx).
		Where("reminded_at IS NULL AND recovered = ? AND created_at < ? AND chat_id IS NOT NULL", false, cutoff).
		Order("created_at ASC").
		Find(&carts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select abandoned carts: %w", err)
	}

	result := &SweepResult{}
	for i, cart := range carts {
		if i > 0 {
			d.pause(ctx)
		}
		result.Attempted++

		text := d.renderCartReminder(&cart)
		if _, err := d.sender.Send(ctx, *cart.ChatID, text, nil); err != nil {
			d.logger.Errorf("Cart reminder to chat %d (cart %d) failed: %v", *cart.ChatID, cart.ID, err)
			result.Failed++
			continue
		}

		now := time.Now()
		if err := d.db.WithContext(ctx).Model(&models.AbandonedCart{}).
			Where("id = ?", cart.ID).
			Update("reminded_at", now).Error; err != nil {
			// Delivered but not marked: the next run may remind once more.
			d.logger.Errorf("Failed to mark cart %d as reminded: %v", cart.ID, err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	d.logger.Infof("Abandoned-cart sweep done: attempted=%d succeeded=%d failed=%d",
		result.Attempted, result.Succeeded, result.Failed)
	return result, nil
}

// SweepLowStock alerts the admin chat about active products at or below
// their low-stock level. There is no processed marker: a product stays
// eligible until it is restocked, and the sweep cadence bounds the alert
// frequency.
func (d *Dispatcher) SweepLowStock(ctx context.Context) (*SweepResult, error) {
	var products []models.Product
	err := d.db.WithContext(ctx).
		Where("active = ? AND stock <= low_stock_level", true).
		Order("stock ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select low-stock products: %w", err)
	}

	result := &SweepResult{}
	for i, p := range products {
		if i > 0 {
			d.pause(ctx)
		}
		result.Attempted++

		text := fmt.Sprintf("⚠️ <b>Low stock</b>\n%s — %d left (alert level %d)", p.Name, p.Stock, p.LowStockLevel)
		if _, err := d.sender.Send(ctx, d.cfg.Telegram.AdminChatID, text, nil); err != nil {
			d.logger.Errorf("Low-stock alert for product %d failed: %v", p.ID, err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	d.logger.Infof("Low-stock sweep done: attempted=%d succeeded=%d failed=%d",
		result.Attempted, result.Succeeded, result.Failed)
	return result, nil
}

// SweepBackInStock notifies pending subscribers of products that are back
// in stock. notified_at is stamped only after a successful send, so
// delivery is at-least-once across a crash but never repeats once marked.
func (d *Dispatcher) SweepBackInStock(ctx context.Context) (*SweepResult, error) {
	var subs []models.ProductSubscription
	err := d.db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_subscriptions.product_id").
		Where("product_subscriptions.notified_at IS NULL AND products.stock > 0 AND products.active = ?", true).
		Preload("Product").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select restock subscriptions: %w", err)
	}

	result := &SweepResult{}
	for i, sub := range subs {
		if i > 0 {
			d.pause(ctx)
		}
		result.Attempted++

		text := fmt.Sprintf("🎉 <b>%s</b> is back in stock!\nGrab it before it's gone: %s",
			sub.Product.Name, d.productURL(sub.Product.ID))
		if _, err := d.sender.Send(ctx, sub.ChatID, text, nil); err != nil {
			d.logger.Errorf("Restock notification to chat %d (product %d) failed: %v", sub.ChatID, sub.ProductID, err)
			result.Failed++
			continue
		}

		now := time.Now()
		if err := d.db.WithContext(ctx).Model(&models.ProductSubscription{}).
			Where("id = ?", sub.ID).
			Update("notified_at", now).Error; err != nil {
			d.logger.Errorf("Failed to mark subscription %d as notified: %v", sub.ID, err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	d.logger.Infof("Back-in-stock sweep done: attempted=%d succeeded=%d failed=%d",
		result.Attempted, result.Succeeded, result.Failed)
	return result, nil
}

// pause is the platform rate-limit delay between sends.
func (d *Dispatcher) pause(ctx context.Context) {
	if d.cfg.Relay.SendDelay <= 0 {
		return
	}
	select {
	case <-time.After(d.cfg.Relay.SendDelay):
	case <-ctx.Done():
	}
}

func (d *Dispatcher) renderCartReminder(cart *models.AbandonedCart) string {
	var b strings.Builder
	b.WriteString("🛒 <b>You left something behind!</b>\n\n")
	if cart.Name != "" {
		b.WriteString(fmt.Sprintf("Hi %s, your cart is still waiting for you.\n", cart.Name))
	} else {
		b.WriteString("Your cart is still waiting for you.\n")
	}
	b.WriteString(fmt.Sprintf("Finish your checkout here: %s/cart", strings.TrimSuffix(d.cfg.Relay.WebsiteBaseURL, "/")))
	return b.String()
}

func (d *Dispatcher) productURL(productID uint) string {
	return fmt.Sprintf("%s/products/%d", strings.TrimSuffix(d.cfg.Relay.WebsiteBaseURL, "/"), productID)
}
