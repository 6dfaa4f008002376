package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation states for the Telegram bot. The bot asks at most one
// question at a time; setting a new state overwrites the previous one.
const (
	StateIdle            = ""
	StateAwaitingEmail   = "awaiting_email"
	StateAwaitingOrderID = "awaiting_order_id"
)

// ChatSession is a single customer-support conversation thread.
type ChatSession struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	VisitorName   string     `json:"visitor_name"`
	VisitorEmail  string     `json:"visitor_email"`
	VisitorPhone  string     `json:"visitor_phone"`
	Status        string     `gorm:"default:'active';index" json:"status"` // active, waiting, closed
	CorrelationID *int       `gorm:"uniqueIndex" json:"correlation_id"`    // platform message id of the first relay send
	Category      string     `json:"category"`
	Priority      string     `json:"priority"` // low, medium, high, urgent
	AssigneeID    *uint      `gorm:"index" json:"assignee_id"`
	Tags          string     `json:"tags"` // comma separated
	Starred       bool       `gorm:"default:false" json:"starred"`
	Rating        *int       `json:"rating"` // 1-5, set after closure
	Feedback      string     `gorm:"type:text" json:"feedback"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"` // set iff status is closed
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Messages []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// ChatMessage belongs to exactly one ChatSession.
type ChatMessage struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionID     string    `gorm:"index;not null" json:"session_id"`
	Sender        string    `gorm:"not null" json:"sender"` // visitor, admin
	Body          string    `gorm:"type:text" json:"body"`
	Read          bool      `gorm:"default:false" json:"read"`
	AttachmentURL string    `json:"attachment_url"`
	PlatformMsgID *int      `gorm:"index" json:"platform_msg_id"` // reply-correlation anchor for outbound admin messages
	CreatedAt     time.Time `json:"created_at"`

	Session ChatSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// TelegramCustomer is a bot-linked identity, one row per external chat id.
type TelegramCustomer struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ChatID       int64      `gorm:"uniqueIndex;not null" json:"chat_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"` // normalized lower-case, set directly or via a link_<code> deep link
	Phone        string     `json:"phone"`
	NotifyOrders bool       `gorm:"default:true" json:"notify_orders"`
	NotifyPromos bool       `gorm:"default:false" json:"notify_promos"`
	NotifyStock  bool       `gorm:"default:false" json:"notify_stock"`
	Preferences  string     `gorm:"type:text" json:"preferences"`
	State        string     `gorm:"default:''" json:"state"` // idle, awaiting_email, awaiting_order_id
	LastActiveAt *time.Time `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ProductSubscription is a restock notification record.
type ProductSubscription struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ProductID  uint       `gorm:"index:idx_product_chat,unique;not null" json:"product_id"`
	ChatID     int64      `gorm:"index:idx_product_chat,unique;not null" json:"chat_id"`
	NotifiedAt *time.Time `json:"notified_at"` // null means pending notification
	CreatedAt  time.Time  `json:"created_at"`

	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// AbandonedCart is a snapshot of a cart at abandonment time.
type AbandonedCart struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Items      string     `gorm:"type:text" json:"items"` // JSON snapshot of cart items
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	ChatID     *int64     `gorm:"index" json:"chat_id"`
	RemindedAt *time.Time `json:"reminded_at"`
	Recovered  bool       `gorm:"default:false" json:"recovered"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Product is the slice of the catalog the bot browses.
type Product struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	PriceCents    int            `gorm:"not null" json:"price_cents"`
	Stock         int            `gorm:"default:0" json:"stock"`
	LowStockLevel int            `gorm:"default:5" json:"low_stock_level"`
	Category      string         `gorm:"index" json:"category"`
	Active        bool           `gorm:"default:true;index" json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Order is the read model for bot order lookups.
type Order struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderNumber string    `gorm:"uniqueIndex;not null" json:"order_number"`
	Email       string    `gorm:"index" json:"email"` // normalized lower-case
	Name        string    `json:"name"`
	Status      string    `gorm:"default:'pending'" json:"status"` // pending, paid, shipped, delivered, cancelled
	TotalCents  int       `json:"total_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Shipment      *Shipment            `gorm:"foreignKey:OrderID" json:"shipment,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"status_history,omitempty"`
}

// OrderStatusHistory records each order status change.
type OrderStatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	Status    string    `gorm:"not null" json:"status"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Shipment is the optional shipping sub-record of an order.
type Shipment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrderID        uint       `gorm:"uniqueIndex;not null" json:"order_id"`
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	ShippedAt      *time.Time `json:"shipped_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
}

// SupportMessage stores free text the bot could not route anywhere else.
type SupportMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    int64     `gorm:"index" json:"chat_id"`
	Username  string    `json:"username"`
	Body      string    `gorm:"type:text" json:"body"`
	Handled   bool      `gorm:"default:false" json:"handled"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyStats backs the analytics CSV export.
type DailyStats struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Date         time.Time `gorm:"uniqueIndex" json:"date"`
	RevenueCents int       `gorm:"default:0" json:"revenue_cents"`
	OrderCount   int       `gorm:"default:0" json:"order_count"`
	CreatedAt    time.Time `json:"created_at"`
}
