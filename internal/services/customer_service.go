package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shoprelay/internal/models"
)

// CustomerService is the admin view over bot-linked customers.
type CustomerService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewCustomerService(db *gorm.DB, logger *logrus.Logger) *CustomerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CustomerService{db: db, logger: logger}
}

// CustomerListRequest filters the customer list.
type CustomerListRequest struct {
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
	Search    string `form:"search"`
	Linked    *bool  `form:"linked"` // filter on whether an email is linked
	SortBy    string `form:"sort_by,default=last_active_at"`
	SortOrder string `form:"sort_order,default=desc"`
}

func (s *CustomerService) ListCustomers(ctx context.Context, req *CustomerListRequest) ([]models.TelegramCustomer, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.TelegramCustomer{})
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR username LIKE ? OR email LIKE ?",
			like, like, like, like)
	}
	if req.Linked != nil {
		if *req.Linked {
			query = query.Where("email <> ''")
		} else {
			query = query.Where("email = ''")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	sortBy := req.SortBy
	switch sortBy {
	case "last_active_at", "created_at", "first_name", "username":
	default:
		sortBy = "last_active_at"
	}
	order := sortBy + " DESC"
	if req.SortOrder == "asc" {
		order = sortBy + " ASC"
	}

	var customers []models.TelegramCustomer
	err := query.Order(order).
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&customers).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, total, nil
}

// CustomerDetail bundles a customer with their restock subscriptions.
type CustomerDetail struct {
	models.TelegramCustomer
	Subscriptions []models.ProductSubscription `json:"subscriptions"`
}

func (s *CustomerService) GetCustomer(ctx context.Context, chatID int64) (*CustomerDetail, error) {
	var customer models.TelegramCustomer
	if err := s.db.WithContext(ctx).First(&customer, "chat_id = ?", chatID).Error; err != nil {
		return nil, fmt.Errorf("customer not found: %w", err)
	}

	var subs []models.ProductSubscription
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("chat_id = ?", chatID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	return &CustomerDetail{TelegramCustomer: customer, Subscriptions: subs}, nil
}

// CustomerStats summarizes the bot audience.
type CustomerStats struct {
	Total         int64 `json:"total"`
	Linked        int64 `json:"linked"`          // customers with a linked email
	OptedInOrders int64 `json:"opted_in_orders"` // order notifications on
	OptedInPromos int64 `json:"opted_in_promos"`
	OptedInStock  int64 `json:"opted_in_stock"`
	ActiveLast7d  int64 `json:"active_last_7d"`
}

func (s *CustomerService) GetCustomerStats(ctx context.Context) (*CustomerStats, error) {
	stats := &CustomerStats{}
	db := s.db.WithContext(ctx).Model(&models.TelegramCustomer{})

	if err := db.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	db.Session(&gorm.Session{}).Where("email <> ''").Count(&stats.Linked)
	db.Session(&gorm.Session{}).Where("notify_orders = ?", true).Count(&stats.OptedInOrders)
	db.Session(&gorm.Session{}).Where("notify_promos = ?", true).Count(&stats.OptedInPromos)
	db.Session(&gorm.Session{}).Where("notify_stock = ?", true).Count(&stats.OptedInStock)
	db.Session(&gorm.Session{}).Where("last_active_at > ?", time.Now().AddDate(0, 0, -7)).Count(&stats.ActiveLast7d)

	return stats, nil
}
