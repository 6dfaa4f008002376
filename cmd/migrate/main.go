package main

import (
	"fmt"
	"log"
	"os"

	"shoprelay/internal/config"
	"shoprelay/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	err = db.AutoMigrate(
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
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created ON chat_messages(session_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_chat_sessions_status_started ON chat_sessions(status, started_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_orders_email_created ON orders(email, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_abandoned_carts_eligibility ON abandoned_carts(reminded_at, recovered, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats(date)")

	log.Println("Additional indexes created successfully!")

	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	products := []models.Product{
		{Name: "Classic Tee", PriceCents: 2500, Stock: 40, LowStockLevel: 5, Category: "Apparel", Active: true},
		{Name: "Canvas Tote", PriceCents: 1800, Stock: 3, LowStockLevel: 5, Category: "Accessories", Active: true},
		{Name: "Enamel Mug", PriceCents: 1500, Stock: 0, LowStockLevel: 5, Category: "Homeware", Active: true},
	}
	for _, p := range products {
		var existing models.Product
		if err := db.Where("name = ?", p.Name).First(&existing).Error; err != nil {
			db.Create(&p)
			log.Printf("Created product %s", p.Name)
		}
	}
}
