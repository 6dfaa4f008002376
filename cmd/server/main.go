package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shoprelay/internal/config"
	"shoprelay/internal/handlers"
	"shoprelay/internal/middleware"
	"shoprelay/internal/models"
	"shoprelay/internal/observability"
	"shoprelay/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// Read ./config.yml (env vars override) and initialize logging.
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		appLogger.Warnf("Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	if err := db.AutoMigrate(
		&models.ChatSession{}, &models.ChatMessage{}, &models.TelegramCustomer{},
		&models.ProductSubscription{}, &models.AbandonedCart{}, &models.Product{},
		&models.Order{}, &models.OrderStatusHistory{}, &models.Shipment{},
		&models.SupportMessage{}, &models.DailyStats{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	sender, err := services.NewTelegramSender(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize Telegram sender: %v", err)
	}

	hub := services.NewAdminHub()
	go hub.Run()

	relayService := services.NewRelayService(db, appLogger, sender, hub, cfg)
	commandRouter := services.NewCommandRouter(db, appLogger, sender, cfg)
	dispatcher := services.NewDispatcher(db, appLogger, sender, cfg)
	sessionService := services.NewSessionService(db, appLogger, hub)
	customerService := services.NewCustomerService(db, appLogger)

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(db, cfg))
	r.GET("/ws/admin", hub.HandleWebSocket)

	api := r.Group("/api")
	handlers.RegisterWebhookRoutes(api, handlers.NewWebhookHandler(commandRouter, relayService, appLogger))
	handlers.RegisterRelayRoutes(api, handlers.NewRelayHandler(relayService, dispatcher, appLogger))
	handlers.RegisterSessionRoutes(api, handlers.NewSessionHandler(sessionService, appLogger))
	handlers.RegisterCustomerRoutes(api, handlers.NewCustomerHandler(customerService, appLogger))
	handlers.RegisterExportRoutes(api, handlers.NewExportHandler(db, appLogger))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: r}
	go func() {
		appLogger.Infof("Starting server on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	_ = shutdownTracing(shutdownCtx)
	appLogger.Info("Server exited")
}

// corsMiddleware answers CORS preflight and applies the configured origin
// allow-list.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	cors := cfg.Security.CORS
	return func(c *gin.Context) {
		if !cors.Enabled {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		allowed := ""
		for _, o := range cors.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = o
				break
			}
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", strings.Join(cors.AllowedMethods, ", "))
			c.Header("Access-Control-Allow-Headers", strings.Join(cors.AllowedHeaders, ", "))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
