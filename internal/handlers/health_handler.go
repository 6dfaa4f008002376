package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"shoprelay/internal/config"
)

// HealthHandler reports service and dependency health.
type HealthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewHealthHandler(db *gorm.DB, cfg *config.Config) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status    string                 `json:"status"` // healthy, degraded
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Health checks the database and reports whether Telegram delivery is
// configured. A degraded dependency still answers 200 so orchestrators do
// not restart a service that can partially serve.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).String(),
			GoVersion: runtime.Version(),
		},
	}

	if info := h.checkDatabase(ctx); info.Status != "healthy" {
		response.Status = "degraded"
		response.Services["database"] = info
	} else {
		response.Services["database"] = info
	}

	if h.cfg.Telegram.BotToken == "" {
		response.Services["telegram"] = ServiceInfo{Status: "unconfigured"}
		response.Status = "degraded"
	} else {
		response.Services["telegram"] = ServiceInfo{Status: "configured"}
	}

	c.JSON(http.StatusOK, response)
}

// Ready answers 200 only when the database accepts connections.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if info := h.checkDatabase(ctx); info.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": info.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()

	sqlDB, err := h.db.DB()
	if err != nil {
		return ServiceInfo{Status: "unhealthy", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ServiceInfo{Status: "unhealthy", Latency: time.Since(start).String(), Error: err.Error()}
	}

	stats := sqlDB.Stats()
	return ServiceInfo{
		Status:  "healthy",
		Latency: time.Since(start).String(),
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
		},
	}
}

// RegisterHealthRoutes mounts the health and readiness endpoints.
func RegisterHealthRoutes(r *gin.Engine, handler *HealthHandler) {
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
}
