package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shoprelay/internal/models"
	"shoprelay/pkg/utils"
)

// ExportHandler renders the admin CSV exports.
type ExportHandler struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewExportHandler(db *gorm.DB, logger *logrus.Logger) *ExportHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExportHandler{db: db, logger: logger}
}

// ExportCustomers streams the bot customer list as CSV.
func (h *ExportHandler) ExportCustomers(c *gin.Context) {
	var customers []models.TelegramCustomer
	if err := h.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&customers).Error; err != nil {
		h.logger.Errorf("Failed to export customers: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to export customers", Message: err.Error()})
		return
	}

	var b strings.Builder
	writeCSVRow(&b, "Name", "Username", "Email", "Phone", "Chat ID", "Last Active", "Joined")
	for _, cust := range customers {
		lastActive := ""
		if cust.LastActiveAt != nil {
			lastActive = utils.FormatTime(*cust.LastActiveAt)
		}
		name := strings.TrimSpace(cust.FirstName + " " + cust.LastName)
		writeCSVRow(&b, name, cust.Username, cust.Email, cust.Phone,
			strconv.FormatInt(cust.ChatID, 10), lastActive, utils.FormatTime(cust.CreatedAt))
	}

	sendCSV(c, "customers.csv", b.String())
}

// ExportAnalytics streams daily revenue/order counts as CSV.
func (h *ExportHandler) ExportAnalytics(c *gin.Context) {
	var stats []models.DailyStats
	if err := h.db.WithContext(c.Request.Context()).Order("date ASC").Find(&stats).Error; err != nil {
		h.logger.Errorf("Failed to export analytics: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to export analytics", Message: err.Error()})
		return
	}

	var b strings.Builder
	writeCSVRow(&b, "Date", "Revenue", "Orders")
	for _, s := range stats {
		writeCSVRow(&b, s.Date.Format("2006-01-02"),
			fmt.Sprintf("%d.%02d", s.RevenueCents/100, s.RevenueCents%100),
			strconv.Itoa(s.OrderCount))
	}

	sendCSV(c, "analytics.csv", b.String())
}

func writeCSVRow(b *strings.Builder, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(utils.CSVField(f))
	}
	b.WriteString("\n")
}

func sendCSV(c *gin.Context, filename, body string) {
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

// RegisterExportRoutes mounts the CSV export endpoints.
func RegisterExportRoutes(r *gin.RouterGroup, handler *ExportHandler) {
	export := r.Group("/admin/export")
	{
		export.GET("/customers.csv", handler.ExportCustomers)
		export.GET("/analytics.csv", handler.ExportAnalytics)
	}
}
