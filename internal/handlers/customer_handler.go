package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shoprelay/internal/services"
)

// CustomerHandler exposes the admin view over bot-linked customers.
type CustomerHandler struct {
	customers *services.CustomerService
	logger    *logrus.Logger
}

func NewCustomerHandler(customers *services.CustomerService, logger *logrus.Logger) *CustomerHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CustomerHandler{customers: customers, logger: logger}
}

// ListCustomers returns a paginated, filterable customer list.
func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	var req services.CustomerListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}

	customers, total, err := h.customers.ListCustomers(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list customers: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list customers", Message: err.Error()})
		return
	}

	pages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     customers,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pages,
	})
}

// GetCustomer returns one customer with their restock subscriptions, keyed
// by the external chat id.
func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid chat ID", Message: "chat ID must be a valid number"})
		return
	}

	detail, err := h.customers.GetCustomer(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Customer not found", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetCustomerStats summarizes the bot audience.
func (h *CustomerHandler) GetCustomerStats(c *gin.Context) {
	stats, err := h.customers.GetCustomerStats(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get customer stats: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to get customer statistics", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterCustomerRoutes mounts the admin customer endpoints.
func RegisterCustomerRoutes(r *gin.RouterGroup, handler *CustomerHandler) {
	customers := r.Group("/admin/customers")
	{
		customers.GET("", handler.ListCustomers)
		customers.GET("/stats", handler.GetCustomerStats)
		customers.GET("/:chat_id", handler.GetCustomer)
	}
}
