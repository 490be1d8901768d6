package handlers

import (
	"net/http"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DashboardHandler 仪表板处理器
type DashboardHandler struct {
	dashboardService *services.DashboardService
	logger           *logrus.Logger
}

func NewDashboardHandler(dashboardService *services.DashboardService, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		logger:           logger,
	}
}

// GetDashboard 当前用户的仪表板数据
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	stats, err := h.dashboardService.GetDashboardStats(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.logger.Errorf("Failed to get dashboard stats: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to get dashboard stats", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterDashboardRoutes 注册仪表板路由
func RegisterDashboardRoutes(r *gin.RouterGroup, handler *DashboardHandler) {
	dashboard := r.Group("/dashboard")
	dashboard.Use(middleware.RequireResourcePermission("dashboard"))
	{
		dashboard.GET("", handler.GetDashboard)
	}
}
