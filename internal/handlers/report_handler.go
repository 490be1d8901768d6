package handlers

import (
	"net/http"
	"time"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReportHandler 报表处理器
type ReportHandler struct {
	reportService *services.ReportService
	logger        *logrus.Logger
}

func NewReportHandler(reportService *services.ReportService, logger *logrus.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// parseReportRange 解析 start/end 查询参数（YYYY-MM-DD，可缺省）
func parseReportRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	if v := c.Query("start"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid start date", Message: "expected YYYY-MM-DD"})
			return start, end, false
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid end date", Message: "expected YYYY-MM-DD"})
			return start, end, false
		}
		end = t
	}
	return start, end, true
}

// Pipeline 管道报表
func (h *ReportHandler) Pipeline(c *gin.Context) {
	start, end, ok := parseReportRange(c)
	if !ok {
		return
	}

	report, err := h.reportService.GetPipelineReport(c.Request.Context(), c.GetString("user_id"), start, end)
	if err != nil {
		h.logger.Errorf("Failed to build pipeline report: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build pipeline report", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Activity 活动报表
func (h *ReportHandler) Activity(c *gin.Context) {
	start, end, ok := parseReportRange(c)
	if !ok {
		return
	}

	report, err := h.reportService.GetActivityReport(c.Request.Context(), c.GetString("user_id"), start, end)
	if err != nil {
		h.logger.Errorf("Failed to build activity report: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build activity report", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// WinLoss 赢单输单报表
func (h *ReportHandler) WinLoss(c *gin.Context) {
	start, end, ok := parseReportRange(c)
	if !ok {
		return
	}

	report, err := h.reportService.GetWinLossReport(c.Request.Context(), c.GetString("user_id"), start, end)
	if err != nil {
		h.logger.Errorf("Failed to build win/loss report: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build win/loss report", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// RegisterReportRoutes 注册报表路由
func RegisterReportRoutes(r *gin.RouterGroup, handler *ReportHandler) {
	reports := r.Group("/reports")
	reports.Use(middleware.RequireResourcePermission("reports"))
	{
		reports.GET("/pipeline", handler.Pipeline)
		reports.GET("/activity", handler.Activity)
		reports.GET("/winloss", handler.WinLoss)
	}
}
