package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IntelHandler 公司情报处理器
type IntelHandler struct {
	intelService *services.IntelService
	logger       *logrus.Logger
}

func NewIntelHandler(intelService *services.IntelService, logger *logrus.Logger) *IntelHandler {
	return &IntelHandler{
		intelService: intelService,
		logger:       logger,
	}
}

// AnalyzeRequest 情报分析请求
type AnalyzeRequest struct {
	CompanyName  string `json:"company_name" binding:"required"`
	AnalysisType string `json:"analysis_type"`
}

// Analyze 生成公司分析
func (h *IntelHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	intel, err := h.intelService.Analyze(c.Request.Context(), req.CompanyName, req.AnalysisType, c.GetString("user_id"))
	if err != nil {
		h.logger.Errorf("Failed to analyze %s: %v", req.CompanyName, err)
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "invalid") || strings.Contains(err.Error(), "required") {
			status = http.StatusBadRequest
		}
		c.JSON(status, ErrorResponse{Error: "Failed to generate analysis", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, intel)
}

// Refresh 重新生成分析
func (h *IntelHandler) Refresh(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	intel, err := h.intelService.Refresh(c.Request.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to refresh analysis", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, intel)
}

// ListIntel 获取分析列表
func (h *IntelHandler) ListIntel(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.intelService.ListIntel(c.Request.Context(), c.Query("analysis_type"), c.Query("search"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list analyses", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, items)
}

// GetIntel 获取单条分析
func (h *IntelHandler) GetIntel(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	intel, err := h.intelService.GetIntel(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Analysis not found", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, intel)
}

// DeleteIntel 删除分析
func (h *IntelHandler) DeleteIntel(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.intelService.DeleteIntel(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete analysis", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// RegisterIntelRoutes 注册情报路由
func RegisterIntelRoutes(r *gin.RouterGroup, handler *IntelHandler) {
	intel := r.Group("/intel")
	intel.Use(middleware.RequireResourcePermission("intel"))
	{
		intel.GET("", handler.ListIntel)
		intel.POST("", handler.Analyze)
		intel.GET("/:id", handler.GetIntel)
		intel.DELETE("/:id", handler.DeleteIntel)
		intel.POST("/:id/refresh", handler.Refresh)
	}
}
