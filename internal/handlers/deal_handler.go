package handlers

import (
	"net/http"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DealHandler 商机处理器
type DealHandler struct {
	dealService *services.DealService
	logger      *logrus.Logger
}

// NewDealHandler 创建商机处理器
func NewDealHandler(dealService *services.DealService, logger *logrus.Logger) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		logger:      logger,
	}
}

// CreateDeal 创建商机
// @Summary 创建商机
// @Description 在联系人下创建商机，创建即触发自动化规则
// @Tags 商机
// @Accept json
// @Produce json
// @Param deal body services.DealCreateRequest true "商机信息"
// @Success 201 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/deals [post]
func (h *DealHandler) CreateDeal(c *gin.Context) {
	var req services.DealCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	deal, err := h.dealService.CreateDeal(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		h.logger.Errorf("Failed to create deal: %v", err)
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to create deal",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, deal)
}

// GetDeal 获取商机详情
func (h *DealHandler) GetDeal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	deal, err := h.dealService.GetDealByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Deal not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, deal)
}

// UpdateDeal 更新商机
// @Summary 更新商机
// @Description 更新商机字段，阶段或成交概率变化时触发自动化规则
// @Tags 商机
// @Accept json
// @Produce json
// @Param id path int true "商机ID"
// @Param deal body services.DealUpdateRequest true "更新信息"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/deals/{id} [put]
func (h *DealHandler) UpdateDeal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req services.DealUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	deal, err := h.dealService.UpdateDeal(c.Request.Context(), id, c.GetString("user_id"), &req)
	if err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to update deal",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, deal)
}

// UpdateStage 更新商机阶段
func (h *DealHandler) UpdateStage(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		Stage string `json:"stage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	deal, err := h.dealService.UpdateStage(c.Request.Context(), id, c.GetString("user_id"), req.Stage)
	if err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update stage", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, deal)
}

// DeleteDeal 删除商机
func (h *DealHandler) DeleteDeal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.dealService.DeleteDeal(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete deal", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListDeals 获取商机列表
// @Summary 获取商机列表
// @Description 支持阶段/联系人过滤、标题搜索和分页
// @Tags 商机
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页大小"
// @Param stage query []string false "阶段过滤"
// @Param contact_id query int false "联系人过滤"
// @Param search query string false "标题搜索"
// @Success 200 {object} PaginatedResponse{data=[]models.Deal}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/deals [get]
func (h *DealHandler) ListDeals(c *gin.Context) {
	var req services.DealListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	deals, total, err := h.dealService.ListDeals(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list deals: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list deals",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     deals,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// GetDealStats 商机统计
func (h *DealHandler) GetDealStats(c *gin.Context) {
	stats, err := h.dealService.GetDealStats(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get deal stats: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get deal stats",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterDealRoutes 注册商机路由
func RegisterDealRoutes(r *gin.RouterGroup, handler *DealHandler) {
	deals := r.Group("/deals")
	deals.Use(middleware.RequireResourcePermission("deals"))
	{
		deals.POST("", handler.CreateDeal)
		deals.GET("", handler.ListDeals)
		deals.GET("/stats", handler.GetDealStats)
		deals.GET("/:id", handler.GetDeal)
		deals.PUT("/:id", handler.UpdateDeal)
		deals.DELETE("/:id", handler.DeleteDeal)
		deals.PUT("/:id/stage", handler.UpdateStage)
	}
}
