package handlers

import (
	"net/http"
	"strconv"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ActivityHandler 活动/跟进任务处理器
type ActivityHandler struct {
	activityService *services.ActivityService
	logger          *logrus.Logger
}

func NewActivityHandler(activityService *services.ActivityService, logger *logrus.Logger) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
		logger:          logger,
	}
}

// CreateActivity 创建活动
func (h *ActivityHandler) CreateActivity(c *gin.Context) {
	var req services.ActivityCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	activity, err := h.activityService.CreateActivity(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to create activity", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, activity)
}

// GetActivity 获取活动详情
func (h *ActivityHandler) GetActivity(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	activity, err := h.activityService.GetActivityByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Activity not found", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, activity)
}

// UpdateActivity 更新活动
func (h *ActivityHandler) UpdateActivity(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req services.ActivityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	activity, err := h.activityService.UpdateActivity(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update activity", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, activity)
}

// CompleteActivity 标记活动完成（请求体可选，completed=false 取消完成）
func (h *ActivityHandler) CompleteActivity(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		Completed *bool `json:"completed"`
	}
	_ = c.ShouldBindJSON(&req)
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	activity, err := h.activityService.SetCompleted(c.Request.Context(), id, completed)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update activity", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, activity)
}

// DeleteActivity 删除活动
func (h *ActivityHandler) DeleteActivity(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.activityService.DeleteActivity(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete activity", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListActivities 获取活动列表
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	var req services.ActivityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}

	activities, total, err := h.activityService.ListActivities(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list activities: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list activities", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     activities,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// Upcoming 未来待办活动
func (h *ActivityHandler) Upcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	activities, err := h.activityService.Upcoming(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list upcoming activities", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, activities)
}

// Overdue 逾期未完成活动
func (h *ActivityHandler) Overdue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	activities, err := h.activityService.Overdue(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list overdue activities", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, activities)
}

// RegisterActivityRoutes 注册活动路由
func RegisterActivityRoutes(r *gin.RouterGroup, handler *ActivityHandler) {
	activities := r.Group("/activities")
	activities.Use(middleware.RequireResourcePermission("activities"))
	{
		activities.POST("", handler.CreateActivity)
		activities.GET("", handler.ListActivities)
		activities.GET("/upcoming", handler.Upcoming)
		activities.GET("/overdue", handler.Overdue)
		activities.GET("/:id", handler.GetActivity)
		activities.PUT("/:id", handler.UpdateActivity)
		activities.PUT("/:id/complete", handler.CompleteActivity)
		activities.DELETE("/:id", handler.DeleteActivity)
	}
}
