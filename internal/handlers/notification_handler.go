package handlers

import (
	"net/http"
	"strconv"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NotificationHandler 通知处理器
type NotificationHandler struct {
	notificationService *services.NotificationService
	logger              *logrus.Logger
}

func NewNotificationHandler(notificationService *services.NotificationService, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// ListNotifications 最近通知加未读计数
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	ntype := c.Query("type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	notifications, unread, err := h.notificationService.List(c.Request.Context(), c.GetString("user_id"), unreadOnly, ntype, limit)
	if err != nil {
		h.logger.Errorf("Failed to list notifications: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list notifications", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         notifications,
		"unread_count": unread,
	})
}

// MarkRead 标记单条已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), c.GetString("user_id"), id); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to mark read", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "read"})
}

// MarkAllRead 全部标记已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to mark all read", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "read",
		Data:    gin.H{"updated": updated},
	})
}

// Generate 为今明两天到期的任务生成提醒
func (h *NotificationHandler) Generate(c *gin.Context) {
	created, err := h.notificationService.GenerateTaskDue(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.logger.Errorf("Failed to generate notifications: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate notifications", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "generated",
		Data:    gin.H{"created": created},
	})
}

// RegisterNotificationRoutes 注册通知路由
func RegisterNotificationRoutes(r *gin.RouterGroup, handler *NotificationHandler) {
	notifications := r.Group("/notifications")
	notifications.Use(middleware.RequireResourcePermission("notifications"))
	{
		notifications.GET("", handler.ListNotifications)
		notifications.PUT("/:id/read", handler.MarkRead)
		notifications.PUT("/read-all", handler.MarkAllRead)
		notifications.POST("/generate", handler.Generate)
	}
}
