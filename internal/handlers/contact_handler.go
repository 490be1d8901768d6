package handlers

import (
	"net/http"
	"strconv"

	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ContactHandler 联系人处理器
type ContactHandler struct {
	contactService *services.ContactService
	logger         *logrus.Logger
}

// NewContactHandler 创建联系人处理器
func NewContactHandler(contactService *services.ContactService, logger *logrus.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		logger:         logger,
	}
}

// CreateContact 创建联系人
// @Summary 创建联系人
// @Description 创建新的联系人，邮箱在同一用户下唯一
// @Tags 联系人
// @Accept json
// @Produce json
// @Param contact body services.ContactCreateRequest true "联系人信息"
// @Success 201 {object} models.Contact
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/contacts [post]
func (h *ContactHandler) CreateContact(c *gin.Context) {
	var req services.ContactCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	contact, err := h.contactService.CreateContact(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		h.logger.Errorf("Failed to create contact: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to create contact",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, contact)
}

// GetContact 获取联系人详情
// @Summary 获取联系人详情
// @Description 返回联系人及其标签、商机、最近活动和备注
// @Tags 联系人
// @Produce json
// @Param id path int true "联系人ID"
// @Success 200 {object} models.Contact
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/contacts/{id} [get]
func (h *ContactHandler) GetContact(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	contact, err := h.contactService.GetContactByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Contact not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, contact)
}

// UpdateContact 更新联系人
// @Summary 更新联系人
// @Description 更新联系人信息，仅修改提交的字段
// @Tags 联系人
// @Accept json
// @Produce json
// @Param id path int true "联系人ID"
// @Param contact body services.ContactUpdateRequest true "更新信息"
// @Success 200 {object} models.Contact
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/contacts/{id} [put]
func (h *ContactHandler) UpdateContact(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req services.ContactUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	contact, err := h.contactService.UpdateContact(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to update contact",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, contact)
}

// DeleteContact 删除联系人（软删除）
func (h *ContactHandler) DeleteContact(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.contactService.DeleteContact(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to delete contact",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListContacts 获取联系人列表
// @Summary 获取联系人列表
// @Description 当前用户的联系人，支持状态/来源/标签过滤、搜索和分页
// @Tags 联系人
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页大小"
// @Param status query []string false "状态过滤"
// @Param source query []string false "来源过滤"
// @Param tag query string false "标签名过滤"
// @Param search query string false "搜索姓名/邮箱/公司"
// @Success 200 {object} PaginatedResponse{data=[]models.Contact}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/contacts [get]
func (h *ContactHandler) ListContacts(c *gin.Context) {
	var req services.ContactListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	contacts, total, err := h.contactService.ListContacts(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		h.logger.Errorf("Failed to list contacts: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list contacts",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     contacts,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// GetContactStats 联系人统计
func (h *ContactHandler) GetContactStats(c *gin.Context) {
	stats, err := h.contactService.GetContactStats(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.logger.Errorf("Failed to get contact stats: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get contact stats",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// AddTag 给联系人打标签
func (h *ContactHandler) AddTag(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	tagID, err := parseIDParam(c, "tagId")
	if err != nil {
		return
	}

	if err := h.contactService.AddTag(c.Request.Context(), contactID, tagID); err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to add tag", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "tag added"})
}

// RemoveTag 移除联系人标签
func (h *ContactHandler) RemoveTag(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	tagID, err := parseIDParam(c, "tagId")
	if err != nil {
		return
	}

	if err := h.contactService.RemoveTag(c.Request.Context(), contactID, tagID); err != nil {
		status := http.StatusBadRequest
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to remove tag", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "tag removed"})
}

// AddNote 给联系人添加备注
func (h *ContactHandler) AddNote(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	note, err := h.contactService.AddNote(c.Request.Context(), contactID, req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to add note", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, note)
}

// ListNotes 获取联系人备注
func (h *ContactHandler) ListNotes(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	notes, err := h.contactService.ListNotes(c.Request.Context(), contactID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list notes", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, notes)
}

// DeleteNote 删除联系人备注
func (h *ContactHandler) DeleteNote(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	noteID, err := parseIDParam(c, "noteId")
	if err != nil {
		return
	}

	if err := h.contactService.DeleteNote(c.Request.Context(), contactID, noteID); err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete note", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// LogEmail 记录一封已发送的邮件为活动
func (h *ContactHandler) LogEmail(c *gin.Context) {
	contactID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		Subject string `json:"subject" binding:"required"`
		Body    string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	activity, err := h.contactService.LogEmail(c.Request.Context(), contactID, req.Subject, req.Body)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to log email", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, activity)
}

// parseIDParam 解析路径里的数字 ID，失败时已写入 400 响应
func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + name,
			Message: "ID must be a valid number",
		})
		return 0, err
	}
	return uint(id), nil
}

// RegisterContactRoutes 注册联系人路由
func RegisterContactRoutes(r *gin.RouterGroup, handler *ContactHandler) {
	contacts := r.Group("/contacts")
	contacts.Use(middleware.RequireResourcePermission("contacts"))
	{
		contacts.POST("", handler.CreateContact)
		contacts.GET("", handler.ListContacts)
		contacts.GET("/stats", handler.GetContactStats)
		contacts.GET("/:id", handler.GetContact)
		contacts.PUT("/:id", handler.UpdateContact)
		contacts.DELETE("/:id", handler.DeleteContact)
		contacts.POST("/:id/tags/:tagId", handler.AddTag)
		contacts.DELETE("/:id/tags/:tagId", handler.RemoveTag)
		contacts.GET("/:id/notes", handler.ListNotes)
		contacts.POST("/:id/notes", handler.AddNote)
		contacts.DELETE("/:id/notes/:noteId", handler.DeleteNote)
		contacts.POST("/:id/email", handler.LogEmail)
	}
}
