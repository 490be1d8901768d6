package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/models"
	"dealflow/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ContactService 联系人管理服务
type ContactService struct {
	db            *gorm.DB
	logger        *logrus.Logger
	automationSvc *AutomationService
}

// NewContactService 创建联系人服务
func NewContactService(db *gorm.DB, logger *logrus.Logger) *ContactService {
	if logger == nil {
		logger = logrus.New()
	}

	return &ContactService{
		db:     db,
		logger: logger,
	}
}

// SetAutomationService wires the rule engine; contact creation fires the
// contact_created trigger when set.
func (s *ContactService) SetAutomationService(svc *AutomationService) {
	s.automationSvc = svc
}

// ContactCreateRequest 创建联系人请求
type ContactCreateRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Phone      string `json:"phone"`
	Company    string `json:"company"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Source     string `json:"source"`
	Notes      string `json:"notes"`
	AssignedTo string `json:"assigned_to"`
	TagIDs     []uint `json:"tag_ids"`
}

// ContactUpdateRequest 更新联系人请求
type ContactUpdateRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Company    *string `json:"company"`
	Title      *string `json:"title"`
	Status     *string `json:"status"`
	Source     *string `json:"source"`
	Notes      *string `json:"notes"`
	AssignedTo *string `json:"assigned_to"`
}

// ContactListRequest 联系人列表请求
type ContactListRequest struct {
	Page      int      `form:"page,default=1"`
	PageSize  int      `form:"page_size,default=20"`
	Search    string   `form:"search"`
	Status    []string `form:"status"`
	Source    []string `form:"source"`
	TagID     uint     `form:"tag_id"`
	SortBy    string   `form:"sort_by,default=created_at"`
	SortOrder string   `form:"sort_order,default=desc"`
}

// CreateContact 创建联系人
func (s *ContactService) CreateContact(ctx context.Context, userID string, req *ContactCreateRequest) (*models.Contact, error) {
	if !utils.ValidateEmail(req.Email) {
		return nil, fmt.Errorf("invalid email address")
	}

	// 同一用户下邮箱去重
	var existing models.Contact
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND email = ?", userID, req.Email).
		First(&existing).Error; err == nil {
		return nil, fmt.Errorf("contact with this email already exists")
	}

	contact := &models.Contact{
		UserID:     userID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Company:    req.Company,
		Title:      req.Title,
		Status:     req.Status,
		Source:     req.Source,
		Notes:      req.Notes,
		AssignedTo: req.AssignedTo,
	}
	if contact.Status == "" {
		contact.Status = "lead"
	}

	if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	if len(req.TagIDs) > 0 {
		var tags []models.Tag
		if err := s.db.WithContext(ctx).Find(&tags, req.TagIDs).Error; err != nil {
			return nil, fmt.Errorf("failed to load tags: %w", err)
		}
		if err := s.db.WithContext(ctx).Model(contact).Association("Tags").Append(&tags); err != nil {
			return nil, fmt.Errorf("failed to attach tags: %w", err)
		}
	}

	s.logger.Infof("Created contact %d (%s)", contact.ID, contact.Email)

	if s.automationSvc != nil {
		if err := s.automationSvc.EvaluateRules(ctx, TriggerContactCreated, contact, userID); err != nil {
			return nil, err
		}
	}

	return s.GetContactByID(ctx, contact.ID)
}

// GetContactByID 根据ID获取联系人
func (s *ContactService) GetContactByID(ctx context.Context, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).
		Preload("Tags").
		Preload("Deals", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("date DESC").Limit(10)
		}).
		Preload("ContactNotes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		First(&contact, contactID).Error

	if err != nil {
		return nil, fmt.Errorf("contact not found: %w", err)
	}
	return &contact, nil
}

// UpdateContact 更新联系人信息
func (s *ContactService) UpdateContact(ctx context.Context, contactID uint, req *ContactUpdateRequest) (*models.Contact, error) {
	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		if !utils.ValidateEmail(*req.Email) {
			return nil, fmt.Errorf("invalid email address")
		}
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Company != nil {
		updates["company"] = *req.Company
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Source != nil {
		updates["source"] = *req.Source
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.AssignedTo != nil {
		updates["assigned_to"] = *req.AssignedTo
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&models.Contact{}).Where("id = ?", contactID).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update contact: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("contact not found")
		}
		s.logger.Infof("Updated contact %d", contactID)
	}

	return s.GetContactByID(ctx, contactID)
}

// DeleteContact 删除联系人（软删除）
func (s *ContactService) DeleteContact(ctx context.Context, contactID uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Contact{}, contactID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete contact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("contact not found")
	}
	s.logger.Infof("Deleted contact %d", contactID)
	return nil
}

// ListContacts 获取联系人列表
func (s *ContactService) ListContacts(ctx context.Context, userID string, req *ContactListRequest) ([]models.Contact, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Contact{}).Where("contacts.user_id = ?", userID)

	if len(req.Status) > 0 {
		query = query.Where("contacts.status IN ?", req.Status)
	}
	if len(req.Source) > 0 {
		query = query.Where("contacts.source IN ?", req.Source)
	}
	if req.TagID != 0 {
		query = query.
			Joins("JOIN contact_tags ON contact_tags.contact_id = contacts.id").
			Where("contact_tags.tag_id = ?", req.TagID)
	}
	if req.Search != "" {
		searchTerm := "%" + req.Search + "%"
		query = query.Where("contacts.name LIKE ? OR contacts.email LIKE ? OR contacts.company LIKE ?",
			searchTerm, searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	// 排序字段白名单
	sortBy := req.SortBy
	switch sortBy {
	case "name", "created_at", "updated_at", "company", "status":
	default:
		sortBy = "created_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(req.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query = query.Order(fmt.Sprintf("contacts.%s %s", sortBy, sortOrder))

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query = query.Offset((page - 1) * pageSize).Limit(pageSize)

	var contacts []models.Contact
	if err := query.Preload("Tags").Find(&contacts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list contacts: %w", err)
	}

	return contacts, total, nil
}

// AddTag 为联系人附加标签
func (s *ContactService) AddTag(ctx context.Context, contactID, tagID uint) error {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, contactID).Error; err != nil {
		return fmt.Errorf("contact not found: %w", err)
	}
	var tag models.Tag
	if err := s.db.WithContext(ctx).First(&tag, tagID).Error; err != nil {
		return fmt.Errorf("tag not found: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&contact).Association("Tags").Append(&tag); err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTag 移除联系人标签
func (s *ContactService) RemoveTag(ctx context.Context, contactID, tagID uint) error {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, contactID).Error; err != nil {
		return fmt.Errorf("contact not found: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&contact).Association("Tags").Delete(&models.Tag{ID: tagID}); err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// AddNote 添加联系人备注
func (s *ContactService) AddNote(ctx context.Context, contactID uint, content string) (*models.ContactNote, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, contactID).Error; err != nil {
		return nil, fmt.Errorf("contact not found: %w", err)
	}

	note := &models.ContactNote{
		ContactID: contactID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	s.logger.Infof("Added note to contact %d", contactID)
	return note, nil
}

// ListNotes 获取联系人备注，按时间倒序
func (s *ContactService) ListNotes(ctx context.Context, contactID uint) ([]models.ContactNote, error) {
	var notes []models.ContactNote
	if err := s.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at DESC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// DeleteNote 删除联系人备注
func (s *ContactService) DeleteNote(ctx context.Context, contactID, noteID uint) error {
	result := s.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Delete(&models.ContactNote{}, noteID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete note: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("note not found")
	}
	return nil
}

// LogEmail 记录一封已发送邮件为完成的 email 活动
func (s *ContactService) LogEmail(ctx context.Context, contactID uint, subject, body string) (*models.Activity, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, contactID).Error; err != nil {
		return nil, fmt.Errorf("contact not found: %w", err)
	}

	activity := &models.Activity{
		ContactID:   contactID,
		Type:        "email",
		Subject:     subject,
		Description: body,
		Date:        time.Now(),
		Completed:   true,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, fmt.Errorf("failed to log email: %w", err)
	}
	s.logger.Infof("Logged email to contact %d: %s", contactID, subject)
	return activity, nil
}

// ContactStats 联系人统计信息
type ContactStats struct {
	Total       int64         `json:"total"`
	NewThisWeek int64         `json:"new_this_week"`
	ByStatus    []StatusCount `json:"by_status"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// GetContactStats 获取联系人统计信息
func (s *ContactService) GetContactStats(ctx context.Context, userID string) (*ContactStats, error) {
	stats := &ContactStats{}

	if err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("user_id = ?", userID).
		Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}

	sevenDaysAgo := time.Now().AddDate(0, 0, -7)
	s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND created_at > ?", userID, sevenDaysAgo).
		Count(&stats.NewThisWeek)

	if err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Select("status, COUNT(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&stats.ByStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}

	return stats, nil
}
