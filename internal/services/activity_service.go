package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ActivityService 活动管理服务
type ActivityService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewActivityService 创建活动服务
func NewActivityService(db *gorm.DB, logger *logrus.Logger) *ActivityService {
	if logger == nil {
		logger = logrus.New()
	}

	return &ActivityService{
		db:     db,
		logger: logger,
	}
}

// Activity types.
var ActivityTypes = []string{"call", "email", "meeting", "note", "task"}

func isValidActivityType(t string) bool {
	for _, at := range ActivityTypes {
		if at == t {
			return true
		}
	}
	return false
}

// ActivityCreateRequest 创建活动请求
type ActivityCreateRequest struct {
	ContactID   uint       `json:"contact_id" binding:"required"`
	DealID      *uint      `json:"deal_id"`
	Type        string     `json:"type" binding:"required"`
	Subject     string     `json:"subject" binding:"required"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date"`
	Completed   bool       `json:"completed"`
}

// ActivityUpdateRequest 更新活动请求
type ActivityUpdateRequest struct {
	Type        *string    `json:"type"`
	Subject     *string    `json:"subject"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Completed   *bool      `json:"completed"`
	DealID      *uint      `json:"deal_id"`
}

// ActivityListRequest 活动列表请求
type ActivityListRequest struct {
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
	Type      string `form:"type"`
	Completed *bool  `form:"completed"`
	ContactID uint   `form:"contact_id"`
	DealID    uint   `form:"deal_id"`
	SortOrder string `form:"sort_order,default=desc"`
}

// CreateActivity 创建活动
func (s *ActivityService) CreateActivity(ctx context.Context, req *ActivityCreateRequest) (*models.Activity, error) {
	if !isValidActivityType(req.Type) {
		return nil, fmt.Errorf("invalid activity type: %s", req.Type)
	}

	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, req.ContactID).Error; err != nil {
		return nil, fmt.Errorf("contact not found: %w", err)
	}
	if req.DealID != nil {
		var deal models.Deal
		if err := s.db.WithContext(ctx).First(&deal, *req.DealID).Error; err != nil {
			return nil, fmt.Errorf("deal not found: %w", err)
		}
	}

	date := time.Now()
	if req.Date != nil {
		date = *req.Date
	}

	activity := &models.Activity{
		ContactID:   req.ContactID,
		DealID:      req.DealID,
		Type:        req.Type,
		Subject:     req.Subject,
		Description: req.Description,
		Date:        date,
		Completed:   req.Completed,
		CreatedAt:   time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	s.logger.Infof("Created %s activity %d for contact %d", activity.Type, activity.ID, activity.ContactID)
	return activity, nil
}

// GetActivityByID 根据ID获取活动
func (s *ActivityService) GetActivityByID(ctx context.Context, activityID uint) (*models.Activity, error) {
	var activity models.Activity
	if err := s.db.WithContext(ctx).
		Preload("Contact").
		Preload("Deal").
		First(&activity, activityID).Error; err != nil {
		return nil, fmt.Errorf("activity not found: %w", err)
	}
	return &activity, nil
}

// UpdateActivity 更新活动
func (s *ActivityService) UpdateActivity(ctx context.Context, activityID uint, req *ActivityUpdateRequest) (*models.Activity, error) {
	updates := make(map[string]interface{})
	if req.Type != nil {
		if !isValidActivityType(*req.Type) {
			return nil, fmt.Errorf("invalid activity type: %s", *req.Type)
		}
		updates["type"] = *req.Type
	}
	if req.Subject != nil {
		updates["subject"] = *req.Subject
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Date != nil {
		updates["date"] = *req.Date
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}
	if req.DealID != nil {
		updates["deal_id"] = *req.DealID
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&models.Activity{}).Where("id = ?", activityID).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update activity: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("activity not found")
		}
	}

	return s.GetActivityByID(ctx, activityID)
}

// SetCompleted 标记活动完成状态
func (s *ActivityService) SetCompleted(ctx context.Context, activityID uint, completed bool) (*models.Activity, error) {
	result := s.db.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", activityID).
		Update("completed", completed)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update activity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("activity not found")
	}
	return s.GetActivityByID(ctx, activityID)
}

// DeleteActivity 删除活动
func (s *ActivityService) DeleteActivity(ctx context.Context, activityID uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Activity{}, activityID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete activity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("activity not found")
	}
	return nil
}

// ListActivities 获取活动列表
func (s *ActivityService) ListActivities(ctx context.Context, req *ActivityListRequest) ([]models.Activity, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Activity{})

	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.Completed != nil {
		query = query.Where("completed = ?", *req.Completed)
	}
	if req.ContactID != 0 {
		query = query.Where("contact_id = ?", req.ContactID)
	}
	if req.DealID != 0 {
		query = query.Where("deal_id = ?", req.DealID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count activities: %w", err)
	}

	order := "date DESC"
	if strings.EqualFold(req.SortOrder, "asc") {
		order = "date ASC"
	}
	query = query.Order(order)

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query = query.Offset((page - 1) * pageSize).Limit(pageSize)

	var activities []models.Activity
	if err := query.Preload("Contact").Find(&activities).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list activities: %w", err)
	}

	return activities, total, nil
}

// Upcoming 列出今天起未完成的活动，按时间正序
func (s *ActivityService) Upcoming(ctx context.Context, limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	today := startOfDay(time.Now())

	var activities []models.Activity
	if err := s.db.WithContext(ctx).
		Where("date >= ? AND completed = ?", today, false).
		Order("date ASC").
		Limit(limit).
		Preload("Contact").
		Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to list upcoming activities: %w", err)
	}
	return activities, nil
}

// Overdue 列出已逾期且未完成的活动
func (s *ActivityService) Overdue(ctx context.Context, limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	today := startOfDay(time.Now())

	var activities []models.Activity
	if err := s.db.WithContext(ctx).
		Where("date < ? AND completed = ?", today, false).
		Order("date ASC").
		Limit(limit).
		Preload("Contact").
		Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to list overdue activities: %w", err)
	}
	return activities, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
