package services

import (
	"context"
	"fmt"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationService 通知管理服务
type NotificationService struct {
	db     *gorm.DB
	logger *logrus.Logger
	hub    *NotificationHub
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}

	return &NotificationService{
		db:     db,
		logger: logger,
	}
}

// SetHub attaches the realtime hub; every created notification is pushed to
// the owning user's connections.
func (s *NotificationService) SetHub(hub *NotificationHub) {
	s.hub = hub
}

// Create 创建通知并推送
func (s *NotificationService) Create(ctx context.Context, userID, title, message, ntype, link string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      ntype,
		Read:      false,
		Link:      link,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	if s.hub != nil {
		s.hub.PublishNotification(n)
	}
	return n, nil
}

// List 返回用户最近的通知和未读数量
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, ntype string, limit int) ([]models.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	if ntype != "" {
		query = query.Where("type = ?", ntype)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	var unread int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count unread: %w", err)
	}

	return notifications, unread, nil
}

// MarkRead 标记单条通知为已读
func (s *NotificationService) MarkRead(ctx context.Context, userID string, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

// MarkAllRead 标记用户全部通知为已读，返回影响行数
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GenerateTaskDue creates task_due notifications for the user's incomplete
// task activities due today or tomorrow. Exact duplicates (same user, type,
// link and message) are skipped so repeated calls stay idempotent.
func (s *NotificationService) GenerateTaskDue(ctx context.Context, userID string) (int, error) {
	today := startOfDay(time.Now())
	cutoff := today.AddDate(0, 0, 2)

	var tasks []models.Activity
	if err := s.db.WithContext(ctx).
		Joins("JOIN contacts ON contacts.id = activities.contact_id AND contacts.deleted_at IS NULL").
		Where("contacts.user_id = ?", userID).
		Where("activities.type = ? AND activities.completed = ?", "task", false).
		Where("activities.date >= ? AND activities.date < ?", today, cutoff).
		Find(&tasks).Error; err != nil {
		return 0, fmt.Errorf("failed to load due tasks: %w", err)
	}

	created := 0
	for _, task := range tasks {
		when := "today"
		if !task.Date.Before(today.AddDate(0, 0, 1)) {
			when = "tomorrow"
		}
		message := fmt.Sprintf("Task %q is due %s", task.Subject, when)
		link := fmt.Sprintf("/activities/%d", task.ID)

		var dup int64
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("user_id = ? AND type = ? AND link = ? AND message = ?", userID, "task_due", link, message).
			Count(&dup).Error; err != nil {
			return created, fmt.Errorf("failed to check duplicates: %w", err)
		}
		if dup > 0 {
			continue
		}

		if _, err := s.Create(ctx, userID, "Task Due", message, "task_due", link); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		s.logger.Infof("Generated %d task due notifications for user %s", created, userID)
	}
	return created, nil
}
