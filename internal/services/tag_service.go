package services

import (
	"context"
	"fmt"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TagService 标签管理服务
type TagService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTagService(db *gorm.DB, logger *logrus.Logger) *TagService {
	if logger == nil {
		logger = logrus.New()
	}

	return &TagService{
		db:     db,
		logger: logger,
	}
}

// TagRequest 标签创建/更新请求
type TagRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

// ListTags 获取所有标签，按名称排序
func (s *TagService) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// CreateTag 创建标签，名称唯一
func (s *TagService) CreateTag(ctx context.Context, req *TagRequest) (*models.Tag, error) {
	var existing models.Tag
	if err := s.db.WithContext(ctx).Where("name = ?", req.Name).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("tag already exists")
	}

	tag := &models.Tag{
		Name:  req.Name,
		Color: req.Color,
	}
	if tag.Color == "" {
		tag.Color = "blue"
	}

	if err := s.db.WithContext(ctx).Create(tag).Error; err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	s.logger.Infof("Created tag %q", tag.Name)
	return tag, nil
}

// UpdateTag 更新标签
func (s *TagService) UpdateTag(ctx context.Context, tagID uint, req *TagRequest) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.WithContext(ctx).First(&tag, tagID).Error; err != nil {
		return nil, fmt.Errorf("tag not found: %w", err)
	}

	updates := map[string]interface{}{"name": req.Name}
	if req.Color != "" {
		updates["color"] = req.Color
	}
	if err := s.db.WithContext(ctx).Model(&tag).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}
	return &tag, nil
}

// DeleteTag 删除标签并清除关联
func (s *TagService) DeleteTag(ctx context.Context, tagID uint) error {
	var tag models.Tag
	if err := s.db.WithContext(ctx).First(&tag, tagID).Error; err != nil {
		return fmt.Errorf("tag not found: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&tag).Association("Contacts").Clear(); err != nil {
		return fmt.Errorf("failed to clear tag associations: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&tag).Error; err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	s.logger.Infof("Deleted tag %d", tagID)
	return nil
}
