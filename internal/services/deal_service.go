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

// DealService 商机管理服务
type DealService struct {
	db            *gorm.DB
	logger        *logrus.Logger
	automationSvc *AutomationService
}

// NewDealService 创建商机服务
func NewDealService(db *gorm.DB, logger *logrus.Logger) *DealService {
	if logger == nil {
		logger = logrus.New()
	}

	return &DealService{
		db:     db,
		logger: logger,
	}
}

// SetAutomationService wires the rule engine. Deal creation fires
// deal_created, deal_stage_change and deal_probability_threshold; stage and
// probability updates fire their respective triggers.
func (s *DealService) SetAutomationService(svc *AutomationService) {
	s.automationSvc = svc
}

// DealCreateRequest 创建商机请求
type DealCreateRequest struct {
	ContactID     uint       `json:"contact_id" binding:"required"`
	Title         string     `json:"title" binding:"required"`
	Value         float64    `json:"value"`
	Currency      string     `json:"currency"`
	Stage         string     `json:"stage"`
	Probability   *int       `json:"probability"`
	ExpectedClose *time.Time `json:"expected_close"`
	Notes         string     `json:"notes"`
}

// DealUpdateRequest 更新商机请求
type DealUpdateRequest struct {
	Title         *string    `json:"title"`
	Value         *float64   `json:"value"`
	Currency      *string    `json:"currency"`
	Stage         *string    `json:"stage"`
	Probability   *int       `json:"probability"`
	ExpectedClose *time.Time `json:"expected_close"`
	Notes         *string    `json:"notes"`
}

// DealListRequest 商机列表请求
type DealListRequest struct {
	Page      int      `form:"page,default=1"`
	PageSize  int      `form:"page_size,default=20"`
	Stage     []string `form:"stage"`
	ContactID uint     `form:"contact_id"`
	Search    string   `form:"search"`
	SortBy    string   `form:"sort_by,default=created_at"`
	SortOrder string   `form:"sort_order,default=desc"`
}

// Pipeline stages in order.
var DealStages = []string{"qualified", "proposal", "negotiation", "closed_won", "closed_lost"}

// 已关闭阶段，统计时从开放管道里剔除
var closedDealStages = []string{"closed_won", "closed_lost"}

func isValidStage(stage string) bool {
	for _, st := range DealStages {
		if st == stage {
			return true
		}
	}
	return false
}

// CreateDeal 创建商机并触发自动化规则
func (s *DealService) CreateDeal(ctx context.Context, userID string, req *DealCreateRequest) (*models.Deal, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, req.ContactID).Error; err != nil {
		return nil, fmt.Errorf("contact not found: %w", err)
	}

	deal := &models.Deal{
		ContactID:     req.ContactID,
		Title:         req.Title,
		Value:         req.Value,
		Currency:      req.Currency,
		Stage:         req.Stage,
		ExpectedClose: req.ExpectedClose,
		Notes:         req.Notes,
	}
	if deal.Currency == "" {
		deal.Currency = "USD"
	}
	if deal.Stage == "" {
		deal.Stage = "qualified"
	}
	if !isValidStage(deal.Stage) {
		return nil, fmt.Errorf("invalid stage: %s", deal.Stage)
	}
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return nil, fmt.Errorf("probability must be between 0 and 100")
		}
		deal.Probability = *req.Probability
	}

	if err := s.db.WithContext(ctx).Create(deal).Error; err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}

	s.logger.Infof("Created deal %d (%s) for contact %d", deal.ID, deal.Title, deal.ContactID)

	// 创建时依次触发三类事件
	if s.automationSvc != nil {
		for _, trigger := range []string{TriggerDealCreated, TriggerDealStageChange, TriggerDealProbabilityThreshold} {
			if err := s.automationSvc.EvaluateRules(ctx, trigger, deal, userID); err != nil {
				return nil, err
			}
		}
	}

	return s.GetDealByID(ctx, deal.ID)
}

// GetDealByID 根据ID获取商机
func (s *DealService) GetDealByID(ctx context.Context, dealID uint) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("date DESC").Limit(10)
		}).
		First(&deal, dealID).Error

	if err != nil {
		return nil, fmt.Errorf("deal not found: %w", err)
	}
	return &deal, nil
}

// UpdateDeal 更新商机；阶段或概率变化会触发对应规则
func (s *DealService) UpdateDeal(ctx context.Context, dealID uint, userID string, req *DealUpdateRequest) (*models.Deal, error) {
	var deal models.Deal
	if err := s.db.WithContext(ctx).First(&deal, dealID).Error; err != nil {
		return nil, fmt.Errorf("deal not found: %w", err)
	}

	updates := make(map[string]interface{})
	stageChanged := false
	probabilityChanged := false

	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Value != nil {
		updates["value"] = *req.Value
	}
	if req.Currency != nil {
		updates["currency"] = *req.Currency
	}
	if req.Stage != nil {
		if !isValidStage(*req.Stage) {
			return nil, fmt.Errorf("invalid stage: %s", *req.Stage)
		}
		if *req.Stage != deal.Stage {
			stageChanged = true
		}
		updates["stage"] = *req.Stage
	}
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return nil, fmt.Errorf("probability must be between 0 and 100")
		}
		if *req.Probability != deal.Probability {
			probabilityChanged = true
		}
		updates["probability"] = *req.Probability
	}
	if req.ExpectedClose != nil {
		updates["expected_close"] = *req.ExpectedClose
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&deal).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update deal: %w", err)
		}
		s.logger.Infof("Updated deal %d", dealID)
	}

	// 带着更新后的字段评估规则
	var updated models.Deal
	if err := s.db.WithContext(ctx).First(&updated, dealID).Error; err != nil {
		return nil, fmt.Errorf("reload deal: %w", err)
	}

	if s.automationSvc != nil {
		if stageChanged {
			if err := s.automationSvc.EvaluateRules(ctx, TriggerDealStageChange, &updated, userID); err != nil {
				return nil, err
			}
		}
		if probabilityChanged {
			if err := s.automationSvc.EvaluateRules(ctx, TriggerDealProbabilityThreshold, &updated, userID); err != nil {
				return nil, err
			}
		}
	}

	return s.GetDealByID(ctx, dealID)
}

// UpdateStage 移动商机到新的阶段
func (s *DealService) UpdateStage(ctx context.Context, dealID uint, userID, stage string) (*models.Deal, error) {
	if !isValidStage(stage) {
		return nil, fmt.Errorf("invalid stage: %s", stage)
	}
	return s.UpdateDeal(ctx, dealID, userID, &DealUpdateRequest{Stage: &stage})
}

// DeleteDeal 删除商机（软删除）
func (s *DealService) DeleteDeal(ctx context.Context, dealID uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Deal{}, dealID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete deal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("deal not found")
	}
	s.logger.Infof("Deleted deal %d", dealID)
	return nil
}

// ListDeals 获取商机列表
func (s *DealService) ListDeals(ctx context.Context, req *DealListRequest) ([]models.Deal, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Deal{})

	if len(req.Stage) > 0 {
		query = query.Where("stage IN ?", req.Stage)
	}
	if req.ContactID != 0 {
		query = query.Where("contact_id = ?", req.ContactID)
	}
	if req.Search != "" {
		query = query.Where("title LIKE ?", "%"+req.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deals: %w", err)
	}

	sortBy := req.SortBy
	switch sortBy {
	case "created_at", "updated_at", "value", "stage", "probability", "expected_close":
	default:
		sortBy = "created_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(req.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query = query.Offset((page - 1) * pageSize).Limit(pageSize)

	var deals []models.Deal
	if err := query.Preload("Contact").Find(&deals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deals: %w", err)
	}

	return deals, total, nil
}

// DealStats 商机统计信息
type DealStats struct {
	Total     int64        `json:"total"`
	Open      int64        `json:"open"`
	OpenValue float64      `json:"open_value"`
	ByStage   []StageCount `json:"by_stage"`
}

type StageCount struct {
	Stage string  `json:"stage"`
	Count int64   `json:"count"`
	Value float64 `json:"value"`
}

// GetDealStats 获取商机统计信息
func (s *DealService) GetDealStats(ctx context.Context) (*DealStats, error) {
	stats := &DealStats{}

	if err := s.db.WithContext(ctx).Model(&models.Deal{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count deals: %w", err)
	}

	s.db.WithContext(ctx).Model(&models.Deal{}).
		Where("stage NOT IN ?", closedDealStages).
		Count(&stats.Open)

	var openValue *float64
	s.db.WithContext(ctx).Model(&models.Deal{}).
		Select("SUM(value)").
		Where("stage NOT IN ?", closedDealStages).
		Scan(&openValue)
	if openValue != nil {
		stats.OpenValue = *openValue
	}

	if err := s.db.WithContext(ctx).Model(&models.Deal{}).
		Select("stage, COUNT(*) as count, COALESCE(SUM(value), 0) as value").
		Group("stage").
		Scan(&stats.ByStage).Error; err != nil {
		return nil, fmt.Errorf("failed to group by stage: %w", err)
	}

	return stats, nil
}
