package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/metrics"
	"dealflow/internal/models"
	"dealflow/pkg/llm"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// IntelAnalysisTypes 支持的分析类型
var IntelAnalysisTypes = []string{"swot", "competitor", "market"}

func isIntelAnalysisType(t string) bool {
	for _, v := range IntelAnalysisTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IntelService generates company research briefs with the configured model.
// When no model is reachable it serves a canned offline brief instead of
// failing the request.
type IntelService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	chatter llm.Chatter
	breaker *CircuitBreaker
}

func NewIntelService(db *gorm.DB, chatter llm.Chatter, logger *logrus.Logger) *IntelService {
	if logger == nil {
		logger = logrus.New()
	}

	return &IntelService{
		db:      db,
		logger:  logger,
		chatter: chatter,
	}
}

// SetCircuitBreaker guards model calls; nil means unguarded.
func (s *IntelService) SetCircuitBreaker(cb *CircuitBreaker) {
	s.breaker = cb
}

// Analyze 生成并保存公司分析
func (s *IntelService) Analyze(ctx context.Context, companyName, analysisType, requestedBy string) (*models.CompanyIntel, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, fmt.Errorf("company name is required")
	}
	if analysisType == "" {
		analysisType = "swot"
	}
	if !isIntelAnalysisType(analysisType) {
		return nil, fmt.Errorf("invalid analysis type: %s", analysisType)
	}

	content, modelUsed, err := s.generate(ctx, companyName, analysisType)
	if err != nil {
		return nil, err
	}

	intel := &models.CompanyIntel{
		CompanyName:  companyName,
		AnalysisType: analysisType,
		Content:      content,
		ModelUsed:    modelUsed,
		GeneratedAt:  time.Now(),
		RequestedBy:  requestedBy,
	}
	if err := s.db.WithContext(ctx).Create(intel).Error; err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.Infof("Generated %s analysis for %s (model %s)", analysisType, companyName, modelUsed)
	return intel, nil
}

// Refresh 原地重新生成已有分析
func (s *IntelService) Refresh(ctx context.Context, id uint) (*models.CompanyIntel, error) {
	var intel models.CompanyIntel
	if err := s.db.WithContext(ctx).First(&intel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("analysis not found")
		}
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	content, modelUsed, err := s.generate(ctx, intel.CompanyName, intel.AnalysisType)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"content":      content,
		"model_used":   modelUsed,
		"generated_at": time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&intel).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update analysis: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&intel, id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload analysis: %w", err)
	}
	return &intel, nil
}

// ListIntel 按条件返回分析记录，最新的在前
func (s *IntelService) ListIntel(ctx context.Context, analysisType, search string, limit int) ([]models.CompanyIntel, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.CompanyIntel{})
	if analysisType != "" {
		query = query.Where("analysis_type = ?", analysisType)
	}
	if search != "" {
		query = query.Where("company_name LIKE ?", "%"+search+"%")
	}

	var items []models.CompanyIntel
	if err := query.Order("generated_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return items, nil
}

func (s *IntelService) GetIntel(ctx context.Context, id uint) (*models.CompanyIntel, error) {
	var intel models.CompanyIntel
	if err := s.db.WithContext(ctx).First(&intel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("analysis not found")
		}
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	return &intel, nil
}

func (s *IntelService) DeleteIntel(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.CompanyIntel{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("analysis not found")
	}
	return nil
}

// generate runs one guarded model call and returns the brief plus the model
// name it came from ("offline" for the canned fallback).
func (s *IntelService) generate(ctx context.Context, companyName, analysisType string) (string, string, error) {
	tracer := otel.Tracer("dealflow/intel")
	ctx, span := tracer.Start(ctx, "IntelService.generate")
	span.SetAttributes(
		attribute.String("company", companyName),
		attribute.String("analysis_type", analysisType),
	)
	defer span.End()

	if s.chatter == nil {
		metrics.IncLLMRequest("fallback")
		return offlineAnalysis(companyName, analysisType), "offline", nil
	}

	// 熔断器打开时直接走离线兜底，不再冲击上游
	if s.breaker != nil && !s.breaker.Allow() {
		s.logger.Warnf("Circuit breaker open, serving offline analysis for %s", companyName)
		metrics.IncLLMRequest("fallback")
		return offlineAnalysis(companyName, analysisType), "offline", nil
	}

	reply, err := s.chatter.Complete(ctx, s.buildPrompt(ctx, companyName, analysisType))
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			metrics.IncLLMRequest("fallback")
			return offlineAnalysis(companyName, analysisType), "offline", nil
		}
		if s.breaker != nil {
			s.breaker.OnFailure()
		}
		metrics.IncLLMRequest("error")
		span.SetStatus(codes.Error, err.Error())
		return "", "", fmt.Errorf("failed to generate analysis: %w", err)
	}

	if s.breaker != nil {
		s.breaker.OnSuccess()
	}
	metrics.IncLLMRequest("ok")
	return reply, s.chatter.Model(), nil
}

func (s *IntelService) buildPrompt(ctx context.Context, companyName, analysisType string) []llm.Message {
	user := fmt.Sprintf(`Analyze the company %q for a B2B sales team preparing outreach.

Structure the answer as:
1. Executive summary (2-3 sentences)
2. SWOT (strengths, weaknesses, opportunities, threats as bullet lists)
3. Recommended next actions for the sales team`, companyName)

	if analysisType == "competitor" {
		if known := s.knownCompanies(ctx, companyName); len(known) > 0 {
			user += fmt.Sprintf("\n4. Comparison against these companies: %s", strings.Join(known, ", "))
		}
	}
	if analysisType == "market" {
		user += "\n4. Market position and the segment trends that affect it"
	}

	return []llm.Message{
		{Role: "system", Content: "You are a sales intelligence analyst. Answer in concise Markdown and keep every claim actionable."},
		{Role: "user", Content: user},
	}
}

// knownCompanies 取库中其他公司名，用于竞争对比
func (s *IntelService) knownCompanies(ctx context.Context, exclude string) []string {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.CompanyIntel{}).
		Distinct("company_name").
		Where("company_name <> ?", exclude).
		Order("company_name ASC").
		Limit(10).
		Pluck("company_name", &names).Error
	if err != nil {
		s.logger.Warnf("Failed to load known companies: %v", err)
		return nil
	}
	return names
}

func offlineAnalysis(companyName, analysisType string) string {
	return fmt.Sprintf(`# %s (%s analysis, offline)

Generated without a model connection. Configure an API key for a live brief.

## Executive summary
No external data was consulted. Use this outline as a checklist for manual research.

## SWOT
- Strengths: to be researched
- Weaknesses: to be researched
- Opportunities: to be researched
- Threats: to be researched

## Recommended next actions
- Review %s's public filings, pricing page and recent press.
- Map the buying committee before the first call.
- Check existing contacts at the company for a warm introduction.`, companyName, analysisType, companyName)
}
