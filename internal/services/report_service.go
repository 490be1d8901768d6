package services

import (
	"context"
	"fmt"
	"time"

	"dealflow/internal/models"
	"dealflow/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReportService 报表服务，所有报表按日期范围统计
type ReportService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewReportService(db *gorm.DB, logger *logrus.Logger) *ReportService {
	if logger == nil {
		logger = logrus.New()
	}

	return &ReportService{
		db:     db,
		logger: logger,
	}
}

// normalizeRange fills the default window (trailing 90 days ending today)
// and returns [start, end) with end exclusive at a day boundary.
func normalizeRange(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = startOfDay(time.Now()).AddDate(0, 0, 1)
	} else {
		end = startOfDay(end).AddDate(0, 0, 1)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -90)
	} else {
		start = startOfDay(start)
	}
	if !start.Before(end) {
		start = end.AddDate(0, 0, -90)
	}
	return start, end
}

// PipelineStageReport 单阶段管道统计
type PipelineStageReport struct {
	Stage          string  `json:"stage"`
	Count          int64   `json:"count"`
	Value          float64 `json:"value"`
	AvgDealSize    float64 `json:"avg_deal_size"`
	AvgDaysInStage float64 `json:"avg_days_in_stage"` // 仅开放商机
}

// PipelineReport 管道报表
type PipelineReport struct {
	Start            string                `json:"start"`
	End              string                `json:"end"`
	Stages           []PipelineStageReport `json:"stages"`
	ProjectedRevenue float64               `json:"projected_revenue"`
}

// GetPipelineReport 统计范围内商机的阶段分布与加权营收预测
func (s *ReportService) GetPipelineReport(ctx context.Context, userID string, start, end time.Time) (*PipelineReport, error) {
	start, end = normalizeRange(start, end)
	db := s.db.WithContext(ctx)

	dealQ := func() *gorm.DB {
		return db.Model(&models.Deal{}).
			Joins("JOIN contacts ON contacts.id = deals.contact_id AND contacts.deleted_at IS NULL").
			Where("contacts.user_id = ?", userID).
			Where("deals.created_at >= ? AND deals.created_at < ?", start, end)
	}

	var rows []PipelineStageReport
	if err := dealQ().
		Select("deals.stage as stage, COUNT(*) as count, COALESCE(SUM(deals.value), 0) as value, COALESCE(AVG(deals.value), 0) as avg_deal_size").
		Group("deals.stage").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate pipeline: %w", err)
	}

	report := &PipelineReport{
		Start: utils.DateKey(start),
		End:   utils.DateKey(end.AddDate(0, 0, -1)),
	}

	// 开放商机：在阶段停留时长和加权营收在内存里算，跨库兼容
	var open []models.Deal
	if err := dealQ().
		Where("deals.stage NOT IN ?", closedDealStages).
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to load open deals: %w", err)
	}

	now := time.Now()
	daysSum := make(map[string]float64)
	daysCount := make(map[string]int64)
	for _, deal := range open {
		days := now.Sub(deal.UpdatedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		daysSum[deal.Stage] += days
		daysCount[deal.Stage]++
		report.ProjectedRevenue += deal.Value * float64(deal.Probability) / 100
	}

	// 按管道顺序输出
	for _, stage := range DealStages {
		for _, row := range rows {
			if row.Stage != stage {
				continue
			}
			if c := daysCount[stage]; c > 0 {
				row.AvgDaysInStage = daysSum[stage] / float64(c)
			}
			report.Stages = append(report.Stages, row)
			break
		}
	}

	return report, nil
}

// ActivityWeekBucket 一周的活动量，按类型拆分
type ActivityWeekBucket struct {
	WeekStart string           `json:"week_start"` // 周一，YYYY-MM-DD
	ByType    map[string]int64 `json:"by_type"`
	Total     int64            `json:"total"`
}

// TopContactReport 活动最多的联系人
type TopContactReport struct {
	ContactID uint   `json:"contact_id"`
	Name      string `json:"name"`
	Count     int64  `json:"count"`
}

// ActivityReport 活动报表
type ActivityReport struct {
	Start       string               `json:"start"`
	End         string               `json:"end"`
	Weeks       []ActivityWeekBucket `json:"weeks"`
	TopContacts []TopContactReport   `json:"top_contacts"`
}

// GetActivityReport 统计范围结束前 8 周的活动量和最活跃联系人
func (s *ReportService) GetActivityReport(ctx context.Context, userID string, start, end time.Time) (*ActivityReport, error) {
	start, end = normalizeRange(start, end)
	db := s.db.WithContext(ctx)

	actQ := func() *gorm.DB {
		return db.Model(&models.Activity{}).
			Joins("JOIN contacts ON contacts.id = activities.contact_id AND contacts.deleted_at IS NULL").
			Where("contacts.user_id = ?", userID)
	}

	report := &ActivityReport{
		Start: utils.DateKey(start),
		End:   utils.DateKey(end.AddDate(0, 0, -1)),
	}

	// 以范围最后一天所在周为终点，往前取 8 个周一桶
	lastWeek := utils.WeekStart(end.AddDate(0, 0, -1))
	for i := 7; i >= 0; i-- {
		weekStart := lastWeek.AddDate(0, 0, -7*i)
		weekEnd := weekStart.AddDate(0, 0, 7)

		bucket := ActivityWeekBucket{
			WeekStart: utils.DateKey(weekStart),
			ByType:    make(map[string]int64),
		}

		var rows []struct {
			Type  string
			Count int64
		}
		if err := actQ().
			Select("activities.type as type, COUNT(*) as count").
			Where("activities.date >= ? AND activities.date < ?", weekStart, weekEnd).
			Group("activities.type").
			Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to aggregate activities: %w", err)
		}
		for _, row := range rows {
			bucket.ByType[row.Type] = row.Count
			bucket.Total += row.Count
		}

		report.Weeks = append(report.Weeks, bucket)
	}

	// 范围内活动最多的 5 个联系人
	if err := actQ().
		Select("contacts.id as contact_id, contacts.name as name, COUNT(activities.id) as count").
		Where("activities.date >= ? AND activities.date < ?", start, end).
		Group("contacts.id, contacts.name").
		Order("count DESC").
		Limit(5).
		Scan(&report.TopContacts).Error; err != nil {
		return nil, fmt.Errorf("failed to rank contacts: %w", err)
	}

	return report, nil
}

// MonthlyWinLoss 单月赢单/输单统计
type MonthlyWinLoss struct {
	Month     string  `json:"month"` // YYYY-MM
	WonCount  int64   `json:"won_count"`
	WonValue  float64 `json:"won_value"`
	LostCount int64   `json:"lost_count"`
	LostValue float64 `json:"lost_value"`
	WinRate   float64 `json:"win_rate"` // 百分比
}

// WinLossReport 赢单输单报表
type WinLossReport struct {
	Start       string           `json:"start"`
	End         string           `json:"end"`
	Months      []MonthlyWinLoss `json:"months"`
	AvgWonSize  float64          `json:"avg_won_size"`
	AvgLostSize float64          `json:"avg_lost_size"`
}

// GetWinLossReport 按月统计赢单输单。关闭时间以商机最后更新时间为准。
func (s *ReportService) GetWinLossReport(ctx context.Context, userID string, start, end time.Time) (*WinLossReport, error) {
	start, end = normalizeRange(start, end)
	db := s.db.WithContext(ctx)

	var closed []models.Deal
	if err := db.Model(&models.Deal{}).
		Joins("JOIN contacts ON contacts.id = deals.contact_id AND contacts.deleted_at IS NULL").
		Where("contacts.user_id = ?", userID).
		Where("deals.stage IN ?", closedDealStages).
		Where("deals.updated_at >= ? AND deals.updated_at < ?", start, end).
		Find(&closed).Error; err != nil {
		return nil, fmt.Errorf("failed to load closed deals: %w", err)
	}

	report := &WinLossReport{
		Start: utils.DateKey(start),
		End:   utils.DateKey(end.AddDate(0, 0, -1)),
	}

	byMonth := make(map[string]*MonthlyWinLoss)
	var wonTotal, lostTotal float64
	var wonCount, lostCount int64
	for _, deal := range closed {
		key := utils.MonthKey(deal.UpdatedAt)
		bucket, ok := byMonth[key]
		if !ok {
			bucket = &MonthlyWinLoss{Month: key}
			byMonth[key] = bucket
		}
		if deal.Stage == "closed_won" {
			bucket.WonCount++
			bucket.WonValue += deal.Value
			wonCount++
			wonTotal += deal.Value
		} else {
			bucket.LostCount++
			bucket.LostValue += deal.Value
			lostCount++
			lostTotal += deal.Value
		}
	}

	// 范围内每个月都输出一条，升序
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	last := end.AddDate(0, 0, -1)
	lastMonth := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, last.Location())
	for m := first; !m.After(lastMonth); m = m.AddDate(0, 1, 0) {
		key := utils.MonthKey(m)
		bucket, ok := byMonth[key]
		if !ok {
			bucket = &MonthlyWinLoss{Month: key}
		}
		if total := bucket.WonCount + bucket.LostCount; total > 0 {
			bucket.WinRate = float64(bucket.WonCount) / float64(total) * 100
		}
		report.Months = append(report.Months, *bucket)
	}

	if wonCount > 0 {
		report.AvgWonSize = wonTotal / float64(wonCount)
	}
	if lostCount > 0 {
		report.AvgLostSize = lostTotal / float64(lostCount)
	}

	return report, nil
}
