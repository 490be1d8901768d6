package services

import (
	"context"
	"time"

	"dealflow/internal/models"
	"dealflow/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DashboardService 仪表板统计服务
type DashboardService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDashboardService(db *gorm.DB, logger *logrus.Logger) *DashboardService {
	if logger == nil {
		logger = logrus.New()
	}

	return &DashboardService{
		db:     db,
		logger: logger,
	}
}

// DashboardStats 仪表板统计数据
type DashboardStats struct {
	// 联系人
	TotalContacts    int64         `json:"total_contacts"`
	ContactsByStatus []StatusCount `json:"contacts_by_status"`

	// 商机
	TotalDeals        int64        `json:"total_deals"`
	DealsByStage      []StageCount `json:"deals_by_stage"`
	OpenPipelineValue float64      `json:"open_pipeline_value"`
	WinRate           float64      `json:"win_rate"` // 已关闭商机中赢单占比（百分比）

	// 活动
	ActivitiesCompleted int64                `json:"activities_completed"`
	ActivitiesPending   int64                `json:"activities_pending"`
	ActivityTrend       []DailyActivityCount `json:"activity_trend"`

	// 通知
	UnreadNotifications int64 `json:"unread_notifications"`
}

type DailyActivityCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// GetDashboardStats 汇总单个用户的仪表板数据
func (s *DashboardService) GetDashboardStats(ctx context.Context, userID string) (*DashboardStats, error) {
	stats := &DashboardStats{}
	db := s.db.WithContext(ctx)

	// 联系人统计
	db.Model(&models.Contact{}).Where("user_id = ?", userID).Count(&stats.TotalContacts)
	db.Model(&models.Contact{}).
		Select("status, COUNT(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Order("count DESC").
		Scan(&stats.ContactsByStatus)

	// 商机归属通过联系人确定
	dealQ := func() *gorm.DB {
		return db.Model(&models.Deal{}).
			Joins("JOIN contacts ON contacts.id = deals.contact_id AND contacts.deleted_at IS NULL").
			Where("contacts.user_id = ?", userID)
	}

	dealQ().Count(&stats.TotalDeals)
	dealQ().
		Select("deals.stage as stage, COUNT(*) as count, COALESCE(SUM(deals.value), 0) as value").
		Group("deals.stage").
		Scan(&stats.DealsByStage)

	var openValue *float64
	dealQ().
		Select("SUM(deals.value)").
		Where("deals.stage NOT IN ?", closedDealStages).
		Scan(&openValue)
	if openValue != nil {
		stats.OpenPipelineValue = *openValue
	}

	var won, lost int64
	dealQ().Where("deals.stage = ?", "closed_won").Count(&won)
	dealQ().Where("deals.stage = ?", "closed_lost").Count(&lost)
	if won+lost > 0 {
		stats.WinRate = float64(won) / float64(won+lost) * 100
	}

	// 活动统计
	actQ := func() *gorm.DB {
		return db.Model(&models.Activity{}).
			Joins("JOIN contacts ON contacts.id = activities.contact_id AND contacts.deleted_at IS NULL").
			Where("contacts.user_id = ?", userID)
	}

	actQ().Where("activities.completed = ?", true).Count(&stats.ActivitiesCompleted)
	actQ().Where("activities.completed = ?", false).Count(&stats.ActivitiesPending)

	// 最近 30 天逐日活动量
	startDay := startOfDay(time.Now()).AddDate(0, 0, -29)
	for i := 0; i < 30; i++ {
		day := startDay.AddDate(0, 0, i)
		point := DailyActivityCount{Date: utils.DateKey(day)}
		actQ().
			Where("activities.date >= ? AND activities.date < ?", day, day.AddDate(0, 0, 1)).
			Count(&point.Count)
		stats.ActivityTrend = append(stats.ActivityTrend, point)
	}

	// 未读通知
	db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&stats.UnreadNotifications)

	return stats, nil
}
