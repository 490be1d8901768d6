package services

import (
	"context"
	"testing"
	"time"

	"dealflow/internal/models"
	"dealflow/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newDashboardTestService(t *testing.T) (*DashboardService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Contact{},
		&models.Deal{},
		&models.Activity{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewDashboardService(db, logger), db
}

func TestDashboardService_GetDashboardStats(t *testing.T) {
	svc, db := newDashboardTestService(t)
	ctx := context.Background()

	mine := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com", Status: "lead"}
	mine2 := &models.Contact{UserID: "u1", Name: "Grace", Email: "grace@example.com", Status: "contacted"}
	theirs := &models.Contact{UserID: "u2", Name: "Eve", Email: "eve@example.com", Status: "lead"}
	for _, c := range []*models.Contact{mine, mine2, theirs} {
		if err := db.Create(c).Error; err != nil {
			t.Fatalf("seed contact: %v", err)
		}
	}

	deals := []models.Deal{
		{ContactID: mine.ID, Title: "Open", Stage: "qualified", Value: 100, Probability: 50, Currency: "USD"},
		{ContactID: mine.ID, Title: "Won", Stage: "closed_won", Value: 400, Currency: "USD"},
		{ContactID: mine2.ID, Title: "Lost", Stage: "closed_lost", Value: 200, Currency: "USD"},
		{ContactID: theirs.ID, Title: "Foreign", Stage: "qualified", Value: 999, Currency: "USD"},
	}
	for i := range deals {
		if err := db.Create(&deals[i]).Error; err != nil {
			t.Fatalf("seed deal: %v", err)
		}
	}

	now := time.Now()
	activities := []models.Activity{
		{ContactID: mine.ID, Type: "call", Subject: "Done call", Date: now, Completed: true},
		{ContactID: mine.ID, Type: "task", Subject: "Open task", Date: now},
		{ContactID: theirs.ID, Type: "call", Subject: "Foreign call", Date: now},
	}
	for i := range activities {
		if err := db.Create(&activities[i]).Error; err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}

	notifications := []models.Notification{
		{UserID: "u1", Title: "A", Message: "m", Type: "system"},
		{UserID: "u1", Title: "B", Message: "m", Type: "system"},
		{UserID: "u1", Title: "C", Message: "m", Type: "system", Read: true},
		{UserID: "u2", Title: "D", Message: "m", Type: "system"},
	}
	for i := range notifications {
		if err := db.Create(&notifications[i]).Error; err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}

	stats, err := svc.GetDashboardStats(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDashboardStats: %v", err)
	}

	if stats.TotalContacts != 2 {
		t.Errorf("total contacts = %d, want 2", stats.TotalContacts)
	}
	byStatus := map[string]int64{}
	for _, sc := range stats.ContactsByStatus {
		byStatus[sc.Status] = sc.Count
	}
	if byStatus["lead"] != 1 || byStatus["contacted"] != 1 {
		t.Errorf("contacts by status = %+v", stats.ContactsByStatus)
	}

	// 其他用户的商机不计入
	if stats.TotalDeals != 3 {
		t.Errorf("total deals = %d, want 3", stats.TotalDeals)
	}
	if stats.OpenPipelineValue != 100 {
		t.Errorf("open pipeline = %v, want 100", stats.OpenPipelineValue)
	}
	// 1 赢 1 输
	if stats.WinRate != 50 {
		t.Errorf("win rate = %v, want 50", stats.WinRate)
	}

	if stats.ActivitiesCompleted != 1 || stats.ActivitiesPending != 1 {
		t.Errorf("activities completed/pending = %d/%d", stats.ActivitiesCompleted, stats.ActivitiesPending)
	}

	if len(stats.ActivityTrend) != 30 {
		t.Fatalf("trend length = %d, want 30", len(stats.ActivityTrend))
	}
	today := stats.ActivityTrend[len(stats.ActivityTrend)-1]
	if today.Date != utils.DateKey(now) {
		t.Errorf("last trend day = %q, want today", today.Date)
	}
	if today.Count != 2 {
		t.Errorf("today count = %d, want 2", today.Count)
	}

	if stats.UnreadNotifications != 2 {
		t.Errorf("unread = %d, want 2", stats.UnreadNotifications)
	}
}

func TestDashboardService_EmptyUser(t *testing.T) {
	svc, _ := newDashboardTestService(t)

	stats, err := svc.GetDashboardStats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetDashboardStats: %v", err)
	}
	if stats.TotalContacts != 0 || stats.TotalDeals != 0 || stats.WinRate != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if len(stats.ActivityTrend) != 30 {
		t.Errorf("trend length = %d, want 30 even when empty", len(stats.ActivityTrend))
	}
}
