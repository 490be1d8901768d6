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

func newReportTestService(t *testing.T) (*ReportService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Contact{}, &models.Deal{}, &models.Activity{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewReportService(db, logger), db
}

func TestNormalizeRange(t *testing.T) {
	loc := time.Now().Location()

	t.Run("defaults to trailing 90 days", func(t *testing.T) {
		start, end := normalizeRange(time.Time{}, time.Time{})
		wantEnd := startOfDay(time.Now()).AddDate(0, 0, 1)
		if !end.Equal(wantEnd) {
			t.Errorf("end = %v, want %v", end, wantEnd)
		}
		if !start.Equal(wantEnd.AddDate(0, 0, -90)) {
			t.Errorf("start = %v", start)
		}
	})

	t.Run("end made exclusive at day boundary", func(t *testing.T) {
		day := time.Date(2026, 3, 18, 15, 30, 0, 0, loc)
		start, end := normalizeRange(day.AddDate(0, 0, -7), day)
		if !end.Equal(time.Date(2026, 3, 19, 0, 0, 0, 0, loc)) {
			t.Errorf("end = %v", end)
		}
		if !start.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, loc)) {
			t.Errorf("start = %v", start)
		}
	})

	t.Run("inverted range falls back", func(t *testing.T) {
		day := time.Date(2026, 3, 18, 0, 0, 0, 0, loc)
		start, end := normalizeRange(day.AddDate(0, 0, 5), day)
		if !start.Before(end) {
			t.Errorf("start %v not before end %v", start, end)
		}
		if !start.Equal(end.AddDate(0, 0, -90)) {
			t.Errorf("start = %v, want 90 days before end", start)
		}
	})
}

func TestReportService_GetPipelineReport(t *testing.T) {
	svc, db := newReportTestService(t)
	ctx := context.Background()

	mine := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	theirs := &models.Contact{UserID: "u2", Name: "Eve", Email: "eve@example.com"}
	db.Create(mine)
	db.Create(theirs)

	deals := []models.Deal{
		{ContactID: mine.ID, Title: "Q1", Stage: "qualified", Value: 100, Probability: 50, Currency: "USD"},
		{ContactID: mine.ID, Title: "Q2", Stage: "qualified", Value: 300, Probability: 10, Currency: "USD"},
		{ContactID: mine.ID, Title: "N1", Stage: "negotiation", Value: 1000, Probability: 80, Currency: "USD"},
		{ContactID: mine.ID, Title: "W1", Stage: "closed_won", Value: 500, Probability: 100, Currency: "USD"},
		{ContactID: theirs.ID, Title: "Foreign", Stage: "qualified", Value: 9999, Probability: 90, Currency: "USD"},
	}
	for i := range deals {
		if err := db.Create(&deals[i]).Error; err != nil {
			t.Fatalf("seed deal: %v", err)
		}
	}

	report, err := svc.GetPipelineReport(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetPipelineReport: %v", err)
	}

	if len(report.Stages) != 3 {
		t.Fatalf("stages = %+v", report.Stages)
	}
	// 阶段按管道顺序输出
	if report.Stages[0].Stage != "qualified" || report.Stages[1].Stage != "negotiation" || report.Stages[2].Stage != "closed_won" {
		t.Errorf("stage order = %v %v %v", report.Stages[0].Stage, report.Stages[1].Stage, report.Stages[2].Stage)
	}

	q := report.Stages[0]
	if q.Count != 2 || q.Value != 400 || q.AvgDealSize != 200 {
		t.Errorf("qualified = %+v", q)
	}

	// 加权预测只看开放商机：100*0.5 + 300*0.1 + 1000*0.8
	want := 100*0.5 + 300*0.1 + 1000*0.8
	if diff := report.ProjectedRevenue - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("projected = %v, want %v", report.ProjectedRevenue, want)
	}

	// 刚建的商机停留时长接近 0
	if q.AvgDaysInStage > 1 {
		t.Errorf("avg days in stage = %v", q.AvgDaysInStage)
	}

	if report.End != utils.DateKey(time.Now()) {
		t.Errorf("end = %q, want today", report.End)
	}
}

func TestReportService_GetActivityReport(t *testing.T) {
	svc, db := newReportTestService(t)
	ctx := context.Background()

	ada := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	grace := &models.Contact{UserID: "u1", Name: "Grace", Email: "grace@example.com"}
	eve := &models.Contact{UserID: "u2", Name: "Eve", Email: "eve@example.com"}
	db.Create(ada)
	db.Create(grace)
	db.Create(eve)

	thisWeek := utils.WeekStart(time.Now()).Add(2 * time.Hour)
	lastWeek := thisWeek.AddDate(0, 0, -7)

	activities := []models.Activity{
		{ContactID: ada.ID, Type: "call", Subject: "c1", Date: thisWeek},
		{ContactID: ada.ID, Type: "call", Subject: "c2", Date: thisWeek},
		{ContactID: ada.ID, Type: "email", Subject: "e1", Date: thisWeek},
		{ContactID: grace.ID, Type: "meeting", Subject: "m1", Date: lastWeek},
		{ContactID: eve.ID, Type: "call", Subject: "foreign", Date: thisWeek},
	}
	for i := range activities {
		if err := db.Create(&activities[i]).Error; err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}

	report, err := svc.GetActivityReport(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetActivityReport: %v", err)
	}

	if len(report.Weeks) != 8 {
		t.Fatalf("weeks = %d, want 8", len(report.Weeks))
	}

	current := report.Weeks[7]
	if current.WeekStart != utils.DateKey(utils.WeekStart(time.Now())) {
		t.Errorf("current week start = %q", current.WeekStart)
	}
	if current.Total != 3 || current.ByType["call"] != 2 || current.ByType["email"] != 1 {
		t.Errorf("current week = %+v", current)
	}

	previous := report.Weeks[6]
	if previous.Total != 1 || previous.ByType["meeting"] != 1 {
		t.Errorf("previous week = %+v", previous)
	}

	if len(report.TopContacts) != 2 {
		t.Fatalf("top contacts = %+v", report.TopContacts)
	}
	if report.TopContacts[0].ContactID != ada.ID || report.TopContacts[0].Count != 3 {
		t.Errorf("top contact = %+v", report.TopContacts[0])
	}
}

func TestReportService_GetWinLossReport(t *testing.T) {
	svc, db := newReportTestService(t)
	ctx := context.Background()

	mine := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	theirs := &models.Contact{UserID: "u2", Name: "Eve", Email: "eve@example.com"}
	db.Create(mine)
	db.Create(theirs)

	deals := []models.Deal{
		{ContactID: mine.ID, Title: "W1", Stage: "closed_won", Value: 400, Currency: "USD"},
		{ContactID: mine.ID, Title: "W2", Stage: "closed_won", Value: 600, Currency: "USD"},
		{ContactID: mine.ID, Title: "L1", Stage: "closed_lost", Value: 200, Currency: "USD"},
		{ContactID: mine.ID, Title: "Open", Stage: "proposal", Value: 1000, Currency: "USD"},
		{ContactID: theirs.ID, Title: "Foreign", Stage: "closed_won", Value: 9999, Currency: "USD"},
	}
	for i := range deals {
		if err := db.Create(&deals[i]).Error; err != nil {
			t.Fatalf("seed deal: %v", err)
		}
	}

	report, err := svc.GetWinLossReport(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetWinLossReport: %v", err)
	}

	if len(report.Months) == 0 {
		t.Fatal("expected month buckets")
	}
	// 范围内每个月都有条目，升序，最后一个是当前月
	last := report.Months[len(report.Months)-1]
	if last.Month != utils.MonthKey(time.Now()) {
		t.Errorf("last month = %q, want current", last.Month)
	}
	if last.WonCount != 2 || last.WonValue != 1000 || last.LostCount != 1 || last.LostValue != 200 {
		t.Errorf("current month = %+v", last)
	}
	wantRate := float64(2) / 3 * 100
	if diff := last.WinRate - wantRate; diff > 0.01 || diff < -0.01 {
		t.Errorf("win rate = %v, want %v", last.WinRate, wantRate)
	}

	// 没有成交的历史月份仍然输出零值条目
	for _, m := range report.Months[:len(report.Months)-1] {
		if m.WonCount != 0 || m.LostCount != 0 || m.WinRate != 0 {
			t.Errorf("expected empty month, got %+v", m)
		}
	}

	if report.AvgWonSize != 500 {
		t.Errorf("avg won = %v, want 500", report.AvgWonSize)
	}
	if report.AvgLostSize != 200 {
		t.Errorf("avg lost = %v, want 200", report.AvgLostSize)
	}
}
