package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dealflow/internal/models"
	"dealflow/internal/services"
)

func newDashboardAPIRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newCRMTestDB(t, "dashboard",
		&models.Contact{}, &models.Deal{}, &models.Activity{}, &models.Notification{})
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	h := NewDashboardHandler(services.NewDashboardService(db, logger), logger)

	r := gin.New()
	api := r.Group("/api/v1", asUser("u1", "*"))
	RegisterDashboardRoutes(api, h)
	return r, db
}

func TestDashboardHandler_Stats(t *testing.T) {
	r, db := newDashboardAPIRouter(t)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com", Status: "lead"}
	if err := db.Create(contact).Error; err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	deals := []models.Deal{
		{ContactID: contact.ID, Title: "Open one", Stage: "qualified", Value: 150, Currency: "USD"},
		{ContactID: contact.ID, Title: "Won one", Stage: "closed_won", Value: 500, Currency: "USD"},
	}
	for i := range deals {
		if err := db.Create(&deals[i]).Error; err != nil {
			t.Fatalf("seed deal: %v", err)
		}
	}
	act := &models.Activity{ContactID: contact.ID, Type: "call", Subject: "Intro", Date: time.Now()}
	if err := db.Create(act).Error; err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	note := &models.Notification{UserID: "u1", Type: "system", Title: "hi", Message: "m"}
	if err := db.Create(note).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", w.Code, w.Body.String())
	}

	var stats services.DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, w.Body.String())
	}
	if stats.TotalContacts != 1 {
		t.Errorf("total_contacts = %d, want 1", stats.TotalContacts)
	}
	if stats.TotalDeals != 2 {
		t.Errorf("total_deals = %d, want 2", stats.TotalDeals)
	}
	if stats.OpenPipelineValue != 150 {
		t.Errorf("open_pipeline_value = %v, want 150", stats.OpenPipelineValue)
	}
	if stats.WinRate != 100 {
		t.Errorf("win_rate = %v, want 100", stats.WinRate)
	}
	if stats.ActivitiesPending != 1 {
		t.Errorf("activities_pending = %d, want 1", stats.ActivitiesPending)
	}
	if stats.UnreadNotifications != 1 {
		t.Errorf("unread_notifications = %d, want 1", stats.UnreadNotifications)
	}
	if len(stats.ActivityTrend) != 30 {
		t.Errorf("activity_trend len = %d, want 30", len(stats.ActivityTrend))
	}
}
