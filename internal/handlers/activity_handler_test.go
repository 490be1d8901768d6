package handlers

import (
	"bytes"
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

func newTestDBForActivityAPI(t *testing.T) *gorm.DB {
	return newCRMTestDB(t, "activities",
		&models.Contact{},
		&models.Deal{},
		&models.Activity{},
	)
}

func newActivityAPIRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	h := NewActivityHandler(services.NewActivityService(db, logger), logger)

	r := gin.New()
	api := r.Group("/api/v1", asUser("u1", "*"))
	RegisterActivityRoutes(api, h)
	return r
}

func TestActivityHandler_CreateCompleteDelete(t *testing.T) {
	db := newTestDBForActivityAPI(t)
	r := newActivityAPIRouter(t, db)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	db.Create(contact)

	// Create
	body, _ := json.Marshal(map[string]any{
		"contact_id": contact.ID,
		"type":       "task",
		"subject":    "Send pricing",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created models.Activity
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == 0 || created.Completed {
		t.Fatalf("created = %+v", created)
	}

	// 空请求体默认标记完成
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodPut, "/api/v1/activities/"+toStr(created.ID)+"/complete", nil)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("complete status=%d body=%s", w2.Code, w2.Body.String())
	}
	var done models.Activity
	_ = json.Unmarshal(w2.Body.Bytes(), &done)
	if !done.Completed {
		t.Fatalf("activity not completed: %+v", done)
	}

	// completed=false 取消完成
	cb, _ := json.Marshal(map[string]any{"completed": false})
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodPut, "/api/v1/activities/"+toStr(created.ID)+"/complete", bytes.NewReader(cb))
	req3.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("uncomplete status=%d", w3.Code)
	}
	var reopened models.Activity
	_ = json.Unmarshal(w3.Body.Bytes(), &reopened)
	if reopened.Completed {
		t.Fatalf("activity still completed")
	}

	// Delete then 404
	w4 := httptest.NewRecorder()
	req4, _ := http.NewRequest(http.MethodDelete, "/api/v1/activities/"+toStr(created.ID), nil)
	r.ServeHTTP(w4, req4)
	if w4.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w4.Code)
	}
	w5 := httptest.NewRecorder()
	req5, _ := http.NewRequest(http.MethodDelete, "/api/v1/activities/"+toStr(created.ID), nil)
	r.ServeHTTP(w5, req5)
	if w5.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", w5.Code)
	}

	// 非法类型
	bb, _ := json.Marshal(map[string]any{"contact_id": contact.ID, "type": "pigeon", "subject": "X"})
	w6 := httptest.NewRecorder()
	req6, _ := http.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewReader(bb))
	req6.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w6, req6)
	if w6.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status=%d", w6.Code)
	}
}

func TestActivityHandler_ListAndDue(t *testing.T) {
	db := newTestDBForActivityAPI(t)
	r := newActivityAPIRouter(t, db)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	db.Create(contact)

	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)
	seed := []models.Activity{
		{ContactID: contact.ID, Type: "task", Subject: "Late", Date: yesterday},
		{ContactID: contact.ID, Type: "call", Subject: "Soon", Date: tomorrow},
		{ContactID: contact.ID, Type: "call", Subject: "Done", Date: yesterday, Completed: true},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// List filtered by type
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/activities?type=call", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var page PaginatedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 2 {
		t.Fatalf("type filter total=%d", page.Total)
	}

	// Upcoming
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/api/v1/activities/upcoming", nil)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("upcoming status=%d", w2.Code)
	}
	var upcoming []models.Activity
	_ = json.Unmarshal(w2.Body.Bytes(), &upcoming)
	if len(upcoming) != 1 || upcoming[0].Subject != "Soon" {
		t.Fatalf("upcoming = %+v", upcoming)
	}

	// Overdue
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/api/v1/activities/overdue", nil)
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("overdue status=%d", w3.Code)
	}
	var overdue []models.Activity
	_ = json.Unmarshal(w3.Body.Bytes(), &overdue)
	if len(overdue) != 1 || overdue[0].Subject != "Late" {
		t.Fatalf("overdue = %+v", overdue)
	}
}
