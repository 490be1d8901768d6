package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dealflow/internal/models"
	"dealflow/internal/services"
)

func newTestDBForDealAPI(t *testing.T) *gorm.DB {
	return newCRMTestDB(t, "deals",
		&models.Contact{},
		&models.Deal{},
		&models.Activity{},
		&models.Notification{},
		&models.AutomationRule{},
		&models.AutomationRun{},
	)
}

func newDealAPIRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	svc := services.NewDealService(db, logger)
	svc.SetAutomationService(services.NewAutomationService(db, logger))
	h := NewDealHandler(svc, logger)

	r := gin.New()
	api := r.Group("/api/v1", asUser("u1", "*"))
	RegisterDealRoutes(api, h)
	return r
}

func TestDealHandler_CRUDFlow(t *testing.T) {
	db := newTestDBForDealAPI(t)
	r := newDealAPIRouter(t, db)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	if err := db.Create(contact).Error; err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	// Create
	body, _ := json.Marshal(map[string]any{
		"contact_id": contact.ID,
		"title":      "Engine license",
		"value":      1200,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/deals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created models.Deal
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.Stage != "qualified" || created.Currency != "USD" {
		t.Fatalf("defaults not applied: %+v", created)
	}

	// Update value
	ub, _ := json.Marshal(map[string]any{"value": 1500})
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodPut, "/api/v1/deals/"+toStr(created.ID), bytes.NewReader(ub))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w2.Code, w2.Body.String())
	}

	// Stage move
	sb, _ := json.Marshal(map[string]any{"stage": "proposal"})
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodPut, "/api/v1/deals/"+toStr(created.ID)+"/stage", bytes.NewReader(sb))
	req3.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("stage status=%d body=%s", w3.Code, w3.Body.String())
	}
	var staged models.Deal
	_ = json.Unmarshal(w3.Body.Bytes(), &staged)
	if staged.Stage != "proposal" {
		t.Fatalf("stage = %q", staged.Stage)
	}

	// List with stage filter
	w4 := httptest.NewRecorder()
	req4, _ := http.NewRequest(http.MethodGet, "/api/v1/deals?stage=proposal", nil)
	r.ServeHTTP(w4, req4)
	if w4.Code != http.StatusOK {
		t.Fatalf("list status=%d", w4.Code)
	}
	var page PaginatedResponse
	_ = json.Unmarshal(w4.Body.Bytes(), &page)
	if page.Total != 1 {
		t.Fatalf("filtered total=%d", page.Total)
	}

	// Stats
	w5 := httptest.NewRecorder()
	req5, _ := http.NewRequest(http.MethodGet, "/api/v1/deals/stats", nil)
	r.ServeHTTP(w5, req5)
	if w5.Code != http.StatusOK {
		t.Fatalf("stats status=%d", w5.Code)
	}

	// Delete then 404
	w6 := httptest.NewRecorder()
	req6, _ := http.NewRequest(http.MethodDelete, "/api/v1/deals/"+toStr(created.ID), nil)
	r.ServeHTTP(w6, req6)
	if w6.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w6.Code)
	}
	w7 := httptest.NewRecorder()
	req7, _ := http.NewRequest(http.MethodGet, "/api/v1/deals/"+toStr(created.ID), nil)
	r.ServeHTTP(w7, req7)
	if w7.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w7.Code)
	}
}

func TestDealHandler_Validation(t *testing.T) {
	db := newTestDBForDealAPI(t)
	r := newDealAPIRouter(t, db)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	db.Create(contact)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing title", map[string]any{"contact_id": contact.ID}, http.StatusBadRequest},
		{"unknown contact", map[string]any{"contact_id": 9999, "title": "Ghost"}, http.StatusNotFound},
		{"invalid stage", map[string]any{"contact_id": contact.ID, "title": "X", "stage": "limbo"}, http.StatusBadRequest},
		{"probability over 100", map[string]any{"contact_id": contact.ID, "title": "X", "probability": 120}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := json.Marshal(tt.body)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/deals", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status=%d want=%d body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestDealHandler_StageMoveFiresAutomation(t *testing.T) {
	db := newTestDBForDealAPI(t)
	r := newDealAPIRouter(t, db)

	contact := &models.Contact{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	db.Create(contact)
	deal := &models.Deal{ContactID: contact.ID, Title: "License", Stage: "negotiation", Currency: "USD"}
	db.Create(deal)
	if err := db.Create(&models.AutomationRule{
		Name:         "Won",
		TriggerType:  "deal_stage_change",
		Condition:    `{"stage":"closed_won"}`,
		ActionType:   "create_notification",
		ActionConfig: `{"message":"Deal closed!"}`,
		Enabled:      true,
	}).Error; err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	sb, _ := json.Marshal(map[string]any{"stage": "closed_won"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/v1/deals/"+toStr(deal.ID)+"/stage", bytes.NewReader(sb))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stage status=%d body=%s", w.Code, w.Body.String())
	}

	var notes []models.Notification
	db.Find(&notes)
	if len(notes) != 1 || notes[0].Message != "Deal closed!" || notes[0].UserID != "u1" {
		t.Fatalf("notifications = %+v", notes)
	}

	var runs []models.AutomationRun
	db.Find(&runs)
	if len(runs) != 1 || runs[0].Status != "executed" {
		t.Fatalf("runs = %+v", runs)
	}
}
