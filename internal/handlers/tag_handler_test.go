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

func newTagAPIRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newCRMTestDB(t, "tags", &models.Contact{}, &models.Tag{})
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	h := NewTagHandler(services.NewTagService(db, logger))

	r := gin.New()
	api := r.Group("/api/v1", asUser("u1", "*"))
	RegisterTagRoutes(api, h)
	return r, db
}

func TestTagHandler_CRUDFlow(t *testing.T) {
	r, _ := newTagAPIRouter(t)

	// Create
	body, _ := json.Marshal(map[string]any{"name": "vip", "color": "gold"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/tags", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created models.Tag
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == 0 {
		t.Fatal("expected tag id")
	}

	// 重名创建 400
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodPost, "/api/v1/tags", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status=%d", w2.Code)
	}

	// Update
	ub, _ := json.Marshal(map[string]any{"name": "enterprise"})
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodPut, "/api/v1/tags/"+toStr(created.ID), bytes.NewReader(ub))
	req3.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w3.Code, w3.Body.String())
	}

	// List
	w4 := httptest.NewRecorder()
	req4, _ := http.NewRequest(http.MethodGet, "/api/v1/tags", nil)
	r.ServeHTTP(w4, req4)
	if w4.Code != http.StatusOK {
		t.Fatalf("list status=%d", w4.Code)
	}
	var tags []models.Tag
	if err := json.Unmarshal(w4.Body.Bytes(), &tags); err != nil || len(tags) != 1 {
		t.Fatalf("tags = %+v err = %v", tags, err)
	}
	if tags[0].Name != "enterprise" {
		t.Fatalf("name = %q", tags[0].Name)
	}

	// Delete then 404
	w5 := httptest.NewRecorder()
	req5, _ := http.NewRequest(http.MethodDelete, "/api/v1/tags/"+toStr(created.ID), nil)
	r.ServeHTTP(w5, req5)
	if w5.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w5.Code)
	}
	w6 := httptest.NewRecorder()
	req6, _ := http.NewRequest(http.MethodDelete, "/api/v1/tags/"+toStr(created.ID), nil)
	r.ServeHTTP(w6, req6)
	if w6.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", w6.Code)
	}
}
