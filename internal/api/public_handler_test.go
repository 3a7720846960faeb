package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/render"
)

func newPublicTestRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := portfolio.NewStore(db)
	resolver := portfolio.NewResolver(db, store, nil, nil)
	handler := NewPublicHandler(resolver)

	router := gin.New()
	router.POST("/v1/portfolio/record-view", handler.RecordView)
	router.NoRoute(handler.ServeSlug)
	return router
}

func seedPublishedPortfolio(t *testing.T, db *gorm.DB) database.Portfolio {
	t.Helper()
	_, resume := seedResumeForUser(t, db, "jane")

	sections := []database.ResumeSection{{
		ResumeID:    resume.ID,
		SectionType: "summary",
		Title:       "About",
		Content:     []byte(`{"text":"Frozen at publish time."}`),
	}}
	doc := portfolio.DocumentFromModels(resume, sections, render.DefaultTemplateID, "#2563eb", render.Settings{})
	doc.Resume.Title = "Frozen Title"
	snapshot, err := portfolio.EncodeSnapshot(doc)
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}

	record := database.Portfolio{
		Title:      "Frozen Title",
		Slug:       "jane-doe",
		ResumeID:   resume.ID,
		Repo:       "jane-doe",
		URL:        "https://octo.pages.example.com/jane-doe/",
		TemplateID: render.DefaultTemplateID,
		Content:    snapshot,
		IsActive:   true,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}
	return record
}

func TestServeSlugRendersSnapshot(t *testing.T) {
	db := newAPITestDB(t)
	seedPublishedPortfolio(t, db)
	router := newPublicTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/jane-doe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Frozen Title") {
		t.Fatal("page does not contain snapshot content")
	}

	var sawSession bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == viewSessionCookieName && cookie.Value != "" {
			sawSession = true
		}
	}
	if !sawSession {
		t.Fatal("view session cookie not issued")
	}
}

func TestServeSlugIsCaseInsensitive(t *testing.T) {
	db := newAPITestDB(t)
	seedPublishedPortfolio(t, db)
	router := newPublicTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/JANE-DOE", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestServeSlugUnknownShowsBrandedPage(t *testing.T) {
	db := newAPITestDB(t)
	router := newPublicTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/nobody-here", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q, want branded html page", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "nobody-here") {
		t.Fatal("page does not mention the requested slug")
	}
	if !strings.Contains(body, "Create your own portfolio") {
		t.Fatal("page does not carry the create-your-own prompt")
	}
}

func TestServeSlugOnlyHandlesSingleSegmentGet(t *testing.T) {
	db := newAPITestDB(t)
	seedPublishedPortfolio(t, db)
	router := newPublicTestRouter(t, db)

	cases := []struct {
		name   string
		method string
		path   string
	}{
		{"deep path stays json", http.MethodGet, "/v1/unknown/depth"},
		{"non-get stays json", http.MethodPost, "/jane-doe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Fatalf("status = %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("content type = %q, want json 404", ct)
			}
		})
	}
}

func TestRecordViewEndpoint(t *testing.T) {
	db := newAPITestDB(t)
	seedPublishedPortfolio(t, db)
	router := newPublicTestRouter(t, db)

	if w := doJSON(t, router, http.MethodPost, "/v1/portfolio/record-view", gin.H{"slug": "jane-doe"}); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, http.MethodPost, "/v1/portfolio/record-view", gin.H{"slug": "nobody-here"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown slug status = %d", w.Code)
	}
}
