package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/hosting"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/publish"
)

func newAPITestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.Resume{}, &database.ResumeSection{}, &database.Portfolio{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.EnsureIndexes(db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return db
}

func seedResumeForUser(t *testing.T, db *gorm.DB, username string) (database.User, database.Resume) {
	t.Helper()
	user := database.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	resume := database.Resume{
		Title:    "Jane Doe",
		JobTitle: "Backend Engineer",
		UserID:   user.ID,
	}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	section := database.ResumeSection{
		ResumeID:    resume.ID,
		SectionType: "summary",
		Title:       "About",
		Content:     []byte(`{"text":"Ten years of Go."}`),
		OrderIndex:  0,
	}
	if err := db.Create(&section).Error; err != nil {
		t.Fatalf("create section: %v", err)
	}
	return user, resume
}

// fakeHostingAPI 是可编程的托管服务替身。零值表现为一路成功。
type fakeHostingAPI struct {
	identityErr error
	enableErr   error
	calls       []string
	repos       map[string]hosting.Repo
}

func (f *fakeHostingAPI) GetIdentity(_ context.Context, _ hosting.Credential) (hosting.Identity, error) {
	f.calls = append(f.calls, "identity")
	if f.identityErr != nil {
		return hosting.Identity{}, f.identityErr
	}
	return hosting.Identity{ID: "1", Login: "octo"}, nil
}

func (f *fakeHostingAPI) CreateRepository(_ context.Context, _ hosting.Credential, name, _ string) (hosting.Repo, error) {
	f.calls = append(f.calls, "create:"+name)
	if f.repos == nil {
		f.repos = make(map[string]hosting.Repo)
	}
	if _, ok := f.repos[name]; ok {
		return hosting.Repo{}, &hosting.Error{Kind: hosting.KindAlreadyExists, Op: "create_repository"}
	}
	repo := hosting.Repo{Owner: "octo", Name: name, DefaultBranch: "main"}
	f.repos[name] = repo
	return repo, nil
}

func (f *fakeHostingAPI) GetRepository(_ context.Context, _ hosting.Credential, _, name string) (hosting.Repo, error) {
	f.calls = append(f.calls, "get:"+name)
	repo, ok := f.repos[name]
	if !ok {
		return hosting.Repo{}, &hosting.Error{Kind: hosting.KindNotFound, Op: "get_repository"}
	}
	return repo, nil
}

func (f *fakeHostingAPI) GetFileVersion(_ context.Context, _ hosting.Credential, _, repo, path string) (string, error) {
	f.calls = append(f.calls, "version:"+repo+"/"+path)
	return "", &hosting.Error{Kind: hosting.KindNotFound, Op: "get_file_version"}
}

func (f *fakeHostingAPI) UpsertFile(_ context.Context, _ hosting.Credential, _, repo, path, _, _, _ string) (string, error) {
	f.calls = append(f.calls, "upsert:"+repo+"/"+path)
	return "sha-1", nil
}

func (f *fakeHostingAPI) EnableStaticHosting(_ context.Context, _ hosting.Credential, _, repo, _ string) error {
	f.calls = append(f.calls, "enable:"+repo)
	return f.enableErr
}

func newPortfolioTestRouter(t *testing.T, db *gorm.DB, api hosting.API, userID uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := portfolio.NewStore(db)
	orchestrator := publish.NewOrchestrator(api, store, "index.html", "main", "pages.example.com", nil)
	handler := NewPortfolioHandler(db, store, orchestrator, nil, nil, nil)

	router := gin.New()
	group := router.Group("/v1/portfolio", func(c *gin.Context) {
		c.Set("userID", userID)
	})
	group.POST("/check-slug", handler.CheckSlug)
	group.POST("/publish", handler.Publish)
	group.DELETE("/:id", handler.Deactivate)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestCheckSlugEndpoint(t *testing.T) {
	db := newAPITestDB(t)
	user, resume := seedResumeForUser(t, db, "jane")

	if err := db.Create(&database.Portfolio{
		Slug: "taken", ResumeID: resume.ID, Repo: "taken", URL: "https://x/", IsActive: true,
	}).Error; err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}

	router := newPortfolioTestRouter(t, db, &fakeHostingAPI{}, user.ID)

	cases := []struct {
		name      string
		input     string
		wantSlug  string
		available bool
	}{
		{"normalizes candidate", "Jane Doe", "jane-doe", true},
		{"active slug reports taken", "Taken", "taken", false},
		{"garbage normalizes to empty", "!!!", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/portfolio/check-slug", gin.H{"slug": tc.input})
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["slug"] != tc.wantSlug {
				t.Fatalf("slug = %v, want %q", body["slug"], tc.wantSlug)
			}
			if body["available"] != tc.available {
				t.Fatalf("available = %v, want %v", body["available"], tc.available)
			}
		})
	}
}

func TestPublishEndpointCreatesPortfolio(t *testing.T) {
	db := newAPITestDB(t)
	user, resume := seedResumeForUser(t, db, "jane")
	api := &fakeHostingAPI{}
	router := newPortfolioTestRouter(t, db, api, user.ID)

	w := doJSON(t, router, http.MethodPost, "/v1/portfolio/publish", gin.H{
		"resume_id": resume.ID,
		"slug":      "Jane Doe",
		"token":     "ghp_secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["slug"] != "jane-doe" {
		t.Fatalf("slug = %v", body["slug"])
	}
	if body["url"] != "https://octo.pages.example.com/jane-doe/" {
		t.Fatalf("url = %v", body["url"])
	}
	if body["step"] != "completed" {
		t.Fatalf("step = %v", body["step"])
	}

	var record database.Portfolio
	if err := db.Where("slug = ? AND is_active = ?", "jane-doe", true).First(&record).Error; err != nil {
		t.Fatalf("published record missing: %v", err)
	}
	if len(record.Content) == 0 {
		t.Fatal("published record has no content snapshot")
	}
	// 凭证只在调用期间存在，绝不落库。
	if strings.Contains(string(record.Content), "ghp_secret") {
		t.Fatal("credential leaked into snapshot")
	}
}

func TestPublishEndpointTakenSlugConflicts(t *testing.T) {
	db := newAPITestDB(t)
	user, resume := seedResumeForUser(t, db, "jane")
	_, otherResume := seedResumeForUser(t, db, "john")

	if err := db.Create(&database.Portfolio{
		Slug: "jane-doe", ResumeID: otherResume.ID, Repo: "jane-doe", URL: "https://x/", IsActive: true,
	}).Error; err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}

	api := &fakeHostingAPI{}
	router := newPortfolioTestRouter(t, db, api, user.ID)

	w := doJSON(t, router, http.MethodPost, "/v1/portfolio/publish", gin.H{
		"resume_id": resume.ID,
		"slug":      "jane-doe",
		"token":     "ghp_secret",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["kind"] != string(publish.KindSlugTaken) {
		t.Fatalf("kind = %v", body["kind"])
	}
	if body["retryable"] != false {
		t.Fatalf("retryable = %v", body["retryable"])
	}
	// 占用检查失败时不得触达托管平台。
	if len(api.calls) != 0 {
		t.Fatalf("hosting api was called: %v", api.calls)
	}
}

func TestPublishEndpointInvalidCredential(t *testing.T) {
	db := newAPITestDB(t)
	user, resume := seedResumeForUser(t, db, "jane")
	api := &fakeHostingAPI{
		identityErr: &hosting.Error{Kind: hosting.KindUnauthorized, Op: "get_identity", Detail: "Bad credentials"},
	}
	router := newPortfolioTestRouter(t, db, api, user.ID)

	w := doJSON(t, router, http.MethodPost, "/v1/portfolio/publish", gin.H{
		"resume_id": resume.ID,
		"slug":      "jane-doe",
		"token":     "expired",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["kind"] != string(publish.KindCredentialInvalid) {
		t.Fatalf("kind = %v", body["kind"])
	}
	if body["step"] != "authenticating" {
		t.Fatalf("step = %v", body["step"])
	}
	errText, _ := body["error"].(string)
	if !strings.Contains(errText, "Bad credentials") {
		t.Fatalf("hosting detail not passed through: %q", errText)
	}
}

func TestPublishEndpointHostingNotReady(t *testing.T) {
	db := newAPITestDB(t)
	user, resume := seedResumeForUser(t, db, "jane")
	api := &fakeHostingAPI{
		enableErr: &hosting.Error{Kind: hosting.KindNotReady, Op: "enable_static_hosting"},
	}
	router := newPortfolioTestRouter(t, db, api, user.ID)

	w := doJSON(t, router, http.MethodPost, "/v1/portfolio/publish", gin.H{
		"resume_id": resume.ID,
		"slug":      "jane-doe",
		"token":     "ghp_secret",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("503 response must carry Retry-After")
	}

	body := decodeBody(t, w)
	if body["kind"] != string(publish.KindHostingNotReady) {
		t.Fatalf("kind = %v", body["kind"])
	}
	if body["retryable"] != true {
		t.Fatalf("retryable = %v", body["retryable"])
	}
}

func TestWritePublishErrorPersistFailedKeepsSiteInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newAPITestDB(t)
	store := portfolio.NewStore(db)
	handler := NewPortfolioHandler(db, store, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := &publish.Error{
		Step: publish.StepPersistingRecord,
		Kind: publish.KindPersistFailed,
		Err:  errors.New("record store unavailable"),
	}
	handler.writePublishError(c, err, publish.Result{
		URL:  "https://octo.pages.example.com/jane-doe/",
		Repo: "jane-doe",
	})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	// 站点已经上线，必须把地址还给调用方以便仅重试持久化。
	if body["url"] != "https://octo.pages.example.com/jane-doe/" {
		t.Fatalf("url = %v", body["url"])
	}
	if body["repo"] != "jane-doe" {
		t.Fatalf("repo = %v", body["repo"])
	}
}

func TestDeactivateEnforcesOwnership(t *testing.T) {
	db := newAPITestDB(t)
	owner, ownerResume := seedResumeForUser(t, db, "jane")
	intruder, _ := seedResumeForUser(t, db, "john")

	record := database.Portfolio{
		Slug: "jane-doe", ResumeID: ownerResume.ID, Repo: "jane-doe", URL: "https://x/", IsActive: true,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}
	path := fmt.Sprintf("/v1/portfolio/%d", record.ID)

	asIntruder := newPortfolioTestRouter(t, db, &fakeHostingAPI{}, intruder.ID)
	if w := doJSON(t, asIntruder, http.MethodDelete, path, nil); w.Code != http.StatusNotFound {
		t.Fatalf("intruder delete status = %d, want 404", w.Code)
	}

	asOwner := newPortfolioTestRouter(t, db, &fakeHostingAPI{}, owner.ID)
	if w := doJSON(t, asOwner, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("owner delete status = %d, want 204", w.Code)
	}

	var after database.Portfolio
	if err := db.First(&after, record.ID).Error; err != nil {
		t.Fatalf("record should survive deactivation: %v", err)
	}
	if after.IsActive {
		t.Fatal("record still active after deactivation")
	}
}
