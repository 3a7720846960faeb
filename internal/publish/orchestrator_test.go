package publish

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/hosting"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/render"
)

type upsertCall struct {
	path         string
	versionToken string
}

type fakeHosting struct {
	identity    hosting.Identity
	identityErr error
	enableErr   error

	repos   map[string]hosting.Repo
	tokens  map[string]string
	content map[string]string

	calls   []string
	upserts []upsertCall
}

func newFakeHosting() *fakeHosting {
	return &fakeHosting{
		identity: hosting.Identity{ID: "42", Login: "octo"},
		repos:    map[string]hosting.Repo{},
		tokens:   map[string]string{},
		content:  map[string]string{},
	}
}

func (f *fakeHosting) GetIdentity(_ context.Context, _ hosting.Credential) (hosting.Identity, error) {
	f.calls = append(f.calls, "identity")
	if f.identityErr != nil {
		return hosting.Identity{}, f.identityErr
	}
	return f.identity, nil
}

func (f *fakeHosting) CreateRepository(_ context.Context, _ hosting.Credential, name, _ string) (hosting.Repo, error) {
	f.calls = append(f.calls, "create:"+name)
	if _, ok := f.repos[name]; ok {
		return hosting.Repo{}, &hosting.Error{Kind: hosting.KindAlreadyExists, Op: "create repository", Status: 422}
	}
	repo := hosting.Repo{Owner: f.identity.Login, Name: name, DefaultBranch: "main"}
	f.repos[name] = repo
	return repo, nil
}

func (f *fakeHosting) GetRepository(_ context.Context, _ hosting.Credential, _, name string) (hosting.Repo, error) {
	f.calls = append(f.calls, "get:"+name)
	repo, ok := f.repos[name]
	if !ok {
		return hosting.Repo{}, &hosting.Error{Kind: hosting.KindNotFound, Op: "get repository", Status: 404}
	}
	return repo, nil
}

func (f *fakeHosting) GetFileVersion(_ context.Context, _ hosting.Credential, owner, repo, path string) (string, error) {
	key := owner + "/" + repo + "/" + path
	f.calls = append(f.calls, "version:"+key)
	token, ok := f.tokens[key]
	if !ok {
		return "", &hosting.Error{Kind: hosting.KindNotFound, Op: "get file version", Status: 404}
	}
	return token, nil
}

func (f *fakeHosting) UpsertFile(_ context.Context, _ hosting.Credential, owner, repo, path, contentBase64, _, versionToken string) (string, error) {
	key := owner + "/" + repo + "/" + path
	f.calls = append(f.calls, "upsert:"+key)
	f.upserts = append(f.upserts, upsertCall{path: path, versionToken: versionToken})
	if current := f.tokens[key]; current != versionToken {
		return "", &hosting.Error{Kind: hosting.KindOther, Op: "upsert file", Status: 409, Detail: "version token mismatch"}
	}
	next := fmt.Sprintf("sha-%d", len(f.upserts))
	f.tokens[key] = next
	f.content[key] = contentBase64
	return next, nil
}

func (f *fakeHosting) EnableStaticHosting(_ context.Context, _ hosting.Credential, _, repo, _ string) error {
	f.calls = append(f.calls, "pages:"+repo)
	return f.enableErr
}

func newPublishTestDB(t *testing.T) *gorm.DB {
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

func seedResume(t *testing.T, db *gorm.DB) (database.Resume, []database.ResumeSection) {
	t.Helper()
	resume := database.Resume{Title: "Jane Doe", JobTitle: "Engineer", TemplateID: "modern", UserID: 1}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	sections := []database.ResumeSection{
		{ResumeID: resume.ID, SectionType: render.SectionSummary, Title: "Summary", Content: []byte(`{"text":"Builds things."}`), OrderIndex: 0},
	}
	for i := range sections {
		if err := db.Create(&sections[i]).Error; err != nil {
			t.Fatalf("seed section: %v", err)
		}
	}
	return resume, sections
}

func newTestOrchestrator(api hosting.API, store *portfolio.Store) *Orchestrator {
	return NewOrchestrator(api, store, "index.html", "main", "pages.example.com", nil)
}

func TestPublishFreshCompletes(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	var steps []Step
	in := Input{
		Resume:        resume,
		Sections:      sections,
		TemplateID:    "modern",
		ThemeColor:    "#2563eb",
		SlugCandidate: "Jane Doe",
		Credential:    hosting.Credential{Token: "tok"},
	}
	result, err := o.Publish(context.Background(), in, func(s Step) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := []Step{StepAuthenticating, StepCreatingRepo, StepUploadingContent, StepEnablingHosting, StepPersistingRecord, StepCompleted}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step[%d] = %s, want %s", i, steps[i], want[i])
		}
	}

	if result.Repo != "jane-doe" {
		t.Fatalf("repo = %q, want normalized slug", result.Repo)
	}
	if result.URL != "https://octo.pages.example.com/jane-doe/" {
		t.Fatalf("url = %q", result.URL)
	}
	if result.Portfolio == nil || !result.Portfolio.IsActive {
		t.Fatalf("expected active persisted record, got %+v", result.Portfolio)
	}
	if result.Portfolio.Slug != "jane-doe" {
		t.Fatalf("slug = %q", result.Portfolio.Slug)
	}
	if len(result.Portfolio.Content) == 0 {
		t.Fatal("expected snapshot to be persisted")
	}
	if _, ok := portfolio.DecodeSnapshot(result.Portfolio.Content); !ok {
		t.Fatal("persisted snapshot does not decode")
	}

	if len(api.upserts) != 1 {
		t.Fatalf("upserts = %d", len(api.upserts))
	}
	if api.upserts[0].versionToken != "" {
		t.Fatalf("first upload must omit version token, got %q", api.upserts[0].versionToken)
	}

	uploaded, err := base64.StdEncoding.DecodeString(api.content["octo/jane-doe/index.html"])
	if err != nil {
		t.Fatalf("uploaded content not base64: %v", err)
	}
	if !strings.Contains(string(uploaded), "Jane Doe") {
		t.Fatal("uploaded page missing resume title")
	}
}

func TestPublishTakenSlugStopsBeforeHosting(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	if err := store.Create(context.Background(), &database.Portfolio{
		Title: "Other", Slug: "jane-doe", ResumeID: 999, Repo: "jane-doe", URL: "https://x/",
	}); err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}

	in := Input{
		Resume:        resume,
		Sections:      sections,
		SlugCandidate: "JANE-DOE",
		Credential:    hosting.Credential{Token: "tok"},
	}
	_, err := o.Publish(context.Background(), in, nil)

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindSlugTaken {
		t.Fatalf("expected SlugTaken, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("taken slug must not touch hosting, calls = %v", api.calls)
	}
}

func TestRepublishKeepsRepoAndURL(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	in := Input{
		Resume:        resume,
		Sections:      sections,
		TemplateID:    "modern",
		SlugCandidate: "jane-doe",
		Credential:    hosting.Credential{Token: "tok"},
	}
	first, err := o.Publish(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}

	in.TemplateID = "minimal"
	in.Existing = first.Portfolio
	second, err := o.Publish(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	if second.Repo != first.Repo || second.URL != first.URL {
		t.Fatalf("republish changed repo/url: %q/%q vs %q/%q", second.Repo, second.URL, first.Repo, first.URL)
	}
	if second.Portfolio.ID != first.Portfolio.ID {
		t.Fatalf("republish created new record: %d vs %d", second.Portfolio.ID, first.Portfolio.ID)
	}

	stored, err := store.FindByID(context.Background(), first.Portfolio.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.TemplateID != "minimal" {
		t.Fatalf("snapshot settings not replaced, template = %q", stored.TemplateID)
	}
	if stored.Repo != first.Repo || stored.URL != first.URL {
		t.Fatal("stored repo/url drifted on republish")
	}

	if len(api.upserts) != 2 {
		t.Fatalf("upserts = %d", len(api.upserts))
	}
	if api.upserts[1].versionToken == "" {
		t.Fatal("second upload must carry the prior version token")
	}

	var creates int
	for _, c := range api.calls {
		if strings.HasPrefix(c, "create:") {
			creates++
		}
	}
	if creates != 2 {
		t.Fatalf("create attempts = %d", creates)
	}
	for _, c := range api.calls {
		if c == "get:jane-doe" {
			return
		}
	}
	t.Fatal("existing repo was not fetched after create conflict")
}

func TestPublishInvalidCredential(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	api.identityErr = &hosting.Error{Kind: hosting.KindUnauthorized, Op: "get identity", Status: 401, Detail: "Bad credentials"}
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	_, err := o.Publish(context.Background(), Input{
		Resume: resume, Sections: sections, SlugCandidate: "jane-doe",
		Credential: hosting.Credential{Token: "expired"},
	}, nil)

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if perr.Kind != KindCredentialInvalid || perr.Step != StepAuthenticating {
		t.Fatalf("got kind=%s step=%s", perr.Kind, perr.Step)
	}
	if perr.Kind.Retryable() {
		t.Fatal("invalid credential must not be retryable")
	}
	if !strings.Contains(err.Error(), "Bad credentials") {
		t.Fatalf("provider detail lost: %v", err)
	}
	for _, c := range api.calls {
		if strings.HasPrefix(c, "create:") || strings.HasPrefix(c, "upsert:") {
			t.Fatalf("auth failure must not create side effects, calls = %v", api.calls)
		}
	}
}

func TestPublishHostingNotReady(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	api.enableErr = &hosting.Error{Kind: hosting.KindNotReady, Op: "enable pages", Status: 422}
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	_, err := o.Publish(context.Background(), Input{
		Resume: resume, Sections: sections, SlugCandidate: "jane-doe",
		Credential: hosting.Credential{Token: "tok"},
	}, nil)

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindHostingNotReady {
		t.Fatalf("expected HostingNotReady, got %v", err)
	}
	if !perr.Kind.Retryable() {
		t.Fatal("hosting-not-ready must be retryable")
	}
	if _, serr := store.FindActiveBySlug(context.Background(), "jane-doe"); !errors.Is(serr, portfolio.ErrNotFound) {
		t.Fatal("failed publish must not persist a record")
	}
}

func TestPublishHostingAlreadyEnabledIsSuccess(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	api.enableErr = &hosting.Error{Kind: hosting.KindAlreadyExists, Op: "enable pages", Status: 409}
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	result, err := o.Publish(context.Background(), Input{
		Resume: resume, Sections: sections, SlugCandidate: "jane-doe",
		Credential: hosting.Credential{Token: "tok"},
	}, nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Portfolio == nil {
		t.Fatal("expected persisted record")
	}
}

func TestPublishPersistFailureThenRetryPersist(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	o := newTestOrchestrator(api, store)
	resume, sections := seedResume(t, db)

	in := Input{
		Resume: resume, Sections: sections, TemplateID: "modern",
		SlugCandidate: "jane-doe",
		Credential:    hosting.Credential{Token: "tok"},
	}

	// 部署成功后、落库前破坏表，制造纯持久化失败。
	progress := func(s Step) {
		if s == StepPersistingRecord {
			if err := db.Exec("DROP TABLE portfolios").Error; err != nil {
				t.Fatalf("drop table: %v", err)
			}
		}
	}
	result, err := o.Publish(context.Background(), in, progress)

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindPersistFailed {
		t.Fatalf("expected PersistFailed, got %v", err)
	}
	if result.URL == "" || result.Repo == "" {
		t.Fatalf("deploy outcome must survive persist failure, got %+v", result)
	}

	if err := db.AutoMigrate(&database.Portfolio{}); err != nil {
		t.Fatalf("restore table: %v", err)
	}
	record, err := o.RetryPersist(context.Background(), in, result.Repo, result.URL)
	if err != nil {
		t.Fatalf("retry persist: %v", err)
	}
	if record.URL != result.URL || record.Repo != result.Repo {
		t.Fatal("retry must persist the already-deployed repo/url, not redeploy")
	}
	if len(api.upserts) != 1 {
		t.Fatalf("retry persist must not touch hosting again, upserts = %d", len(api.upserts))
	}
}

func TestPublishEmptySlugCandidate(t *testing.T) {
	db := newPublishTestDB(t)
	store := portfolio.NewStore(db)
	api := newFakeHosting()
	o := newTestOrchestrator(api, store)

	_, err := o.Publish(context.Background(), Input{SlugCandidate: "!!!"}, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindSlugInvalid {
		t.Fatalf("expected SlugInvalid, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("invalid slug must not touch hosting, calls = %v", api.calls)
	}
}
