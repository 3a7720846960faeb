package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
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

func mustCreate(t *testing.T, store *Store, p *database.Portfolio) {
	t.Helper()
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
}

func TestCreateDuplicateActiveSlug(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	mustCreate(t, store, &database.Portfolio{Slug: "jane-doe", ResumeID: 1, Repo: "jane-doe", URL: "https://a/"})

	err := store.Create(ctx, &database.Portfolio{Slug: "jane-doe", ResumeID: 2, Repo: "jane-doe-2", URL: "https://b/"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestSlugLookupIsCaseInsensitive(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	mustCreate(t, store, &database.Portfolio{Slug: "jane-doe", ResumeID: 1, Repo: "jane-doe", URL: "https://a/"})

	p, err := store.FindActiveBySlug(ctx, "JANE-DOE")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Slug != "jane-doe" {
		t.Fatalf("slug = %q", p.Slug)
	}

	available, err := store.SlugAvailable(ctx, "Jane-Doe")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available {
		t.Fatal("case variant of a taken slug must report unavailable")
	}
}

func TestDeactivateFreesSlug(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	first := &database.Portfolio{Slug: "jane-doe", ResumeID: 1, Repo: "jane-doe", URL: "https://a/"}
	mustCreate(t, store, first)

	if err := store.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.FindActiveBySlug(ctx, "jane-doe"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deactivated portfolio still resolves: %v", err)
	}

	// 停用释放 slug，别人可以复用；旧记录本身保留。
	mustCreate(t, store, &database.Portfolio{Slug: "jane-doe", ResumeID: 2, Repo: "jane-doe-2", URL: "https://b/"})

	if _, err := store.FindByID(ctx, first.ID); err != nil {
		t.Fatalf("deactivated record must survive: %v", err)
	}

	if err := store.Deactivate(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double deactivate should report not found, got %v", err)
	}
}

func TestUpdateSnapshotNeverTouchesRepoOrURL(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	p := &database.Portfolio{Slug: "jane-doe", ResumeID: 1, Repo: "jane-doe", URL: "https://a/", TemplateID: "modern"}
	mustCreate(t, store, p)

	update := *p
	update.TemplateID = "minimal"
	update.Repo = "hijacked"
	update.URL = "https://evil/"
	if err := store.UpdateSnapshot(ctx, &update); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, err := store.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.TemplateID != "minimal" {
		t.Fatalf("template not updated, got %q", stored.TemplateID)
	}
	if stored.Repo != "jane-doe" || stored.URL != "https://a/" {
		t.Fatalf("repo/url must be immutable, got %q %q", stored.Repo, stored.URL)
	}
}

func TestIncrementViewsIsMonotonic(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	p := &database.Portfolio{Slug: "jane-doe", ResumeID: 1, Repo: "jane-doe", URL: "https://a/"}
	mustCreate(t, store, p)

	for i := 0; i < 3; i++ {
		if err := store.IncrementViews(ctx, p.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	stored, err := store.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Views != 3 {
		t.Fatalf("views = %d, want 3", stored.Views)
	}
}

func TestListByUserJoinsThroughResumes(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	mine := database.Resume{Title: "Mine", UserID: 7}
	theirs := database.Resume{Title: "Theirs", UserID: 8}
	if err := db.Create(&mine).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	if err := db.Create(&theirs).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}

	mustCreate(t, store, &database.Portfolio{Slug: "mine", ResumeID: mine.ID, Repo: "mine", URL: "https://m/"})
	mustCreate(t, store, &database.Portfolio{Slug: "theirs", ResumeID: theirs.ID, Repo: "theirs", URL: "https://t/"})

	items, err := store.ListByUser(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Slug != "mine" {
		t.Fatalf("list = %+v", items)
	}
}
