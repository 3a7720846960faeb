package portfolio

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"phPortfolio/internal/database"
)

// 存储层错误。唯一性冲突只在这里翻译一次，调用方不接触驱动细节。
var (
	// ErrSlugTaken 表示 slug 已被某个活跃 Portfolio 占用。
	ErrSlugTaken = errors.New("slug already taken by an active portfolio")
	// ErrNotFound 表示目标 Portfolio 不存在或已停用。
	ErrNotFound = errors.New("portfolio not found")
)

// Store 提供 Portfolio 的持久化操作。
// 结构不变量：活跃记录之间 slug（大小写不敏感）至多一个，
// 由部分唯一索引兜底（database.EnsureIndexes）；这里的前置检查仅是快速失败。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindActiveBySlug 按规范化 slug 查找活跃 Portfolio。
func (s *Store) FindActiveBySlug(ctx context.Context, slug string) (*database.Portfolio, error) {
	var p database.Portfolio
	err := s.db.WithContext(ctx).
		Where("LOWER(slug) = LOWER(?) AND is_active = ?", slug, true).
		First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("query portfolio by slug: %w", err)
	}
	return &p, nil
}

// SlugAvailable 是给 UI 的咨询性检查；写入时的唯一索引才是权威。
func (s *Store) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("LOWER(slug) = LOWER(?) AND is_active = ?", slug, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count active portfolios: %w", err)
	}
	return count == 0, nil
}

// FindByID 返回指定 Portfolio（含已停用的）。
func (s *Store) FindByID(ctx context.Context, id uint) (*database.Portfolio, error) {
	var p database.Portfolio
	err := s.db.WithContext(ctx).First(&p, id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("query portfolio: %w", err)
	}
	return &p, nil
}

// FindActiveByResumeID 返回简历当前的活跃 Portfolio（重发布走这里复用记录）。
func (s *Store) FindActiveByResumeID(ctx context.Context, resumeID uint) (*database.Portfolio, error) {
	var p database.Portfolio
	err := s.db.WithContext(ctx).
		Where("resume_id = ? AND is_active = ?", resumeID, true).
		First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("query portfolio by resume: %w", err)
	}
	return &p, nil
}

// ListByUser 列出用户名下（经由其简历）的全部 Portfolio。
func (s *Store) ListByUser(ctx context.Context, userID uint) ([]database.Portfolio, error) {
	var items []database.Portfolio
	err := s.db.WithContext(ctx).
		Joins("JOIN resumes ON resumes.id = portfolios.resume_id").
		Where("resumes.user_id = ?", userID).
		Order("portfolios.updated_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	return items, nil
}

// Create 落库一条新的发布记录。slug 冲突（含与咨询检查之间的竞态）
// 统一以 ErrSlugTaken 暴露。
func (s *Store) Create(ctx context.Context, p *database.Portfolio) error {
	p.IsActive = true
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlugTaken
		}
		return fmt.Errorf("create portfolio: %w", err)
	}
	return nil
}

// UpdateSnapshot 覆盖重发布结果：快照、模板、主题、设置就地替换。
// Repo 与 URL 一经分配不再改写——同一条记录的重发布永远落在同一份底层存储。
func (s *Store) UpdateSnapshot(ctx context.Context, p *database.Portfolio) error {
	updates := map[string]any{
		"title":       p.Title,
		"template_id": p.TemplateID,
		"theme_color": p.ThemeColor,
		"settings":    p.Settings,
		"content":     p.Content,
		"is_active":   true,
	}
	if err := s.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", p.ID).
		Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlugTaken
		}
		return fmt.Errorf("update portfolio snapshot: %w", err)
	}
	return nil
}

// Deactivate 软删除：清 is_active，释放 slug 供他人使用。记录本身保留。
func (s *Store) Deactivate(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivate portfolio: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews 原子自增浏览计数，保证计数单调不减。
func (s *Store) IncrementViews(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1")).Error; err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// SetPreviewImageURL 记录 Worker 生成的缩略图地址。
func (s *Store) SetPreviewImageURL(ctx context.Context, id uint, url string) error {
	if err := s.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", id).
		Update("preview_image_url", url).Error; err != nil {
		return fmt.Errorf("update preview image url: %w", err)
	}
	return nil
}
