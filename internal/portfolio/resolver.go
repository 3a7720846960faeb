package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/render"
	"phPortfolio/internal/slug"
)

// sessionDeduper 抽象出浏览去重所需的最小 Redis 操作，便于测试替身。
type sessionDeduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// viewSessionTTL 定义“一次会话”的去重窗口。
// 窗口过期后同一访客再来合法地再次计数（至少一次，而非恰好一次）。
const viewSessionTTL = 30 * time.Minute

// ResolvedPage 是公开路径的解析结果。
type ResolvedPage struct {
	PortfolioID uint
	HTML        string
}

// Resolver 在访问时把 slug 解析为可渲染内容，并尽力记录一次浏览。
type Resolver struct {
	db      *gorm.DB
	store   *Store
	deduper sessionDeduper
	logger  *slog.Logger
}

// NewResolver 构造 Resolver。deduper 可为 nil（测试或 Redis 不可用时退化为不去重）。
func NewResolver(db *gorm.DB, store *Store, deduper sessionDeduper, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, store: store, deduper: deduper, logger: logger}
}

// Resolve 解析 slug。内容来源优先级：落库快照优先；
// 快照缺失（早于快照机制的老记录）时回落到实时 Resume+Sections，
// 两条路径复用同一个渲染器。未知 slug 返回 ErrNotFound。
func (r *Resolver) Resolve(ctx context.Context, rawSlug string) (ResolvedPage, error) {
	normalized := slug.Normalize(rawSlug)
	if normalized == "" {
		return ResolvedPage{}, ErrNotFound
	}

	p, err := r.store.FindActiveBySlug(ctx, normalized)
	if err != nil {
		return ResolvedPage{}, err
	}

	if doc, ok := DecodeSnapshot(p.Content); ok {
		html, err := render.RenderDocument(doc)
		if err != nil {
			return ResolvedPage{}, fmt.Errorf("render snapshot: %w", err)
		}
		return ResolvedPage{PortfolioID: p.ID, HTML: html}, nil
	}

	doc, err := r.liveDocument(ctx, p)
	if err != nil {
		return ResolvedPage{}, err
	}
	html, err := render.RenderDocument(doc)
	if err != nil {
		return ResolvedPage{}, fmt.Errorf("render live resume: %w", err)
	}
	return ResolvedPage{PortfolioID: p.ID, HTML: html}, nil
}

func (r *Resolver) liveDocument(ctx context.Context, p *database.Portfolio) (render.Document, error) {
	var resume database.Resume
	if err := r.db.WithContext(ctx).First(&resume, p.ResumeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return render.Document{}, ErrNotFound
		}
		return render.Document{}, fmt.Errorf("load resume: %w", err)
	}

	var sections []database.ResumeSection
	if err := r.db.WithContext(ctx).
		Where("resume_id = ?", resume.ID).
		Order("order_index ASC, id ASC").
		Find(&sections).Error; err != nil {
		return render.Document{}, fmt.Errorf("load sections: %w", err)
	}

	return DocumentFromModels(resume, sections, p.TemplateID, p.ThemeColor, DecodeSettings(p.Settings)), nil
}

// RecordView 尽力而为地记录一次浏览：同一 (portfolio, session) 在会话窗口内
// 最多计一次；Redis 不可用时直接计数（允许偶发多计，绝不丢整条路径）。
// 独立于页面渲染执行，永不阻塞、永不失败到调用方。
func (r *Resolver) RecordView(portfolioID uint, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.deduper != nil && sessionID != "" {
		key := fmt.Sprintf("portfolio_view:%d:%s", portfolioID, sessionID)
		fresh, err := r.deduper.SetNX(ctx, key, 1, viewSessionTTL).Result()
		if err != nil {
			r.logger.Warn("view dedup unavailable, counting anyway",
				slog.Uint64("portfolio_id", uint64(portfolioID)),
				slog.Any("error", err),
			)
		} else if !fresh {
			return
		}
	}

	if err := r.store.IncrementViews(ctx, portfolioID); err != nil {
		r.logger.Warn("record view failed",
			slog.Uint64("portfolio_id", uint64(portfolioID)),
			slog.Any("error", err),
		)
	}
}
