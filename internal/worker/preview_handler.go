package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/errcode"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/render"
	"phPortfolio/internal/storage"
	"phPortfolio/internal/tasks"
)

// PreviewTaskHandler 消费作品集缩略图任务：
// 由已落库的快照渲染页面、截图、上传对象存储并回写预览地址。
// 整个流程不接触任何托管凭证。
type PreviewTaskHandler struct {
	db          *gorm.DB
	store       *portfolio.Store
	storage     *storage.Client
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewPreviewTaskHandler 创建任务处理器。
func NewPreviewTaskHandler(
	db *gorm.DB,
	store *portfolio.Store,
	storageClient *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
) *PreviewTaskHandler {
	return &PreviewTaskHandler{
		db:          db,
		store:       store,
		storage:     storageClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *PreviewTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.PortfolioPreviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("portfolio_id", uint64(payload.PortfolioID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting portfolio preview task")

	p, err := h.store.FindByID(ctx, payload.PortfolioID)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			log.Warn("portfolio not found, skipping task")
			return nil
		}
		log.Error("query portfolio failed", slog.Any("error", err))
		return err
	}
	if !p.IsActive {
		log.Info("portfolio deactivated, skipping preview")
		return nil
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := PreviewNotifyMessage{
			Status:        "error",
			PortfolioID:   p.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishPreviewNotify(ctx, payload.UserID, notify); err != nil {
			log.Error("publish preview error notification failed", slog.Any("error", err))
		}
	}()

	html, err := h.renderPortfolio(ctx, p)
	if err != nil {
		log.Error("render portfolio for preview failed", slog.Any("error", err))
		return err
	}

	const previewQuality = 80
	previewBytes, err := capturePortfolioScreenshot(log, html, previewQuality)
	if err != nil {
		log.Error("capture preview screenshot failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("thumbnails/portfolio/%d/preview.jpg", p.ID)
	reader := bytes.NewReader(previewBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, reader, int64(len(previewBytes)), "image/jpeg"); err != nil {
		log.Error("upload preview to minio failed", slog.Any("error", err))
		return err
	}

	const presignTTL = 7 * 24 * time.Hour
	presignedURL, err := h.storage.GeneratePresignedURL(ctx, objectName, presignTTL)
	if err != nil {
		log.Error("generate preview presigned url failed", slog.Any("error", err))
		return err
	}

	if err := h.store.SetPreviewImageURL(ctx, p.ID, presignedURL); err != nil {
		log.Error("update preview url failed", slog.Any("error", err))
		return err
	}

	notify := PreviewNotifyMessage{
		Status:          "completed",
		PortfolioID:     p.ID,
		CorrelationID:   payload.CorrelationID,
		ErrorCode:       errcode.OK,
		PreviewImageURL: presignedURL,
	}
	if err := h.publishPreviewNotify(ctx, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("portfolio preview task completed")
	return nil
}

// renderPortfolio 复刻公开路径的内容优先级：快照优先，老记录回落实时数据。
func (h *PreviewTaskHandler) renderPortfolio(ctx context.Context, p *database.Portfolio) (string, error) {
	if doc, ok := portfolio.DecodeSnapshot(p.Content); ok {
		return render.RenderDocument(doc)
	}

	var resume database.Resume
	if err := h.db.WithContext(ctx).First(&resume, p.ResumeID).Error; err != nil {
		return "", fmt.Errorf("load resume: %w", err)
	}
	var sections []database.ResumeSection
	if err := h.db.WithContext(ctx).
		Where("resume_id = ?", resume.ID).
		Order("order_index ASC, id ASC").
		Find(&sections).Error; err != nil {
		return "", fmt.Errorf("load sections: %w", err)
	}

	doc := portfolio.DocumentFromModels(resume, sections, p.TemplateID, p.ThemeColor, portfolio.DecodeSettings(p.Settings))
	return render.RenderDocument(doc)
}

func (h *PreviewTaskHandler) publishPreviewNotify(ctx context.Context, userID uint, notify PreviewNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
