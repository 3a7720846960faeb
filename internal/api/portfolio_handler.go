package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"phPortfolio/internal/api/middleware"
	"phPortfolio/internal/database"
	"phPortfolio/internal/hosting"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/publish"
	"phPortfolio/internal/render"
	"phPortfolio/internal/slug"
	"phPortfolio/internal/storage"
	"phPortfolio/internal/tasks"
)

// PortfolioHandler 驱动发布流水线并管理发布记录。
// 托管凭证只存在于单次请求内：进不了数据库、日志与任务队列。
type PortfolioHandler struct {
	db           *gorm.DB
	store        *portfolio.Store
	orchestrator *publish.Orchestrator
	asynqClient  *asynq.Client
	storage      *storage.Client
	logger       *slog.Logger
}

// NewPortfolioHandler 构造 PortfolioHandler。
// asynqClient 可为 nil（禁用缩略图），storage 可为 nil（禁用照片内联）。
func NewPortfolioHandler(db *gorm.DB, store *portfolio.Store, orchestrator *publish.Orchestrator, asynqClient *asynq.Client, storageClient *storage.Client, logger *slog.Logger) *PortfolioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortfolioHandler{
		db:           db,
		store:        store,
		orchestrator: orchestrator,
		asynqClient:  asynqClient,
		storage:      storageClient,
		logger:       logger,
	}
}

type checkSlugRequest struct {
	Slug string `json:"slug" binding:"required,max=200"`
}

// CheckSlug 做咨询性的 slug 可用检查。结果不是预定：
// 权威判定发生在发布写库时，并发抢占会以 409 暴露。
func (h *PortfolioHandler) CheckSlug(c *gin.Context) {
	var req checkSlugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	normalized := slug.Normalize(req.Slug)
	if normalized == "" {
		c.JSON(http.StatusOK, gin.H{"slug": "", "available": false})
		return
	}

	available, err := h.store.SlugAvailable(c.Request.Context(), normalized)
	if err != nil {
		Internal(c, "failed to check slug")
		return
	}

	c.JSON(http.StatusOK, gin.H{"slug": normalized, "available": available})
}

type generateRequest struct {
	ResumeID   uint           `json:"resume_id" binding:"required"`
	TemplateID string         `json:"template_id" binding:"max=64"`
	ThemeColor string         `json:"theme_color" binding:"max=32"`
	Settings   datatypes.JSON `json:"settings"`
	// PhotoObjectKey 指向用户已上传的头像资产，渲染前内联为 data URI。
	PhotoObjectKey string `json:"photo_object_key" binding:"max=200"`
}

// Generate 渲染当前简历数据为完整 HTML，供前端预览。不产生任何外部副作用。
func (h *PortfolioHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, sections, err := h.loadResume(c.Request.Context(), req.ResumeID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to load resume")
		return
	}

	settings := portfolio.DecodeSettings(req.Settings)
	h.inlinePhoto(c.Request.Context(), userID, req.PhotoObjectKey, &settings)

	doc := portfolio.DocumentFromModels(*resume, sections, req.TemplateID, req.ThemeColor, settings)
	html, err := render.RenderDocument(doc)
	if err != nil {
		Internal(c, "failed to render portfolio")
		return
	}

	c.JSON(http.StatusOK, gin.H{"html": html})
}

type publishRequest struct {
	ResumeID       uint           `json:"resume_id" binding:"required"`
	Slug           string         `json:"slug" binding:"required,max=200"`
	TemplateID     string         `json:"template_id" binding:"max=64"`
	ThemeColor     string         `json:"theme_color" binding:"max=32"`
	Settings       datatypes.JSON `json:"settings"`
	PhotoObjectKey string         `json:"photo_object_key" binding:"max=200"`
	// Token 是托管平台的访问令牌，仅在本次调用期间使用。
	Token string `json:"token" binding:"required"`
}

type publishResponse struct {
	PortfolioID uint   `json:"portfolio_id,omitempty"`
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	Repo        string `json:"repo"`
	Step        string `json:"step"`
}

// Publish 同步执行一次完整的发布尝试并返回站点地址。
// 同一简历已有活跃记录时自动走重发布：slug/仓库/地址保持不变，快照就地替换。
func (h *PortfolioHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFrom(c)

	resume, sections, err := h.loadResume(ctx, req.ResumeID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to load resume")
		return
	}

	settings := portfolio.DecodeSettings(req.Settings)
	h.inlinePhoto(ctx, userID, req.PhotoObjectKey, &settings)

	in := publish.Input{
		Resume:        *resume,
		Sections:      sections,
		TemplateID:    req.TemplateID,
		ThemeColor:    req.ThemeColor,
		Settings:      settings,
		SlugCandidate: req.Slug,
		Credential:    hosting.Credential{Token: req.Token},
	}

	// 重发布：同一简历的活跃记录被就地替换。
	if existing, err := h.store.FindActiveByResumeID(ctx, resume.ID); err == nil {
		in.Existing = existing
	} else if !errors.Is(err, portfolio.ErrNotFound) {
		Internal(c, "failed to query portfolio")
		return
	}

	result, err := h.orchestrator.Publish(ctx, in, nil)
	if err != nil {
		h.writePublishError(c, err, result)
		return
	}

	h.enqueuePreview(c, result.Portfolio, userID, logger)

	c.JSON(http.StatusOK, publishResponse{
		PortfolioID: result.Portfolio.ID,
		Slug:        result.Portfolio.Slug,
		URL:         result.URL,
		Repo:        result.Repo,
		Step:        publish.StepCompleted.String(),
	})
}

type retryPersistRequest struct {
	ResumeID       uint           `json:"resume_id" binding:"required"`
	Slug           string         `json:"slug" binding:"required,max=200"`
	TemplateID     string         `json:"template_id" binding:"max=64"`
	ThemeColor     string         `json:"theme_color" binding:"max=32"`
	Settings       datatypes.JSON `json:"settings"`
	PhotoObjectKey string         `json:"photo_object_key" binding:"max=200"`
	Repo           string         `json:"repo" binding:"required,max=255"`
	URL            string         `json:"url" binding:"required,max=512"`
}

// RetryPersist 在“部署成功但记录写入失败”之后仅重试持久化。
// 不触达托管平台，因此不需要凭证。
func (h *PortfolioHandler) RetryPersist(c *gin.Context) {
	var req retryPersistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()

	resume, sections, err := h.loadResume(ctx, req.ResumeID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to load resume")
		return
	}

	settings := portfolio.DecodeSettings(req.Settings)
	h.inlinePhoto(ctx, userID, req.PhotoObjectKey, &settings)

	in := publish.Input{
		Resume:        *resume,
		Sections:      sections,
		TemplateID:    req.TemplateID,
		ThemeColor:    req.ThemeColor,
		Settings:      settings,
		SlugCandidate: req.Slug,
	}
	if existing, err := h.store.FindActiveByResumeID(ctx, resume.ID); err == nil {
		in.Existing = existing
	} else if !errors.Is(err, portfolio.ErrNotFound) {
		Internal(c, "failed to query portfolio")
		return
	}

	record, err := h.orchestrator.RetryPersist(ctx, in, req.Repo, req.URL)
	if err != nil {
		h.writePublishError(c, err, publish.Result{URL: req.URL, Repo: req.Repo})
		return
	}

	h.enqueuePreview(c, record, userID, h.loggerFrom(c))

	c.JSON(http.StatusOK, publishResponse{
		PortfolioID: record.ID,
		Slug:        record.Slug,
		URL:         record.URL,
		Repo:        record.Repo,
		Step:        publish.StepCompleted.String(),
	})
}

type portfolioListItem struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	URL             string `json:"url"`
	TemplateID      string `json:"template_id"`
	IsActive        bool   `json:"is_active"`
	Views           int64  `json:"views"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// List 列出用户名下的全部发布记录（含已停用）。
func (h *PortfolioHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	items, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		Internal(c, "failed to list portfolios")
		return
	}

	resp := make([]portfolioListItem, 0, len(items))
	for _, p := range items {
		resp = append(resp, portfolioListItem{
			ID:              p.ID,
			Title:           p.Title,
			Slug:            p.Slug,
			URL:             p.URL,
			TemplateID:      p.TemplateID,
			IsActive:        p.IsActive,
			Views:           p.Views,
			PreviewImageURL: p.PreviewImageURL,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// Deactivate 停用发布记录：slug 释放，外部站点不受影响。
func (h *PortfolioHandler) Deactivate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid portfolio id")
		return
	}

	ctx := c.Request.Context()
	owned, err := h.ownedPortfolio(ctx, uint(id), userID)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			NotFound(c, "portfolio not found")
			return
		}
		Internal(c, "failed to query portfolio")
		return
	}

	if err := h.store.Deactivate(ctx, owned.ID); err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			NotFound(c, "portfolio not found")
			return
		}
		Internal(c, "failed to deactivate portfolio")
		return
	}

	c.Status(http.StatusNoContent)
}

// writePublishError 把发布状态机的失败映射为 HTTP 语义。
// 响应始终携带失败步骤与类别，原因原文逐字透传。
func (h *PortfolioHandler) writePublishError(c *gin.Context, err error, result publish.Result) {
	var perr *publish.Error
	if !errors.As(err, &perr) {
		Internal(c, "publish failed")
		return
	}

	body := gin.H{
		"step":      perr.Step.String(),
		"kind":      string(perr.Kind),
		"retryable": perr.Kind.Retryable(),
		"error":     perr.Error(),
	}
	// 部署已成功的失败（仅持久化未完成）必须把站点信息还给调用方。
	if perr.Kind == publish.KindPersistFailed && result.URL != "" {
		body["url"] = result.URL
		body["repo"] = result.Repo
	}

	status := http.StatusInternalServerError
	switch perr.Kind {
	case publish.KindSlugInvalid:
		status = http.StatusBadRequest
	case publish.KindSlugTaken:
		status = http.StatusConflict
	case publish.KindCredentialInvalid:
		status = http.StatusUnauthorized
	case publish.KindHostingNotReady:
		// 托管平台尚未物化分支，稍后重试即可。
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "30")
	case publish.KindRepoCreateFailed, publish.KindContentUploadFailed, publish.KindHostingError, publish.KindPersistFailed:
		status = http.StatusBadGateway
	}

	c.JSON(status, body)
}

// enqueuePreview 发布成功后异步生成站点缩略图。失败只记日志，不影响发布结果。
func (h *PortfolioHandler) enqueuePreview(c *gin.Context, record *database.Portfolio, userID uint, logger *slog.Logger) {
	if h.asynqClient == nil || record == nil {
		return
	}

	task, err := tasks.NewPortfolioPreviewTask(record.ID, userID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("create preview task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		logger.Error("enqueue preview task failed",
			slog.Uint64("portfolio_id", uint64(record.ID)),
			slog.Any("error", err),
		)
	}
}

// maxInlinePhotoBytes 限制内联头像的体积，避免快照被撑爆。
const maxInlinePhotoBytes = 2 << 20

// inlinePhoto 把用户已上传的头像资产读出并以 data URI 写入渲染设置，
// 使发布产物保持自包含。任何失败只降级为无照片渲染，不中断发布。
func (h *PortfolioHandler) inlinePhoto(ctx context.Context, userID uint, objectKey string, settings *render.Settings) {
	if h.storage == nil || objectKey == "" {
		return
	}
	if !isValidUserAssetObjectKey(userID, objectKey) {
		h.logger.Warn("skip photo inline, invalid object key", slog.Uint64("user_id", uint64(userID)))
		return
	}

	obj, err := h.storage.GetObject(ctx, objectKey)
	if err != nil {
		h.logger.Warn("skip photo inline, fetch failed", slog.Any("error", err))
		return
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxInlinePhotoBytes+1))
	if err != nil {
		if storage.IsNoSuchKey(err) {
			h.logger.Warn("skip photo inline, asset no longer exists", slog.String("object_key", objectKey))
			return
		}
		h.logger.Warn("skip photo inline, read failed", slog.Any("error", err))
		return
	}
	if len(data) > maxInlinePhotoBytes {
		h.logger.Warn("skip photo inline, object too large", slog.Int("limit", maxInlinePhotoBytes))
		return
	}

	mime := "image/jpeg"
	switch {
	case strings.HasSuffix(strings.ToLower(objectKey), ".png"):
		mime = "image/png"
	case strings.HasSuffix(strings.ToLower(objectKey), ".webp"):
		mime = "image/webp"
	}

	settings.PhotoDataURI = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	settings.ShowPhoto = true
}

func (h *PortfolioHandler) loadResume(ctx context.Context, resumeID, userID uint) (*database.Resume, []database.ResumeSection, error) {
	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&resume).Error; err != nil {
		return nil, nil, err
	}

	var sections []database.ResumeSection
	if err := h.db.WithContext(ctx).
		Where("resume_id = ?", resume.ID).
		Order("order_index ASC, id ASC").
		Find(&sections).Error; err != nil {
		return nil, nil, err
	}

	return &resume, sections, nil
}

func (h *PortfolioHandler) ownedPortfolio(ctx context.Context, id, userID uint) (*database.Portfolio, error) {
	p, err := h.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", p.ResumeID, userID).
		First(&resume).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, portfolio.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (h *PortfolioHandler) loggerFrom(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	return h.logger
}
