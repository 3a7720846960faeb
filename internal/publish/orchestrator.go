package publish

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"phPortfolio/internal/database"
	"phPortfolio/internal/hosting"
	"phPortfolio/internal/metrics"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/render"
	"phPortfolio/internal/slug"
)

// Input 描述一次发布调用。Credential 只在本次调用期间存在：
// 不落库、不写日志、不进队列——编排器对环境存储没有任何隐式访问。
type Input struct {
	Resume        database.Resume
	Sections      []database.ResumeSection
	TemplateID    string
	ThemeColor    string
	Settings      render.Settings
	SlugCandidate string
	Credential    hosting.Credential
	// Existing 非空表示重发布：复用该记录的 slug/repo/url，就地替换快照。
	Existing *database.Portfolio
}

// Result 是发布成功（或部署成功待持久化）后的产物。
type Result struct {
	URL       string
	Repo      string
	Portfolio *database.Portfolio
}

// ProgressFunc 在状态机推进时回调（进入每个步骤时一次，Completed 一次）。
// 可为 nil。回调不得阻塞。
type ProgressFunc func(step Step)

// Orchestrator 驱动部署状态机。每次 Publish 是一条顺序流水线：
// 步骤 n+1 依赖步骤 n 的已提交结果，内部没有并行，也绝不自动重试——
// 各步骤按幂等设计，可安全重跑，重试与否是调用方的决策。
type Orchestrator struct {
	api         hosting.API
	store       *portfolio.Store
	entryPath   string
	branch      string
	pagesDomain string
	logger      *slog.Logger
}

// NewOrchestrator 构造编排器。
func NewOrchestrator(api hosting.API, store *portfolio.Store, entryPath, branch, pagesDomain string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if entryPath == "" {
		entryPath = "index.html"
	}
	if branch == "" {
		branch = "main"
	}
	return &Orchestrator{
		api:         api,
		store:       store,
		entryPath:   entryPath,
		branch:      branch,
		pagesDomain: pagesDomain,
		logger:      logger,
	}
}

// Publish 执行一次完整的发布尝试。
// slug 可用性在任何托管调用之前校验：被占用的 slug 不会产生外部副作用。
func (o *Orchestrator) Publish(ctx context.Context, in Input, progress ProgressFunc) (Result, error) {
	normalized := slug.Normalize(in.SlugCandidate)
	if normalized == "" {
		return Result{}, failed(StepIdle, KindSlugInvalid, fmt.Errorf("slug candidate %q normalizes to empty", in.SlugCandidate))
	}

	log := o.logger.With(
		slog.String("slug", normalized),
		slog.Uint64("resume_id", uint64(in.Resume.ID)),
	)

	if err := o.checkSlug(ctx, normalized, in.Existing); err != nil {
		return Result{}, err
	}

	// Step 1: Authenticate。失败则未发出任何改变外部状态的调用。
	o.enter(StepAuthenticating, progress, log)
	identity, err := o.api.GetIdentity(ctx, in.Credential)
	if err != nil {
		if hosting.IsKind(err, hosting.KindUnauthorized) {
			return Result{}, o.fail(StepAuthenticating, KindCredentialInvalid, err, log)
		}
		return Result{}, o.fail(StepAuthenticating, KindHostingError, err, log)
	}

	// Step 2: CreateOrReuseRepo。重名不是错误：重发布必须落回同一份底层存储。
	o.enter(StepCreatingRepo, progress, log)
	repoName := normalized
	if in.Existing != nil && in.Existing.Repo != "" {
		repoName = in.Existing.Repo
	}
	repo, err := o.createOrReuseRepo(ctx, in.Credential, identity, repoName)
	if err != nil {
		return Result{}, o.fail(StepCreatingRepo, KindRepoCreateFailed, err, log)
	}

	// Step 3: UploadContent。先渲染，再带上既有文件的版本令牌做乐观并发写入；
	// 首次发布（文件不存在）整体省略令牌。
	o.enter(StepUploadingContent, progress, log)
	doc := portfolio.DocumentFromModels(in.Resume, in.Sections, in.TemplateID, in.ThemeColor, in.Settings)
	html, err := render.RenderDocument(doc)
	if err != nil {
		return Result{}, o.fail(StepUploadingContent, KindRenderFailed, err, log)
	}
	if err := o.uploadContent(ctx, in.Credential, repo, html); err != nil {
		return Result{}, o.fail(StepUploadingContent, KindContentUploadFailed, err, log)
	}

	// Step 4: EnableHosting。已开启视为成功；分支未物化时不在这里等待轮询，
	// 而是以 HostingNotReady 交回调用方稍后重试。
	o.enter(StepEnablingHosting, progress, log)
	if err := o.api.EnableStaticHosting(ctx, in.Credential, repo.Owner, repo.Name, o.branch); err != nil {
		switch hosting.KindOf(err) {
		case hosting.KindAlreadyExists:
			// idempotent
		case hosting.KindNotReady:
			return Result{}, o.fail(StepEnablingHosting, KindHostingNotReady, err, log)
		default:
			return Result{}, o.fail(StepEnablingHosting, KindHostingError, err, log)
		}
	}

	publicURL := o.publicURL(repo)

	// Step 5: PersistRecord。到这里外部站点已经上线；
	// 本步失败必须以独立类别上报，调用方只重试持久化，绝不重新部署。
	o.enter(StepPersistingRecord, progress, log)
	record, err := o.persistRecord(ctx, in, doc, normalized, repo.Name, publicURL)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			o.observe(StepPersistingRecord, string(perr.Kind))
			log.Error("persist failed after successful deploy",
				slog.String("url", publicURL), slog.Any("error", err))
			return Result{URL: publicURL, Repo: repo.Name}, err
		}
		return Result{URL: publicURL, Repo: repo.Name}, o.fail(StepPersistingRecord, KindPersistFailed, err, log)
	}

	o.enter(StepCompleted, progress, log)
	metrics.ObservePublish("completed")
	return Result{URL: publicURL, Repo: repo.Name, Portfolio: record}, nil
}

// RetryPersist 仅重跑持久化步骤（针对 PersistFailed 的恢复路径）。
func (o *Orchestrator) RetryPersist(ctx context.Context, in Input, repoName, publicURL string) (*database.Portfolio, error) {
	normalized := slug.Normalize(in.SlugCandidate)
	if normalized == "" {
		return nil, failed(StepIdle, KindSlugInvalid, fmt.Errorf("slug candidate %q normalizes to empty", in.SlugCandidate))
	}
	doc := portfolio.DocumentFromModels(in.Resume, in.Sections, in.TemplateID, in.ThemeColor, in.Settings)
	return o.persistRecord(ctx, in, doc, normalized, repoName, publicURL)
}

// checkSlug 在触达托管 API 之前做前置校验；重发布沿用自身 slug 时跳过。
// 这是咨询性检查，与写入之间的竞态最终由存储层唯一索引裁决。
func (o *Orchestrator) checkSlug(ctx context.Context, normalized string, existing *database.Portfolio) error {
	if existing != nil && strings.EqualFold(existing.Slug, normalized) {
		return nil
	}
	available, err := o.store.SlugAvailable(ctx, normalized)
	if err != nil {
		return failed(StepIdle, KindPersistFailed, err)
	}
	if !available {
		return failed(StepIdle, KindSlugTaken, fmt.Errorf("slug %q is already in use", normalized))
	}
	return nil
}

func (o *Orchestrator) createOrReuseRepo(ctx context.Context, cred hosting.Credential, identity hosting.Identity, name string) (hosting.Repo, error) {
	repo, err := o.api.CreateRepository(ctx, cred, name, "Personal portfolio site")
	if err == nil {
		return repo, nil
	}
	if !hosting.IsKind(err, hosting.KindAlreadyExists) {
		return hosting.Repo{}, err
	}
	existing, getErr := o.api.GetRepository(ctx, cred, identity.Login, name)
	if getErr != nil {
		return hosting.Repo{}, getErr
	}
	return existing, nil
}

func (o *Orchestrator) uploadContent(ctx context.Context, cred hosting.Credential, repo hosting.Repo, html string) error {
	versionToken, err := o.api.GetFileVersion(ctx, cred, repo.Owner, repo.Name, o.entryPath)
	if err != nil && !hosting.IsKind(err, hosting.KindNotFound) {
		return fmt.Errorf("fetch current version: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(html))
	if _, err := o.api.UpsertFile(ctx, cred, repo.Owner, repo.Name, o.entryPath, encoded, "Publish portfolio", versionToken); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) persistRecord(ctx context.Context, in Input, doc render.Document, normalizedSlug, repoName, publicURL string) (*database.Portfolio, error) {
	snapshot, err := portfolio.EncodeSnapshot(doc)
	if err != nil {
		return nil, failed(StepPersistingRecord, KindPersistFailed, err)
	}
	settings, err := portfolio.EncodeSettings(in.Settings)
	if err != nil {
		return nil, failed(StepPersistingRecord, KindPersistFailed, err)
	}

	if in.Existing != nil {
		record := *in.Existing
		record.Title = in.Resume.Title
		record.TemplateID = in.TemplateID
		record.ThemeColor = in.ThemeColor
		record.Settings = settings
		record.Content = snapshot
		if err := o.store.UpdateSnapshot(ctx, &record); err != nil {
			if errors.Is(err, portfolio.ErrSlugTaken) {
				return nil, failed(StepPersistingRecord, KindSlugTaken, err)
			}
			return nil, failed(StepPersistingRecord, KindPersistFailed, err)
		}
		return &record, nil
	}

	record := &database.Portfolio{
		Title:      in.Resume.Title,
		Slug:       normalizedSlug,
		ResumeID:   in.Resume.ID,
		Repo:       repoName,
		URL:        publicURL,
		TemplateID: in.TemplateID,
		ThemeColor: in.ThemeColor,
		Settings:   settings,
		Content:    snapshot,
	}
	if err := o.store.Create(ctx, record); err != nil {
		if errors.Is(err, portfolio.ErrSlugTaken) {
			return nil, failed(StepPersistingRecord, KindSlugTaken, err)
		}
		return nil, failed(StepPersistingRecord, KindPersistFailed, err)
	}
	return record, nil
}

func (o *Orchestrator) publicURL(repo hosting.Repo) string {
	if o.pagesDomain == "" {
		return fmt.Sprintf("https://%s/%s/", repo.Owner, repo.Name)
	}
	return fmt.Sprintf("https://%s.%s/%s/", repo.Owner, o.pagesDomain, repo.Name)
}

func (o *Orchestrator) enter(step Step, progress ProgressFunc, log *slog.Logger) {
	log.Info("publish step", slog.String("step", step.String()))
	if progress != nil {
		progress(step)
	}
}

func (o *Orchestrator) fail(step Step, kind Kind, err error, log *slog.Logger) *Error {
	o.observe(step, string(kind))
	log.Error("publish step failed",
		slog.String("step", step.String()),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)
	return failed(step, kind, err)
}

func (o *Orchestrator) observe(step Step, kind string) {
	metrics.ObservePublish("failed")
	metrics.ObservePublishStepFailure(step.String(), kind)
}
