package publish

import "fmt"

// Step 是发布状态机的节点。一次调用沿 Idle → … → Completed 单向推进，
// 任一非终态都可进入 Failed（以 *Error 表达，携带失败步骤与原因）。
type Step int

const (
	StepIdle Step = iota
	StepAuthenticating
	StepCreatingRepo
	StepUploadingContent
	StepEnablingHosting
	StepPersistingRecord
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepAuthenticating:
		return "authenticating"
	case StepCreatingRepo:
		return "creating_repo"
	case StepUploadingContent:
		return "uploading_content"
	case StepEnablingHosting:
		return "enabling_hosting"
	case StepPersistingRecord:
		return "persisting_record"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Kind 是面向调用方的失败类别。UI 依据类别决定提示与重试策略，
// 依据 Step 渲染进度文案。
type Kind string

const (
	// KindCredentialInvalid 托管令牌被拒绝。终态：调用方必须换新令牌。
	KindCredentialInvalid Kind = "credential_invalid"
	// KindSlugInvalid 候选 slug 规范化后为空。
	KindSlugInvalid Kind = "slug_invalid"
	// KindSlugTaken slug 已被活跃 Portfolio 占用（前置检查或写入竞态）。
	KindSlugTaken Kind = "slug_taken"
	// KindRepoCreateFailed 创建仓库时托管侧瞬时失败。可安全重跑。
	KindRepoCreateFailed Kind = "repo_create_failed"
	// KindContentUploadFailed 上传被拒（含版本令牌过期）。重试会重新取令牌。
	KindContentUploadFailed Kind = "content_upload_failed"
	// KindHostingNotReady 托管分支尚未物化。稍后重试即可。
	KindHostingNotReady Kind = "hosting_not_ready"
	// KindHostingError 其余托管侧失败。
	KindHostingError Kind = "hosting_error"
	// KindPersistFailed 部署已成功但本地记录写入失败。
	// 只需重试持久化，绝不重新部署。
	KindPersistFailed Kind = "persist_failed"
	// KindRenderFailed 渲染器内部错误（编程缺陷，数据问题不会到这里）。
	KindRenderFailed Kind = "render_failed"
)

// Retryable 报告该类失败是否可以直接重跑整条流水线。
// PersistFailed 单列：重试持久化而非重新部署。
func (k Kind) Retryable() bool {
	switch k {
	case KindRepoCreateFailed, KindContentUploadFailed, KindHostingNotReady, KindHostingError:
		return true
	default:
		return false
	}
}

// Error 携带失败步骤、类别与底层原因原文，逐字暴露给调用方。
type Error struct {
	Step Step
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish failed at %s: %s", e.Step, e.Kind)
	}
	return fmt.Sprintf("publish failed at %s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failed(step Step, kind Kind, err error) *Error {
	return &Error{Step: step, Kind: kind, Err: err}
}
