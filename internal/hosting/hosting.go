package hosting

import (
	"context"
	"errors"
	"fmt"
)

// 对外托管服务的厂商中立抽象。发布编排器只依赖这个接口；
// 凭证始终作为调用参数传入，本包不接触任何持久化存储。

// Credential 是一次发布调用期间有效的托管 API 访问令牌。
// 不落库、不写日志、不进队列。
type Credential struct {
	Token string
}

// Identity 是凭证对应的托管账号。
type Identity struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Repo 描述托管侧的一个仓库。
type Repo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// API 是发布编排器消费的托管服务操作面。
// 所有调用都受 ctx 与客户端内部超时约束，不存在无界等待。
type API interface {
	// GetIdentity 返回凭证对应的账号；凭证无效时返回 KindUnauthorized。
	GetIdentity(ctx context.Context, cred Credential) (Identity, error)

	// CreateRepository 创建仓库；命名冲突返回 KindAlreadyExists（调用方复用既有仓库）。
	CreateRepository(ctx context.Context, cred Credential, name, description string) (Repo, error)

	// GetRepository 读取既有仓库。
	GetRepository(ctx context.Context, cred Credential, owner, name string) (Repo, error)

	// GetFileVersion 返回文件当前的版本令牌（内容哈希）；文件不存在返回 KindNotFound。
	GetFileVersion(ctx context.Context, cred Credential, owner, repo, path string) (string, error)

	// UpsertFile 写入文件并返回新的版本令牌。versionToken 为空表示首次写入；
	// 非空时作为乐观并发凭据随请求提交，过期令牌会被托管侧拒绝。
	UpsertFile(ctx context.Context, cred Credential, owner, repo, path, contentBase64, message, versionToken string) (string, error)

	// EnableStaticHosting 为仓库开启静态托管。已开启视为成功；
	// 分支尚未物化返回 KindNotReady，由调用方稍后重试。
	EnableStaticHosting(ctx context.Context, cred Credential, owner, repo, branch string) error
}

// Kind 是结构化的错误类别。调用方只依赖类别做分支，
// 绝不解析错误文本（原实现靠子串匹配识别“已存在”，这里明确废弃该做法）。
type Kind int

const (
	KindOther Kind = iota
	KindAlreadyExists
	KindNotFound
	KindUnauthorized
	KindRateLimited
	KindNotReady
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNotReady:
		return "not_ready"
	default:
		return "other"
	}
}

// Error 携带类别与托管侧原文，供上层逐字透传给用户界面。
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("hosting %s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("hosting %s: %s: %s", e.Op, e.Kind, e.Detail)
}

// KindOf 提取错误类别；非本包错误归为 KindOther。
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindOther
}

// IsKind 判断错误是否属于给定类别。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
