package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient 是 API 的 REST 实现，面向 GitHub 风格的托管服务。
// 基址与超时来自配置；具体厂商差异被压缩在状态码到 Kind 的映射里。
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient 构造 REST 客户端。timeout 约束每一次托管调用。
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type identityResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type repoResponse struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type contentResponse struct {
	SHA     string `json:"sha"`
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

// GetIdentity 实现 API。
func (c *HTTPClient) GetIdentity(ctx context.Context, cred Credential) (Identity, error) {
	var resp identityResponse
	if err := c.do(ctx, cred, http.MethodGet, "/user", nil, &resp, "get identity", nil); err != nil {
		return Identity{}, err
	}
	return Identity{ID: strconv.FormatInt(resp.ID, 10), Login: resp.Login}, nil
}

// CreateRepository 实现 API。命名冲突（422）映射为 KindAlreadyExists。
func (c *HTTPClient) CreateRepository(ctx context.Context, cred Credential, name, description string) (Repo, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"auto_init":   true,
	}
	kindFor := func(status int) Kind {
		if status == http.StatusUnprocessableEntity || status == http.StatusConflict {
			return KindAlreadyExists
		}
		return kindFromStatus(status)
	}

	var resp repoResponse
	if err := c.do(ctx, cred, http.MethodPost, "/user/repos", body, &resp, "create repository", kindFor); err != nil {
		return Repo{}, err
	}
	return repoFromResponse(resp), nil
}

// GetRepository 实现 API。
func (c *HTTPClient) GetRepository(ctx context.Context, cred Credential, owner, name string) (Repo, error) {
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
	var resp repoResponse
	if err := c.do(ctx, cred, http.MethodGet, path, nil, &resp, "get repository", nil); err != nil {
		return Repo{}, err
	}
	return repoFromResponse(resp), nil
}

// GetFileVersion 实现 API。文件不存在返回 KindNotFound。
func (c *HTTPClient) GetFileVersion(ctx context.Context, cred Credential, owner, repo, path string) (string, error) {
	reqPath := fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(owner), url.PathEscape(repo), escapeContentPath(path))
	var resp contentResponse
	if err := c.do(ctx, cred, http.MethodGet, reqPath, nil, &resp, "get file version", nil); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

// UpsertFile 实现 API。versionToken 为空时整体省略 sha 字段（首次发布）；
// 过期令牌由托管侧以 409 拒绝，映射为 KindOther 交由调用方重试。
func (c *HTTPClient) UpsertFile(ctx context.Context, cred Credential, owner, repo, path, contentBase64, message, versionToken string) (string, error) {
	body := map[string]any{
		"message": message,
		"content": contentBase64,
	}
	if versionToken != "" {
		body["sha"] = versionToken
	}

	reqPath := fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(owner), url.PathEscape(repo), escapeContentPath(path))
	var resp contentResponse
	if err := c.do(ctx, cred, http.MethodPut, reqPath, body, &resp, "upsert file", nil); err != nil {
		return "", err
	}
	return resp.Content.SHA, nil
}

// EnableStaticHosting 实现 API。
// 409 已开启映射为 KindAlreadyExists（上层视为成功）；
// 422 表示分支尚未物化，映射为 KindNotReady。
func (c *HTTPClient) EnableStaticHosting(ctx context.Context, cred Credential, owner, repo, branch string) error {
	body := map[string]any{
		"source": map[string]any{
			"branch": branch,
			"path":   "/",
		},
	}
	kindFor := func(status int) Kind {
		switch status {
		case http.StatusConflict:
			return KindAlreadyExists
		case http.StatusUnprocessableEntity:
			return KindNotReady
		}
		return kindFromStatus(status)
	}

	reqPath := fmt.Sprintf("/repos/%s/%s/pages", url.PathEscape(owner), url.PathEscape(repo))
	return c.do(ctx, cred, http.MethodPost, reqPath, body, nil, "enable static hosting", kindFor)
}

// do 执行一次托管 API 调用。非 2xx 统一转成 *Error，
// kindFor 允许按操作覆盖缺省的状态码映射。
func (c *HTTPClient) do(
	ctx context.Context,
	cred Credential,
	method, path string,
	body any,
	out any,
	op string,
	kindFor func(status int) Kind,
) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindOther, Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := kindFromStatus(resp.StatusCode)
		if kindFor != nil {
			kind = kindFor(resp.StatusCode)
		}
		return &Error{
			Kind:   kind,
			Op:     op,
			Status: resp.StatusCode,
			Detail: readErrorDetail(resp.Body),
		}
	}

	if out == nil {
		// 丢弃响应体以便连接复用。
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// kindFromStatus 是缺省的状态码分类。只看状态码，绝不嗅探错误文本。
func kindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindOther
	}
}

func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 8*1024))
	if err != nil {
		return ""
	}
	var parsed apiErrorBody
	if json.Unmarshal(data, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(data))
}

func escapeContentPath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func repoFromResponse(resp repoResponse) Repo {
	return Repo{
		Owner:         resp.Owner.Login,
		Name:          resp.Name,
		DefaultBranch: resp.DefaultBranch,
	}
}
