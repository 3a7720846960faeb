package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/render"
)

const viewSessionCookieName = "pf_session"

// PublicHandler 服务无需登录的公开路径：按 slug 解析作品集页面。
type PublicHandler struct {
	resolver *portfolio.Resolver
}

// NewPublicHandler 构造 PublicHandler。
func NewPublicHandler(resolver *portfolio.Resolver) *PublicHandler {
	return &PublicHandler{resolver: resolver}
}

// ServeSlug 挂在 NoRoute 上处理 GET /{slug}。
// 命中则整页返回渲染结果并尽力记一次浏览；未知 slug 返回带引导的 404 页。
// 其余未匹配路径保持 JSON 404，不与 API 语义混淆。
func (h *PublicHandler) ServeSlug(c *gin.Context) {
	rawSlug, ok := publicSlugFromPath(c.Request.URL.Path)
	if !ok || c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	page, err := h.resolver.Resolve(c.Request.Context(), rawSlug)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(render.NotFoundPage(rawSlug)))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render page"})
		return
	}

	sessionID := h.ensureSessionCookie(c)
	// 浏览计数独立于响应路径，绝不阻塞页面返回。
	go h.resolver.RecordView(page.PortfolioID, sessionID)

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page.HTML))
}

// RecordView 是给单页前端的补充入口：页面由 CDN/缓存返回时仍可计数。
func (h *PublicHandler) RecordView(c *gin.Context) {
	var req struct {
		Slug string `json:"slug" binding:"required,max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	page, err := h.resolver.Resolve(c.Request.Context(), req.Slug)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			NotFound(c, "portfolio not found")
			return
		}
		Internal(c, "failed to resolve portfolio")
		return
	}

	sessionID := h.ensureSessionCookie(c)
	go h.resolver.RecordView(page.PortfolioID, sessionID)

	c.Status(http.StatusAccepted)
}

// ensureSessionCookie 读取或签发浏览会话标识。会话窗口的长短由解析器控制。
func (h *PublicHandler) ensureSessionCookie(c *gin.Context) string {
	if sessionID, err := c.Cookie(viewSessionCookieName); err == nil && sessionID != "" {
		return sessionID
	}

	sessionID := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(viewSessionCookieName, sessionID, 0, "/", "", false, true)
	return sessionID
}

// publicSlugFromPath 只接受单段路径（/{slug}），避免吞掉深层 API 404。
func publicSlugFromPath(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	return trimmed, true
}
