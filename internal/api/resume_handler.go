package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"phPortfolio/internal/database"
	"phPortfolio/internal/render"
)

// ResumeHandler 负责处理与简历及其分区相关的 API 请求。
type ResumeHandler struct {
	db         *gorm.DB
	maxResumes int
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, maxResumes int) *ResumeHandler {
	return &ResumeHandler{
		db:         db,
		maxResumes: maxResumes,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

type sectionRequest struct {
	SectionType string         `json:"section_type" binding:"required,max=64"`
	Title       string         `json:"title" binding:"max=255"`
	Content     datatypes.JSON `json:"content"`
	OrderIndex  int            `json:"order_index"`
}

type resumeRequest struct {
	Title      string           `json:"title" binding:"required,max=255"`
	JobTitle   string           `json:"job_title" binding:"max=255"`
	TemplateID string           `json:"template_id" binding:"max=64"`
	ThemeColor string           `json:"theme_color" binding:"max=32"`
	Settings   datatypes.JSON   `json:"settings"`
	Sections   []sectionRequest `json:"sections"`
}

type sectionResponse struct {
	ID          uint           `json:"id"`
	SectionType string         `json:"section_type"`
	Title       string         `json:"title"`
	Content     datatypes.JSON `json:"content"`
	OrderIndex  int            `json:"order_index"`
}

type resumeListItem struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	JobTitle   string    `json:"job_title"`
	TemplateID string    `json:"template_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type resumeResponse struct {
	ID         uint              `json:"id"`
	Title      string            `json:"title"`
	JobTitle   string            `json:"job_title"`
	TemplateID string            `json:"template_id"`
	ThemeColor string            `json:"theme_color"`
	Settings   datatypes.JSON    `json:"settings"`
	Sections   []sectionResponse `json:"sections"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// CreateResume 保存一份新的简历（可携带初始分区），超过限额则提示升级。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	var req resumeRequest
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

	var count int64
	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		Internal(c, "failed to count resumes")
		return
	}

	if h.maxResumes > 0 && count >= int64(h.maxResumes) {
		Forbidden(c, "resume limit reached")
		return
	}

	resume := database.Resume{
		Title:      req.Title,
		JobTitle:   req.JobTitle,
		TemplateID: req.TemplateID,
		ThemeColor: req.ThemeColor,
		Settings:   req.Settings,
		UserID:     userID,
	}
	for i, sec := range req.Sections {
		orderIndex := sec.OrderIndex
		if orderIndex == 0 {
			orderIndex = i
		}
		resume.Sections = append(resume.Sections, database.ResumeSection{
			SectionType: sec.SectionType,
			Title:       sec.Title,
			Content:     sec.Content,
			OrderIndex:  orderIndex,
		})
	}

	if err := h.db.WithContext(ctx).Create(&resume).Error; err != nil {
		Internal(c, "failed to create resume")
		return
	}

	c.JSON(http.StatusCreated, h.newResumeResponse(resume, resume.Sections))
}

// ListResumes 列出用户全部简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	var resumes []database.Resume
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&resumes).Error; err != nil {
		Internal(c, "failed to list resumes")
		return
	}

	items := make([]resumeListItem, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, resumeListItem{
			ID:         r.ID,
			Title:      r.Title,
			JobTitle:   r.JobTitle,
			TemplateID: r.TemplateID,
			UpdatedAt:  r.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, items)
}

// GetResume 返回指定 ID 的简历及其全部分区。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeResumeLookupError(c, err)
		return
	}

	sections, err := h.loadSections(c.Request.Context(), resume.ID)
	if err != nil {
		Internal(c, "failed to load sections")
		return
	}

	c.JSON(http.StatusOK, h.newResumeResponse(*resume, sections))
}

// UpdateResume 覆盖指定简历的元数据（标题、模板、主题、设置）。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeResumeLookupError(c, err)
		return
	}

	updates := map[string]any{
		"title":       req.Title,
		"job_title":   req.JobTitle,
		"template_id": req.TemplateID,
		"theme_color": req.ThemeColor,
	}
	if req.Settings != nil {
		updates["settings"] = req.Settings
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(resume).Updates(updates).Error; err != nil {
		Internal(c, "failed to update resume")
		return
	}

	if err := h.db.WithContext(ctx).First(resume, resume.ID).Error; err != nil {
		Internal(c, "failed to reload resume")
		return
	}

	sections, err := h.loadSections(ctx, resume.ID)
	if err != nil {
		Internal(c, "failed to load sections")
		return
	}

	c.JSON(http.StatusOK, h.newResumeResponse(*resume, sections))
}

// ReplaceSections 以请求体整体替换简历分区。
// 编辑器按“整页保存”的模型工作，逐分区 PATCH 反而造成顺序竞态。
func (h *ResumeHandler) ReplaceSections(c *gin.Context) {
	var req struct {
		Sections []sectionRequest `json:"sections" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeResumeLookupError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resume_id = ?", resume.ID).Delete(&database.ResumeSection{}).Error; err != nil {
			return err
		}
		for i, sec := range req.Sections {
			orderIndex := sec.OrderIndex
			if orderIndex == 0 {
				orderIndex = i
			}
			section := database.ResumeSection{
				ResumeID:    resume.ID,
				SectionType: sec.SectionType,
				Title:       sec.Title,
				Content:     sec.Content,
				OrderIndex:  orderIndex,
			}
			if err := tx.Create(&section).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		Internal(c, "failed to replace sections")
		return
	}

	sections, err := h.loadSections(ctx, resume.ID)
	if err != nil {
		Internal(c, "failed to load sections")
		return
	}

	c.JSON(http.StatusOK, h.newResumeResponse(*resume, sections))
}

// ReorderSections 按给定的分区 ID 序列重写 OrderIndex。
func (h *ResumeHandler) ReorderSections(c *gin.Context) {
	var req struct {
		SectionIDs []uint `json:"section_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeResumeLookupError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, sectionID := range req.SectionIDs {
			result := tx.Model(&database.ResumeSection{}).
				Where("id = ? AND resume_id = ?", sectionID, resume.ID).
				Update("order_index", i)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "section not found")
			return
		}
		Internal(c, "failed to reorder sections")
		return
	}

	sections, err := h.loadSections(ctx, resume.ID)
	if err != nil {
		Internal(c, "failed to load sections")
		return
	}

	c.JSON(http.StatusOK, h.newResumeResponse(*resume, sections))
}

// DeleteResume 删除指定简历及其分区。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeResumeLookupError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resume_id = ?", resume.ID).Delete(&database.ResumeSection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Resume{}, resume.ID).Error
	})
	if err != nil {
		Internal(c, "failed to delete resume")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ResumeHandler) writeResumeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidResumeID):
		BadRequest(c, "invalid resume id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resume not found")
	default:
		Internal(c, "failed to query resume")
	}
}

func (h *ResumeHandler) getResumeForUser(ctx context.Context, idParam string, userID uint) (*database.Resume, error) {
	resumeID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidResumeID
	}

	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(resumeID), userID).
		First(&resume).Error; err != nil {
		return nil, err
	}

	return &resume, nil
}

func (h *ResumeHandler) loadSections(ctx context.Context, resumeID uint) ([]database.ResumeSection, error) {
	var sections []database.ResumeSection
	err := h.db.WithContext(ctx).
		Where("resume_id = ?", resumeID).
		Order("order_index ASC, id ASC").
		Find(&sections).Error
	return sections, err
}

func (h *ResumeHandler) newResumeResponse(resume database.Resume, sections []database.ResumeSection) resumeResponse {
	resp := resumeResponse{
		ID:         resume.ID,
		Title:      resume.Title,
		JobTitle:   resume.JobTitle,
		TemplateID: resume.TemplateID,
		ThemeColor: resume.ThemeColor,
		Settings:   resume.Settings,
		Sections:   make([]sectionResponse, 0, len(sections)),
		CreatedAt:  resume.CreatedAt,
		UpdatedAt:  resume.UpdatedAt,
	}
	if resp.TemplateID == "" {
		resp.TemplateID = render.DefaultTemplateID
	}
	for _, sec := range sections {
		resp.Sections = append(resp.Sections, sectionResponse{
			ID:          sec.ID,
			SectionType: sec.SectionType,
			Title:       sec.Title,
			Content:     sec.Content,
			OrderIndex:  sec.OrderIndex,
		})
	}
	return resp
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
