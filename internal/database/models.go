package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string   `gorm:"uniqueIndex;size:64"`
	PasswordHash string   `gorm:"size:255"`
	Resumes      []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示用户维护的结构化简历。
type Resume struct {
	gorm.Model
	Title      string          `gorm:"size:255"`
	JobTitle   string          `gorm:"size:255"`
	TemplateID string          `gorm:"size:64"`
	ThemeColor string          `gorm:"size:32"`
	Settings   datatypes.JSON  `gorm:"type:jsonb"`
	UserID     uint            `gorm:"index"`
	User       User            `gorm:"constraint:OnDelete:CASCADE"`
	Sections   []ResumeSection `gorm:"constraint:OnDelete:CASCADE"`
}

// ResumeSection 表示简历中的一个分区。
// OrderIndex 定义渲染顺序；同值时按插入顺序（主键递增）稳定排序。
type ResumeSection struct {
	gorm.Model
	ResumeID    uint           `gorm:"index"`
	SectionType string         `gorm:"size:64"`
	Title       string         `gorm:"size:255"`
	Content     datatypes.JSON `gorm:"type:jsonb"`
	OrderIndex  int            `gorm:"index"`
}

// Portfolio 表示已发布（或曾发布）的公开站点记录。
// Slug 存储为规范化小写；活跃记录间的唯一性由部分唯一索引保证（见 EnsureIndexes）。
// Repo 与 URL 在同一条记录的多次重发布之间保持稳定。
type Portfolio struct {
	gorm.Model
	Title      string         `gorm:"size:255"`
	Slug       string         `gorm:"size:128;index"`
	ResumeID   uint           `gorm:"index"`
	Resume     Resume         `gorm:"constraint:OnDelete:CASCADE"`
	Repo       string         `gorm:"size:255"`
	URL        string         `gorm:"size:512"`
	TemplateID string         `gorm:"size:64"`
	ThemeColor string         `gorm:"size:32"`
	Settings   datatypes.JSON `gorm:"type:jsonb"`
	// Content 是发布时刻 Resume+Sections 的冻结快照，与后续编辑解耦。
	Content         datatypes.JSON `gorm:"type:jsonb"`
	IsActive        bool           `gorm:"default:true;index"`
	Views           int64          `gorm:"default:0"`
	PreviewImageURL string         `gorm:"size:1024"`
}
