package render

import "encoding/json"

// Resume 是渲染器输入的简历头部信息（与存储模型解耦，保证纯函数）。
type Resume struct {
	Title      string `json:"title"`
	JobTitle   string `json:"job_title"`
	ThemeColor string `json:"theme_color"`
}

// Section 表示一个待渲染的分区。Content 的具体形状随 Type 而异，
// 渲染器按类型做容错解码，解不开时退化为空片段，绝不中断整页渲染。
type Section struct {
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	OrderIndex int             `json:"order_index"`
}

// Settings 控制公开页面的展示行为。
type Settings struct {
	// VisibleSections 存在时仅渲染列出的类型（与实际数据求交集）；
	// 缺省时应用 DefaultHiddenSectionTypes 策略表。
	VisibleSections []string `json:"visible_sections,omitempty"`
	ShowPhoto       bool     `json:"show_photo"`
	CustomTitle     string   `json:"custom_title,omitempty"`
	CustomUser      string   `json:"custom_user,omitempty"`
	FontFamily      string   `json:"font_family,omitempty"`
	// PhotoDataURI 在发布时由资产内联流程注入，使输出保持自包含。
	PhotoDataURI string `json:"photo_data_uri,omitempty"`
}

// Document 是发布时冻结进 Portfolio.Content 的快照形状，
// 也是公开解析路径重新渲染时的输入。
type Document struct {
	Resume     Resume    `json:"resume"`
	Sections   []Section `json:"sections"`
	TemplateID string    `json:"template_id"`
	Settings   Settings  `json:"settings"`
}

// DefaultHiddenSectionTypes 是缺省排除在公开输出之外的类型策略表。
// 产品确认前保持可配置（直接替换 map 即可），不要改成硬编码分支。
var DefaultHiddenSectionTypes = map[string]bool{
	"declaration": true,
}

// 已知分区类型；未知类型走通用 title+内容字符串化兜底。
const (
	SectionSummary      = "summary"
	SectionExperience   = "experience"
	SectionEducation    = "education"
	SectionSkills       = "skills"
	SectionProjects     = "projects"
	SectionPersonalInfo = "personal_info"
	SectionDeclaration  = "declaration"
	SectionCustom       = "custom"
)
