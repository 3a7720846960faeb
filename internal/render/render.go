package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
)

// pageTemplateText 是所有变体共用的页面骨架。
// 输出必须自包含：样式全部内联，无任何外部运行时依赖，
// 既可直接作为静态文件部署，也可嵌入沙箱化预览。
const pageTemplateText = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body class="variant-{{.Variant}}">
<div class="page">
{{if .HasSide}}<div class="main">{{end}}
<header class="hero">
{{if .PhotoDataURI}}<img class="photo" src="{{.PhotoDataURI}}" alt="">{{end}}
<h1>{{.DisplayName}}</h1>
{{if .JobTitle}}<div class="job-title">{{.JobTitle}}</div>{{end}}
</header>
{{range .Main}}{{.}}{{end}}
{{if .HasSide}}</div>
<aside class="side">
{{range .Side}}{{.}}{{end}}
</aside>{{end}}
</div>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplateText))

type pageData struct {
	Title        string
	DisplayName  string
	JobTitle     string
	PhotoDataURI template.URL
	CSS          template.CSS
	Variant      string
	Main         []template.HTML
	Side         []template.HTML
	HasSide      bool
}

// Render 将简历数据渲染为自包含 HTML。纯函数且确定：
// 相同输入永远产出逐字节相同的输出（重发布 diff 与预览/线上一致性都依赖这一点）。
// 数据形状问题只影响对应分区（降级为空片段），不会让整页渲染失败；
// 返回的 error 仅覆盖模板执行这类编程错误。
func Render(resume Resume, sections []Section, templateID string, settings Settings) (string, error) {
	v := variantFor(templateID)

	ordered := orderSections(sections)
	visible := filterSections(ordered, settings)

	var main, side []template.HTML
	for _, sec := range visible {
		frag := fragmentHTML(sec)
		if frag == "" {
			continue
		}
		if v.Sidebar[sec.Type] {
			side = append(side, frag)
		} else {
			main = append(main, frag)
		}
	}

	displayName := strings.TrimSpace(settings.CustomUser)
	if displayName == "" {
		displayName = strings.TrimSpace(resume.Title)
	}
	pageTitle := strings.TrimSpace(settings.CustomTitle)
	if pageTitle == "" {
		pageTitle = displayName
	}

	var photo template.URL
	if settings.ShowPhoto && settings.PhotoDataURI != "" {
		// data URI 由发布路径的资产内联流程生成，跳过 URL 过滤是安全的。
		photo = template.URL(settings.PhotoDataURI)
	}

	data := pageData{
		Title:        pageTitle,
		DisplayName:  displayName,
		JobTitle:     strings.TrimSpace(resume.JobTitle),
		PhotoDataURI: photo,
		CSS:          pageCSS(v, resume.ThemeColor, settings.FontFamily),
		Variant:      v.Name,
		Main:         main,
		Side:         side,
		HasSide:      len(v.Sidebar) > 0,
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute page template: %w", err)
	}
	return buf.String(), nil
}

// RenderDocument 渲染一份快照文档（发布与公开解析共用同一路径，避免逻辑漂移）。
func RenderDocument(doc Document) (string, error) {
	return Render(doc.Resume, doc.Sections, doc.TemplateID, doc.Settings)
}

// orderSections 按 OrderIndex 排序；同值时保持传入顺序（稳定排序）。
// 复制切片，不改动调用方数据。
func orderSections(sections []Section) []Section {
	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})
	return ordered
}

// filterSections 应用可见性策略：显式列表取交集，否则套用缺省隐藏表。
func filterSections(sections []Section, settings Settings) []Section {
	if settings.VisibleSections != nil {
		allowed := make(map[string]bool, len(settings.VisibleSections))
		for _, t := range settings.VisibleSections {
			allowed[strings.ToLower(strings.TrimSpace(t))] = true
		}
		out := make([]Section, 0, len(sections))
		for _, sec := range sections {
			if allowed[sec.Type] {
				out = append(out, sec)
			}
		}
		return out
	}

	out := make([]Section, 0, len(sections))
	for _, sec := range sections {
		if DefaultHiddenSectionTypes[sec.Type] {
			continue
		}
		out = append(out, sec)
	}
	return out
}
