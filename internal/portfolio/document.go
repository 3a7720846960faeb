package portfolio

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"phPortfolio/internal/database"
	"phPortfolio/internal/render"
)

// DocumentFromModels 把存储模型转换为渲染器输入。
// 发布路径用它生成快照，公开解析的实时回落路径用它渲染当前数据，
// 两边共享同一转换，避免预览与线上出现渲染分叉。
func DocumentFromModels(
	resume database.Resume,
	sections []database.ResumeSection,
	templateID, themeColor string,
	settings render.Settings,
) render.Document {
	doc := render.Document{
		Resume: render.Resume{
			Title:      resume.Title,
			JobTitle:   resume.JobTitle,
			ThemeColor: themeColor,
		},
		TemplateID: templateID,
		Settings:   settings,
		Sections:   make([]render.Section, 0, len(sections)),
	}
	for _, sec := range sections {
		doc.Sections = append(doc.Sections, render.Section{
			Type:       sec.SectionType,
			Title:      sec.Title,
			Content:    json.RawMessage(sec.Content),
			OrderIndex: sec.OrderIndex,
		})
	}
	return doc
}

// EncodeSnapshot 把文档冻结为可落库的 JSON 快照。
func EncodeSnapshot(doc render.Document) (datatypes.JSON, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return datatypes.JSON(data), nil
}

// EncodeSettings 把展示设置序列化为落库形态。
func EncodeSettings(settings render.Settings) (datatypes.JSON, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeSnapshot 还原落库快照；快照为空或损坏时返回 false，
// 调用方回落到实时数据。
func DecodeSnapshot(raw datatypes.JSON) (render.Document, bool) {
	if len(raw) == 0 {
		return render.Document{}, false
	}
	var doc render.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return render.Document{}, false
	}
	if doc.TemplateID == "" && len(doc.Sections) == 0 {
		return render.Document{}, false
	}
	return doc, true
}

// DecodeSettings 解析 Portfolio.Settings；为空或损坏时返回零值设置。
func DecodeSettings(raw datatypes.JSON) render.Settings {
	if len(raw) == 0 {
		return render.Settings{}
	}
	var settings render.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return render.Settings{}
	}
	return settings
}
