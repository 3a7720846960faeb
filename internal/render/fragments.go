package render

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"
)

// 各分区类型的载荷结构。解码一律容错：字段缺失得零值，
// 整体解不开时该分区退化为空片段，其余分区不受影响。

type summaryPayload struct {
	Text string `json:"text"`
}

type experiencePayload struct {
	Items []experienceItem `json:"items"`
}

type experienceItem struct {
	Company     string   `json:"company"`
	Role        string   `json:"role"`
	Location    string   `json:"location"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights"`
}

type educationPayload struct {
	Items []educationItem `json:"items"`
}

type educationItem struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

type skillsPayload struct {
	Items []skillItem `json:"items"`
}

type skillItem struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type projectsPayload struct {
	Items []projectItem `json:"items"`
}

type projectItem struct {
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
}

type personalInfoPayload struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Website  string `json:"website"`
	Links    []link `json:"links"`
}

type link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type declarationPayload struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
	Date      string `json:"date"`
}

type genericFragment struct {
	Title string
	Body  string
}

const fragmentTemplateText = `
{{define "summary"}}<section class="sec sec-summary" data-section="summary">
<h2>{{.Title}}</h2>
<p class="summary-text">{{.Text}}</p>
</section>{{end}}

{{define "experience"}}<section class="sec sec-experience" data-section="experience">
<h2>{{.Title}}</h2>
{{range .Items}}<article class="entry">
<div class="entry-head"><span class="entry-role">{{.Role}}</span>{{if .Company}}<span class="entry-org">{{.Company}}</span>{{end}}</div>
<div class="entry-meta">{{if .StartDate}}<span>{{.StartDate}}{{if .EndDate}} – {{.EndDate}}{{end}}</span>{{end}}{{if .Location}}<span>{{.Location}}</span>{{end}}</div>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .Highlights}}<ul>{{range .Highlights}}<li>{{.}}</li>{{end}}</ul>{{end}}
</article>{{end}}
</section>{{end}}

{{define "education"}}<section class="sec sec-education" data-section="education">
<h2>{{.Title}}</h2>
{{range .Items}}<article class="entry">
<div class="entry-head"><span class="entry-role">{{.Degree}}{{if .Field}}, {{.Field}}{{end}}</span><span class="entry-org">{{.Institution}}</span></div>
<div class="entry-meta">{{if .StartDate}}<span>{{.StartDate}}{{if .EndDate}} – {{.EndDate}}{{end}}</span>{{end}}</div>
{{if .Description}}<p>{{.Description}}</p>{{end}}
</article>{{end}}
</section>{{end}}

{{define "skills"}}<section class="sec sec-skills" data-section="skills">
<h2>{{.Title}}</h2>
<ul class="skill-list">{{range .Items}}<li class="skill">{{.Name}}{{if .Level}}<span class="skill-level">{{.Level}}</span>{{end}}</li>{{end}}</ul>
</section>{{end}}

{{define "projects"}}<section class="sec sec-projects" data-section="projects">
<h2>{{.Title}}</h2>
{{range .Items}}<article class="entry">
<div class="entry-head">{{if .URL}}<a class="entry-role" href="{{.URL}}">{{.Name}}</a>{{else}}<span class="entry-role">{{.Name}}</span>{{end}}</div>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .Technologies}}<ul class="tag-list">{{range .Technologies}}<li>{{.}}</li>{{end}}</ul>{{end}}
</article>{{end}}
</section>{{end}}

{{define "personal_info"}}<section class="sec sec-contact" data-section="personal_info">
<h2>{{.Title}}</h2>
<ul class="contact-list">
{{if .Email}}<li>{{.Email}}</li>{{end}}
{{if .Phone}}<li>{{.Phone}}</li>{{end}}
{{if .Location}}<li>{{.Location}}</li>{{end}}
{{if .Website}}<li><a href="{{.Website}}">{{.Website}}</a></li>{{end}}
{{range .Links}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}
</ul>
</section>{{end}}

{{define "declaration"}}<section class="sec sec-declaration" data-section="declaration">
<h2>{{.Title}}</h2>
<p>{{.Text}}</p>
{{if .Signature}}<p class="decl-sign">{{.Signature}}{{if .Date}}, {{.Date}}{{end}}</p>{{end}}
</section>{{end}}

{{define "generic"}}<section class="sec sec-generic" data-section="custom">
<h2>{{.Title}}</h2>
{{if .Body}}<p>{{.Body}}</p>{{end}}
</section>{{end}}
`

var fragmentTmpl = template.Must(template.New("fragments").Parse(fragmentTemplateText))

// fragmentHTML 渲染单个分区。数据形状问题就地消化：
// 返回空串表示该分区被降级省略。
func fragmentHTML(sec Section) template.HTML {
	title := strings.TrimSpace(sec.Title)
	if title == "" {
		title = defaultSectionTitle(sec.Type)
	}

	switch sec.Type {
	case SectionSummary:
		var p summaryPayload
		if !decodePayload(sec.Content, &p) || strings.TrimSpace(p.Text) == "" {
			return ""
		}
		return execFragment("summary", struct {
			Title string
			summaryPayload
		}{title, p})
	case SectionExperience:
		var p experiencePayload
		if !decodePayload(sec.Content, &p) || len(p.Items) == 0 {
			return ""
		}
		return execFragment("experience", struct {
			Title string
			Items []experienceItem
		}{title, p.Items})
	case SectionEducation:
		var p educationPayload
		if !decodePayload(sec.Content, &p) || len(p.Items) == 0 {
			return ""
		}
		return execFragment("education", struct {
			Title string
			Items []educationItem
		}{title, p.Items})
	case SectionSkills:
		var p skillsPayload
		if !decodePayload(sec.Content, &p) || len(p.Items) == 0 {
			return ""
		}
		return execFragment("skills", struct {
			Title string
			Items []skillItem
		}{title, p.Items})
	case SectionProjects:
		var p projectsPayload
		if !decodePayload(sec.Content, &p) || len(p.Items) == 0 {
			return ""
		}
		return execFragment("projects", struct {
			Title string
			Items []projectItem
		}{title, p.Items})
	case SectionPersonalInfo:
		var p personalInfoPayload
		if !decodePayload(sec.Content, &p) {
			return ""
		}
		if p.Email == "" && p.Phone == "" && p.Location == "" && p.Website == "" && len(p.Links) == 0 {
			return ""
		}
		return execFragment("personal_info", struct {
			Title string
			personalInfoPayload
		}{title, p})
	case SectionDeclaration:
		var p declarationPayload
		if !decodePayload(sec.Content, &p) || strings.TrimSpace(p.Text) == "" {
			return ""
		}
		return execFragment("declaration", struct {
			Title string
			declarationPayload
		}{title, p})
	default:
		// 未知类型：标题 + 内容字符串化兜底。
		return execFragment("generic", genericFragment{
			Title: title,
			Body:  stringifyContent(sec.Content),
		})
	}
}

func execFragment(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := fragmentTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

func decodePayload(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// stringifyContent 将任意载荷转成可读文本：字符串取值本身，
// 其它形状输出紧凑 JSON。
func stringifyContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

func defaultSectionTitle(sectionType string) string {
	switch sectionType {
	case SectionSummary:
		return "Summary"
	case SectionExperience:
		return "Experience"
	case SectionEducation:
		return "Education"
	case SectionSkills:
		return "Skills"
	case SectionProjects:
		return "Projects"
	case SectionPersonalInfo:
		return "Contact"
	case SectionDeclaration:
		return "Declaration"
	default:
		return "About"
	}
}
