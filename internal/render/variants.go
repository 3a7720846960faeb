package render

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

// variant 定义一种布局骨架：基础 CSS 与侧栏分区归属。
// Sidebar 为空的变体是单列布局。
type variant struct {
	Name    string
	CSS     string
	Sidebar map[string]bool
}

// DefaultTemplateID 是未指定或未知模板时使用的布局。
const DefaultTemplateID = "modern"

const defaultVariant = DefaultTemplateID

// variants 是渲染器支持的固定布局集合。未知 templateId 回落到 modern。
var variants = map[string]variant{
	"modern": {
		Name: "modern",
		CSS: `.hero{border-bottom:4px solid var(--accent);padding-bottom:24px;margin-bottom:32px}
.hero h1{font-size:34px;margin:0}
.hero .job-title{color:var(--accent);font-size:18px;margin-top:4px}
.sec h2{color:var(--accent);font-size:15px;text-transform:uppercase;letter-spacing:.12em;margin:28px 0 10px}`,
	},
	"professional": {
		Name: "professional",
		CSS: `.page{display:flex;gap:40px}
.main{flex:1;min-width:0}
.side{width:220px;flex-shrink:0;border-left:1px solid #ddd;padding-left:24px}
.hero h1{font-size:30px;margin:0}
.hero .job-title{color:#555;font-size:16px}
.sec h2{font-size:14px;border-bottom:2px solid var(--accent);padding-bottom:4px;margin:24px 0 10px}`,
		Sidebar: map[string]bool{
			SectionPersonalInfo: true,
			SectionSkills:       true,
		},
	},
	"creative": {
		Name: "creative",
		CSS: `.hero{background:var(--accent);color:#fff;padding:48px 40px;border-radius:0 0 24px 24px;margin:-40px -40px 32px}
.hero h1{font-size:38px;margin:0}
.hero .job-title{opacity:.85;font-size:18px}
.sec h2{font-size:16px;margin:30px 0 10px}
.sec h2::before{content:"";display:inline-block;width:14px;height:14px;background:var(--accent);border-radius:50%;margin-right:8px;vertical-align:baseline}`,
	},
	"minimal": {
		Name: "minimal",
		CSS: `.page{max-width:640px}
.hero h1{font-size:26px;font-weight:500;margin:0}
.hero .job-title{color:#777;font-size:15px}
.sec h2{font-size:13px;color:#999;text-transform:uppercase;letter-spacing:.18em;margin:26px 0 8px}
.entry-head .entry-role{font-weight:500}`,
	},
	"grid": {
		Name: "grid",
		CSS: `.main{display:grid;grid-template-columns:repeat(2,1fr);gap:0 32px}
.main .sec-summary,.main .sec-experience{grid-column:1/-1}
.hero{grid-column:1/-1;margin-bottom:24px}
.hero h1{font-size:32px;margin:0}
.hero .job-title{color:var(--accent)}
.sec h2{font-size:14px;color:var(--accent);margin:22px 0 8px}`,
	},
	"glass": {
		Name: "glass",
		CSS: `body{background:linear-gradient(135deg,var(--accent) 0%,#1e1b4b 100%);padding:40px 0}
.page{background:rgba(255,255,255,.82);backdrop-filter:blur(14px);border-radius:20px;box-shadow:0 20px 60px rgba(0,0,0,.25)}
.hero h1{font-size:32px;margin:0}
.hero .job-title{color:var(--accent);font-size:17px}
.sec{background:rgba(255,255,255,.6);border-radius:12px;padding:16px 20px;margin:14px 0}
.sec h2{font-size:14px;margin:0 0 8px;color:var(--accent)}`,
	},
}

func variantFor(templateID string) variant {
	if v, ok := variants[strings.ToLower(strings.TrimSpace(templateID))]; ok {
		return v
	}
	return variants[defaultVariant]
}

// baseCSS 是所有变体共享的骨架样式；变体 CSS 附加其后。
const baseCSS = `*{box-sizing:border-box}
body{margin:0;font-family:var(--font);color:#1f2430;background:#f5f6f8;-webkit-font-smoothing:antialiased}
.page{max-width:860px;margin:0 auto;background:#fff;padding:40px;min-height:100vh}
a{color:var(--accent);text-decoration:none}
h2{font-weight:600}
p{line-height:1.55;margin:6px 0}
ul{margin:6px 0;padding-left:20px}
.entry{margin-bottom:14px}
.entry-head{display:flex;gap:10px;flex-wrap:wrap;align-items:baseline}
.entry-role{font-weight:600}
.entry-org{color:#555}
.entry-meta{color:#888;font-size:13px;display:flex;gap:14px}
.skill-list,.tag-list,.contact-list{list-style:none;padding:0;display:flex;flex-wrap:wrap;gap:8px}
.skill,.tag-list li{background:#eef1f6;border-radius:999px;padding:3px 12px;font-size:13px}
.skill-level{color:#888;margin-left:6px;font-size:12px}
.contact-list{flex-direction:column;gap:4px}
.photo{width:96px;height:96px;border-radius:50%;object-fit:cover;float:right;margin-left:20px}
.decl-sign{color:#777;font-style:italic}`

var (
	hexColorPattern  = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	namedColorOrFont = regexp.MustCompile(`^[a-zA-Z0-9 ,'\-]+$`)
)

const (
	fallbackAccent = "#2563eb"
	fallbackFont   = "'Helvetica Neue', Arial, sans-serif"
)

// safeColor 只放行十六进制或简单颜色名，防止主题色注入样式表。
func safeColor(color string) string {
	color = strings.TrimSpace(color)
	if hexColorPattern.MatchString(color) {
		return color
	}
	if namedColorOrFont.MatchString(color) && !strings.ContainsAny(color, " ,'") {
		return strings.ToLower(color)
	}
	return fallbackAccent
}

func safeFontFamily(font string) string {
	font = strings.TrimSpace(font)
	if font == "" || !namedColorOrFont.MatchString(font) {
		return fallbackFont
	}
	return font
}

// pageCSS 拼出最终样式：变量定义 + 基础骨架 + 变体附加。
func pageCSS(v variant, themeColor, fontFamily string) template.CSS {
	root := fmt.Sprintf(":root{--accent:%s;--font:%s}", safeColor(themeColor), safeFontFamily(fontFamily))
	return template.CSS(root + "\n" + baseCSS + "\n" + v.CSS)
}
