package render

import (
	"bytes"
	"html/template"
)

// 未知 slug 渲染为正常的品牌页面而不是裸 404 JSON：
// 访客多半是拼错地址或站点已下线，引导其创建自己的主页。
const notFoundTemplateText = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Page not found</title>
<style>
body{margin:0;font-family:'Helvetica Neue',Arial,sans-serif;background:#f5f6f8;color:#1f2430;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:16px;padding:48px 56px;text-align:center;box-shadow:0 10px 40px rgba(0,0,0,.08);max-width:420px}
h1{font-size:24px;margin:0 0 8px}
p{color:#666;line-height:1.5}
.slug{font-family:monospace;background:#eef1f6;border-radius:6px;padding:2px 8px}
.cta{display:inline-block;margin-top:20px;background:#2563eb;color:#fff;border-radius:999px;padding:10px 26px;text-decoration:none;font-weight:600}
</style>
</head>
<body>
<div class="card">
<h1>This page doesn&#39;t exist</h1>
<p>No portfolio is published at <span class="slug">{{.Slug}}</span>. It may have been unpublished, or the address was mistyped.</p>
<a class="cta" href="/">Create your own portfolio</a>
</div>
</body>
</html>
`

var notFoundTmpl = template.Must(template.New("notfound").Parse(notFoundTemplateText))

// NotFoundPage 渲染品牌化的未找到页面。渲染失败时退回静态文案，保证永不抛错。
func NotFoundPage(slug string) string {
	var buf bytes.Buffer
	if err := notFoundTmpl.Execute(&buf, struct{ Slug string }{Slug: slug}); err != nil {
		return "<!DOCTYPE html><html><body><h1>Page not found</h1></body></html>"
	}
	return buf.String()
}
