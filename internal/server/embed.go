package server

import (
	"embed"
	"html/template"
)

//go:embed templates
var templateFS embed.FS

// indexTemplate はプレースホルダーページのテンプレート名
const indexTemplate = "index.tmpl"

// loadTemplates は埋め込みテンプレートを読み込む
func loadTemplates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))
}
