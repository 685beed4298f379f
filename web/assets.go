package web

import (
	"embed"
	"html/template"
	"io/fs"
)

// Embed static assets
//
//go:embed static/*
var StaticAssets embed.FS

// Embed templates
//
//go:embed templates/*
var TemplateAssets embed.FS

// GetStaticFS returns the embedded static filesystem
func GetStaticFS() fs.FS {
	static, err := fs.Sub(StaticAssets, "static")
	if err != nil {
		panic(err)
	}
	return static
}

// ParseTemplates parses every page template with funcs available to all of them
func ParseTemplates(funcs template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(TemplateAssets, "templates/*.html")
}
