package server

import (
	"fmt"
	"html/template"
)

const baseTemplate = `{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{template "title" .}} · lex</title>
<link rel="alternate" type="application/rss+xml" title="lex briefings" href="/feed.xml">
<style>
body { font-family: system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.55; color: #222; }
a { color: #0b5cad; }
.meta { color: #666; font-size: 0.9rem; }
table { border-collapse: collapse; width: 100%; }
td, th { padding: 0.35rem 0.5rem; border-bottom: 1px solid #eee; text-align: left; }
</style>
</head>
<body>
<nav><a href="/briefings">Briefings</a> · <a href="/feed.xml">RSS</a> · <a href="/api/stats">Stats</a></nav>
{{template "content" .}}
</body>
</html>{{end}}`

const indexTemplate = `{{define "title"}}Briefings{{end}}
{{define "content"}}
<h1>Briefings</h1>
{{if .Briefings}}
<table>
<tr><th>Date</th><th>Articles</th><th>Emailed</th></tr>
{{range .Briefings}}
<tr>
<td><a href="/briefings/{{.ID}}">{{.CreatedAt.Format "2006-01-02 15:04"}}</a></td>
<td>{{.ArticleCount}}</td>
<td>{{if .EmailSent}}yes{{else}}no{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No briefings yet. Run <code>lex analyze</code> to create one.</p>
{{end}}
{{end}}`

const briefingTemplate = `{{define "title"}}Briefing {{.Briefing.CreatedAt.Format "2006-01-02"}}{{end}}
{{define "content"}}
<p class="meta">{{.Briefing.CreatedAt.Format "Monday, 2 January 2006 15:04 MST"}} · {{.Briefing.ArticleCount}} articles{{with .Briefing.ModelUsed}} · {{.}}{{end}}</p>
<article>{{markdown .Briefing.BriefingText}}</article>
{{end}}`

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{"markdown": renderMarkdown}
	base, err := template.New("layout").Funcs(funcs).Parse(baseTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	sources := map[string]string{"index": indexTemplate, "briefing": briefingTemplate}
	pages := make(map[string]*template.Template, len(sources))
	for name, src := range sources {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.Parse(src); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}
	return pages, nil
}
