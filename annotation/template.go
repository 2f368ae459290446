package annotation

import (
	"html/template"
	"io"

	"github.com/russross/blackfriday/v2"
)

var (
	// TemplateFuncMap contains custom template functions available to pages
	TemplateFuncMap = template.FuncMap{
		"markdown": func(text string) template.HTML {
			return template.HTML(blackfriday.Run([]byte(text)))
		},
	}

	pageTemplate = template.Must(template.New("page").Funcs(TemplateFuncMap).Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }} - scriptorium</title>
</head>
<body>
{{ markdown .Content }}
</body>
</html>
`))
)

// TemplateContent is a page: a title and a markdown body
type TemplateContent struct {
	Title   string
	Content string
}

func ExecTemplate(w io.Writer, content TemplateContent) error {
	return pageTemplate.Execute(w, content)
}
