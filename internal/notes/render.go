package notes

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const documentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        pre, code {
            background-color: #f5f5f5;
        }
        footer {
            color: #666;
            font-size: 0.875rem;
            margin-top: 2em;
        }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        {{.Content}}
    </article>
    <footer>Updated {{.UpdatedAt}}</footer>
</body>
</html>`

var (
	document  = template.Must(template.New("note").Parse(documentTemplate))
	sanitizer = bluemonday.UGCPolicy()
)

type documentData struct {
	Title     string
	UpdatedAt string
	Content   template.HTML
}

// RenderHTML converts markdown content to sanitized HTML.
func RenderHTML(content string) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(content))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})

	return sanitizer.SanitizeBytes(markdown.Render(doc, renderer))
}

// RenderDocument renders a note as a standalone HTML page.
func RenderDocument(note Note) []byte {
	var buf bytes.Buffer
	err := document.Execute(&buf, documentData{
		Title:     note.Title,
		UpdatedAt: note.UpdatedAt.Format("2006-01-02 15:04 MST"),
		Content:   template.HTML(RenderHTML(note.Content)),
	})
	if err != nil {
		return []byte("<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error rendering page</h1></body></html>")
	}
	return buf.Bytes()
}
