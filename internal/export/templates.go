package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"selah/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var bookletTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(date string) string {
			parsed, err := time.Parse("2006-01-02", date)
			if err != nil {
				return date
			}
			return parsed.Format("Monday, January 2")
		},
	}

	templateContent, err := templateFS.ReadFile("templates/booklet.html")
	if err != nil {
		// Fallback to built-in template if file not found
		bookletTemplate = template.Must(template.New("booklet").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	bookletTemplate = template.Must(template.New("booklet").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for booklet template rendering.
type TemplateData struct {
	Month     string
	MonthName string
	Hymn      *store.Hymn
	Devotions []store.Devotion
}

// RenderBookletHTML renders the booklet template with provided data.
func RenderBookletHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := bookletTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.MonthName}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; }
    h1 { text-align: center; }
    .day { page-break-before: always; }
  </style>
</head>
<body>
  <h1>{{.MonthName}}</h1>
  {{if .Hymn}}<h2>{{.Hymn.Title}}</h2>{{range .Hymn.Lyrics}}<p>{{.Text}}</p>{{end}}{{end}}
  {{range .Devotions}}
  <div class="day">
    <h2>{{formatDate .Date}}</h2>
    <h3>{{.BibleText}}</h3>
    {{range .Sections}}
      <p><em>{{.Passage}}</em></p>
      <ul>{{range .Questions}}<li>{{.}}</li>{{end}}</ul>
    {{end}}
  </div>
  {{end}}
</body>
</html>`
