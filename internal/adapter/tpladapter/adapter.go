package tpladapter

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	_ "embed"

	"github.com/jgivc/treemirror/internal/entity"
)

const (
	templateNameDigests  = "DIGESTS"
	templateNameFailures = "FAILURES"

	funcNameDigests  = "digests"
	funcNameFailures = "failures"
)

//go:embed template.html
var defaultTemplate string

// Page is the data a report page is rendered with.
type Page struct {
	Title   string
	Content template.HTML
	Report  *entity.Report
}

type tplAdapter struct {
	tpl  *template.Template
	page *Page
}

// NewTplAdapter parses templateFileName, or the built-in page when it is
// empty. A custom template may call {{digests}} and {{failures}} when it
// defines DIGESTS and FAILURES.
func NewTplAdapter(templateFileName string) (*tplAdapter, error) {
	a := &tplAdapter{}
	tpl := template.New("").Funcs(template.FuncMap{
		funcNameDigests:  a.renderDigests,
		funcNameFailures: a.renderFailures,
	})

	src := defaultTemplate
	if templateFileName != "" {
		data, err := os.ReadFile(templateFileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read template: %w", err)
		}

		src = string(data)
	}

	if _, err := tpl.Parse(src); err != nil {
		return nil, fmt.Errorf("cannot parse template: %w", err)
	}

	a.tpl = tpl

	return a, nil
}

// Parse renders page. It is not safe for concurrent use.
func (a *tplAdapter) Parse(page *Page) (string, error) {
	a.page = page

	buf := bytes.Buffer{}
	if err := a.tpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("cannot execute template: %w", err)
	}

	return buf.String(), nil
}

func (a *tplAdapter) renderDigests() (template.HTML, error) {
	return a.renderNamed(templateNameDigests, a.page.Report.Digests)
}

func (a *tplAdapter) renderFailures() (template.HTML, error) {
	return a.renderNamed(templateNameFailures, a.page.Report.Failures)
}

func (a *tplAdapter) renderNamed(name string, data any) (template.HTML, error) {
	tpl := a.tpl.Lookup(name)
	if tpl == nil {
		return "", fmt.Errorf("template %s must be defined", name)
	}

	buf := bytes.Buffer{}
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("cannot execute template %s: %w", name, err)
	}

	return template.HTML(buf.String()), nil
}
