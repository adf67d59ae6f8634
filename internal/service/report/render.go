package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jgivc/treemirror/internal/adapter/tpladapter"
	"github.com/jgivc/treemirror/internal/entity"
	"gopkg.in/yaml.v2"
)

const (
	textHeader  = "SHA256:"
	textNoFiles = "There are no files for hashing"
)

func renderText(w io.Writer, report *entity.Report) error {
	var b strings.Builder

	if len(report.Digests) == 0 {
		b.WriteString(textNoFiles + "\n")
	} else {
		b.WriteString(textHeader + "\n")
		for _, d := range report.Digests {
			fmt.Fprintf(&b, "%s: %s\n", d.Path, d.SHA256)
		}
	}

	if report.Failed() {
		fmt.Fprintf(&b, "\nFailed (%d):\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "%s %s: %s\n", f.Stage, f.URL, f.Error)
		}
	}

	_, err := io.WriteString(w, b.String())

	return err
}

func renderYAML(w io.Writer, report *entity.Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("cannot marshal report: %w", err)
	}

	_, err = w.Write(data)

	return err
}

type frontmatter struct {
	Title       string `yaml:"title"`
	RunID       string `yaml:"run_id"`
	Repository  string `yaml:"repository"`
	OutDir      string `yaml:"out_dir"`
	GeneratedAt string `yaml:"generated_at"`
	Duration    string `yaml:"duration,omitempty"`
	Directories int    `yaml:"directories"`
	Files       int    `yaml:"files"`
	Failures    int    `yaml:"failures"`
}

func title(report *entity.Report) string {
	return "Mirror of " + report.Name
}

// renderMarkdown writes the report as markdown with a YAML front matter.
// With directives set, digests are written as {{sha256:...}} for the HTML
// converter and failures are left to the page.
func renderMarkdown(w io.Writer, report *entity.Report, directives bool) error {
	fm, err := yaml.Marshal(&frontmatter{
		Title:       title(report),
		RunID:       report.RunID,
		Repository:  report.Repository,
		OutDir:      report.OutDir,
		GeneratedAt: report.GeneratedAt.Format(time.RFC3339),
		Duration:    durationString(report.Duration),
		Directories: report.Directories,
		Files:       report.Files,
		Failures:    len(report.Failures),
	})
	if err != nil {
		return fmt.Errorf("cannot marshal frontmatter: %w", err)
	}

	var b bytes.Buffer

	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title(report))

	if len(report.Digests) == 0 {
		b.WriteString(textNoFiles + "\n")
	} else {
		b.WriteString("| Path | SHA-256 | Size | Status |\n")
		b.WriteString("|---|---|---|---|\n")

		for _, d := range report.Digests {
			digest := "`" + d.SHA256 + "`"
			if directives {
				digest = "{{sha256:" + d.SHA256 + "}}"
			}

			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", cell(d.RelPath), digest, d.Size, d.Status)
		}
	}

	if report.Failed() && !directives {
		b.WriteString("\n## Failures\n\n")
		b.WriteString("| Stage | Path | Error |\n")
		b.WriteString("|---|---|---|\n")

		for _, f := range report.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Stage, cell(f.RelPath), cell(f.Error))
		}
	}

	_, err = w.Write(b.Bytes())

	return err
}

func (s *reportService) renderHTML(w io.Writer, report *entity.Report) error {
	var src bytes.Buffer
	if err := renderMarkdown(&src, report, true); err != nil {
		return err
	}

	doc, err := s.md.Convert(src.Bytes())
	if err != nil {
		return err
	}

	page, err := s.page.Parse(&tpladapter.Page{
		Title:   doc.Title,
		Content: doc.HTML,
		Report:  report,
	})
	if err != nil {
		return fmt.Errorf("cannot render page: %w", err)
	}

	_, err = io.WriteString(w, page)

	return err
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)

	return strings.ReplaceAll(s, "\n", " ")
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}

	return d.Round(time.Millisecond).String()
}
