package mdadapter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

// Document is a converted markdown source.
type Document struct {
	Title string
	Meta  map[string]any
	HTML  template.HTML
}

type converter struct {
	md goldmark.Markdown
}

func NewConverter() *converter {
	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
			extension.Table,
			NewDigestExtension(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	return &converter{md: md}
}

func (c *converter) Convert(src []byte) (*Document, error) {
	var buf bytes.Buffer

	ctx := parser.NewContext()
	if err := c.md.Convert(src, &buf, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("cannot convert markdown: %w", err)
	}

	doc := &Document{
		HTML: template.HTML(buf.String()),
	}

	if fm := frontmatter.Get(ctx); fm != nil {
		if err := fm.Decode(&doc.Meta); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}

		if title, ok := doc.Meta["title"].(string); ok {
			doc.Title = title
		}
	}

	return doc, nil
}
