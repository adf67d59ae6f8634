package listing

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
	"golang.org/x/net/html"
)

// Markers identify listing entries in a page: an EntryTag element carrying
// EntryClass holds one entry, and a descendant carrying DirClass flags it as
// a directory.
type Markers struct {
	EntryTag   string
	EntryClass string
	DirClass   string
}

// Parse extracts the entries of a listing page. Links are resolved against
// pageURL. A page without a single entry marker is not a listing.
func Parse(pageURL string, body io.Reader, m Markers) ([]entity.Entry, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse page url: %w", err)
	}

	doc, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("cannot parse html: %w", err)
	}

	var (
		markers int
		entries []entity.Entry
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == m.EntryTag && hasClass(n, m.EntryClass) {
			markers++

			if entry, ok := toEntry(base, n, m.DirClass); ok {
				entries = append(entries, entry)
			}

			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if markers == 0 {
		return nil, common.ErrInvalidRepositoryURL
	}

	return entries, nil
}

func toEntry(base *url.URL, cell *html.Node, dirClass string) (entity.Entry, bool) {
	link := findNode(cell, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && attr(n, "href") != ""
	})
	if link == nil {
		return entity.Entry{}, false
	}

	ref, err := url.Parse(strings.TrimSpace(attr(link, "href")))
	if err != nil {
		return entity.Entry{}, false
	}

	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawQuery = ""

	name := strings.TrimSpace(attr(link, "title"))
	if name == "" {
		name = strings.TrimSpace(nodeText(link))
	}

	isDir := findNode(cell, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, dirClass)
	}) != nil

	return entity.Entry{
		Href:  abs.String(),
		Name:  name,
		IsDir: isDir,
	}, true
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}

		if found := findNode(c, match); found != nil {
			return found
		}
	}

	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}

	return false
}

// nodeText returns all concatenated text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder

	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)

	return b.String()
}
