package mdadapter

import (
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var digestDirectiveRe = regexp.MustCompile(`^{{\s*sha256:\s*([0-9a-fA-F]{64})\s*}}`)

type DigestDirectiveParser struct{}

func NewDigestDirectiveParser() parser.InlineParser {
	return &DigestDirectiveParser{}
}

func (s *DigestDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *DigestDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := digestDirectiveRe.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	block.Advance(len(matches[0]))

	return &DigestDirective{Hex: string(matches[1])}
}
