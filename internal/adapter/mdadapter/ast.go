package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindDigestDirective = ast.NewNodeKind("DigestDirective")

// DigestDirective is an inline {{sha256:<hex>}} reference.
type DigestDirective struct {
	ast.BaseInline
	Hex string
}

func (n *DigestDirective) Kind() ast.NodeKind {
	return KindDigestDirective
}

func (n *DigestDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Hex": n.Hex,
	}, nil)
}
