package mdadapter

import (
	"fmt"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const shortDigestLen = 12

type DigestDirectiveRenderer struct{}

func NewDigestDirectiveRenderer() renderer.NodeRenderer {
	return &DigestDirectiveRenderer{}
}

func (r *DigestDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDigestDirective, r.renderDigestDirective)
}

// The short form is shown, the full digest stays available on hover.
func (r *DigestDirectiveRenderer) renderDigestDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive := n.(*DigestDirective)

	w.WriteString(fmt.Sprintf(`<code class="sha256" title="%s">%s</code>`, directive.Hex, directive.Hex[:shortDigestLen]))

	return ast.WalkContinue, nil
}
