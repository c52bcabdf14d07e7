// ABOUTME: Converts markdown reply text into plain text suitable for speech
// ABOUTME: Walks the goldmark AST and keeps only the readable text

package speech

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText strips markdown formatting from s and collapses whitespace.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

// Join converts each reply to plain text and joins the non-empty ones with a space.
func Join(replies []string) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		if p := PlainText(r); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
