package extractor

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	xhtml "golang.org/x/net/html"
)

// MarkdownText strips markdown markup from s: code blocks are dropped, text
// nodes are kept, and whitespace is collapsed to single spaces. Plain text
// passes through unchanged apart from whitespace collapsing.
func MarkdownText(s string) string {
	source := []byte(s)
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			b.WriteByte(' ')
		case *ast.CodeSpan:
			// inline code keeps its text
		}
		return ast.WalkContinue, nil
	})
	return collapseWhitespace(b.String())
}

// HTMLText strips tags from s keeping text nodes only, skipping script and
// style bodies, and collapses whitespace.
func HTMLText(s string) string {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return collapseWhitespace(b.String())
		case xhtml.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case xhtml.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
