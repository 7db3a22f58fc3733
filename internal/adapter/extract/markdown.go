package extract

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"tabrag/internal/domain"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// extractMarkdown strips markup and keeps the readable text of the file.
// The first heading becomes the document title.
func extractMarkdown(file domain.SourceFile) (domain.Extraction, error) {
	src, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return domain.Extraction{}, err
	}

	title, body, err := markdownText(src)
	if err != nil {
		return domain.Extraction{}, err
	}
	return single(file, title, body), nil
}

func markdownText(src []byte) (title, body string, err error) {
	root := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	headingStart := -1
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Heading); ok && headingStart >= 0 {
				if title == "" {
					title = strings.TrimSpace(b.String()[headingStart:])
				}
				headingStart = -1
			}
			if n.Type() == ast.TypeBlock {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headingStart = b.Len()
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return title, strings.TrimSpace(b.String()), err
}
