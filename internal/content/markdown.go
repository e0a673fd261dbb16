package content

import (
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor replaces ![alt](url) images in Markdown. Inline HTML
// images are handled as well.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor creates a new MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

// Formats returns the content formats this extractor handles.
func (e *MarkdownExtractor) Formats() []string {
	return []string{"markdown", "md"}
}

var markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)

type span struct{ start, stop int }

// Extract replaces every image reference with a placeholder. Image syntax
// inside code spans and code blocks is left alone.
func (e *MarkdownExtractor) Extract(src string) (Result, error) {
	source := []byte(src)
	doc := e.md.Parser().Parse(text.NewReader(source))

	images := make(map[string]bool)
	var code []span
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			images[string(node.Destination)] = true
		case *ast.CodeSpan:
			if s, ok := childSpan(node); ok {
				code = append(code, s)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				code = append(code, span{lines.At(0).Start, lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Result{}, err
	}

	c := newCollector()
	var out []byte
	last := 0
	for _, m := range markdownImageRe.FindAllStringSubmatchIndex(src, -1) {
		dest := src[m[4]:m[5]]
		if !images[dest] || inSpans(code, m[0]) {
			continue
		}
		out = append(out, src[last:m[0]]...)
		out = append(out, Placeholder(c.add(dest, src[m[2]:m[3]]))...)
		last = m[1]
	}
	out = append(out, src[last:]...)

	replaced, err := extractHTML(string(out), c)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: replaced, Attachments: c.refs}, nil
}

func childSpan(n ast.Node) (span, bool) {
	first, ok := n.FirstChild().(*ast.Text)
	if !ok {
		return span{}, false
	}
	last, ok := n.LastChild().(*ast.Text)
	if !ok {
		return span{}, false
	}
	return span{first.Segment.Start, last.Segment.Stop}, true
}

func inSpans(spans []span, pos int) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.stop {
			return true
		}
	}
	return false
}
