package content

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// HTMLExtractor replaces <img src> references in HTML fragments. Everything
// except the replaced tags is copied byte for byte.
type HTMLExtractor struct{}

// NewHTMLExtractor creates a new HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Formats returns the content formats this extractor handles.
func (e *HTMLExtractor) Formats() []string {
	return []string{"html", "plain"}
}

// Extract replaces every image reference with a placeholder.
func (e *HTMLExtractor) Extract(text string) (Result, error) {
	c := newCollector()
	out, err := extractHTML(text, c)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: out, Attachments: c.refs}, nil
}

func extractHTML(text string, c *collector) (string, error) {
	if !strings.Contains(text, "<") {
		return text, nil
	}

	z := html.NewTokenizer(strings.NewReader(text))
	var b strings.Builder
	b.Grow(len(text))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				break
			}
			return "", domain.MalformedContent("content", "html", z.Err())
		}
		raw := string(z.Raw())

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tok := z.Token()
			if tok.DataAtom == atom.Img {
				src, alt := imgAttrs(tok)
				if src != "" && !strings.HasPrefix(src, "data:") {
					b.WriteString(Placeholder(c.add(src, alt)))
					continue
				}
			}
		}
		b.WriteString(raw)
	}
	return b.String(), nil
}

func imgAttrs(tok html.Token) (src, alt string) {
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "src":
			src = strings.TrimSpace(a.Val)
		case "alt":
			alt = a.Val
		}
	}
	return src, alt
}
