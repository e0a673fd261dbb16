package content

import (
	"regexp"
)

// WikiExtractor replaces Jira-wiki image markers such as !file.png! and
// !file.png|thumbnail!. The file name doubles as the reference URL; source
// adapters resolve it against the owning entity's attachments.
type WikiExtractor struct {
	markerPattern *regexp.Regexp
}

// NewWikiExtractor creates a new WikiExtractor.
func NewWikiExtractor() *WikiExtractor {
	return &WikiExtractor{
		markerPattern: regexp.MustCompile(`!([^!\s|][^!|\n]*?\.[A-Za-z0-9]{2,5})(?:\|[^!\n]*)?!`),
	}
}

// Formats returns the content formats this extractor handles.
func (e *WikiExtractor) Formats() []string {
	return []string{"wiki", "jira"}
}

// Extract replaces every wiki marker with a placeholder, then handles any
// embedded HTML images.
func (e *WikiExtractor) Extract(text string) (Result, error) {
	c := newCollector()
	replaced := e.markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := e.markerPattern.FindStringSubmatch(m)[1]
		return Placeholder(c.add(name, ""))
	})

	out, err := extractHTML(replaced, c)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: out, Attachments: c.refs}, nil
}
