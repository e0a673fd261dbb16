// Package content moves embedded attachment references out of rich-text
// fields and back in.
package content

import (
	"fmt"
	"strings"
	"sync"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Result is a text with its attachment references replaced by placeholders.
type Result struct {
	Text        string
	Attachments []domain.AttachmentRef
}

// Extractor pulls attachment references out of one content format.
type Extractor interface {
	Extract(text string) (Result, error)
	Formats() []string
}

// Registry maps content formats to extractors.
type Registry interface {
	Register(e Extractor)
	ExtractorFor(format string) (Extractor, error)
}

// DefaultRegistry is a thread-safe extractor registry with fallback support.
type DefaultRegistry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
	fallback   Extractor
}

// NewRegistry creates an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		extractors: make(map[string]Extractor),
	}
}

// NewDefaultRegistry returns a registry with the HTML, Markdown and wiki
// extractors, falling back to HTML.
func NewDefaultRegistry() *DefaultRegistry {
	r := NewRegistry()
	html := NewHTMLExtractor()
	r.Register(html)
	r.Register(NewMarkdownExtractor())
	r.Register(NewWikiExtractor())
	r.SetFallback(html)
	return r
}

// Register adds an extractor for each of its formats.
func (r *DefaultRegistry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range e.Formats() {
		r.extractors[strings.ToLower(f)] = e
	}
}

// SetFallback sets the extractor used for unregistered formats.
func (r *DefaultRegistry) SetFallback(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = e
}

// ExtractorFor returns the extractor registered for format, or the fallback.
func (r *DefaultRegistry) ExtractorFor(format string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.extractors[strings.ToLower(format)]; ok {
		return e, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no extractor registered for format %q", format)
}
