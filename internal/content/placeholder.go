package content

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

var placeholderRe = regexp.MustCompile(`<<<([^<>]+?)>>>`)

// Placeholder returns the canonical token for an attachment file name.
func Placeholder(name string) string {
	return "<<<" + name + ">>>"
}

// Placeholders returns the file names referenced by placeholder tokens, in
// text order.
func Placeholders(text string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1])
	}
	return names
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".svg": true, ".webp": true, ".tif": true, ".tiff": true, ".ico": true,
}

// IsImage reports whether name has an image file extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// collector hands out file names for references, first-seen-wins.
type collector struct {
	byURL map[string]string
	names map[string]bool
	refs  []domain.AttachmentRef
}

func newCollector() *collector {
	return &collector{
		byURL: make(map[string]string),
		names: make(map[string]bool),
	}
}

func (c *collector) add(src, alt string) string {
	if name, ok := c.byURL[src]; ok {
		return name
	}
	name := UniqueFileName(attachmentName(src, alt), func(n string) bool { return c.names[n] })
	c.names[name] = true
	c.byURL[src] = name
	c.refs = append(c.refs, domain.AttachmentRef{Name: name, URL: src})
	return name
}

// attachmentName derives a file name from a reference URL. Attachment
// endpoints without an extension fall back to alt when alt names a file.
func attachmentName(src, alt string) string {
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base == "." || base == "/" {
		base = ""
	}

	alt = strings.TrimSpace(alt)
	if filepath.Ext(base) == "" && alt != "" && filepath.Ext(alt) != "" && !strings.ContainsAny(alt, `/\`) {
		return alt
	}
	if base == "" {
		return "attachment"
	}
	return base
}

// UniqueFileName returns name or "stem (n).ext" with the smallest n for
// which taken reports false.
func UniqueFileName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := stem + " (" + strconv.Itoa(n) + ")" + ext
		if !taken(candidate) {
			return candidate
		}
	}
}

// RenamePlaceholders rewrites placeholder names in one pass using renames.
// Names missing from renames are kept.
func RenamePlaceholders(text string, renames map[string]string) string {
	if len(renames) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[3 : len(m)-3]
		if to, ok := renames[name]; ok {
			return Placeholder(to)
		}
		return m
	})
}
