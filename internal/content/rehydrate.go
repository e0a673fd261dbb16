package content

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// AttachmentURLPrefix is the target path under which uploaded files are
// served.
const AttachmentURLPrefix = "/api/Attachments/"

// Uploaded is a file that exists in the target system.
type Uploaded struct {
	ID   string
	Name string
}

// Rehydrate replaces placeholders with markup pointing at uploaded files.
// Placeholders inside an opening HTML tag are first moved to just after the
// matching closing tag. It returns the rewritten text and the names of the
// placeholders left in place because no upload was recorded for them.
func Rehydrate(text string, uploaded map[string]Uploaded) (string, []string) {
	if !strings.Contains(text, "<<<") {
		return text, nil
	}
	text = relocate(text)

	var (
		b       strings.Builder
		missing []string
		last    int
	)
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		up, ok := uploaded[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if _, inside := openTagAt(text, m[0]); inside {
			missing = append(missing, name)
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(Markup(up))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), missing
}

// Markup returns the HTML that embeds an uploaded file.
func Markup(up Uploaded) string {
	name := html.EscapeString(up.Name)
	if IsImage(up.Name) {
		return fmt.Sprintf(`<img src="%s%s" alt="%s">`, AttachmentURLPrefix, up.ID, name)
	}
	return fmt.Sprintf("<p>File attached to test case: %s</p>", name)
}

// relocate moves each placeholder found between '<' and '>' of an opening
// tag to right after that element's closing tag. Placeholders without a
// recognisable open/close structure stay where they are.
func relocate(text string) string {
	cursor := 0
	for cursor < len(text) {
		loc := placeholderRe.FindStringIndex(text[cursor:])
		if loc == nil {
			break
		}
		start, end := cursor+loc[0], cursor+loc[1]
		cursor = end

		tag, inside := openTagAt(text, start)
		if !inside || tag == "" {
			continue
		}
		gt := strings.IndexByte(maskPlaceholders(text[end:]), '>')
		if gt < 0 {
			continue
		}
		tagEnd := end + gt + 1
		closing := "</" + tag + ">"
		ci := strings.Index(strings.ToLower(text[tagEnd:]), closing)
		if ci < 0 {
			continue
		}
		insertAt := tagEnd + ci + len(closing)

		ph := text[start:end]
		text = text[:start] + text[end:insertAt] + ph + text[insertAt:]
		cursor = start
	}
	return text
}

// openTagAt reports whether pos lies inside an opening tag and returns the
// tag name in lower case.
func openTagAt(text string, pos int) (string, bool) {
	prefix := maskPlaceholders(text[:pos])
	lt := strings.LastIndexByte(prefix, '<')
	if lt < 0 || strings.LastIndexByte(prefix, '>') > lt {
		return "", false
	}
	rest := prefix[lt+1:]
	if rest == "" || rest[0] == '/' || rest[0] == '!' {
		return "", false
	}
	n := 0
	for n < len(rest) && isTagNameByte(rest[n]) {
		n++
	}
	if n == 0 {
		return "", false
	}
	return strings.ToLower(rest[:n]), true
}

func isTagNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-'
}

func maskPlaceholders(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}
