package merge

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

// rewriteFile replaces every string value and object key in a JSON file that
// equals a key of ids. The file is written back only when something changed.
// It returns the number of replacements.
func rewriteFile(path string, ids map[string]string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, domain.NewError("merge", path, "failed to read file", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return 0, domain.MalformedContent("merge", path, err)
	}

	doc, n := rewriteValue(doc, ids)
	if n == 0 {
		return 0, nil
	}

	out, err := storage.Marshal(doc)
	if err != nil {
		return 0, domain.NewError("merge", path, "failed to encode file", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, domain.NewError("merge", path, "failed to write file", err)
	}
	return n, nil
}

// rewriteValue walks a decoded JSON document with an explicit stack. Only
// whole strings are compared, so ids embedded in longer text are left alone.
func rewriteValue(doc any, ids map[string]string) (any, int) {
	count := 0
	replace := func(s string) string {
		if to, ok := ids[s]; ok {
			count++
			return to
		}
		return s
	}

	if s, ok := doc.(string); ok {
		return replace(s), count
	}

	stack := []any{doc}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node := v.(type) {
		case map[string]any:
			renamed := make(map[string]string)
			for k, child := range node {
				if s, ok := child.(string); ok {
					node[k] = replace(s)
				} else {
					stack = append(stack, child)
				}
				if nk := replace(k); nk != k {
					renamed[k] = nk
				}
			}
			for k, nk := range renamed {
				node[nk] = node[k]
				delete(node, k)
			}
		case []any:
			for i, child := range node {
				if s, ok := child.(string); ok {
					node[i] = replace(s)
				} else {
					stack = append(stack, child)
				}
			}
		}
	}
	return doc, count
}
