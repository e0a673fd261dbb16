// Package scanner finds export batches and the files inside them.
package scanner

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// ManifestFile is the file that marks a directory as an export batch.
const ManifestFile = "main.json"

// Scanner discovers export batches and the files inside them.
type Scanner interface {
	Scan(rootDir string, patterns []string, excludes []string) ([]string, error)
	Batches(rootDir string) ([]string, error)
}

// FileScanner implements Scanner on the local filesystem.
type FileScanner struct {
	Recursive bool
}

// NewScanner creates a new FileScanner.
func NewScanner(recursive bool) *FileScanner {
	return &FileScanner{Recursive: recursive}
}

// Scan returns the sorted files below rootDir whose relative path matches
// one of patterns and none of excludes. Excluded directories are pruned.
func (s *FileScanner) Scan(rootDir string, patterns []string, excludes []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		switch {
		case d.IsDir() && (!s.Recursive || matchAny(rel, excludes)):
			return filepath.SkipDir
		case d.IsDir(), matchAny(rel, excludes):
		case matchAny(rel, patterns):
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewError("read", rootDir, "failed to scan directory", err)
	}

	sort.Strings(files)
	return files, nil
}

// Batches returns the sorted immediate subdirectories of rootDir that hold a
// manifest. rootDir itself counts as a batch when it holds one and has no
// batch subdirectories.
func (s *FileScanner) Batches(rootDir string) ([]string, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, domain.NewError("read", rootDir, "failed to list batch directories", err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(rootDir, e.Name())
		if isFile(filepath.Join(dir, ManifestFile)) {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 && isFile(filepath.Join(rootDir, ManifestFile)) {
		dirs = append(dirs, rootDir)
	}

	sort.Strings(dirs)
	return dirs, nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func matchAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if matchGlob(rel, p) {
			return true
		}
	}
	return false
}

// matchGlob matches pattern against the base name or the whole relative
// path. "**" matches any number of directories.
func matchGlob(rel, pattern string) bool {
	rel = filepath.ToSlash(rel)
	pattern = filepath.ToSlash(pattern)

	before, after, deep := strings.Cut(pattern, "**")
	if !deep {
		return match(pattern, path.Base(rel)) || match(pattern, rel)
	}

	if prefix := strings.TrimSuffix(before, "/"); prefix != "" {
		rest, ok := strings.CutPrefix(rel, prefix+"/")
		if !ok {
			return false
		}
		rel = rest
	}
	after = strings.TrimPrefix(after, "/")
	if after == "" {
		return true
	}
	parts := strings.Split(rel, "/")
	for i := range parts {
		if match(after, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, _ := path.Match(pattern, name)
	return ok
}
