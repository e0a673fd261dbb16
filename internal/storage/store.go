// Package storage reads and writes the interchange directory layout:
// main.json at the root and one directory per test case or shared step
// holding its JSON file and attachment blobs.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

const (
	ManifestFile   = "main.json"
	TestCaseFile   = "testcase.json"
	SharedStepFile = "sharedstep.json"
)

// Store is an interchange directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it when needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewError("write", dir, "failed to create output directory", err)
	}
	return &Store{root: dir}, nil
}

// Open returns a Store for an existing directory.
func Open(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, domain.NewError("read", dir, "cannot access interchange directory", err)
	}
	if !info.IsDir() {
		return nil, domain.NewError("read", dir, "not a directory", nil)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store is rooted at.
func (s *Store) Root() string {
	return s.root
}

// WriteTestCase writes <id>/testcase.json. An existing file is an error.
func (s *Store) WriteTestCase(tc domain.TestCase) error {
	return s.writeItem(tc.ID, TestCaseFile, tc)
}

// WriteSharedStep writes <id>/sharedstep.json. An existing file is an error.
func (s *Store) WriteSharedStep(ss domain.SharedStep) error {
	return s.writeItem(ss.ID, SharedStepFile, ss)
}

// WriteManifest writes main.json, replacing any previous manifest.
func (s *Store) WriteManifest(root domain.Root) error {
	data, err := Marshal(root)
	if err != nil {
		return domain.NewError("write", ManifestFile, "failed to encode manifest", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, ManifestFile), data, 0o644); err != nil {
		return domain.NewError("write", ManifestFile, "failed to write manifest", err)
	}
	return nil
}

// WriteAttachment stores the blob for the item id under name and returns the
// number of bytes written.
func (s *Store) WriteAttachment(id uuid.UUID, name string, r io.Reader) (int64, error) {
	path, err := s.attachmentPath(id, name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, domain.NewError("write", path, "failed to create directory", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, domain.NewError("write", path, "failed to create attachment", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, domain.NewError("write", path, "failed to write attachment", err)
	}
	return n, nil
}

// ReadManifest loads main.json.
func (s *Store) ReadManifest() (domain.Root, error) {
	var root domain.Root
	err := s.readJSON(filepath.Join(s.root, ManifestFile), &root)
	return root, err
}

// ReadTestCase loads <id>/testcase.json.
func (s *Store) ReadTestCase(id uuid.UUID) (domain.TestCase, error) {
	var tc domain.TestCase
	err := s.readJSON(filepath.Join(s.root, id.String(), TestCaseFile), &tc)
	return tc, err
}

// ReadSharedStep loads <id>/sharedstep.json.
func (s *Store) ReadSharedStep(id uuid.UUID) (domain.SharedStep, error) {
	var ss domain.SharedStep
	err := s.readJSON(filepath.Join(s.root, id.String(), SharedStepFile), &ss)
	return ss, err
}

// OpenAttachment opens the blob stored for the item id under name.
func (s *Store) OpenAttachment(id uuid.UUID, name string) (*os.File, error) {
	path, err := s.attachmentPath(id, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewError("read", path, "failed to open attachment", err)
	}
	return f, nil
}

// Marshal encodes v as indented JSON without HTML escaping so placeholders
// stay readable.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) writeItem(id uuid.UUID, file string, v any) error {
	dir := filepath.Join(s.root, id.String())
	path := filepath.Join(dir, file)
	data, err := Marshal(v)
	if err != nil {
		return domain.NewError("write", path, "failed to encode item", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.NewError("write", dir, "failed to create directory", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.NewError("write", path, "failed to create item file", err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.NewError("write", path, "failed to write item file", err)
	}
	return nil
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewError("read", path, "failed to read file", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.MalformedContent("read", path, err)
	}
	return nil
}

func (s *Store) attachmentPath(id uuid.UUID, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.NewError("write", name, "invalid attachment name", fmt.Errorf("%q", name))
	}
	switch name {
	case TestCaseFile, SharedStepFile:
		return "", domain.NewError("write", name, "attachment name collides with item file", nil)
	}
	return filepath.Join(s.root, id.String(), name), nil
}
