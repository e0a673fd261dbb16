// Package merge combines independently exported batches into one
// interchange directory.
package merge

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/scanner"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

// Report summarises a merge.
type Report struct {
	Batches           int
	FilesCopied       int
	BytesCopied       int64
	DroppedSections   int
	DroppedAttributes int
	FilesTouched      int
	Replacements      int
}

// Engine merges export batches.
type Engine struct {
	scanner scanner.Scanner
	log     *logrus.Logger
}

// NewEngine creates an Engine.
func NewEngine(s scanner.Scanner, log *logrus.Logger) *Engine {
	return &Engine{scanner: s, log: log}
}

type batch struct {
	dir  string
	root domain.Root
}

// Merge loads every batch under batchRoot, copies their item directories
// into outputPath, merges the manifests deduplicating sections and
// attributes by name, and rewrites references to dropped ids in every JSON
// file of the output.
func (e *Engine) Merge(ctx context.Context, batchRoot, outputPath string) (*Report, error) {
	dirs, err := e.scanner.Batches(batchRoot)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		e.log.Warnf("No batch directories found in %s", batchRoot)
		return nil, domain.NewError("merge", batchRoot, "nothing to merge", domain.ErrNoBatches)
	}

	batches := e.load(dirs)
	if len(batches) == 0 {
		e.log.Warnf("No manifest could be loaded from %d batch director(ies)", len(dirs))
		return nil, domain.NewError("merge", batchRoot, "no readable manifest", domain.ErrNoBatches)
	}

	out, err := storage.New(outputPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(outputPath, storage.ManifestFile)); err == nil {
		return nil, domain.NewError("merge", outputPath, "output already holds a manifest", nil)
	}

	report := &Report{Batches: len(batches)}
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.copyBatch(b.dir, outputPath, report); err != nil {
			return nil, err
		}
	}
	e.log.Infof("Copied %d file(s) (%s) from %d batch(es)", report.FilesCopied, humanize.Bytes(uint64(report.BytesCopied)), report.Batches)

	merged, ids := e.mergeManifests(batches, report)
	e.log.Infof("Merged manifests: dropped %d duplicate section(s) and %d duplicate attribute(s)",
		report.DroppedSections, report.DroppedAttributes)

	if len(ids) == 0 {
		e.log.Info("No duplicates found, no reference rewrite necessary")
	} else if err := e.rewrite(outputPath, ids, report); err != nil {
		return nil, err
	}

	if err := out.WriteManifest(merged); err != nil {
		return nil, err
	}
	e.log.Infof("Merge complete: %d file(s) touched, %d replacement(s)", report.FilesTouched, report.Replacements)
	return report, nil
}

func (e *Engine) load(dirs []string) []batch {
	var batches []batch
	for _, dir := range dirs {
		store, err := storage.Open(dir)
		if err != nil {
			e.log.Warnf("Skipping batch %s: %v", dir, err)
			continue
		}
		root, err := store.ReadManifest()
		if err != nil {
			e.log.Warnf("Skipping batch %s: %v", dir, err)
			continue
		}
		e.log.Debugf("Loaded batch %s with %d test case(s)", dir, len(root.TestCases))
		batches = append(batches, batch{dir: dir, root: root})
	}
	return batches
}

// copyBatch copies everything but the manifest. Existing files are never
// overwritten.
func (e *Engine) copyBatch(src, dst string, report *Report) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return domain.NewError("merge", path, "failed to walk batch", err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if rel == storage.ManifestFile {
			return nil
		}
		n, err := copyFile(path, filepath.Join(dst, rel))
		if err != nil {
			return err
		}
		report.FilesCopied++
		report.BytesCopied += n
		return nil
	})
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, domain.NewError("merge", src, "failed to open file", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, domain.NewError("merge", dst, "failed to create file", err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, domain.NewError("merge", dst, "failed to copy file", err)
	}
	return n, nil
}

func (e *Engine) rewrite(outputPath string, ids map[string]string, report *Report) error {
	files, err := e.scanner.Scan(outputPath, []string{"*.json"}, []string{storage.ManifestFile})
	if err != nil {
		return err
	}
	for _, f := range files {
		n, err := rewriteFile(f, ids)
		if errors.Is(err, domain.ErrMalformedContent) {
			e.log.Warnf("Not rewriting %s: %v", f, err)
			continue
		}
		if err != nil {
			return err
		}
		if n > 0 {
			report.FilesTouched++
			report.Replacements += n
			e.log.Debugf("Rewrote %d reference(s) in %s", n, f)
		}
	}
	return nil
}

// mergeManifests concatenates item ids and deduplicates sections and
// attributes by name against earlier batches. It returns the merged
// manifest and the dropped id → kept id map as strings.
func (e *Engine) mergeManifests(batches []batch, report *Report) (domain.Root, map[string]string) {
	ids := make(map[string]string)
	merged := domain.Root{
		ProjectName: batches[0].root.ProjectName,
		Sections:    []domain.Section{},
		Attributes:  []domain.Attribute{},
		TestCases:   []uuid.UUID{},
		SharedSteps: []uuid.UUID{},
	}

	for _, b := range batches {
		merged.TestCases = append(merged.TestCases, b.root.TestCases...)
		merged.SharedSteps = append(merged.SharedSteps, b.root.SharedSteps...)
		merged.Sections = e.mergeSections(merged.Sections, b.root.Sections, ids, report)
		merged.Attributes = mergeAttributes(merged.Attributes, b.root.Attributes, ids, report)
	}
	return merged, ids
}

// mergeSections appends incoming sections to kept. A section whose name is
// already kept at this level is dropped, its id mapped to the kept one and
// its children merged into the kept section by the same rule. The kept
// section's steps win.
func (e *Engine) mergeSections(kept, incoming []domain.Section, ids map[string]string, report *Report) []domain.Section {
	byName := make(map[string]int, len(kept))
	for i, s := range kept {
		if _, ok := byName[s.Name]; !ok {
			byName[s.Name] = i
		}
	}

	for _, s := range incoming {
		i, ok := byName[s.Name]
		if !ok {
			kept = append(kept, s)
			continue
		}
		if !sameSteps(kept[i].PreconditionSteps, s.PreconditionSteps) || !sameSteps(kept[i].PostconditionSteps, s.PostconditionSteps) {
			e.log.Warnf("Section %q appears in several batches with different steps, keeping the first batch's steps", s.Name)
		}
		ids[s.ID.String()] = kept[i].ID.String()
		report.DroppedSections++
		kept[i].Sections = e.mergeSections(kept[i].Sections, s.Sections, ids, report)
	}
	return kept
}

func sameSteps(a, b []domain.Step) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// mergeAttributes appends incoming attributes to kept. A same-named
// attribute of the same type is dropped and its options unioned into the
// kept one by value; a same-named attribute of another type is renamed.
func mergeAttributes(kept, incoming []domain.Attribute, ids map[string]string, report *Report) []domain.Attribute {
	byName := make(map[string]int, len(kept))
	for i, a := range kept {
		byName[a.Name] = i
	}
	taken := func(name string) bool {
		_, ok := byName[name]
		return ok
	}

	for _, a := range incoming {
		i, ok := byName[a.Name]
		if ok && kept[i].Type == a.Type {
			ids[a.ID.String()] = kept[i].ID.String()
			report.DroppedAttributes++
			for _, o := range a.Options {
				if ko, found := kept[i].OptionByValue(o.Value); found {
					ids[o.ID.String()] = ko.ID.String()
					continue
				}
				kept[i].Options = append(kept[i].Options, o)
			}
			continue
		}
		if ok {
			a.Name = attribute.UniqueName(a.Name, taken)
		}
		byName[a.Name] = len(kept)
		kept = append(kept, a)
	}
	return kept
}
