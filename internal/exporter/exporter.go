// Package exporter drives a vendor Source through the export stages and
// writes the interchange layout.
package exporter

import (
	"context"
	"errors"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/assembler"
	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/identity"
	"github.com/testit-tms/migrators-sub001/internal/section"
	"github.com/testit-tms/migrators-sub001/internal/sharedstep"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

// Exporter is the top-level export orchestrator.
type Exporter interface {
	Export(ctx context.Context) (*Report, error)
}

// Options tunes an export run.
type Options struct {
	// RootSection wraps every exported section in one section of this name.
	RootSection string
	// SkipMalformed skips test cases whose content cannot be parsed.
	SkipMalformed bool
	// Concurrency bounds parallel expected-result fetches.
	Concurrency int
}

// OptionsFromConfig builds Options from the export configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RootSection:   cfg.Export.RootSection,
		SkipMalformed: cfg.Export.SkipMalformed,
		Concurrency:   cfg.Export.Concurrency,
	}
}

// Report summarises an export run.
type Report struct {
	Project     string
	Sections    int
	Attributes  int
	SharedSteps int
	TestCases   int
	Skipped     int
	Attachments int
	Bytes       int64
}

// DefaultExporter implements Exporter by wiring a Source, an Assembler and a
// Store together.
type DefaultExporter struct {
	source    Source
	assembler assembler.Assembler
	store     *storage.Store
	opts      Options
	log       *logrus.Logger
}

// NewExporter creates a new DefaultExporter with all dependencies.
func NewExporter(
	source Source,
	asm assembler.Assembler,
	store *storage.Store,
	opts Options,
	log *logrus.Logger,
) *DefaultExporter {
	return &DefaultExporter{
		source:    source,
		assembler: asm,
		store:     store,
		opts:      opts,
		log:       log,
	}
}

// run is the state of one export.
type run struct {
	project   Project
	attrs     *attribute.ExportSet
	sections  *section.Result[string]
	shared    *sharedstep.Resolver[string]
	listed    map[string]Item
	downloads map[uuid.UUID][]domain.AttachmentRef
	withFiles []uuid.UUID
	caseIDs   *identity.Remapper[string]
	cases     []domain.TestCase
	report    *Report
}

// Export runs the pipeline: project → attributes → sections → shared steps →
// test cases → write items → write manifest. The manifest is written last,
// so an interrupted run leaves no main.json behind.
func (e *DefaultExporter) Export(ctx context.Context) (*Report, error) {
	project, err := e.source.GetProject(ctx)
	if err != nil {
		return nil, domain.NewError("fetch", "project", "failed to get project", err)
	}
	e.log.Infof("Exporting project %q", project.Name)

	r := &run{
		project:   project,
		listed:    make(map[string]Item),
		downloads: make(map[uuid.UUID][]domain.AttachmentRef),
		caseIDs:   identity.NewRemapper[string]("test case"),
		report:    &Report{Project: project.Name},
	}
	r.shared = sharedstep.NewResolver(e.convertSharedStep(r))

	if err := e.convertAttributes(ctx, r); err != nil {
		return nil, err
	}
	if err := e.convertSections(ctx, r); err != nil {
		return nil, err
	}
	if err := e.convertSharedSteps(ctx, r); err != nil {
		return nil, err
	}
	if err := e.convertTestCases(ctx, r); err != nil {
		return nil, err
	}
	if err := e.writeSharedSteps(ctx, r); err != nil {
		return nil, err
	}
	if err := e.writeTestCases(ctx, r); err != nil {
		return nil, err
	}
	for _, id := range r.withFiles {
		if err := e.download(ctx, r, id); err != nil {
			return nil, err
		}
	}
	if err := e.writeManifest(r); err != nil {
		return nil, err
	}

	e.log.Infof("Exported %d test case(s), %d shared step(s), %d attachment(s) (%s), skipped %d",
		r.report.TestCases, r.report.SharedSteps, r.report.Attachments,
		humanize.Bytes(uint64(r.report.Bytes)), r.report.Skipped)
	return r.report, nil
}

func (e *DefaultExporter) convertAttributes(ctx context.Context, r *run) error {
	fields, err := e.source.FetchAttributes(ctx)
	if err != nil {
		return domain.NewError("fetch", "attributes", "failed to fetch attributes", err)
	}
	set, err := attribute.BuildExport(fields)
	if err != nil {
		return err
	}
	r.attrs = set
	e.log.Infof("Converted %d attribute(s)", set.Len())
	return nil
}

func (e *DefaultExporter) convertSections(ctx context.Context, r *run) error {
	flat, err := e.source.FetchSections(ctx)
	if err != nil {
		return domain.NewError("fetch", "sections", "failed to fetch sections", err)
	}

	rootName := e.opts.RootSection
	if rootName == "" && len(flat) == 0 {
		rootName = r.project.Name
	}
	r.sections = section.Build(flat, section.Options[string]{RootName: rootName})
	r.report.Sections = r.sections.IDs.Len()
	if r.sections.UnattachedID != uuid.Nil {
		e.log.Warnf("Some sections have an unknown or cyclic parent, attached them under %q", section.DefaultUnattachedName)
	}
	if err := e.convertSectionSteps(r); err != nil {
		return err
	}
	e.log.Infof("Converted %d section(s)", r.report.Sections)
	return nil
}

// convertSectionSteps extracts attachments from section pre- and
// postcondition steps. Section step text is HTML.
func (e *DefaultExporter) convertSectionSteps(r *run) error {
	stack := make([]*domain.Section, 0, len(r.sections.Sections))
	for i := range r.sections.Sections {
		stack = append(stack, &r.sections.Sections[i])
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i := range s.Sections {
			stack = append(stack, &s.Sections[i])
		}
		if len(s.PreconditionSteps) == 0 && len(s.PostconditionSteps) == 0 {
			continue
		}

		converted, refs, err := e.assembler.Section(*s, "html")
		if err != nil {
			return err
		}
		s.PreconditionSteps = converted.PreconditionSteps
		s.PostconditionSteps = converted.PostconditionSteps
		if len(refs) > 0 {
			r.downloads[s.ID] = refs
			r.withFiles = append(r.withFiles, s.ID)
		}
	}
	return nil
}

func (e *DefaultExporter) convertSharedSteps(ctx context.Context, r *run) error {
	items, err := e.source.FetchSharedSteps(ctx)
	if err != nil {
		return domain.NewError("fetch", "shared steps", "failed to fetch shared steps", err)
	}
	for _, item := range items {
		r.listed[item.Key] = item
	}
	for _, item := range items {
		if _, err := r.shared.Resolve(ctx, item.Key); err != nil {
			return err
		}
	}
	e.log.Infof("Converted %d shared step(s)", r.shared.Len())
	return nil
}

// convertSharedStep is called by the resolver the first time a shared step
// is listed or referenced.
func (e *DefaultExporter) convertSharedStep(r *run) sharedstep.ConvertFunc[string] {
	return func(ctx context.Context, key string, id uuid.UUID) (domain.SharedStep, error) {
		item, ok := r.listed[key]
		if !ok {
			var err error
			item, err = e.source.FetchSharedStep(ctx, key)
			if err != nil {
				return domain.SharedStep{}, domain.NewError("fetch", key, "failed to fetch shared step", err)
			}
		}
		e.log.Debugf("Converting shared step %s", key)

		d, err := e.draft(ctx, r, item, id)
		if err != nil {
			return domain.SharedStep{}, err
		}
		ss, downloads, err := e.assembler.SharedStep(d)
		if err != nil {
			return domain.SharedStep{}, err
		}
		r.downloads[id] = downloads
		return ss, nil
	}
}

func (e *DefaultExporter) convertTestCases(ctx context.Context, r *run) error {
	items, err := e.source.FetchTestCases(ctx)
	if err != nil {
		return domain.NewError("fetch", "test cases", "failed to fetch test cases", err)
	}
	e.log.Infof("Found %d test case(s)", len(items))

	for _, item := range items {
		if _, seen := r.caseIDs.Lookup(item.Key); seen {
			e.log.Warnf("Test case %s listed twice, keeping the first", item.Key)
			continue
		}
		id := r.caseIDs.NewID(item.Key)
		e.log.Debugf("Converting test case %s", item.Key)

		tc, downloads, err := e.convertTestCase(ctx, r, item, id)
		if err != nil {
			if e.skippable(err) {
				e.log.Warnf("Skipping test case %s: %v", item.Key, err)
				r.report.Skipped++
				continue
			}
			return err
		}
		r.cases = append(r.cases, tc)
		r.downloads[id] = downloads
	}
	return nil
}

// skippable reports whether a test case failure only affects that test
// case. Shared step failures abort the run even when their content is
// malformed.
func (e *DefaultExporter) skippable(err error) bool {
	if !e.opts.SkipMalformed || !errors.Is(err, domain.ErrMalformedContent) {
		return false
	}
	var me *domain.MigratorError
	return !errors.As(err, &me) || me.Phase != "sharedstep"
}

func (e *DefaultExporter) convertTestCase(ctx context.Context, r *run, item Item, id uuid.UUID) (domain.TestCase, []domain.AttachmentRef, error) {
	d, err := e.draft(ctx, r, item, id)
	if err != nil {
		return domain.TestCase{}, nil, err
	}
	return e.assembler.TestCase(d)
}

// draft gathers steps, attributes and section for an item.
func (e *DefaultExporter) draft(ctx context.Context, r *run, item Item, id uuid.UUID) (assembler.Draft, error) {
	steps, err := e.source.FetchSteps(ctx, item)
	if err != nil {
		return assembler.Draft{}, domain.NewError("fetch", item.Key, "failed to fetch steps", err)
	}

	d := assembler.Draft{
		ID:          id,
		Name:        item.Name,
		Description: item.Description,
		Format:      item.Format,
		State:       item.State,
		Priority:    item.Priority,
		SectionID:   e.sectionFor(r, item),
		Tags:        item.Tags,
		Links:       item.Links,
		Iterations:  item.Iterations,
		Attachments: item.Attachments,
		Duration:    item.Duration,
	}
	if d.Steps, err = e.convertSteps(ctx, r, item.Key, steps.Steps); err != nil {
		return assembler.Draft{}, err
	}
	if d.PreconditionSteps, err = e.convertSteps(ctx, r, item.Key, steps.Preconditions); err != nil {
		return assembler.Draft{}, err
	}
	if d.PostconditionSteps, err = e.convertSteps(ctx, r, item.Key, steps.Postconditions); err != nil {
		return assembler.Draft{}, err
	}
	if d.Attributes, err = e.caseAttributes(r, item); err != nil {
		return assembler.Draft{}, err
	}
	return d, nil
}

func (e *DefaultExporter) sectionFor(r *run, item Item) uuid.UUID {
	if item.SectionKey != "" {
		if id, ok := r.sections.SectionID(item.SectionKey); ok {
			return id
		}
		e.log.Warnf("Item %s is in unknown section %q, using the fallback section", item.Key, item.SectionKey)
	}
	return r.sections.Fallback(r.project.Name)
}

// convertSteps flattens nested steps, resolves shared step references and
// fills missing expected results when the source serves them per step.
func (e *DefaultExporter) convertSteps(ctx context.Context, r *run, itemKey string, src []SourceStep) ([]assembler.StepDraft, error) {
	if len(src) == 0 {
		return nil, nil
	}
	nodes, err := e.nodes(ctx, r, src)
	if err != nil {
		return nil, err
	}
	steps, info := sharedstep.Flatten(nodes)

	if ers, ok := e.source.(ExpectedResultSource); ok {
		fetch := func(ctx context.Context, seq int) (string, error) {
			return ers.FetchExpectedResult(ctx, itemKey, seq)
		}
		if err := sharedstep.FillExpected(ctx, info, fetch, e.opts.Concurrency); err != nil {
			return nil, domain.NewError("fetch", itemKey, "failed to fetch expected results", err)
		}
	}

	drafts := make([]assembler.StepDraft, len(steps))
	for i, s := range steps {
		drafts[i] = assembler.StepDraft{
			Action:       s.Action,
			Expected:     s.Expected,
			TestData:     s.TestData,
			SharedStepID: s.SharedStepID,
		}
	}
	return drafts, nil
}

func (e *DefaultExporter) nodes(ctx context.Context, r *run, src []SourceStep) ([]sharedstep.Node, error) {
	nodes := make([]sharedstep.Node, 0, len(src))
	for _, s := range src {
		n := sharedstep.Node{
			Seq:    s.Seq,
			HasSeq: s.HasSeq,
			Step: domain.Step{
				Action:   s.Action,
				Expected: s.Expected,
				TestData: s.TestData,
			},
		}
		if s.SharedStepKey != "" {
			ref, err := r.shared.Reference(ctx, s.SharedStepKey)
			if err != nil {
				return nil, err
			}
			n.Step = ref
		}
		if len(s.Children) > 0 {
			children, err := e.nodes(ctx, r, s.Children)
			if err != nil {
				return nil, err
			}
			n.Children = children
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (e *DefaultExporter) caseAttributes(r *run, item Item) ([]domain.CaseAttribute, error) {
	keys := make([]string, 0, len(item.Fields))
	for k := range item.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.CaseAttribute
	for _, k := range keys {
		if _, ok := r.attrs.ID(k); !ok {
			e.log.Debugf("Item %s has value for unknown field %q, ignoring", item.Key, k)
			continue
		}
		v, err := r.attrs.Value(k, item.Fields[k])
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (e *DefaultExporter) writeSharedSteps(ctx context.Context, r *run) error {
	for _, ss := range r.shared.SharedSteps() {
		if err := e.store.WriteSharedStep(ss); err != nil {
			return err
		}
		if err := e.download(ctx, r, ss.ID); err != nil {
			return err
		}
		r.report.SharedSteps++
	}
	return nil
}

func (e *DefaultExporter) writeTestCases(ctx context.Context, r *run) error {
	for _, tc := range r.cases {
		if err := e.store.WriteTestCase(tc); err != nil {
			return err
		}
		if err := e.download(ctx, r, tc.ID); err != nil {
			return err
		}
		r.report.TestCases++
	}
	return nil
}

func (e *DefaultExporter) download(ctx context.Context, r *run, id uuid.UUID) error {
	for _, ref := range r.downloads[id] {
		rc, err := e.source.FetchAttachment(ctx, ref)
		if err != nil {
			return domain.NewError("fetch", ref.URL, "failed to download attachment", err)
		}
		n, err := e.store.WriteAttachment(id, ref.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
		e.log.Debugf("Saved attachment %s for %s (%s)", ref.Name, id, humanize.Bytes(uint64(n)))
		r.report.Attachments++
		r.report.Bytes += n
	}
	return nil
}

func (e *DefaultExporter) writeManifest(r *run) error {
	root := domain.Root{
		ProjectName: r.project.Name,
		Sections:    r.sections.Sections,
		Attributes:  r.attrs.Attributes(),
		TestCases:   make([]uuid.UUID, 0, len(r.cases)),
		SharedSteps: make([]uuid.UUID, 0, r.shared.Len()),
	}
	if root.Attributes == nil {
		root.Attributes = []domain.Attribute{}
	}
	if root.Sections == nil {
		root.Sections = []domain.Section{}
	}
	for _, tc := range r.cases {
		root.TestCases = append(root.TestCases, tc.ID)
	}
	for _, ss := range r.shared.SharedSteps() {
		root.SharedSteps = append(root.SharedSteps, ss.ID)
	}
	if r.sections.LooseID != uuid.Nil {
		r.report.Sections++
	}
	r.report.Attributes = len(root.Attributes)
	return e.store.WriteManifest(root)
}
