// Package importer loads an interchange directory into a Target system.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/content"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/section"
	"github.com/testit-tms/migrators-sub001/internal/sharedstep"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

// Importer is the top-level import orchestrator.
type Importer interface {
	Import(ctx context.Context) (*Report, error)
}

// Options tunes an import run.
type Options struct {
	// ProjectName overrides the project name from the manifest.
	ProjectName string
	// ImportToExisting allows importing into a project that already exists.
	ImportToExisting bool
	// SkipMalformed skips test cases whose files cannot be decoded.
	SkipMalformed bool
}

// OptionsFromConfig builds Options from the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProjectName:      cfg.TestIT.ProjectName,
		ImportToExisting: cfg.TestIT.ImportToExistingProject,
		SkipMalformed:    cfg.Import.SkipMalformed,
	}
}

// Report summarises an import run.
type Report struct {
	ProjectID   string
	Attributes  int
	Sections    int
	SharedSteps int
	TestCases   int
	Skipped     int
	Attachments int
}

// DefaultImporter implements Importer.
type DefaultImporter struct {
	target Target
	store  *storage.Store
	opts   Options
	log    *logrus.Logger
}

// NewImporter creates a new DefaultImporter.
func NewImporter(target Target, store *storage.Store, opts Options, log *logrus.Logger) *DefaultImporter {
	return &DefaultImporter{target: target, store: store, opts: opts, log: log}
}

type run struct {
	projectID string
	attrs     *attribute.Map
	sections  map[uuid.UUID]uuid.UUID
	shared    *sharedstep.Map
	report    *Report
}

// Import runs the pipeline: manifest → project → attributes → sections →
// shared steps → test cases.
func (im *DefaultImporter) Import(ctx context.Context) (*Report, error) {
	root, err := im.store.ReadManifest()
	if err != nil {
		return nil, err
	}

	r := &run{
		sections: make(map[uuid.UUID]uuid.UUID),
		shared:   sharedstep.NewMap(),
		report:   &Report{},
	}

	if r.projectID, err = im.project(ctx, root.ProjectName); err != nil {
		return nil, err
	}
	r.report.ProjectID = r.projectID

	reconciler := attribute.NewReconciler(im.target, im.log)
	if r.attrs, err = reconciler.Reconcile(ctx, r.projectID, root.Attributes); err != nil {
		return nil, err
	}
	r.report.Attributes = r.attrs.Len()

	if err := im.importSections(ctx, r, root.Sections); err != nil {
		return nil, err
	}
	if err := im.importSharedSteps(ctx, r, root.SharedSteps); err != nil {
		return nil, err
	}
	if err := im.importTestCases(ctx, r, root.TestCases); err != nil {
		return nil, err
	}

	im.log.Infof("Imported %d section(s), %d shared step(s), %d test case(s), %d attachment(s), skipped %d",
		r.report.Sections, r.report.SharedSteps, r.report.TestCases, r.report.Attachments, r.report.Skipped)
	return r.report, nil
}

func (im *DefaultImporter) project(ctx context.Context, manifestName string) (string, error) {
	name := im.opts.ProjectName
	if name == "" {
		name = manifestName
	}
	if name == "" {
		return "", domain.NewError("import", "project", "no project name in manifest or configuration", nil)
	}

	id, found, err := im.target.GetProject(ctx, name)
	if err != nil {
		return "", domain.NewError("import", name, "failed to look up project", err)
	}
	if found {
		if !im.opts.ImportToExisting {
			return "", domain.NewError("import", name,
				"project already exists, set testit.import_to_existing_project to import into it", nil)
		}
		im.log.Infof("Importing into existing project %q", name)
		return id, nil
	}

	id, err = im.target.CreateProject(ctx, name)
	if err != nil {
		return "", domain.NewError("import", name, "failed to create project", err)
	}
	im.log.Infof("Created project %q", name)
	return id, nil
}

// importSections recreates the section tree under the project's root
// section, parents before children.
func (im *DefaultImporter) importSections(ctx context.Context, r *run, sections []domain.Section) error {
	rootID, err := im.target.RootSection(ctx, r.projectID)
	if err != nil {
		return domain.NewError("section", "root", "failed to get root section", err)
	}

	var firstErr error
	section.Walk(sections, func(s domain.Section, parent uuid.UUID) {
		if firstErr != nil {
			return
		}
		targetParent := rootID
		if parent != uuid.Nil {
			p, ok := r.sections[parent]
			if !ok {
				firstErr = domain.MissingReference("section", "section", parent)
				return
			}
			targetParent = p
		}
		converted, err := im.sectionSteps(ctx, r, s)
		if err != nil {
			firstErr = err
			return
		}
		created, err := im.target.CreateSection(ctx, r.projectID, targetParent, converted)
		if err != nil {
			firstErr = domain.NewError("section", s.Name, "failed to create section", err)
			return
		}
		r.sections[s.ID] = created
		im.log.Debugf("Created section %q", s.Name)
	})
	if firstErr != nil {
		return firstErr
	}
	r.report.Sections = len(r.sections)
	im.log.Infof("Imported %d section(s)", r.report.Sections)
	return nil
}

// sectionSteps uploads the attachments of a section's pre- and
// postcondition steps and rehydrates their placeholders. Sections are
// created before shared steps, so shared references are rejected.
func (im *DefaultImporter) sectionSteps(ctx context.Context, r *run, s domain.Section) (domain.Section, error) {
	for _, steps := range [][]domain.Step{s.PreconditionSteps, s.PostconditionSteps} {
		for _, st := range steps {
			if st.IsSharedReference() {
				return domain.Section{}, domain.NewError("section", s.Name,
					fmt.Sprintf("section steps cannot reference shared step %s", *st.SharedStepID), nil)
			}
		}
	}

	it := item{Name: s.Name, PreconditionSteps: s.PreconditionSteps, PostconditionSteps: s.PostconditionSteps}
	uploaded, _, err := im.upload(ctx, r, s.ID, it)
	if err != nil {
		return domain.Section{}, err
	}

	var missing []string
	convert := func(steps []domain.Step) []domain.Step {
		if steps == nil {
			return nil
		}
		out := make([]domain.Step, len(steps))
		for i, st := range steps {
			var m1, m2, m3 []string
			st.Action, m1 = content.Rehydrate(st.Action, uploaded)
			st.Expected, m2 = content.Rehydrate(st.Expected, uploaded)
			st.TestData, m3 = content.Rehydrate(st.TestData, uploaded)
			missing = append(missing, m1...)
			missing = append(missing, m2...)
			missing = append(missing, m3...)
			out[i] = st
		}
		return out
	}
	s.PreconditionSteps = convert(s.PreconditionSteps)
	s.PostconditionSteps = convert(s.PostconditionSteps)
	if len(missing) > 0 {
		im.log.Warnf("Section %q references attachments that were not uploaded: %v", s.Name, missing)
	}
	return s, nil
}

// importSharedSteps creates shared steps. A shared step that references one
// not created yet is retried after the others; references that never
// resolve abort the import.
func (im *DefaultImporter) importSharedSteps(ctx context.Context, r *run, ids []uuid.UUID) error {
	pending := make([]domain.SharedStep, 0, len(ids))
	for _, id := range ids {
		ss, err := im.store.ReadSharedStep(id)
		if err != nil {
			return err
		}
		if _, ok := r.sections[ss.SectionID]; !ok {
			return domain.MissingReference("import", "section", ss.SectionID)
		}
		pending = append(pending, ss)
	}

	for len(pending) > 0 {
		var deferred []domain.SharedStep
		var lastErr error
		for _, ss := range pending {
			w, err := im.workItem(ctx, r, ss.ID, item{
				Name:        ss.Name,
				Description: ss.Description,
				State:       ss.State,
				Priority:    ss.Priority,
				SectionID:   ss.SectionID,
				Steps:       ss.Steps,
				Attributes:  ss.Attributes,
				Tags:        ss.Tags,
				Links:       ss.Links,
				Attachments: ss.Attachments,
			})
			if errors.Is(err, domain.ErrMissingReference) && im.referencesPending(ss, pending) {
				deferred = append(deferred, ss)
				lastErr = err
				continue
			}
			if err != nil {
				return err
			}

			created, err := im.target.CreateSharedStep(ctx, r.projectID, w)
			if err != nil {
				return domain.NewError("sharedstep", ss.Name, "failed to create shared step", err)
			}
			r.shared.Register(ss.ID, created)
			r.report.SharedSteps++
			im.log.Debugf("Created shared step %q", ss.Name)
		}
		if len(deferred) == len(pending) {
			return domain.NewError("sharedstep", fmt.Sprintf("%d shared step(s)", len(deferred)),
				"shared steps reference each other in a cycle", lastErr)
		}
		pending = deferred
	}
	im.log.Infof("Imported %d shared step(s)", r.report.SharedSteps)
	return nil
}

func (im *DefaultImporter) referencesPending(ss domain.SharedStep, pending []domain.SharedStep) bool {
	waiting := make(map[uuid.UUID]bool, len(pending))
	for _, p := range pending {
		waiting[p.ID] = true
	}
	for _, s := range ss.Steps {
		if s.SharedStepID != nil && waiting[*s.SharedStepID] {
			return true
		}
	}
	return false
}

func (im *DefaultImporter) importTestCases(ctx context.Context, r *run, ids []uuid.UUID) error {
	for _, id := range ids {
		if err := im.importTestCase(ctx, r, id); err != nil {
			if im.opts.SkipMalformed && errors.Is(err, domain.ErrMalformedContent) {
				im.log.Warnf("Skipping test case %s: %v", id, err)
				r.report.Skipped++
				continue
			}
			return err
		}
		r.report.TestCases++
	}
	im.log.Infof("Imported %d test case(s)", r.report.TestCases)
	return nil
}

func (im *DefaultImporter) importTestCase(ctx context.Context, r *run, id uuid.UUID) error {
	tc, err := im.store.ReadTestCase(id)
	if err != nil {
		return err
	}
	w, err := im.workItem(ctx, r, tc.ID, item{
		Name:               tc.Name,
		Description:        tc.Description,
		State:              tc.State,
		Priority:           tc.Priority,
		SectionID:          tc.SectionID,
		Steps:              tc.Steps,
		PreconditionSteps:  tc.PreconditionSteps,
		PostconditionSteps: tc.PostconditionSteps,
		Attributes:         tc.Attributes,
		Tags:               tc.Tags,
		Links:              tc.Links,
		Iterations:         tc.Iterations,
		Attachments:        tc.Attachments,
		Duration:           tc.Duration,
	})
	if err != nil {
		return err
	}
	if _, err := im.target.CreateTestCase(ctx, r.projectID, w); err != nil {
		return domain.NewError("testcase", tc.Name, "failed to create test case", err)
	}
	im.log.Debugf("Created test case %q", tc.Name)
	return nil
}

// item is the part shared by test cases and shared steps.
type item struct {
	Name               string
	Description        string
	State              string
	Priority           string
	SectionID          uuid.UUID
	Steps              []domain.Step
	PreconditionSteps  []domain.Step
	PostconditionSteps []domain.Step
	Attributes         []domain.CaseAttribute
	Tags               []string
	Links              []domain.Link
	Iterations         []domain.Iteration
	Attachments        []string
	Duration           int64
}

// workItem rewrites ids, converts attribute values, uploads attachments and
// rehydrates placeholders. Reference checks run before any upload.
func (im *DefaultImporter) workItem(ctx context.Context, r *run, id uuid.UUID, it item) (WorkItem, error) {
	sectionID, ok := r.sections[it.SectionID]
	if !ok {
		return WorkItem{}, domain.MissingReference("import", "section", it.SectionID)
	}
	w := WorkItem{
		Name:       it.Name,
		State:      it.State,
		Priority:   it.Priority,
		SectionID:  sectionID,
		Tags:       it.Tags,
		Links:      it.Links,
		Iterations: it.Iterations,
		Duration:   it.Duration,
	}

	var err error
	if w.Steps, err = r.shared.Rewrite(it.Steps); err != nil {
		return WorkItem{}, err
	}
	if w.PreconditionSteps, err = r.shared.Rewrite(it.PreconditionSteps); err != nil {
		return WorkItem{}, err
	}
	if w.PostconditionSteps, err = r.shared.Rewrite(it.PostconditionSteps); err != nil {
		return WorkItem{}, err
	}

	w.Attributes = make([]domain.CaseAttribute, 0, len(it.Attributes))
	for _, ca := range it.Attributes {
		v, err := r.attrs.CaseValue(ca)
		if err != nil {
			return WorkItem{}, domain.NewError("import", it.Name, "failed to convert attribute value", err)
		}
		w.Attributes = append(w.Attributes, v)
	}

	uploaded, order, err := im.upload(ctx, r, id, it)
	if err != nil {
		return WorkItem{}, err
	}
	for _, name := range order {
		upID, _ := uuid.Parse(uploaded[name].ID)
		w.Attachments = append(w.Attachments, upID)
	}

	var missing []string
	rehydrate := func(text string) string {
		out, m := content.Rehydrate(text, uploaded)
		missing = append(missing, m...)
		return out
	}
	w.Description = rehydrate(it.Description)
	for _, steps := range [][]domain.Step{w.Steps, w.PreconditionSteps, w.PostconditionSteps} {
		for i := range steps {
			if steps[i].IsSharedReference() {
				continue
			}
			steps[i].Action = rehydrate(steps[i].Action)
			steps[i].Expected = rehydrate(steps[i].Expected)
			steps[i].TestData = rehydrate(steps[i].TestData)
		}
	}
	if len(missing) > 0 {
		im.log.Warnf("%q references attachments that were not uploaded: %v", it.Name, missing)
	}
	return w, nil
}

// upload sends every attachment of an item once, item attachments first,
// then names only referenced from steps.
func (im *DefaultImporter) upload(ctx context.Context, r *run, id uuid.UUID, it item) (map[string]content.Uploaded, []string, error) {
	var order []string
	seen := make(map[string]bool)
	add := func(names []string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}
	add(it.Attachments)
	for _, steps := range [][]domain.Step{it.PreconditionSteps, it.Steps, it.PostconditionSteps} {
		for _, s := range steps {
			add(s.ActionAttachments)
			add(s.ExpectedAttachments)
			add(s.TestDataAttachments)
		}
	}

	uploaded := make(map[string]content.Uploaded, len(order))
	for _, name := range order {
		f, err := im.store.OpenAttachment(id, name)
		if err != nil {
			return nil, nil, err
		}
		upID, err := im.target.UploadAttachment(ctx, name, f)
		f.Close()
		if err != nil {
			return nil, nil, domain.NewError("import", name, "failed to upload attachment", err)
		}
		uploaded[name] = content.Uploaded{ID: upID.String(), Name: name}
		r.report.Attachments++
	}
	return uploaded, order, nil
}
