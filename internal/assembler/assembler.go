// Package assembler builds interchange test cases and shared steps from
// vendor drafts.
package assembler

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/content"
	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// StepDraft is a vendor step before content conversion. A step with
// SharedStepID set is a reference and its text fields are ignored.
type StepDraft struct {
	Action       string
	Expected     string
	TestData     string
	SharedStepID *uuid.UUID
}

// Draft carries everything a vendor adapter knows about a test case or
// shared step. Text fields are in Format, defaulting to HTML.
type Draft struct {
	ID                 uuid.UUID
	Name               string
	Description        string
	Format             string
	State              string
	Priority           string
	SectionID          uuid.UUID
	Steps              []StepDraft
	PreconditionSteps  []StepDraft
	PostconditionSteps []StepDraft
	Attributes         []domain.CaseAttribute
	Tags               []string
	Links              []domain.Link
	Iterations         []domain.Iteration
	Attachments        []domain.AttachmentRef
	Duration           int64
}

// Assembler converts drafts into interchange records.
type Assembler interface {
	TestCase(d Draft) (domain.TestCase, []domain.AttachmentRef, error)
	SharedStep(d Draft) (domain.SharedStep, []domain.AttachmentRef, error)
	Section(s domain.Section, format string) (domain.Section, []domain.AttachmentRef, error)
}

// DefaultAssembler implements Assembler.
type DefaultAssembler struct {
	registry content.Registry
	logger   *logrus.Logger
}

// New creates a new DefaultAssembler.
func New(registry content.Registry, logger *logrus.Logger) *DefaultAssembler {
	return &DefaultAssembler{registry: registry, logger: logger}
}

// TestCase converts a draft into a test case and the list of files to
// download. Attachments are ordered: primary attachments, description, then
// each step of preconditions, steps and postconditions as action, expected,
// test data.
func (a *DefaultAssembler) TestCase(d Draft) (domain.TestCase, []domain.AttachmentRef, error) {
	b, err := a.build(d)
	if err != nil {
		return domain.TestCase{}, nil, domain.NewError("testcase", d.Name, "failed to assemble test case", err)
	}

	tc := domain.TestCase{
		ID:                 d.ID,
		Name:               d.Name,
		Description:        b.description,
		State:              d.State,
		Priority:           d.Priority,
		SectionID:          d.SectionID,
		Steps:              b.steps,
		PreconditionSteps:  b.preconditions,
		PostconditionSteps: b.postconditions,
		Attributes:         nonNil(d.Attributes),
		Tags:               nonNil(d.Tags),
		Links:              nonNil(d.Links),
		Attachments:        b.names(),
		Iterations:         nonNil(d.Iterations),
		Duration:           d.Duration,
	}
	a.logger.Debugf("Assembled test case %q with %d steps and %d attachments", tc.Name, len(tc.Steps), len(tc.Attachments))
	return tc, b.refs, nil
}

// SharedStep converts a draft into a shared step. Preconditions and
// postconditions are not part of shared steps and are ignored.
func (a *DefaultAssembler) SharedStep(d Draft) (domain.SharedStep, []domain.AttachmentRef, error) {
	d.PreconditionSteps = nil
	d.PostconditionSteps = nil
	b, err := a.build(d)
	if err != nil {
		return domain.SharedStep{}, nil, domain.NewError("sharedstep", d.Name, "failed to assemble shared step", err)
	}

	ss := domain.SharedStep{
		ID:          d.ID,
		Name:        d.Name,
		Description: b.description,
		State:       d.State,
		Priority:    d.Priority,
		SectionID:   d.SectionID,
		Steps:       b.steps,
		Attributes:  nonNil(d.Attributes),
		Tags:        nonNil(d.Tags),
		Links:       nonNil(d.Links),
		Attachments: b.names(),
	}
	a.logger.Debugf("Assembled shared step %q with %d steps", ss.Name, len(ss.Steps))
	return ss, b.refs, nil
}

// Section converts the text of a section's pre- and postcondition steps,
// leaving subsections untouched. Sections cannot hold shared step
// references.
func (a *DefaultAssembler) Section(s domain.Section, format string) (domain.Section, []domain.AttachmentRef, error) {
	d := Draft{Name: s.Name, Format: format}
	var err error
	if d.PreconditionSteps, err = sectionDrafts(s, s.PreconditionSteps); err != nil {
		return domain.Section{}, nil, err
	}
	if d.PostconditionSteps, err = sectionDrafts(s, s.PostconditionSteps); err != nil {
		return domain.Section{}, nil, err
	}

	b, err := a.build(d)
	if err != nil {
		return domain.Section{}, nil, domain.NewError("section", s.Name, "failed to assemble section", err)
	}
	s.PreconditionSteps = b.preconditions
	s.PostconditionSteps = b.postconditions
	a.logger.Debugf("Assembled section %q with %d attachments", s.Name, len(b.refs))
	return s, b.refs, nil
}

func sectionDrafts(s domain.Section, steps []domain.Step) ([]StepDraft, error) {
	drafts := make([]StepDraft, 0, len(steps))
	for _, st := range steps {
		if st.IsSharedReference() {
			return nil, domain.NewError("section", s.Name,
				"section steps cannot reference shared step "+st.SharedStepID.String(), nil)
		}
		drafts = append(drafts, StepDraft{Action: st.Action, Expected: st.Expected, TestData: st.TestData})
	}
	return drafts, nil
}

type built struct {
	extractor content.Extractor

	description    string
	steps          []domain.Step
	preconditions  []domain.Step
	postconditions []domain.Step

	byURL map[string]string
	taken map[string]bool
	refs  []domain.AttachmentRef
}

func (a *DefaultAssembler) build(d Draft) (*built, error) {
	format := d.Format
	if format == "" {
		format = "html"
	}
	extractor, err := a.registry.ExtractorFor(format)
	if err != nil {
		return nil, err
	}

	b := &built{
		extractor: extractor,
		byURL:     make(map[string]string),
		taken:     make(map[string]bool),
	}
	for _, ref := range d.Attachments {
		b.collect(ref)
	}

	if b.description, _, err = b.convert(d.Description); err != nil {
		return nil, err
	}
	if b.preconditions, err = b.convertSteps(d.PreconditionSteps); err != nil {
		return nil, err
	}
	if b.steps, err = b.convertSteps(d.Steps); err != nil {
		return nil, err
	}
	if b.postconditions, err = b.convertSteps(d.PostconditionSteps); err != nil {
		return nil, err
	}
	return b, nil
}

// collect registers ref and returns its case-wide file name. A URL seen
// before keeps its name. A bare file name that matches an already
// collected attachment refers to that attachment.
func (b *built) collect(ref domain.AttachmentRef) string {
	if name, ok := b.byURL[ref.URL]; ok {
		return name
	}
	if !strings.ContainsAny(ref.URL, "/:") && b.taken[ref.URL] {
		return ref.URL
	}

	name := ref.Name
	if name == "" {
		name = ref.URL
	}
	name = content.UniqueFileName(name, func(n string) bool { return b.taken[n] })
	b.taken[name] = true
	b.byURL[ref.URL] = name
	b.refs = append(b.refs, domain.AttachmentRef{Name: name, URL: ref.URL})
	return name
}

// convert extracts references from one text field and returns the text with
// case-wide placeholder names and the names it references.
func (b *built) convert(text string) (string, []string, error) {
	if text == "" {
		return "", []string{}, nil
	}
	res, err := b.extractor.Extract(text)
	if err != nil {
		return "", nil, err
	}

	renames := make(map[string]string)
	for _, ref := range res.Attachments {
		if name := b.collect(ref); name != ref.Name {
			renames[ref.Name] = name
		}
	}
	out := content.RenamePlaceholders(res.Text, renames)
	return out, unique(content.Placeholders(out)), nil
}

func (b *built) convertSteps(drafts []StepDraft) ([]domain.Step, error) {
	steps := make([]domain.Step, 0, len(drafts))
	for _, d := range drafts {
		if d.SharedStepID != nil {
			id := *d.SharedStepID
			steps = append(steps, domain.Step{
				ActionAttachments:   []string{},
				ExpectedAttachments: []string{},
				TestDataAttachments: []string{},
				SharedStepID:        &id,
			})
			continue
		}

		var (
			s   domain.Step
			err error
		)
		if s.Action, s.ActionAttachments, err = b.convert(d.Action); err != nil {
			return nil, err
		}
		if s.Expected, s.ExpectedAttachments, err = b.convert(d.Expected); err != nil {
			return nil, err
		}
		if s.TestData, s.TestDataAttachments, err = b.convert(d.TestData); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (b *built) names() []string {
	names := make([]string, len(b.refs))
	for i, r := range b.refs {
		names[i] = r.Name
	}
	return names
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
