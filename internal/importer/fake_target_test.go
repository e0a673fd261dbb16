package importer_test

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/importer"
)

type createdSection struct {
	ID            uuid.UUID
	Parent        uuid.UUID
	Name          string
	Preconditions []domain.Step
}

type fakeTarget struct {
	projects    map[string]string
	rootSection uuid.UUID
	attrs       []domain.Attribute
	sections    []createdSection
	uploads     map[uuid.UUID]string
	sharedSteps map[uuid.UUID]importer.WorkItem
	sharedOrder []string
	testCases   []importer.WorkItem
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		projects:    make(map[string]string),
		rootSection: uuid.New(),
		uploads:     make(map[uuid.UUID]string),
		sharedSteps: make(map[uuid.UUID]importer.WorkItem),
	}
}

func (f *fakeTarget) ListAttributes(context.Context) ([]domain.Attribute, error) {
	return f.attrs, nil
}

func (f *fakeTarget) CreateAttribute(_ context.Context, a domain.Attribute) (domain.Attribute, error) {
	a.ID = uuid.New()
	for i := range a.Options {
		a.Options[i].ID = uuid.New()
	}
	f.attrs = append(f.attrs, a)
	return a, nil
}

func (f *fakeTarget) UpdateAttribute(_ context.Context, a domain.Attribute) (domain.Attribute, error) {
	for i := range a.Options {
		if a.Options[i].ID == uuid.Nil {
			a.Options[i].ID = uuid.New()
		}
	}
	return a, nil
}

func (f *fakeTarget) AddAttributesToProject(context.Context, string, []uuid.UUID) error {
	return nil
}

func (f *fakeTarget) GetProject(_ context.Context, name string) (string, bool, error) {
	id, ok := f.projects[name]
	return id, ok, nil
}

func (f *fakeTarget) CreateProject(_ context.Context, name string) (string, error) {
	id := uuid.NewString()
	f.projects[name] = id
	return id, nil
}

func (f *fakeTarget) RootSection(context.Context, string) (uuid.UUID, error) {
	return f.rootSection, nil
}

func (f *fakeTarget) CreateSection(_ context.Context, _ string, parent uuid.UUID, s domain.Section) (uuid.UUID, error) {
	id := uuid.New()
	f.sections = append(f.sections, createdSection{ID: id, Parent: parent, Name: s.Name, Preconditions: s.PreconditionSteps})
	return id, nil
}

func (f *fakeTarget) UploadAttachment(_ context.Context, name string, r io.Reader) (uuid.UUID, error) {
	if _, err := io.ReadAll(r); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	f.uploads[id] = name
	return id, nil
}

func (f *fakeTarget) CreateSharedStep(_ context.Context, _ string, w importer.WorkItem) (uuid.UUID, error) {
	id := uuid.New()
	f.sharedSteps[id] = w
	f.sharedOrder = append(f.sharedOrder, w.Name)
	return id, nil
}

func (f *fakeTarget) CreateTestCase(_ context.Context, _ string, w importer.WorkItem) (uuid.UUID, error) {
	f.testCases = append(f.testCases, w)
	return uuid.New(), nil
}

func (f *fakeTarget) section(name string) createdSection {
	for _, s := range f.sections {
		if s.Name == name {
			return s
		}
	}
	return createdSection{}
}
