package importer

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// WorkItem is a test case or shared step ready to be created in the target:
// ids rewritten, attribute values in target encoding and placeholders
// rehydrated.
type WorkItem struct {
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
	Attachments        []uuid.UUID
	Duration           int64
}

// Target is the capability set a target adapter provides to the importer.
type Target interface {
	attribute.Client

	// GetProject looks a project up by name.
	GetProject(ctx context.Context, name string) (id string, found bool, err error)
	CreateProject(ctx context.Context, name string) (string, error)
	// RootSection returns the section every project starts with.
	RootSection(ctx context.Context, projectID string) (uuid.UUID, error)
	CreateSection(ctx context.Context, projectID string, parentID uuid.UUID, s domain.Section) (uuid.UUID, error)
	UploadAttachment(ctx context.Context, name string, r io.Reader) (uuid.UUID, error)
	CreateSharedStep(ctx context.Context, projectID string, w WorkItem) (uuid.UUID, error)
	CreateTestCase(ctx context.Context, projectID string, w WorkItem) (uuid.UUID, error)
}
