package exporter

import (
	"context"
	"io"

	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/section"
)

// Project identifies the exported project.
type Project struct {
	Key  string
	Name string
}

// Item is a vendor test case or shared step before conversion.
type Item struct {
	Key         string
	SectionKey  string
	Name        string
	Description string
	Format      string
	State       string
	Priority    string
	Fields      map[string]any // custom and system field key -> raw value
	Tags        []string
	Links       []domain.Link
	Iterations  []domain.Iteration
	Attachments []domain.AttachmentRef
	Duration    int64
}

// SourceStep is a vendor step. A non-empty SharedStepKey makes it a
// reference to a shared step. Children are nested steps. Sources numbering
// steps from zero set HasSeq.
type SourceStep struct {
	Seq           int
	HasSeq        bool
	Action        string
	Expected      string
	TestData      string
	SharedStepKey string
	Children      []SourceStep
}

// Steps holds the step lists of one item.
type Steps struct {
	Steps          []SourceStep
	Preconditions  []SourceStep
	Postconditions []SourceStep
}

// Source is the capability set a vendor adapter provides to the exporter.
type Source interface {
	GetProject(ctx context.Context) (Project, error)
	FetchAttributes(ctx context.Context) ([]attribute.SourceField, error)
	FetchSections(ctx context.Context) ([]section.FlatSection[string], error)
	// FetchSharedSteps lists shared steps exported even when no test case
	// references them. It may return nothing.
	FetchSharedSteps(ctx context.Context) ([]Item, error)
	FetchSharedStep(ctx context.Context, key string) (Item, error)
	FetchTestCases(ctx context.Context) ([]Item, error)
	FetchSteps(ctx context.Context, item Item) (Steps, error)
	FetchAttachment(ctx context.Context, ref domain.AttachmentRef) (io.ReadCloser, error)
}

// ExpectedResultSource is implemented by sources that return steps without
// expected results and serve them per step.
type ExpectedResultSource interface {
	FetchExpectedResult(ctx context.Context, itemKey string, seq int) (string, error)
}
