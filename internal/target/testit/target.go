// Package testit creates projects, attributes, sections and work items in
// Test IT for the importer.
package testit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/httpclient"
	"github.com/testit-tms/migrators-sub001/internal/importer"
)

// API is the part of the HTTP client the target needs.
type API interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	PutJSON(ctx context.Context, path string, body, out any) error
	Upload(ctx context.Context, path, field, filename string, r io.Reader, out any) error
}

// Target implements importer.Target.
type Target struct {
	api API
	log *logrus.Logger

	// parameters caches created iteration parameters by name and value.
	parameters map[parameterRequest]uuid.UUID
}

var _ importer.Target = (*Target)(nil)

// New creates a Target.
func New(api API, log *logrus.Logger) *Target {
	return &Target{
		api:        api,
		log:        log,
		parameters: make(map[parameterRequest]uuid.UUID),
	}
}

// NewFromConfig creates a Target authenticated with the configured private
// token.
func NewFromConfig(cfg *config.Config, log *logrus.Logger) *Target {
	header := http.Header{"Authorization": {"PrivateToken " + cfg.TestIT.PrivateToken}}
	client := httpclient.New(httpclient.OptionsFromConfig(cfg.HTTP, cfg.TestIT.URL, header), log)
	return New(client, log)
}

// GetProject finds a project by exact name.
func (t *Target) GetProject(ctx context.Context, name string) (string, bool, error) {
	var projects []projectModel
	if err := t.api.PostJSON(ctx, "/api/v2/projects/search", map[string]any{"name": name, "isDeleted": false}, &projects); err != nil {
		return "", false, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p.ID, true, nil
		}
	}
	return "", false, nil
}

// CreateProject creates a project and returns its id.
func (t *Target) CreateProject(ctx context.Context, name string) (string, error) {
	var p projectModel
	if err := t.api.PostJSON(ctx, "/api/v2/projects", map[string]string{"name": name}, &p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// RootSection returns the section without a parent.
func (t *Target) RootSection(ctx context.Context, projectID string) (uuid.UUID, error) {
	var sections []sectionModel
	if err := t.api.GetJSON(ctx, "/api/v2/projects/"+url.PathEscape(projectID)+"/sections", nil, &sections); err != nil {
		return uuid.Nil, err
	}
	for _, s := range sections {
		if s.ParentID == nil {
			return s.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("project %s has no root section", projectID)
}

// CreateSection creates one section under parentID. Children are created by
// the caller.
func (t *Target) CreateSection(ctx context.Context, projectID string, parentID uuid.UUID, s domain.Section) (uuid.UUID, error) {
	req := createSectionRequest{
		Name:               s.Name,
		ParentID:           parentID,
		ProjectID:          projectID,
		PreconditionSteps:  steps(s.PreconditionSteps),
		PostconditionSteps: steps(s.PostconditionSteps),
		Attachments:        []idModel{},
	}
	var resp idResponse
	if err := t.api.PostJSON(ctx, "/api/v2/sections", req, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// ListAttributes returns the global custom attributes.
func (t *Target) ListAttributes(ctx context.Context) ([]domain.Attribute, error) {
	var models []attributeModel
	body := map[string]any{"isGlobal": true, "isDeleted": false}
	if err := t.api.PostJSON(ctx, "/api/v2/customAttributes/search", body, &models); err != nil {
		return nil, err
	}
	out := make([]domain.Attribute, 0, len(models))
	for _, m := range models {
		out = append(out, fromModel(m))
	}
	return out, nil
}

// CreateAttribute creates a global attribute. Ids of attr and its options
// are assigned by Test IT.
func (t *Target) CreateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, error) {
	var created attributeModel
	if err := t.api.PostJSON(ctx, "/api/v2/customAttributes/global", toModel(attr), &created); err != nil {
		return domain.Attribute{}, err
	}
	return fromModel(created), nil
}

// UpdateAttribute replaces a global attribute and returns the stored
// version.
func (t *Target) UpdateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, error) {
	if err := t.api.PutJSON(ctx, "/api/v2/customAttributes/global", toModel(attr), nil); err != nil {
		return domain.Attribute{}, err
	}
	var stored attributeModel
	if err := t.api.GetJSON(ctx, "/api/v2/customAttributes/"+attr.ID.String(), nil, &stored); err != nil {
		return domain.Attribute{}, err
	}
	return fromModel(stored), nil
}

// AddAttributesToProject enables attributes in a project.
func (t *Target) AddAttributesToProject(ctx context.Context, projectID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return t.api.PostJSON(ctx, "/api/v2/projects/"+url.PathEscape(projectID)+"/attributes", ids, nil)
}

// UploadAttachment stores a file and returns its id.
func (t *Target) UploadAttachment(ctx context.Context, name string, r io.Reader) (uuid.UUID, error) {
	var resp idResponse
	if err := t.api.Upload(ctx, "/api/Attachments", "file", name, r, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// CreateSharedStep creates a shared steps work item.
func (t *Target) CreateSharedStep(ctx context.Context, projectID string, w importer.WorkItem) (uuid.UUID, error) {
	return t.createWorkItem(ctx, "SharedSteps", projectID, w)
}

// CreateTestCase creates a test case work item.
func (t *Target) CreateTestCase(ctx context.Context, projectID string, w importer.WorkItem) (uuid.UUID, error) {
	return t.createWorkItem(ctx, "TestCases", projectID, w)
}

func (t *Target) createWorkItem(ctx context.Context, entity, projectID string, w importer.WorkItem) (uuid.UUID, error) {
	iterations, err := t.iterations(ctx, w.Iterations)
	if err != nil {
		return uuid.Nil, err
	}

	req := workItemRequest{
		EntityTypeName:     entity,
		ProjectID:          projectID,
		SectionID:          w.SectionID,
		Name:               w.Name,
		Description:        w.Description,
		State:              state(w.State),
		Priority:           priority(w.Priority),
		Duration:           w.Duration,
		Steps:              steps(w.Steps),
		PreconditionSteps:  steps(w.PreconditionSteps),
		PostconditionSteps: steps(w.PostconditionSteps),
		Attributes:         make(map[string]any, len(w.Attributes)),
		Tags:               make([]tagModel, 0, len(w.Tags)),
		Links:              make([]linkModel, 0, len(w.Links)),
		Attachments:        make([]idModel, 0, len(w.Attachments)),
		Iterations:         iterations,
	}
	for _, a := range w.Attributes {
		req.Attributes[a.ID.String()] = a.Value
	}
	for _, tag := range w.Tags {
		req.Tags = append(req.Tags, tagModel{Name: tag})
	}
	for _, l := range w.Links {
		typ := l.Type
		if typ == "" {
			typ = "Related"
		}
		req.Links = append(req.Links, linkModel{Title: l.Title, URL: l.URL, Description: l.Description, Type: typ})
	}
	for _, id := range w.Attachments {
		req.Attachments = append(req.Attachments, idModel{ID: id})
	}

	var resp idResponse
	if err := t.api.PostJSON(ctx, "/api/v2/workItems", req, &resp); err != nil {
		return uuid.Nil, err
	}
	t.log.Debugf("Created %s work item %q (%s)", entity, w.Name, resp.ID)
	return resp.ID, nil
}

// iterations creates one parameter per distinct name and value pair.
func (t *Target) iterations(ctx context.Context, its []domain.Iteration) ([]iterationModel, error) {
	out := make([]iterationModel, 0, len(its))
	for _, it := range its {
		m := iterationModel{Parameters: make([]idModel, 0, len(it.Parameters))}
		for _, p := range it.Parameters {
			key := parameterRequest{Name: p.Name, Value: p.Value}
			id, ok := t.parameters[key]
			if !ok {
				var resp idResponse
				if err := t.api.PostJSON(ctx, "/api/v2/parameters", key, &resp); err != nil {
					return nil, fmt.Errorf("create parameter %s: %w", p.Name, err)
				}
				id = resp.ID
				t.parameters[key] = id
			}
			m.Parameters = append(m.Parameters, idModel{ID: id})
		}
		out = append(out, m)
	}
	return out, nil
}

func steps(in []domain.Step) []stepModel {
	out := make([]stepModel, 0, len(in))
	for _, s := range in {
		if s.IsSharedReference() {
			id := *s.SharedStepID
			out = append(out, stepModel{WorkItemID: &id})
			continue
		}
		out = append(out, stepModel{Action: s.Action, Expected: s.Expected, TestData: s.TestData})
	}
	return out
}

func toModel(a domain.Attribute) attributeModel {
	m := attributeModel{
		Name:       a.Name,
		Type:       string(a.Type),
		IsEnabled:  a.IsActive,
		IsRequired: a.IsRequired,
		IsGlobal:   true,
		Options:    make([]optionModel, 0, len(a.Options)),
	}
	if a.ID != uuid.Nil {
		id := a.ID
		m.ID = &id
	}
	for _, o := range a.Options {
		om := optionModel{Value: o.Value, IsDefault: o.IsDefault}
		if o.ID != uuid.Nil {
			id := o.ID
			om.ID = &id
		}
		m.Options = append(m.Options, om)
	}
	return m
}

func fromModel(m attributeModel) domain.Attribute {
	a := domain.Attribute{
		Name:       m.Name,
		Type:       domain.AttributeType(m.Type),
		IsRequired: m.IsRequired,
		IsActive:   m.IsEnabled,
	}
	if m.ID != nil {
		a.ID = *m.ID
	}
	for _, o := range m.Options {
		opt := domain.AttributeOption{Value: o.Value, IsDefault: o.IsDefault}
		if o.ID != nil {
			opt.ID = *o.ID
		}
		a.Options = append(a.Options, opt)
	}
	return a
}

// state maps a vendor status onto the Test IT work item states.
func state(s string) string {
	switch normalize(s) {
	case "ready", "approved", "active":
		return "Ready"
	case "needswork", "needsupdate", "deprecated", "rejected":
		return "NeedsWork"
	default:
		return "NotReady"
	}
}

// priority maps a vendor priority onto the Test IT priorities.
func priority(p string) string {
	switch normalize(p) {
	case "lowest", "trivial":
		return "Lowest"
	case "low", "minor":
		return "Low"
	case "high", "major":
		return "High"
	case "highest", "critical", "blocker":
		return "Highest"
	default:
		return "Medium"
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
}
