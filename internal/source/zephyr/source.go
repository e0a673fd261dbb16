// Package zephyr reads test cases from Zephyr Scale Server (Jira data
// center) for the exporter.
package zephyr

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/attribute"
	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/exporter"
	"github.com/testit-tms/migrators-sub001/internal/httpclient"
	"github.com/testit-tms/migrators-sub001/internal/section"
)

const (
	atmPath   = "/rest/atm/1.0"
	testsPath = "/rest/tests/1.0"
	pageSize  = 200

	// Field keys of the fixed fields exported as attributes.
	fieldKey       = "system:key"
	fieldComponent = "system:component"
	fieldOwner     = "system:owner"
	customPrefix   = "custom:"
)

// API is the part of the HTTP client the source needs.
type API interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Source implements exporter.Source for one Zephyr Scale project.
type Source struct {
	api        API
	baseURL    string
	projectKey string
	log        *logrus.Logger

	mu      sync.Mutex
	project *jiraProject
	cases   []testCase
	byKey   map[string]testCase
}

var _ exporter.Source = (*Source)(nil)

// New creates a Source. baseURL is the Jira base URL used for issue links.
func New(api API, baseURL, projectKey string, log *logrus.Logger) *Source {
	return &Source{
		api:        api,
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectKey: projectKey,
		log:        log,
		byKey:      make(map[string]testCase),
	}
}

// NewFromConfig creates a Source talking to the configured server with a
// personal access token.
func NewFromConfig(cfg *config.Config, log *logrus.Logger) *Source {
	header := http.Header{"Authorization": {"Bearer " + cfg.Zephyr.Token}}
	client := httpclient.New(httpclient.OptionsFromConfig(cfg.HTTP, cfg.Zephyr.URL, header), log)
	return New(client, cfg.Zephyr.URL, cfg.Zephyr.ProjectKey, log)
}

// GetProject returns the Jira project being exported.
func (s *Source) GetProject(ctx context.Context) (exporter.Project, error) {
	p, err := s.jiraProject(ctx)
	if err != nil {
		return exporter.Project{}, err
	}
	return exporter.Project{Key: p.Key, Name: p.Name}, nil
}

func (s *Source) jiraProject(ctx context.Context) (*jiraProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project != nil {
		return s.project, nil
	}
	var p jiraProject
	if err := s.api.GetJSON(ctx, "/rest/api/2/project/"+url.PathEscape(s.projectKey), nil, &p); err != nil {
		return nil, fmt.Errorf("get project %s: %w", s.projectKey, err)
	}
	s.project = &p
	return &p, nil
}

// FetchAttributes returns the project's test case custom fields plus the
// fixed key, component and owner fields.
func (s *Source) FetchAttributes(ctx context.Context) ([]attribute.SourceField, error) {
	p, err := s.jiraProject(ctx)
	if err != nil {
		return nil, err
	}
	var fields []customField
	if err := s.api.GetJSON(ctx, testsPath+"/project/"+p.ID+"/customfields/testcase", nil, &fields); err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}

	out := []attribute.SourceField{
		{Key: fieldKey, Name: "Zephyr Key", Type: domain.AttributeString, System: true},
		{Key: fieldComponent, Name: "Component", Type: domain.AttributeString, System: true},
		{Key: fieldOwner, Name: "Owner", Type: domain.AttributeString, System: true},
	}
	for _, f := range fields {
		if f.Archived {
			continue
		}
		sf := attribute.SourceField{
			Key:        customPrefix + f.Name,
			Name:       f.Name,
			Type:       fieldType(f.Type),
			IsRequired: f.Required,
		}
		for _, o := range f.Options {
			if !o.Archived {
				sf.Options = append(sf.Options, o.Name)
			}
		}
		out = append(out, sf)
	}
	s.log.Debugf("Found %d custom field(s) in %s", len(fields), p.Key)
	return out, nil
}

func fieldType(t string) domain.AttributeType {
	switch t {
	case "SINGLE_CHOICE_SELECT_LIST":
		return domain.AttributeOptions
	case "MULTI_CHOICE_SELECT_LIST":
		return domain.AttributeMultipleOptions
	case "CHECKBOX":
		return domain.AttributeCheckbox
	case "DATE":
		return domain.AttributeDatetime
	default:
		return domain.AttributeString
	}
}

// FetchSections derives the folder tree from the folder paths of the
// project's test cases. Sections are keyed by full path.
func (s *Source) FetchSections(ctx context.Context) ([]section.FlatSection[string], error) {
	cases, err := s.testCases(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, tc := range cases {
		for p := cleanFolder(tc.Folder); p != ""; p = parentFolder(p) {
			if seen[p] {
				break
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	out := make([]section.FlatSection[string], 0, len(paths))
	for _, p := range paths {
		out = append(out, section.FlatSection[string]{
			ID:       p,
			Name:     path.Base(p),
			ParentID: parentFolder(p),
		})
	}
	return out, nil
}

func cleanFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" || folder == "/" {
		return ""
	}
	return path.Clean("/" + folder)
}

func parentFolder(p string) string {
	parent := path.Dir(p)
	if parent == "/" || parent == "." {
		return ""
	}
	return parent
}

// FetchSharedSteps returns nothing: Zephyr has no standalone shared steps,
// called test cases are exported on demand.
func (s *Source) FetchSharedSteps(context.Context) ([]exporter.Item, error) {
	return nil, nil
}

// FetchSharedStep loads a test case called from another test case.
func (s *Source) FetchSharedStep(ctx context.Context, key string) (exporter.Item, error) {
	tc, err := s.testCase(ctx, key)
	if err != nil {
		return exporter.Item{}, err
	}
	return s.item(ctx, tc)
}

// FetchTestCases lists every test case of the project.
func (s *Source) FetchTestCases(ctx context.Context) ([]exporter.Item, error) {
	cases, err := s.testCases(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]exporter.Item, 0, len(cases))
	for _, tc := range cases {
		it, err := s.item(ctx, tc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Source) testCases(ctx context.Context) ([]testCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cases != nil {
		return s.cases, nil
	}

	cases := []testCase{}
	for start := 0; ; start += pageSize {
		q := url.Values{
			"query":      {fmt.Sprintf("projectKey = %q", s.projectKey)},
			"startAt":    {strconv.Itoa(start)},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		var page []testCase
		if err := s.api.GetJSON(ctx, atmPath+"/testcase/search", q, &page); err != nil {
			return nil, fmt.Errorf("search test cases: %w", err)
		}
		cases = append(cases, page...)
		if len(page) < pageSize {
			break
		}
	}
	for _, tc := range cases {
		s.byKey[tc.Key] = tc
	}
	s.cases = cases
	s.log.Infof("Found %d test case(s) in %s", len(cases), s.projectKey)
	return cases, nil
}

func (s *Source) testCase(ctx context.Context, key string) (testCase, error) {
	s.mu.Lock()
	tc, ok := s.byKey[key]
	s.mu.Unlock()
	if ok {
		return tc, nil
	}

	if err := s.api.GetJSON(ctx, atmPath+"/testcase/"+url.PathEscape(key), nil, &tc); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return testCase{}, domain.MissingReference("fetch", "test case", key)
		}
		return testCase{}, fmt.Errorf("get test case %s: %w", key, err)
	}
	s.mu.Lock()
	s.byKey[key] = tc
	s.mu.Unlock()
	return tc, nil
}

func (s *Source) item(ctx context.Context, tc testCase) (exporter.Item, error) {
	var files []attachment
	if err := s.api.GetJSON(ctx, atmPath+"/testcase/"+url.PathEscape(tc.Key)+"/attachments", nil, &files); err != nil {
		return exporter.Item{}, fmt.Errorf("list attachments of %s: %w", tc.Key, err)
	}
	refs := make([]domain.AttachmentRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, domain.AttachmentRef{
			Name: f.Filename,
			URL:  testsPath + "/attachment/" + strconv.Itoa(f.ID),
		})
	}

	fields := map[string]any{fieldKey: tc.Key}
	if tc.Component != "" {
		fields[fieldComponent] = tc.Component
	}
	if tc.Owner != "" {
		fields[fieldOwner] = tc.Owner
	}
	for name, v := range tc.CustomFields {
		fields[customPrefix+name] = v
	}

	links := make([]domain.Link, 0, len(tc.IssueLinks))
	for _, k := range tc.IssueLinks {
		links = append(links, domain.Link{
			Title: k,
			URL:   s.baseURL + "/browse/" + k,
			Type:  "Related",
		})
	}

	return exporter.Item{
		Key:         tc.Key,
		SectionKey:  cleanFolder(tc.Folder),
		Name:        tc.Name,
		Description: tc.Objective,
		Format:      "html",
		State:       tc.Status,
		Priority:    tc.Priority,
		Fields:      fields,
		Tags:        tc.Labels,
		Links:       links,
		Iterations:  iterations(tc.Parameters),
		Attachments: refs,
		Duration:    tc.EstimatedTime,
	}, nil
}

func iterations(p *parameters) []domain.Iteration {
	if p == nil {
		return nil
	}
	out := make([]domain.Iteration, 0, len(p.Entries))
	for _, entry := range p.Entries {
		names := make([]string, 0, len(entry))
		if len(p.Variables) > 0 {
			for _, v := range p.Variables {
				names = append(names, v.Name)
			}
		} else {
			for k := range entry {
				names = append(names, k)
			}
			sort.Strings(names)
		}

		it := domain.Iteration{Parameters: []domain.Parameter{}}
		for _, n := range names {
			v, ok := entry[n]
			if !ok || v == nil {
				continue
			}
			it.Parameters = append(it.Parameters, domain.Parameter{Name: n, Value: fmt.Sprint(v)})
		}
		out = append(out, it)
	}
	return out
}

// FetchSteps returns the test script of an item. Plain text and BDD
// scripts become a single step. The precondition becomes a single
// precondition step.
func (s *Source) FetchSteps(ctx context.Context, item exporter.Item) (exporter.Steps, error) {
	tc, err := s.testCase(ctx, item.Key)
	if err != nil {
		return exporter.Steps{}, err
	}

	var out exporter.Steps
	if strings.TrimSpace(tc.Precondition) != "" {
		out.Preconditions = []exporter.SourceStep{{Seq: 0, Action: tc.Precondition}}
	}
	if tc.TestScript == nil {
		return out, nil
	}

	switch tc.TestScript.Type {
	case "STEP_BY_STEP":
		steps := append([]step(nil), tc.TestScript.Steps...)
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
		for _, st := range steps {
			out.Steps = append(out.Steps, exporter.SourceStep{
				Seq:           st.Index,
				HasSeq:        true,
				Action:        st.Description,
				Expected:      st.ExpectedResult,
				TestData:      st.TestData,
				SharedStepKey: st.TestCaseKey,
			})
		}
	case "BDD":
		if tc.TestScript.Text != "" {
			out.Steps = []exporter.SourceStep{{Action: "<pre>" + html.EscapeString(tc.TestScript.Text) + "</pre>"}}
		}
	default:
		if tc.TestScript.Text != "" {
			out.Steps = []exporter.SourceStep{{Action: tc.TestScript.Text}}
		}
	}
	return out, nil
}

// FetchAttachment downloads an attachment. Inline image URLs relative to
// the Jira page are resolved against the base URL.
func (s *Source) FetchAttachment(ctx context.Context, ref domain.AttachmentRef) (io.ReadCloser, error) {
	u := ref.URL
	for {
		if rest, ok := strings.CutPrefix(u, "../"); ok {
			u = rest
		} else if rest, ok := strings.CutPrefix(u, "./"); ok {
			u = rest
		} else {
			break
		}
	}
	if !strings.Contains(u, "/") {
		return nil, domain.MissingReference("fetch", "attachment", ref.URL)
	}
	return s.api.Download(ctx, u)
}
