package attribute

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Client is the target-system side of attribute reconciliation.
type Client interface {
	ListAttributes(ctx context.Context) ([]domain.Attribute, error)
	CreateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, error)
	UpdateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, error)
	AddAttributesToProject(ctx context.Context, projectID string, ids []uuid.UUID) error
}

// Reconciler merges interchange attributes into a target attribute set.
type Reconciler struct {
	client Client
	log    *logrus.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(client Client, log *logrus.Logger) *Reconciler {
	return &Reconciler{client: client, log: log}
}

// Reconcile maps every source attribute onto a target attribute, creating or
// extending target attributes as needed. Any remote failure aborts and no map
// is returned.
func (r *Reconciler) Reconcile(ctx context.Context, projectID string, source []domain.Attribute) (*Map, error) {
	existing, err := r.client.ListAttributes(ctx)
	if err != nil {
		return nil, domain.NewError("attribute", "", "failed to list target attributes", err)
	}

	byName := make(map[string]domain.Attribute, len(existing))
	for _, a := range existing {
		byName[a.Name] = a
	}

	m := newMap()
	var created []uuid.UUID

	for _, src := range source {
		name := src.Name
		for n := 1; ; n++ {
			target, found := byName[name]
			if !found {
				attr := src
				attr.ID = uuid.Nil
				attr.Name = name
				attr.Options = clearOptionIDs(src.Options)
				res, err := r.client.CreateAttribute(ctx, attr)
				if err != nil {
					return nil, domain.NewError("attribute", name, "failed to create attribute", err)
				}
				r.log.Infof("Created attribute %q", res.Name)
				byName[res.Name] = res
				created = append(created, res.ID)
				m.add(src, res)
				break
			}

			if target.Type == src.Type {
				if src.Type.IsOptionType() {
					merged, grown := UnionOptions(target.Options, src.Options)
					if grown {
						target.Options = merged
						res, err := r.client.UpdateAttribute(ctx, target)
						if err != nil {
							return nil, domain.NewError("attribute", name, "failed to update attribute options", err)
						}
						r.log.Infof("Extended options of attribute %q", res.Name)
						target = res
						byName[res.Name] = res
					}
				}
				r.log.Debugf("Mapped attribute %q to existing %s", src.Name, target.ID)
				m.add(src, target)
				break
			}

			name = fmt.Sprintf("%s (%d)", src.Name, n)
		}
	}

	if len(created) > 0 {
		if err := r.client.AddAttributesToProject(ctx, projectID, created); err != nil {
			return nil, domain.NewError("attribute", projectID, "failed to add attributes to project", err)
		}
		r.log.Infof("Added %d attribute(s) to project", len(created))
	}

	return m, nil
}

// UnionOptions appends every option of add whose value is absent from base.
// Existing options keep their position and ids.
func UnionOptions(base, add []domain.AttributeOption) ([]domain.AttributeOption, bool) {
	out := append([]domain.AttributeOption(nil), base...)
	seen := make(map[string]bool, len(base))
	for _, o := range base {
		seen[o.Value] = true
	}
	grown := false
	for _, o := range add {
		if seen[o.Value] {
			continue
		}
		seen[o.Value] = true
		out = append(out, domain.AttributeOption{Value: o.Value, IsDefault: false})
		grown = true
	}
	return out, grown
}

func clearOptionIDs(opts []domain.AttributeOption) []domain.AttributeOption {
	out := make([]domain.AttributeOption, len(opts))
	for i, o := range opts {
		out[i] = domain.AttributeOption{Value: o.Value, IsDefault: o.IsDefault}
	}
	return out
}

type mapping struct {
	source domain.Attribute
	target domain.Attribute
}

// Map resolves interchange attribute ids to target attributes.
type Map struct {
	byOld map[uuid.UUID]mapping
}

func newMap() *Map {
	return &Map{byOld: make(map[uuid.UUID]mapping)}
}

func (m *Map) add(src, target domain.Attribute) {
	m.byOld[src.ID] = mapping{source: src, target: target}
}

// Len returns the number of mapped attributes.
func (m *Map) Len() int {
	return len(m.byOld)
}

// Target returns the target attribute for an interchange attribute id.
func (m *Map) Target(old uuid.UUID) (domain.Attribute, bool) {
	mp, ok := m.byOld[old]
	return mp.target, ok
}

// CaseValue converts a case attribute into the target's id space. Option
// values become target option ids; a plain value that parses as a UUID is
// sent as "uuid <guid>".
func (m *Map) CaseValue(ca domain.CaseAttribute) (domain.CaseAttribute, error) {
	mp, ok := m.byOld[ca.ID]
	if !ok {
		return domain.CaseAttribute{}, domain.MissingReference("attribute", "attribute", ca.ID)
	}

	out := domain.CaseAttribute{ID: mp.target.ID}
	switch mp.target.Type {
	case domain.AttributeOptions:
		id, err := m.targetOption(mp, stringify(ca.Value))
		if err != nil {
			return domain.CaseAttribute{}, err
		}
		out.Value = id
	case domain.AttributeMultipleOptions:
		values := stringList(ca.Value)
		ids := make([]string, 0, len(values))
		for _, v := range values {
			id, err := m.targetOption(mp, v)
			if err != nil {
				return domain.CaseAttribute{}, err
			}
			ids = append(ids, id)
		}
		out.Value = ids
	case domain.AttributeCheckbox:
		switch b := ca.Value.(type) {
		case bool:
			out.Value = b
		default:
			parsed, err := strconv.ParseBool(strings.TrimSpace(stringify(b)))
			if err != nil {
				return domain.CaseAttribute{}, domain.NewError("attribute", mp.target.Name, fmt.Sprintf("invalid checkbox value %v", ca.Value), err)
			}
			out.Value = parsed
		}
	default:
		s := stringify(ca.Value)
		if _, err := uuid.Parse(s); err == nil {
			s = "uuid " + s
		}
		out.Value = s
	}
	return out, nil
}

func (m *Map) targetOption(mp mapping, raw string) (string, error) {
	value := raw
	if id, err := uuid.Parse(raw); err == nil {
		if o, ok := mp.source.OptionByID(id); ok {
			value = o.Value
		}
	}
	if o, ok := mp.target.OptionByValue(value); ok {
		return o.ID.String(), nil
	}
	return "", domain.MissingReference("attribute", "option of "+mp.target.Name, raw)
}
