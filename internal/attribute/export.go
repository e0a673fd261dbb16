// Package attribute reconciles custom field definitions between a source
// system, the interchange format and a target system.
package attribute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/identity"
)

// SourceField is a vendor custom field or fixed system field definition.
type SourceField struct {
	Key        string // vendor identity of the field
	Name       string
	Type       domain.AttributeType
	IsRequired bool
	System     bool // status, priority, layer and similar fixed fields
	Options    []string
}

// ExportSet is the attribute set synthesized for one export run.
type ExportSet struct {
	ids   *identity.Remapper[string]
	attrs []*domain.Attribute
	names map[string]bool
}

// BuildExport creates one Attribute per field with a fresh id. Duplicate
// names get a " (n)" suffix. Option-typed fields without options become
// string attributes.
func BuildExport(fields []SourceField) (*ExportSet, error) {
	set := &ExportSet{
		ids:   identity.NewRemapper[string]("attribute"),
		names: make(map[string]bool),
	}

	for _, f := range fields {
		if f.Key == "" {
			return nil, domain.NewError("attribute", f.Name, "field has no key", nil)
		}
		if _, seen := set.ids.Lookup(f.Key); seen {
			continue
		}
		typ := f.Type
		if !typ.Valid() {
			return nil, domain.NewError("attribute", f.Name, fmt.Sprintf("unsupported field type %q", typ), nil)
		}

		var options []domain.AttributeOption
		if typ.IsOptionType() {
			seen := make(map[string]bool)
			for _, v := range f.Options {
				if v == "" || seen[v] {
					continue
				}
				seen[v] = true
				options = append(options, domain.AttributeOption{ID: uuid.New(), Value: v})
			}
			if len(options) == 0 {
				typ = domain.AttributeString
			}
		}

		name := UniqueName(strings.TrimSpace(f.Name), func(n string) bool { return set.names[n] })
		set.names[name] = true

		set.attrs = append(set.attrs, &domain.Attribute{
			ID:         set.ids.NewID(f.Key),
			Name:       name,
			Type:       typ,
			IsRequired: f.IsRequired,
			IsActive:   true,
			Options:    options,
		})
	}

	return set, nil
}

// ID returns the attribute id minted for a field key.
func (s *ExportSet) ID(fieldKey string) (uuid.UUID, bool) {
	return s.ids.Lookup(fieldKey)
}

// Len returns the number of attributes.
func (s *ExportSet) Len() int {
	return len(s.attrs)
}

// Attributes returns a copy of the attribute definitions in field order.
func (s *ExportSet) Attributes() []domain.Attribute {
	out := make([]domain.Attribute, 0, len(s.attrs))
	for _, a := range s.attrs {
		cp := *a
		cp.Options = append([]domain.AttributeOption(nil), a.Options...)
		out = append(out, cp)
	}
	return out
}

// Value converts a raw vendor value of a field into a CaseAttribute. It
// returns nil for empty values. Option values unknown to the definition are
// appended to it.
func (s *ExportSet) Value(fieldKey string, raw any) (*domain.CaseAttribute, error) {
	id, err := s.ids.Resolve(fieldKey)
	if err != nil {
		return nil, err
	}
	attr := s.byID(id)

	switch attr.Type {
	case domain.AttributeOptions:
		v := strings.TrimSpace(stringify(raw))
		if v == "" {
			return nil, nil
		}
		return &domain.CaseAttribute{ID: id, Value: s.optionID(attr, v).String()}, nil

	case domain.AttributeMultipleOptions:
		values := stringList(raw)
		if len(values) == 0 {
			return nil, nil
		}
		ids := make([]string, 0, len(values))
		for _, v := range values {
			ids = append(ids, s.optionID(attr, v).String())
		}
		return &domain.CaseAttribute{ID: id, Value: ids}, nil

	case domain.AttributeCheckbox:
		switch b := raw.(type) {
		case bool:
			return &domain.CaseAttribute{ID: id, Value: b}, nil
		case nil:
			return nil, nil
		default:
			parsed, err := strconv.ParseBool(strings.TrimSpace(stringify(raw)))
			if err != nil {
				return nil, domain.NewError("attribute", attr.Name, fmt.Sprintf("invalid checkbox value %v", raw), err)
			}
			return &domain.CaseAttribute{ID: id, Value: parsed}, nil
		}

	default:
		v := stringify(raw)
		if v == "" {
			return nil, nil
		}
		return &domain.CaseAttribute{ID: id, Value: v}, nil
	}
}

func (s *ExportSet) byID(id uuid.UUID) *domain.Attribute {
	for _, a := range s.attrs {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *ExportSet) optionID(attr *domain.Attribute, value string) uuid.UUID {
	if o, ok := attr.OptionByValue(value); ok {
		return o.ID
	}
	o := domain.AttributeOption{ID: uuid.New(), Value: value}
	attr.Options = append(attr.Options, o)
	return o.ID
}

// UniqueName returns name, or "name (n)" with the smallest positive n for
// which taken reports false.
func UniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func stringList(raw any) []string {
	var out []string
	switch v := raw.(type) {
	case nil:
	case []string:
		out = v
	case []any:
		for _, item := range v {
			out = append(out, stringify(item))
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			out = append(out, part)
		}
	default:
		out = []string{stringify(v)}
	}

	cleaned := out[:0:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}
