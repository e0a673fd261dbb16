// Package sharedstep resolves references between test case steps and
// reusable shared steps in both migration directions.
package sharedstep

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/identity"
)

// ConvertFunc converts the vendor shared step identified by key into a
// SharedStep that will carry id.
type ConvertFunc[K comparable] func(ctx context.Context, key K, id uuid.UUID) (domain.SharedStep, error)

// Resolver converts shared steps on first reference and caches them by
// vendor identity (an int id, a guid or a content hash).
type Resolver[K comparable] struct {
	ids     *identity.Remapper[K]
	convert ConvertFunc[K]
	failed  map[K]error
	steps   []domain.SharedStep
}

// NewResolver creates a Resolver using convert for cache misses.
func NewResolver[K comparable](convert ConvertFunc[K]) *Resolver[K] {
	return &Resolver[K]{
		ids:     identity.NewRemapper[K]("shared step"),
		convert: convert,
		failed:  make(map[K]error),
	}
}

// Resolve returns the interchange id of the shared step, converting it when
// seen for the first time. The id is reserved before conversion so that a
// shared step referencing itself, directly or not, resolves to its own id.
func (r *Resolver[K]) Resolve(ctx context.Context, key K) (uuid.UUID, error) {
	if err, ok := r.failed[key]; ok {
		return uuid.Nil, err
	}
	if id, ok := r.ids.Lookup(key); ok {
		return id, nil
	}

	id := r.ids.NewID(key)
	ss, err := r.convert(ctx, key, id)
	if err != nil {
		err = domain.NewError("sharedstep", fmt.Sprint(key), "failed to convert shared step", err)
		r.failed[key] = err
		return uuid.Nil, err
	}
	ss.ID = id
	r.steps = append(r.steps, ss)
	return id, nil
}

// Reference returns an empty-content step pointing at the shared step.
func (r *Resolver[K]) Reference(ctx context.Context, key K) (domain.Step, error) {
	id, err := r.Resolve(ctx, key)
	if err != nil {
		return domain.Step{}, err
	}
	return domain.Step{
		ActionAttachments:   []string{},
		ExpectedAttachments: []string{},
		TestDataAttachments: []string{},
		SharedStepID:        &id,
	}, nil
}

// Lookup returns the id of an already resolved key.
func (r *Resolver[K]) Lookup(key K) (uuid.UUID, bool) {
	return r.ids.Lookup(key)
}

// SharedSteps returns the converted shared steps in conversion order.
func (r *Resolver[K]) SharedSteps() []domain.SharedStep {
	return append([]domain.SharedStep(nil), r.steps...)
}

// Len returns the number of converted shared steps.
func (r *Resolver[K]) Len() int {
	return len(r.steps)
}

// Map rewrites interchange shared step ids to ids created in the target.
// Shared steps must be registered before test cases that use them are
// rewritten.
type Map struct {
	ids map[uuid.UUID]uuid.UUID
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{ids: make(map[uuid.UUID]uuid.UUID)}
}

// Register records the target id created for an interchange shared step.
func (m *Map) Register(old, created uuid.UUID) {
	m.ids[old] = created
}

// Lookup returns the target id for an interchange id.
func (m *Map) Lookup(old uuid.UUID) (uuid.UUID, bool) {
	id, ok := m.ids[old]
	return id, ok
}

// Len returns the number of registered shared steps.
func (m *Map) Len() int {
	return len(m.ids)
}

// Rewrite returns a copy of steps with every shared step reference replaced
// by its target id. An unregistered reference is an error, never dropped.
func (m *Map) Rewrite(steps []domain.Step) ([]domain.Step, error) {
	out := make([]domain.Step, len(steps))
	for i, s := range steps {
		if s.SharedStepID != nil {
			created, ok := m.ids[*s.SharedStepID]
			if !ok {
				return nil, domain.MissingReference("sharedstep", "shared step", *s.SharedStepID)
			}
			s.SharedStepID = &created
		}
		out[i] = s
	}
	return out, nil
}
