// Package identity mints stable interchange ids for vendor entities.
package identity

import (
	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Remapper maps vendor identifiers of one entity kind to freshly generated
// UUIDs. The same old key always yields the same id within a run. There is no
// removal. A Remapper is not safe for concurrent use.
type Remapper[K comparable] struct {
	kind    string
	ids     map[K]uuid.UUID
	reverse map[uuid.UUID]K
	order   []K
	gen     func() uuid.UUID
}

// NewRemapper creates an empty Remapper. kind names the entity in errors.
func NewRemapper[K comparable](kind string) *Remapper[K] {
	return &Remapper[K]{
		kind:    kind,
		ids:     make(map[K]uuid.UUID),
		reverse: make(map[uuid.UUID]K),
		gen:     uuid.New,
	}
}

// NewID returns the id for old, minting one on first use.
func (r *Remapper[K]) NewID(old K) uuid.UUID {
	if id, ok := r.ids[old]; ok {
		return id
	}
	id := r.gen()
	r.ids[old] = id
	r.reverse[id] = old
	r.order = append(r.order, old)
	return id
}

// Bind records an externally produced id for old. It returns false and
// leaves the mapping untouched when old is already mapped.
func (r *Remapper[K]) Bind(old K, id uuid.UUID) bool {
	if _, ok := r.ids[old]; ok {
		return false
	}
	r.ids[old] = id
	r.reverse[id] = old
	r.order = append(r.order, old)
	return true
}

// Lookup returns the id for old without minting.
func (r *Remapper[K]) Lookup(old K) (uuid.UUID, bool) {
	id, ok := r.ids[old]
	return id, ok
}

// Resolve is Lookup that reports an unmapped key as a missing reference.
func (r *Remapper[K]) Resolve(old K) (uuid.UUID, error) {
	if id, ok := r.ids[old]; ok {
		return id, nil
	}
	return uuid.Nil, domain.MissingReference("identity", r.kind, old)
}

// OldKey returns the vendor key an id was minted for.
func (r *Remapper[K]) OldKey(id uuid.UUID) (K, bool) {
	k, ok := r.reverse[id]
	return k, ok
}

// Len returns the number of mapped keys.
func (r *Remapper[K]) Len() int {
	return len(r.ids)
}

// Keys returns the mapped keys in insertion order.
func (r *Remapper[K]) Keys() []K {
	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}

// Entries returns a copy of the mapping.
func (r *Remapper[K]) Entries() map[K]uuid.UUID {
	out := make(map[K]uuid.UUID, len(r.ids))
	for k, v := range r.ids {
		out[k] = v
	}
	return out
}
