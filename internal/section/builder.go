// Package section turns flat parent-pointer folder lists into section trees.
package section

import (
	"github.com/google/uuid"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/identity"
)

// DefaultUnattachedName names the placeholder for sections whose parent is unknown.
const DefaultUnattachedName = "Unattached"

// FlatSection is one source folder. A zero ParentID marks a top-level folder.
// Step text is HTML.
type FlatSection[K comparable] struct {
	ID                 K
	Name               string
	ParentID           K
	PreconditionSteps  []domain.Step
	PostconditionSteps []domain.Step
}

// Options controls the shape of the built tree.
type Options[K comparable] struct {
	// RootName, when set, wraps every top-level section in one synthetic root.
	RootName string
	// RootKey registers the synthetic root in the id map. Sections whose
	// ParentID equals RootKey are top-level, which covers vendors that use a
	// "main suite" sentinel as parent.
	RootKey K
	// UnattachedName overrides DefaultUnattachedName.
	UnattachedName string
}

// Result is a built section tree.
type Result[K comparable] struct {
	Sections     []domain.Section
	IDs          *identity.Remapper[K]
	RootID       uuid.UUID
	UnattachedID uuid.UUID
	// LooseID is the top-level section Fallback adds when there is no root.
	LooseID uuid.UUID
}

// SectionID returns the section id minted for a source folder key.
func (r *Result[K]) SectionID(key K) (uuid.UUID, bool) {
	return r.IDs.Lookup(key)
}

// Fallback returns the section used for items without a known folder: the
// synthetic root when there is one, otherwise a top-level section called
// name, added on first use. Not safe for concurrent use.
func (r *Result[K]) Fallback(name string) uuid.UUID {
	if r.RootID != uuid.Nil {
		return r.RootID
	}
	if r.LooseID == uuid.Nil {
		r.LooseID = uuid.New()
		loose := newNode(r.LooseID, name, nil, nil).section
		loose.Sections = []domain.Section{}
		r.Sections = append(r.Sections, loose)
	}
	return r.LooseID
}

type node struct {
	section domain.Section
	kids    []*node
}

type frame[K comparable] struct {
	key K
	n   *node
}

// Build converts items into a tree. Ids are assigned top-down. Children are
// grouped by parent before traversal so parents may appear after their
// children in the input. Items whose parent never appears, and items caught
// in parent cycles, are placed under an "Unattached" section.
func Build[K comparable](items []FlatSection[K], opts Options[K]) *Result[K] {
	var zero K
	hasRoot := opts.RootName != ""
	unattachedName := opts.UnattachedName
	if unattachedName == "" {
		unattachedName = DefaultUnattachedName
	}

	res := &Result[K]{IDs: identity.NewRemapper[K]("section")}

	isTop := func(parent K) bool {
		return parent == zero || (hasRoot && parent == opts.RootKey)
	}

	// first occurrence wins for duplicated ids
	index := make(map[K]int, len(items))
	for i, it := range items {
		if hasRoot && it.ID == opts.RootKey {
			continue
		}
		if _, dup := index[it.ID]; !dup {
			index[it.ID] = i
		}
	}

	children := make(map[K][]int)
	var tops, orphans []int
	for i, it := range items {
		if j, ok := index[it.ID]; !ok || j != i {
			continue
		}
		switch _, parentKnown := index[it.ParentID]; {
		case isTop(it.ParentID):
			tops = append(tops, i)
		case parentKnown:
			children[it.ParentID] = append(children[it.ParentID], i)
		default:
			orphans = append(orphans, i)
		}
	}

	var topNodes []*node
	var root *node
	if hasRoot {
		res.RootID = res.IDs.NewID(opts.RootKey)
		root = newNode(res.RootID, opts.RootName, nil, nil)
		topNodes = append(topNodes, root)
	}
	attachTop := func(n *node) {
		if root != nil {
			root.kids = append(root.kids, n)
			return
		}
		topNodes = append(topNodes, n)
	}

	visited := make(map[K]bool, len(index))
	walk := func(start int, attach func(*node)) {
		it := items[start]
		if visited[it.ID] {
			return
		}
		visited[it.ID] = true
		n := newNode(res.IDs.NewID(it.ID), it.Name, it.PreconditionSteps, it.PostconditionSteps)
		attach(n)

		stack := []frame[K]{{key: it.ID, n: n}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, ci := range children[f.key] {
				c := items[ci]
				if visited[c.ID] {
					continue
				}
				visited[c.ID] = true
				cn := newNode(res.IDs.NewID(c.ID), c.Name, c.PreconditionSteps, c.PostconditionSteps)
				f.n.kids = append(f.n.kids, cn)
				stack = append(stack, frame[K]{key: c.ID, n: cn})
			}
		}
	}

	for _, i := range tops {
		walk(i, attachTop)
	}

	var unattached *node
	attachUnattached := func(n *node) {
		if unattached == nil {
			res.UnattachedID = uuid.New()
			unattached = newNode(res.UnattachedID, unattachedName, nil, nil)
			attachTop(unattached)
		}
		unattached.kids = append(unattached.kids, n)
	}
	for _, i := range orphans {
		walk(i, attachUnattached)
	}
	// anything still unvisited sits on a parent cycle
	for i, it := range items {
		if j, ok := index[it.ID]; ok && j == i && !visited[it.ID] {
			walk(i, attachUnattached)
		}
	}

	res.Sections = materialize(topNodes)
	return res
}

func newNode(id uuid.UUID, name string, pre, post []domain.Step) *node {
	if pre == nil {
		pre = []domain.Step{}
	}
	if post == nil {
		post = []domain.Step{}
	}
	return &node{section: domain.Section{
		ID:                 id,
		Name:               name,
		PreconditionSteps:  pre,
		PostconditionSteps: post,
	}}
}

// materialize copies the node tree into value sections without recursion.
func materialize(tops []*node) []domain.Section {
	var preorder []*node
	stack := append([]*node(nil), tops...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		preorder = append(preorder, n)
		stack = append(stack, n.kids...)
	}

	done := make(map[*node]domain.Section, len(preorder))
	for i := len(preorder) - 1; i >= 0; i-- {
		n := preorder[i]
		s := n.section
		s.Sections = make([]domain.Section, 0, len(n.kids))
		for _, k := range n.kids {
			s.Sections = append(s.Sections, done[k])
		}
		done[n] = s
	}

	out := make([]domain.Section, 0, len(tops))
	for _, n := range tops {
		out = append(out, done[n])
	}
	return out
}

// Walk visits every section depth-first in document order.
func Walk(sections []domain.Section, visit func(s domain.Section, parent uuid.UUID)) {
	type item struct {
		s      domain.Section
		parent uuid.UUID
	}
	stack := make([]item, 0, len(sections))
	for i := len(sections) - 1; i >= 0; i-- {
		stack = append(stack, item{s: sections[i]})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(it.s, it.parent)
		for i := len(it.s.Sections) - 1; i >= 0; i-- {
			stack = append(stack, item{s: it.s.Sections[i], parent: it.s.ID})
		}
	}
}
