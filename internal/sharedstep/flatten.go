package sharedstep

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Node is a step with nested child steps. Seq is the vendor's per-step
// sequence id used to correlate details fetched later. A zero Seq only
// counts when HasSeq is set.
type Node struct {
	Seq      int
	HasSeq   bool
	Step     domain.Step
	Children []Node
}

// StepsInfo indexes flattened steps by sequence id. Values point into the
// slice returned by Flatten.
type StepsInfo map[int]*domain.Step

// Flatten lays nested steps out as siblings, parent before children, in
// document order.
func Flatten(nodes []Node) ([]domain.Step, StepsInfo) {
	var ordered []*Node
	stack := make([]*Node, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, &nodes[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ordered = append(ordered, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, &n.Children[i])
		}
	}

	steps := make([]domain.Step, len(ordered))
	info := make(StepsInfo, len(ordered))
	for i, n := range ordered {
		steps[i] = n.Step
		if n.HasSeq || n.Seq != 0 {
			info[n.Seq] = &steps[i]
		}
	}
	return steps, info
}

// ExpectedFetcher loads the expected result of the step with sequence id seq.
type ExpectedFetcher func(ctx context.Context, seq int) (string, error)

// FillExpected fetches missing expected results concurrently. Each task only
// writes its own step. limit bounds the number of in-flight fetches; zero
// means unbounded.
func FillExpected(ctx context.Context, info StepsInfo, fetch ExpectedFetcher, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for seq, step := range info {
		if step.Expected != "" || step.IsSharedReference() {
			continue
		}
		g.Go(func() error {
			expected, err := fetch(ctx, seq)
			if err != nil {
				return err
			}
			step.Expected = expected
			return nil
		})
	}
	return g.Wait()
}
