package sharedstep_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/sharedstep"
)

var _ = Describe("Flatten", func() {
	It("should lay out nested steps depth-first in document order", func() {
		nodes := []sharedstep.Node{
			{Seq: 1, Step: domain.Step{Action: "1"}, Children: []sharedstep.Node{
				{Seq: 2, Step: domain.Step{Action: "1.1"}, Children: []sharedstep.Node{
					{Seq: 3, Step: domain.Step{Action: "1.1.1"}},
				}},
				{Seq: 4, Step: domain.Step{Action: "1.2"}},
			}},
			{Seq: 5, Step: domain.Step{Action: "2"}},
		}

		steps, info := sharedstep.Flatten(nodes)
		var actions []string
		for _, s := range steps {
			actions = append(actions, s.Action)
		}
		Expect(actions).To(Equal([]string{"1", "1.1", "1.1.1", "1.2", "2"}))
		Expect(info).To(HaveLen(5))
		Expect(info[4].Action).To(Equal("1.2"))

		info[4].Expected = "ok"
		Expect(steps[3].Expected).To(Equal("ok"))
	})

	It("should index sequence zero when marked", func() {
		steps, info := sharedstep.Flatten([]sharedstep.Node{
			{Seq: 0, HasSeq: true, Step: domain.Step{Action: "first"}},
			{Seq: 1, HasSeq: true, Step: domain.Step{Action: "second"}},
			{Step: domain.Step{Action: "unnumbered"}},
		})
		Expect(steps).To(HaveLen(3))
		Expect(info).To(HaveLen(2))
		Expect(info[0].Action).To(Equal("first"))

		err := sharedstep.FillExpected(context.Background(), info, func(ctx context.Context, seq int) (string, error) {
			return fmt.Sprintf("expected %d", seq), nil
		}, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(steps[0].Expected).To(Equal("expected 0"))
		Expect(steps[2].Expected).To(BeEmpty())
	})
})

var _ = Describe("FillExpected", func() {
	It("should fill only steps without expected results", func() {
		steps, info := sharedstep.Flatten([]sharedstep.Node{
			{Seq: 1, Step: domain.Step{Action: "a"}},
			{Seq: 2, Step: domain.Step{Action: "b", Expected: "kept"}},
			{Seq: 3, Step: domain.Step{Action: "c"}},
		})

		var fetched int32
		err := sharedstep.FillExpected(context.Background(), info, func(ctx context.Context, seq int) (string, error) {
			atomic.AddInt32(&fetched, 1)
			return fmt.Sprintf("expected %d", seq), nil
		}, 2)

		Expect(err).ToNot(HaveOccurred())
		Expect(fetched).To(Equal(int32(2)))
		Expect(steps[0].Expected).To(Equal("expected 1"))
		Expect(steps[1].Expected).To(Equal("kept"))
		Expect(steps[2].Expected).To(Equal("expected 3"))
	})

	It("should return the first fetch error", func() {
		_, info := sharedstep.Flatten([]sharedstep.Node{{Seq: 1, Step: domain.Step{Action: "a"}}})
		err := sharedstep.FillExpected(context.Background(), info, func(ctx context.Context, seq int) (string, error) {
			return "", errors.New("timeout")
		}, 0)
		Expect(err).To(MatchError("timeout"))
	})
})
