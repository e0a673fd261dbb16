package sharedstep_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/sharedstep"
)

var _ = Describe("Resolver", func() {
	var (
		ctx   context.Context
		calls map[string]int
	)

	BeforeEach(func() {
		ctx = context.Background()
		calls = map[string]int{}
	})

	It("should convert each shared step once", func() {
		r := sharedstep.NewResolver(func(ctx context.Context, key string, id uuid.UUID) (domain.SharedStep, error) {
			calls[key]++
			return domain.SharedStep{Name: key}, nil
		})

		first, err := r.Reference(ctx, "S-1")
		Expect(err).ToNot(HaveOccurred())
		second, err := r.Reference(ctx, "S-1")
		Expect(err).ToNot(HaveOccurred())

		Expect(*first.SharedStepID).To(Equal(*second.SharedStepID))
		Expect(first.Action).To(BeEmpty())
		Expect(calls["S-1"]).To(Equal(1))
		Expect(r.SharedSteps()).To(HaveLen(1))
		Expect(r.SharedSteps()[0].ID).To(Equal(*first.SharedStepID))
	})

	It("should resolve self references without looping", func() {
		var r *sharedstep.Resolver[int]
		r = sharedstep.NewResolver(func(ctx context.Context, key int, id uuid.UUID) (domain.SharedStep, error) {
			calls["n"]++
			inner, err := r.Reference(ctx, key)
			if err != nil {
				return domain.SharedStep{}, err
			}
			Expect(*inner.SharedStepID).To(Equal(id))
			return domain.SharedStep{Steps: []domain.Step{inner}}, nil
		})

		_, err := r.Resolve(ctx, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(calls["n"]).To(Equal(1))
	})

	It("should keep returning a conversion failure", func() {
		r := sharedstep.NewResolver(func(ctx context.Context, key string, id uuid.UUID) (domain.SharedStep, error) {
			calls[key]++
			return domain.SharedStep{}, errors.New("not found")
		})
		_, err := r.Resolve(ctx, "x")
		Expect(err).To(HaveOccurred())
		_, err = r.Resolve(ctx, "x")
		Expect(err).To(HaveOccurred())
		Expect(calls["x"]).To(Equal(1))
		Expect(r.Len()).To(Equal(0))
	})
})

var _ = Describe("Map", func() {
	It("should rewrite registered references", func() {
		m := sharedstep.NewMap()
		old, created := uuid.New(), uuid.New()
		m.Register(old, created)

		steps := []domain.Step{{Action: "open"}, {SharedStepID: &old}}
		out, err := m.Rewrite(steps)
		Expect(err).ToNot(HaveOccurred())
		Expect(out[0].SharedStepID).To(BeNil())
		Expect(*out[1].SharedStepID).To(Equal(created))
		Expect(*steps[1].SharedStepID).To(Equal(old))
	})

	It("should fail loudly on unknown references", func() {
		m := sharedstep.NewMap()
		missing := uuid.New()
		_, err := m.Rewrite([]domain.Step{{SharedStepID: &missing}})
		Expect(errors.Is(err, domain.ErrMissingReference)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring(missing.String()))
	})
})
