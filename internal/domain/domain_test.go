package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

var _ = Describe("Attribute", func() {
	It("should require options for option types", func() {
		a := domain.Attribute{Name: "Severity", Type: domain.AttributeOptions}
		Expect(a.Validate()).To(MatchError(ContainSubstring("requires options")))

		a.Options = []domain.AttributeOption{{ID: uuid.New(), Value: "Major"}}
		Expect(a.Validate()).To(Succeed())
	})

	It("should reject options on other types", func() {
		a := domain.Attribute{Name: "Note", Type: domain.AttributeString,
			Options: []domain.AttributeOption{{Value: "x"}}}
		Expect(a.Validate()).To(HaveOccurred())
	})

	It("should reject unknown types", func() {
		Expect(domain.Attribute{Name: "User", Type: "user"}.Validate()).To(HaveOccurred())
	})

	It("should find options by value and id", func() {
		id := uuid.New()
		a := domain.Attribute{Type: domain.AttributeMultipleOptions,
			Options: []domain.AttributeOption{{ID: id, Value: "Major"}}}

		o, ok := a.OptionByValue("Major")
		Expect(ok).To(BeTrue())
		Expect(o.ID).To(Equal(id))

		_, ok = a.OptionByID(uuid.New())
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Step", func() {
	It("should omit the shared step id unless set", func() {
		data, err := json.Marshal(domain.Step{Action: "a"})
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).ToNot(ContainSubstring("sharedStepId"))

		id := uuid.New()
		s := domain.Step{SharedStepID: &id}
		Expect(s.IsSharedReference()).To(BeTrue())
		data, err = json.Marshal(s)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(id.String()))
	})
})

var _ = Describe("MigratorError", func() {
	It("should format phase, entity, message and cause", func() {
		err := domain.NewError("fetch", "QA-T1", "failed to load", errors.New("timeout"))
		Expect(err.Error()).To(Equal("[fetch] QA-T1: failed to load: timeout"))
	})

	It("should omit an empty entity", func() {
		err := domain.NewError("config", "", "bad", nil)
		Expect(err.Error()).To(Equal("[config]: bad"))
	})

	It("should classify missing references", func() {
		err := fmt.Errorf("wrapped: %w", domain.MissingReference("import", "shared step", uuid.Nil))
		Expect(errors.Is(err, domain.ErrMissingReference)).To(BeTrue())
		Expect(errors.Is(err, domain.ErrMalformedContent)).To(BeFalse())
	})

	It("should classify malformed content with and without a cause", func() {
		Expect(errors.Is(domain.MalformedContent("content", "step", nil), domain.ErrMalformedContent)).To(BeTrue())

		err := domain.MalformedContent("content", "step", errors.New("unexpected EOF"))
		Expect(errors.Is(err, domain.ErrMalformedContent)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("unexpected EOF"))
	})
})
