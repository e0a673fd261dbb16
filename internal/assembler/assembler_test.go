package assembler_test

import (
	"errors"
	"io"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/assembler"
	"github.com/testit-tms/migrators-sub001/internal/content"
	"github.com/testit-tms/migrators-sub001/internal/domain"
)

type brokenExtractor struct{}

func (brokenExtractor) Formats() []string { return []string{"broken"} }

func (brokenExtractor) Extract(string) (content.Result, error) {
	return content.Result{}, domain.MalformedContent("content", "broken", errors.New("bad input"))
}

var _ = Describe("DefaultAssembler", func() {
	var a *assembler.DefaultAssembler

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		registry := content.NewDefaultRegistry()
		registry.Register(brokenExtractor{})
		a = assembler.New(registry, logger)
	})

	Describe("TestCase", func() {
		It("should order attachments primary, description, then steps", func() {
			tc, downloads, err := a.TestCase(assembler.Draft{
				ID:          uuid.New(),
				Name:        "Login",
				Description: `Intro <img src="http://x/desc.png">`,
				Attachments: []domain.AttachmentRef{{Name: "log.txt", URL: "http://x/files/9"}},
				PreconditionSteps: []assembler.StepDraft{
					{Action: `<img src="http://x/pre.png">`},
				},
				Steps: []assembler.StepDraft{
					{
						Action:   `Do <img src="http://x/act.png">`,
						Expected: `See <img src="http://x/exp.png">`,
						TestData: `<img src="http://x/data.png">`,
					},
				},
				PostconditionSteps: []assembler.StepDraft{
					{Expected: `<img src="http://x/post.png">`},
				},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(tc.Attachments).To(Equal([]string{
				"log.txt", "desc.png", "pre.png", "act.png", "exp.png", "data.png", "post.png",
			}))
			Expect(downloads).To(HaveLen(7))
			Expect(downloads[0]).To(Equal(domain.AttachmentRef{Name: "log.txt", URL: "http://x/files/9"}))
			Expect(tc.Description).To(Equal("Intro <<<desc.png>>>"))
			Expect(tc.Steps[0].ActionAttachments).To(Equal([]string{"act.png"}))
			Expect(tc.Steps[0].ExpectedAttachments).To(Equal([]string{"exp.png"}))
			Expect(tc.Steps[0].TestDataAttachments).To(Equal([]string{"data.png"}))
		})

		It("should rename clashing names across fields first-seen-wins", func() {
			tc, downloads, err := a.TestCase(assembler.Draft{
				Name:        "Clash",
				Description: `<img src="http://x/1/a.png">`,
				Steps: []assembler.StepDraft{
					{Action: `<img src="http://x/2/a.png"> and <img src="http://x/1/a.png">`},
				},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(tc.Description).To(Equal("<<<a.png>>>"))
			Expect(tc.Steps[0].Action).To(Equal("<<<a (1).png>>> and <<<a.png>>>"))
			Expect(tc.Steps[0].ActionAttachments).To(Equal([]string{"a (1).png", "a.png"}))
			Expect(downloads).To(Equal([]domain.AttachmentRef{
				{Name: "a.png", URL: "http://x/1/a.png"},
				{Name: "a (1).png", URL: "http://x/2/a.png"},
			}))
		})

		It("should resolve wiki markers against primary attachments", func() {
			tc, downloads, err := a.TestCase(assembler.Draft{
				Name:        "Wiki",
				Format:      "wiki",
				Attachments: []domain.AttachmentRef{{Name: "shot.png", URL: "http://jira/att/1"}},
				Steps:       []assembler.StepDraft{{Action: "Look !shot.png|thumbnail!"}},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(tc.Steps[0].Action).To(Equal("Look <<<shot.png>>>"))
			Expect(downloads).To(HaveLen(1))
		})

		It("should keep shared step references empty", func() {
			ref := uuid.New()
			tc, _, err := a.TestCase(assembler.Draft{
				Name:  "Uses shared",
				Steps: []assembler.StepDraft{{Action: "ignored", SharedStepID: &ref}},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(tc.Steps).To(HaveLen(1))
			Expect(tc.Steps[0].Action).To(BeEmpty())
			Expect(*tc.Steps[0].SharedStepID).To(Equal(ref))
		})

		It("should never return nil collections", func() {
			tc, downloads, err := a.TestCase(assembler.Draft{Name: "Empty"})
			Expect(err).ToNot(HaveOccurred())
			Expect(downloads).To(BeNil())
			Expect(tc.Tags).ToNot(BeNil())
			Expect(tc.Attributes).ToNot(BeNil())
			Expect(tc.Attachments).ToNot(BeNil())
			Expect(tc.Steps).ToNot(BeNil())
		})

		It("should report malformed content", func() {
			_, _, err := a.TestCase(assembler.Draft{Name: "Bad", Format: "broken", Description: "x"})
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, domain.ErrMalformedContent)).To(BeTrue())
		})
	})

	Describe("SharedStep", func() {
		It("should drop pre and postconditions", func() {
			ss, downloads, err := a.SharedStep(assembler.Draft{
				Name:               "Shared",
				Steps:              []assembler.StepDraft{{Action: `<img src="http://x/s.png">`}},
				PreconditionSteps:  []assembler.StepDraft{{Action: `<img src="http://x/pre.png">`}},
				PostconditionSteps: []assembler.StepDraft{{Action: "post"}},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(ss.Steps).To(HaveLen(1))
			Expect(ss.Attachments).To(Equal([]string{"s.png"}))
			Expect(downloads).To(HaveLen(1))
		})
	})

	Describe("Section", func() {
		It("should convert step text and keep subsections", func() {
			child := domain.Section{ID: uuid.New(), Name: "Child"}
			s, downloads, err := a.Section(domain.Section{
				ID:                 uuid.New(),
				Name:               "Auth",
				PreconditionSteps:  []domain.Step{{Action: `Open <img src="http://x/login.png">`}},
				PostconditionSteps: []domain.Step{{Expected: "Logged out"}},
				Sections:           []domain.Section{child},
			}, "html")
			Expect(err).ToNot(HaveOccurred())
			Expect(s.PreconditionSteps[0].Action).To(Equal("Open <<<login.png>>>"))
			Expect(s.PreconditionSteps[0].ActionAttachments).To(Equal([]string{"login.png"}))
			Expect(s.PostconditionSteps[0].Expected).To(Equal("Logged out"))
			Expect(s.Sections).To(Equal([]domain.Section{child}))
			Expect(downloads).To(Equal([]domain.AttachmentRef{{Name: "login.png", URL: "http://x/login.png"}}))
		})

		It("should reject shared step references", func() {
			ref := uuid.New()
			_, _, err := a.Section(domain.Section{
				Name:              "Auth",
				PreconditionSteps: []domain.Step{{SharedStepID: &ref}},
			}, "html")
			Expect(err).To(MatchError(ContainSubstring("cannot reference shared step")))
		})
	})
})
