package content_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/content"
	"github.com/testit-tms/migrators-sub001/internal/domain"
)

var _ = Describe("WikiExtractor", func() {
	var e *content.WikiExtractor

	BeforeEach(func() {
		e = content.NewWikiExtractor()
	})

	It("should replace markers with and without options", func() {
		res, err := e.Extract("Click !button.png|thumbnail! then see !result.jpg!")
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Text).To(Equal("Click <<<button.png>>> then see <<<result.jpg>>>"))
		Expect(res.Attachments).To(Equal([]domain.AttachmentRef{
			{Name: "button.png", URL: "button.png"},
			{Name: "result.jpg", URL: "result.jpg"},
		}))
	})

	It("should not treat exclamations as markers", func() {
		res, err := e.Extract("Done! Really done!")
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Text).To(Equal("Done! Really done!"))
		Expect(res.Attachments).To(BeEmpty())
	})
})
