package content_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/content"
)

var _ = Describe("DefaultRegistry", func() {
	It("should resolve registered formats case-insensitively", func() {
		r := content.NewDefaultRegistry()
		e, err := r.ExtractorFor("Markdown")
		Expect(err).ToNot(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&content.MarkdownExtractor{}))
	})

	It("should fall back to HTML for unknown formats", func() {
		r := content.NewDefaultRegistry()
		e, err := r.ExtractorFor("rtf")
		Expect(err).ToNot(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&content.HTMLExtractor{}))
	})

	It("should fail without a fallback", func() {
		r := content.NewRegistry()
		_, err := r.ExtractorFor("html")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("UniqueFileName", func() {
	It("should insert the counter before the extension", func() {
		taken := map[string]bool{"a.png": true, "a (1).png": true}
		Expect(content.UniqueFileName("a.png", func(n string) bool { return taken[n] })).To(Equal("a (2).png"))
	})
})
