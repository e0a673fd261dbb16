package content_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/testit-tms/migrators-sub001/internal/content"
)

var _ = Describe("MarkdownExtractor", func() {
	var e *content.MarkdownExtractor

	BeforeEach(func() {
		e = content.NewMarkdownExtractor()
	})

	It("should support markdown formats", func() {
		Expect(e.Formats()).To(ContainElements("markdown", "md"))
	})

	It("should replace image syntax", func() {
		res, err := e.Extract("Open the page\n\n![login](https://cdn.example.com/img/login.png \"Login\")\n")
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Text).To(Equal("Open the page\n\n<<<login.png>>>\n"))
		Expect(res.Attachments[0].URL).To(Equal("https://cdn.example.com/img/login.png"))
	})

	It("should ignore image syntax in code spans", func() {
		in := "Type `![x](http://x/code.png)` then ![y](http://x/real.png)"
		res, err := e.Extract(in)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Text).To(Equal("Type `![x](http://x/code.png)` then <<<real.png>>>"))
		Expect(res.Attachments).To(HaveLen(1))
	})

	It("should also handle inline HTML images", func() {
		res, err := e.Extract("![a](http://x/a.png) and <img src=\"http://x/b.gif\">")
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Text).To(Equal("<<<a.png>>> and <<<b.gif>>>"))
		Expect(res.Attachments).To(HaveLen(2))
	})
})
