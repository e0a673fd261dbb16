package merge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/domain"
	"github.com/testit-tms/migrators-sub001/internal/merge"
	"github.com/testit-tms/migrators-sub001/internal/scanner"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		root   string
		output string
		engine *merge.Engine

		x, y, z, nested uuid.UUID
		sevA, sevB      uuid.UUID
		lowA, lowB      uuid.UUID
		highB           uuid.UUID
		caseA, caseB    uuid.UUID
		sharedB         uuid.UUID
	)

	newBatch := func(name string) *storage.Store {
		s, err := storage.New(filepath.Join(root, name))
		Expect(err).ToNot(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		log := logrus.New()
		log.SetOutput(io.Discard)
		engine = merge.NewEngine(scanner.NewScanner(true), log)

		var err error
		root, err = os.MkdirTemp("", "migrator-merge-*")
		Expect(err).ToNot(HaveOccurred())
		output = filepath.Join(root, "..", filepath.Base(root)+"-merged")

		x, y, z, nested = uuid.New(), uuid.New(), uuid.New(), uuid.New()
		sevA, sevB = uuid.New(), uuid.New()
		lowA, lowB, highB = uuid.New(), uuid.New(), uuid.New()
		caseA, caseB, sharedB = uuid.New(), uuid.New(), uuid.New()

		a := newBatch("batch-a")
		Expect(a.WriteTestCase(domain.TestCase{
			ID: caseA, Name: "A case", SectionID: x,
			Attributes: []domain.CaseAttribute{{ID: sevA, Value: lowA.String()}},
		})).To(Succeed())
		Expect(a.WriteManifest(domain.Root{
			ProjectName: "Quality",
			Sections:    []domain.Section{{ID: x, Name: "Common"}},
			Attributes: []domain.Attribute{{ID: sevA, Name: "Severity", Type: domain.AttributeOptions,
				Options: []domain.AttributeOption{{ID: lowA, Value: "Low"}}}},
			TestCases: []uuid.UUID{caseA},
		})).To(Succeed())

		b := newBatch("batch-b")
		Expect(b.WriteTestCase(domain.TestCase{
			ID: caseB, Name: "B case", SectionID: y,
			Description: "mentions " + y.String() + " inline",
			Attributes: []domain.CaseAttribute{
				{ID: sevB, Value: lowB.String()},
			},
		})).To(Succeed())
		Expect(b.WriteSharedStep(domain.SharedStep{ID: sharedB, Name: "B shared", SectionID: z})).To(Succeed())
		_, err = b.WriteAttachment(caseB, "shot.png", strings.NewReader("png"))
		Expect(err).ToNot(HaveOccurred())
		Expect(b.WriteManifest(domain.Root{
			ProjectName: "Quality",
			Sections: []domain.Section{
				{ID: y, Name: "Common", Sections: []domain.Section{{ID: nested, Name: "Nested"}}},
				{ID: z, Name: "B-only"},
			},
			Attributes: []domain.Attribute{{ID: sevB, Name: "Severity", Type: domain.AttributeOptions,
				Options: []domain.AttributeOption{{ID: lowB, Value: "Low"}, {ID: highB, Value: "High"}}}},
			TestCases:   []uuid.UUID{caseB},
			SharedSteps: []uuid.UUID{sharedB},
		})).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(root)
		os.RemoveAll(output)
	})

	It("should keep the first same-named section and rewrite references to it", func() {
		report, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Batches).To(Equal(2))
		Expect(report.DroppedSections).To(Equal(1))
		Expect(report.DroppedAttributes).To(Equal(1))
		Expect(report.FilesCopied).To(Equal(4))

		out, err := storage.Open(output)
		Expect(err).ToNot(HaveOccurred())
		merged, err := out.ReadManifest()
		Expect(err).ToNot(HaveOccurred())

		By("deduplicating sections by name")
		Expect(merged.Sections).To(HaveLen(2))
		Expect(merged.Sections[0].ID).To(Equal(x))
		Expect(merged.Sections[0].Sections).To(HaveLen(1))
		Expect(merged.Sections[0].Sections[0].ID).To(Equal(nested))
		Expect(merged.Sections[1].ID).To(Equal(z))

		By("concatenating item ids")
		Expect(merged.TestCases).To(Equal([]uuid.UUID{caseA, caseB}))
		Expect(merged.SharedSteps).To(Equal([]uuid.UUID{sharedB}))

		By("unioning attribute options")
		Expect(merged.Attributes).To(HaveLen(1))
		Expect(merged.Attributes[0].ID).To(Equal(sevA))
		Expect(merged.Attributes[0].Options).To(HaveLen(2))
		Expect(merged.Attributes[0].Options[1].ID).To(Equal(highB))

		By("rewriting the batch B test case")
		tc, err := out.ReadTestCase(caseB)
		Expect(err).ToNot(HaveOccurred())
		Expect(tc.SectionID).To(Equal(x))
		Expect(tc.Attributes[0].ID).To(Equal(sevA))
		Expect(tc.Attributes[0].Value).To(Equal(lowA.String()))
		Expect(tc.Description).To(ContainSubstring(y.String()))

		By("leaving ids of kept sections untouched")
		ss, err := out.ReadSharedStep(sharedB)
		Expect(err).ToNot(HaveOccurred())
		Expect(ss.SectionID).To(Equal(z))

		_, err = os.Stat(filepath.Join(output, caseB.String(), "shot.png"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("should warn when a dropped section had different steps", func() {
		var buf bytes.Buffer
		log := logrus.New()
		log.SetOutput(&buf)
		engine = merge.NewEngine(scanner.NewScanner(true), log)

		c := newBatch("batch-c")
		Expect(c.WriteManifest(domain.Root{
			ProjectName: "Quality",
			Sections: []domain.Section{{ID: uuid.New(), Name: "Common",
				PreconditionSteps: []domain.Step{{Action: "Log in as admin"}}}},
		})).To(Succeed())

		_, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring(`Section \"Common\" appears in several batches with different steps`))

		out, err := storage.Open(output)
		Expect(err).ToNot(HaveOccurred())
		merged, err := out.ReadManifest()
		Expect(err).ToNot(HaveOccurred())
		Expect(merged.Sections[0].PreconditionSteps).To(BeEmpty())
	})

	It("should leave no dropped id as a JSON value in the output", func() {
		_, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())

		dropped := []string{y.String(), sevB.String(), lowB.String()}
		files, err := scanner.NewScanner(true).Scan(output, []string{"*.json"}, nil)
		Expect(err).ToNot(HaveOccurred())
		for _, f := range files {
			data, err := os.ReadFile(f)
			Expect(err).ToNot(HaveOccurred())
			for _, id := range dropped {
				Expect(string(data)).ToNot(ContainSubstring(`"`+id+`"`), f)
			}
		}
	})

	It("should skip the rewrite when nothing was dropped", func() {
		Expect(os.RemoveAll(filepath.Join(root, "batch-b"))).To(Succeed())
		report, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.FilesTouched).To(BeZero())
		Expect(report.Replacements).To(BeZero())
	})

	It("should skip batches with an unreadable manifest", func() {
		Expect(os.WriteFile(filepath.Join(root, "batch-b", storage.ManifestFile), []byte("{"), 0644)).To(Succeed())
		report, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Batches).To(Equal(1))
	})

	It("should abort without output when there is nothing to merge", func() {
		empty, err := os.MkdirTemp("", "migrator-empty-*")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(empty)

		_, err = engine.Merge(ctx, empty, output)
		Expect(errors.Is(err, domain.ErrNoBatches)).To(BeTrue())
		_, statErr := os.Stat(output)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should abort when no manifest loads", func() {
		for _, b := range []string{"batch-a", "batch-b"} {
			Expect(os.WriteFile(filepath.Join(root, b, storage.ManifestFile), []byte("not json"), 0644)).To(Succeed())
		}
		_, err := engine.Merge(ctx, root, output)
		Expect(errors.Is(err, domain.ErrNoBatches)).To(BeTrue())
	})

	It("should refuse an output that already holds a manifest", func() {
		_, err := engine.Merge(ctx, root, output)
		Expect(err).ToNot(HaveOccurred())
		_, err = engine.Merge(ctx, root, output)
		Expect(err).To(HaveOccurred())
	})
})
