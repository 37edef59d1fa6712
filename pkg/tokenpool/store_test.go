package tokenpool_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/tokenpool"
)

var _ = Describe("Store", func() {
	var (
		tmpDir string
		store  *tokenpool.Store
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "tokenpool-test-*")
		Expect(err).NotTo(HaveOccurred())
		store = tokenpool.NewStore(filepath.Join(tmpDir, "tokens.json"))
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Load", func() {
		It("returns an empty document with a fresh salt when no file exists", func() {
			doc, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Tokens).To(BeEmpty())
			Expect(doc.Salt).NotTo(BeEmpty())
		})

		It("round-trips a saved document", func() {
			doc, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			doc.Tokens = []string{"tok-a", "tok-b"}

			Expect(store.Save(doc)).To(Succeed())

			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Tokens).To(Equal([]string{"tok-a", "tok-b"}))
			Expect(loaded.Salt).To(Equal(doc.Salt))
		})

		It("rejects a corrupt document", func() {
			Expect(os.WriteFile(store.Path(), []byte("{nope"), 0o600)).To(Succeed())

			_, err := store.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("identity stability", func() {
		It("keeps identities stable across a persisted restart", func() {
			doc, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			salt, err := doc.SaltBytes()
			Expect(err).NotTo(HaveOccurred())

			first, err := tokenpool.New(&tokenpool.Config{
				Tokens: []string{"tok-a"},
				Salt:   salt,
				Store:  store,
			})
			Expect(err).NotTo(HaveOccurred())
			before := first.Snapshot().Tokens[0].Identity

			// Simulate a restart: reload the document and rebuild the pool.
			doc, err = store.Load()
			Expect(err).NotTo(HaveOccurred())
			salt, err = doc.SaltBytes()
			Expect(err).NotTo(HaveOccurred())

			second, err := tokenpool.New(&tokenpool.Config{
				Tokens: doc.Tokens,
				Salt:   salt,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Snapshot().Tokens[0].Identity).To(Equal(before))
		})
	})

	Describe("Watcher", func() {
		It("applies out-of-band document edits to the pool", func() {
			doc, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Save(doc)).To(Succeed())

			pool, err := tokenpool.New(&tokenpool.Config{
				Tokens: []string{"tok-a"},
				Store:  store,
			})
			Expect(err).NotTo(HaveOccurred())

			watcher, err := tokenpool.NewWatcher(store, pool, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			defer watcher.Close()

			doc.Tokens = []string{"tok-a", "tok-b"}
			Expect(store.Save(doc)).To(Succeed())

			Eventually(pool.Tokens, 5*time.Second, 50*time.Millisecond).
				Should(Equal([]string{"tok-a", "tok-b"}))
		})
	})
})

var _ = Describe("ParseTokenList", func() {
	It("splits on newlines and commas", func() {
		raw := "tok-a, tok-b\ntok-c,\n , tok-a"
		Expect(tokenpool.ParseTokenList(raw)).To(Equal([]string{"tok-a", "tok-b", "tok-c", "tok-a"}))
	})

	It("returns nil for empty input", func() {
		Expect(tokenpool.ParseTokenList("")).To(BeNil())
	})
})

var _ = Describe("Mask", func() {
	It("keeps only the edges of long tokens", func() {
		Expect(tokenpool.Mask("sk-zai-0123456789abcdef")).To(Equal("sk-zai…cdef"))
	})

	It("fully masks short tokens", func() {
		Expect(tokenpool.Mask("shorttok")).To(Equal("********"))
	})
})
