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

var _ = Describe("Watcher", func() {
	var (
		tmpDir  string
		store   *tokenpool.Store
		pool    *tokenpool.Pool
		watcher *tokenpool.Watcher
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		store = tokenpool.NewStore(filepath.Join(tmpDir, "tokens.json"))

		var err error
		pool, err = tokenpool.New(&tokenpool.Config{
			Tokens: []string{"tok-a"},
			Store:  store,
		})
		Expect(err).NotTo(HaveOccurred())

		watcher, err = tokenpool.NewWatcher(store, pool, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		watcher.Close()
	})

	It("applies external edits to the token document", func() {
		doc := `{"tokens": ["tok-b", "tok-c"], "salt": "00ff"}`
		Expect(os.WriteFile(store.Path(), []byte(doc), 0o600)).To(Succeed())

		Eventually(pool.Tokens, 5*time.Second, 50*time.Millisecond).
			Should(Equal([]string{"tok-b", "tok-c"}))
	})

	It("ignores unrelated files in the watched directory", func() {
		other := filepath.Join(tmpDir, "notes.txt")
		Expect(os.WriteFile(other, []byte("x"), 0o600)).To(Succeed())

		Consistently(pool.Tokens, 500*time.Millisecond, 50*time.Millisecond).
			Should(Equal([]string{"tok-a"}))
	})
})
