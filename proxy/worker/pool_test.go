package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zrelay/zrelay/pkg/metrics"
	"github.com/zrelay/zrelay/pkg/tokenpool"
	"github.com/zrelay/zrelay/pkg/upstream"
)

// fakeVerifier answers credential probes from a canned map. Tokens without
// an entry verify successfully.
type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]error
	seen    []string
}

func (f *fakeVerifier) Models(_ context.Context, token string) (*upstream.ModelsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, token)
	if err, ok := f.results[token]; ok {
		return nil, err
	}
	return &upstream.ModelsResponse{}, nil
}

func (f *fakeVerifier) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func newTestPool(tokens []string, results map[string]error) (*Pool, *tokenpool.Pool, *fakeVerifier, *metrics.Recorder) {
	tp, err := tokenpool.New(&tokenpool.Config{
		Tokens:           tokens,
		FailureThreshold: 1,
		Cooldown:         time.Hour,
	})
	Expect(err).NotTo(HaveOccurred())

	verifier := &fakeVerifier{results: results}
	recorder := metrics.New(nil, nil)

	wp, err := NewPool(&Config{
		Pool:     tp,
		Verifier: verifier,
		Metrics:  recorder,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, tp, verifier, recorder
}

var _ = Describe("Verification Pool", func() {
	It("requires a token pool and a verifier", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("probes every enqueued credential", func() {
		wp, _, verifier, _ := newTestPool([]string{"tok-a", "tok-b"}, nil)

		Expect(wp.Enqueue(Job{Token: "tok-a"})).To(BeTrue())
		Expect(wp.Enqueue(Job{Token: "tok-b"})).To(BeTrue())
		wp.Close()

		Expect(verifier.tokens()).To(ConsistOf("tok-a", "tok-b"))
	})

	It("marks auth-rejected credentials as failed", func() {
		wp, tp, _, _ := newTestPool([]string{"tok-a", "tok-b"},
			map[string]error{"tok-a": &upstream.StatusError{Status: 401, Op: "models"}})

		wp.EnqueueAll()
		wp.Close()

		snap := tp.Snapshot()
		byDisplay := make(map[string]tokenpool.CredentialState, len(snap.Tokens))
		for _, s := range snap.Tokens {
			byDisplay[s.Display] = s
		}
		Expect(byDisplay[tokenpool.Mask("tok-a")].Disabled).To(BeTrue())
		Expect(byDisplay[tokenpool.Mask("tok-b")].Disabled).To(BeFalse())
	})

	It("leaves health untouched on transport errors", func() {
		wp, tp, _, _ := newTestPool([]string{"tok-a"},
			map[string]error{"tok-a": errors.New("connection refused")})

		wp.EnqueueAll()
		wp.Close()

		snap := tp.Snapshot()
		Expect(snap.Tokens[0].Disabled).To(BeFalse())
		Expect(snap.Tokens[0].Failures).To(BeZero())
	})

	It("records each check as a metric outcome", func() {
		wp, _, _, recorder := newTestPool([]string{"tok-a", "tok-b"},
			map[string]error{"tok-b": &upstream.StatusError{Status: 403, Op: "models"}})

		wp.EnqueueAll()
		wp.Close()

		snap := recorder.Snapshot()
		Expect(snap.Requests).To(Equal(uint64(2)))
		Expect(snap.Success).To(Equal(uint64(1)))
		Expect(snap.Failure).To(Equal(uint64(1)))
	})

	It("enqueues every pool credential with EnqueueAll", func() {
		wp, _, verifier, _ := newTestPool([]string{"tok-a", "tok-b", "tok-c"}, nil)

		Expect(wp.EnqueueAll()).To(Equal(3))
		wp.Close()

		Expect(verifier.tokens()).To(HaveLen(3))
	})
})
