package tokenpool_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zrelay/zrelay/pkg/tokenpool"
)

var _ = Describe("Pool", func() {
	var (
		clock    time.Time
		cooldown time.Duration
	)

	BeforeEach(func() {
		clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		cooldown = 30 * time.Minute
	})

	newPool := func(threshold int, tokens ...string) *tokenpool.Pool {
		pool, err := tokenpool.New(&tokenpool.Config{
			Tokens:           tokens,
			FailureThreshold: threshold,
			Cooldown:         cooldown,
			Now:              func() time.Time { return clock },
		})
		Expect(err).NotTo(HaveOccurred())
		return pool
	}

	mustGet := func(pool *tokenpool.Pool) string {
		token, ok := pool.Get()
		Expect(ok).To(BeTrue())
		return token
	}

	Describe("Get", func() {
		It("returns false for an empty pool", func() {
			pool := newPool(3)
			_, ok := pool.Get()
			Expect(ok).To(BeFalse())
		})

		It("rotates fairly over the available subset", func() {
			pool := newPool(3, "tok-a", "tok-b", "tok-c")

			counts := map[string]int{}
			var order []string
			for i := 0; i < 12; i++ {
				token := mustGet(pool)
				counts[token]++
				order = append(order, token)
			}

			Expect(counts).To(Equal(map[string]int{"tok-a": 4, "tok-b": 4, "tok-c": 4}))
			Expect(order[:3]).To(Equal([]string{"tok-a", "tok-b", "tok-c"}))
			Expect(order[3:6]).To(Equal(order[:3]))
		})

		It("skips tokens in cooldown", func() {
			pool := newPool(1, "tok-a", "tok-b")

			Expect(mustGet(pool)).To(Equal("tok-a"))
			pool.MarkFailure("tok-a")
			Expect(mustGet(pool)).To(Equal("tok-b"))
			Expect(mustGet(pool)).To(Equal("tok-b"))
		})

		It("re-admits a token once its cooldown elapses", func() {
			pool := newPool(1, "tok-a", "tok-b")

			mustGet(pool)
			pool.MarkFailure("tok-a")
			mustGet(pool)
			mustGet(pool)

			clock = clock.Add(cooldown + time.Second)
			Expect(mustGet(pool)).To(Equal("tok-a"))
		})

		It("fails open when every token is cooling down", func() {
			pool := newPool(1, "tok-a", "tok-b")
			pool.MarkFailure("tok-a")
			pool.MarkFailure("tok-b")

			token, ok := pool.Get()
			Expect(ok).To(BeTrue())
			Expect(token).NotTo(BeEmpty())

			// The reset clears every cooldown, not just the returned token's.
			snap := pool.Snapshot()
			for _, state := range snap.Tokens {
				Expect(state.Disabled).To(BeFalse())
			}
		})
	})

	Describe("MarkFailure", func() {
		It("does not trip a token below the threshold", func() {
			pool := newPool(3, "tok-a")
			pool.MarkFailure("tok-a")
			pool.MarkFailure("tok-a")

			snap := pool.Snapshot()
			Expect(snap.Tokens[0].Failures).To(Equal(2))
			Expect(snap.Tokens[0].Disabled).To(BeFalse())
		})

		It("trips a token at exactly the threshold", func() {
			pool := newPool(3, "tok-a", "tok-b")
			for i := 0; i < 3; i++ {
				pool.MarkFailure("tok-a")
			}

			snap := pool.Snapshot()
			Expect(snap.Tokens[0].Disabled).To(BeTrue())
			Expect(snap.Tokens[0].CooldownRemaining).To(BeNumerically(">", 0))

			for i := 0; i < 6; i++ {
				Expect(mustGet(pool)).To(Equal("tok-b"))
			}
		})

		It("ignores tokens outside the pool", func() {
			pool := newPool(1, "tok-a")
			pool.MarkFailure("tok-unknown")

			Expect(mustGet(pool)).To(Equal("tok-a"))
		})
	})

	Describe("MarkSuccess", func() {
		It("clears failures and cooldown", func() {
			pool := newPool(2, "tok-a")
			pool.MarkFailure("tok-a")
			pool.MarkFailure("tok-a")
			pool.MarkSuccess("tok-a")

			snap := pool.Snapshot()
			Expect(snap.Tokens[0].Failures).To(BeZero())
			Expect(snap.Tokens[0].Successes).To(Equal(1))
			Expect(snap.Tokens[0].Disabled).To(BeFalse())
		})

		It("ignores tokens outside the pool", func() {
			pool := newPool(2, "tok-a")
			pool.MarkSuccess("tok-unknown")

			Expect(pool.Snapshot().Tokens).To(HaveLen(1))
		})
	})

	Describe("Update", func() {
		It("deduplicates while preserving order", func() {
			pool := newPool(3)
			pool.Update([]string{"tok-b", "tok-a", "tok-b", "", "tok-a"})

			Expect(pool.Tokens()).To(Equal([]string{"tok-b", "tok-a"}))
		})

		It("retains health for kept tokens and resets the cursor", func() {
			pool := newPool(5, "tok-a", "tok-b")
			pool.MarkFailure("tok-a")
			pool.MarkSuccess("tok-b")
			mustGet(pool)

			pool.Update([]string{"tok-b", "tok-a", "tok-b"})

			snap := pool.Snapshot()
			Expect(snap.Cursor).To(BeZero())
			Expect(snap.Tokens).To(HaveLen(2))
			Expect(snap.Tokens[0].Successes).To(Equal(1)) // tok-b
			Expect(snap.Tokens[1].Failures).To(Equal(1))  // tok-a
		})

		It("prunes health for removed tokens", func() {
			pool := newPool(1, "tok-a", "tok-b")
			pool.MarkFailure("tok-a")

			pool.Update([]string{"tok-b"})
			pool.Update([]string{"tok-a", "tok-b"})

			// tok-a left and rejoined: its old failure state is gone.
			Expect(mustGet(pool)).To(Equal("tok-a"))
		})
	})

	Describe("ResolveIdentity", func() {
		It("round-trips identity to token", func() {
			pool := newPool(3, "tok-a", "tok-b")

			snap := pool.Snapshot()
			token, ok := pool.ResolveIdentity(snap.Tokens[1].Identity)
			Expect(ok).To(BeTrue())
			Expect(token).To(Equal("tok-b"))
		})

		It("misses for unknown identities", func() {
			pool := newPool(3, "tok-a")
			_, ok := pool.ResolveIdentity("deadbeef")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("never exposes raw tokens", func() {
			secret := "sk-zai-verysecrettokenvalue0001"
			pool := newPool(3, secret)

			snap := pool.Snapshot()
			Expect(snap.Size).To(Equal(1))
			Expect(snap.Tokens[0].Display).NotTo(Equal(secret))
			Expect(snap.Tokens[0].Display).To(HavePrefix("sk-zai"))
			Expect(snap.Tokens[0].Identity).To(HaveLen(32))
		})
	})
})
