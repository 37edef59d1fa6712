// Package tokenpool manages the rotating pool of upstream access tokens.
//
// The pool owns all credential health state: consecutive failure counts,
// cooldown timestamps, and the keyed identities used to reference tokens
// without exposing them. Every operation is serialized by a single mutex;
// nothing in this package performs network I/O.
package tokenpool

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCooldown = 30 * time.Minute

// Config is the configuration options for the token pool.
type Config struct {
	// Tokens is the initial credential list. Duplicates and empties are dropped.
	Tokens []string

	// FailureThreshold is the consecutive-failure count that trips a
	// token into cooldown. Values below 1 are raised to 1.
	FailureThreshold int

	// Cooldown is how long a tripped token stays out of rotation.
	Cooldown time.Duration

	// Salt keys the token identity hash. Must be stable across restarts
	// for identities to remain stable; the Store persists it.
	Salt []byte

	// Store, if non-nil, persists the token list and salt on every Update.
	Store *Store

	// Logger is the provided zap logger.
	Logger *zap.Logger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Pool is a thread-safe, round-robin token pool with failure tracking and
// lazy cooldown expiry.
type Pool struct {
	mu sync.Mutex

	tokens []string
	index  int

	failureThreshold int
	cooldown         time.Duration

	failures   map[string]int
	successes  map[string]int
	disabledAt map[string]time.Time

	// identity maps are rebuilt on every Update and always cover exactly
	// the current token list.
	byIdentity map[string]string
	identities map[string]string

	salt   []byte
	store  *Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Pool from the given config.
func New(cfg *Config) (*Pool, error) {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	salt := cfg.Salt
	if len(salt) == 0 {
		var err error
		salt, err = newSalt()
		if err != nil {
			return nil, err
		}
	}

	p := &Pool{
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		failures:         make(map[string]int),
		successes:        make(map[string]int),
		disabledAt:       make(map[string]time.Time),
		byIdentity:       make(map[string]string),
		identities:       make(map[string]string),
		salt:             salt,
		store:            cfg.Store,
		logger:           cfg.Logger,
		now:              cfg.Now,
	}

	p.Update(cfg.Tokens)

	return p, nil
}

// Get returns the next available token in round-robin order.
//
// Tokens whose cooldown has not elapsed are excluded; rotation fairness is
// defined over the available subset at call time. If every token is cooling
// down, all cooldowns are cleared once and selection retried (fail-open: a
// token that failed moments ago becomes eligible again rather than starving
// the caller). Returns false only when the pool is empty.
func (p *Pool) Get() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		clear(p.disabledAt)
		available = p.availableLocked()
	}
	if len(available) == 0 {
		return "", false
	}

	token := available[p.index%len(available)]
	p.index = (p.index + 1) % len(available)

	return token, true
}

// MarkSuccess records a successful call with the token, clearing its failure
// count and any cooldown. No-op for tokens not in the pool.
func (p *Pool) MarkSuccess(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.containsLocked(token) {
		return
	}

	delete(p.failures, token)
	delete(p.disabledAt, token)
	p.successes[token]++
}

// MarkFailure records a failed call with the token. Reaching the failure
// threshold starts the token's cooldown. No-op for tokens not in the pool.
func (p *Pool) MarkFailure(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.containsLocked(token) {
		return
	}

	p.failures[token]++
	if p.failures[token] >= p.failureThreshold {
		p.disabledAt[token] = p.now()
		p.logger.Warn("token entered cooldown",
			zap.String("identity", p.identities[token]),
			zap.Int("failures", p.failures[token]),
		)
	}
}

// Update replaces the pool contents with the deduplicated, order-preserving
// input. The rotation cursor resets to 0; health state is pruned for removed
// tokens and retained for tokens still present. The new list is persisted
// when a store is configured.
func (p *Pool) Update(tokens []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if token == "" || seen[token] {
			continue
		}
		unique = append(unique, token)
		seen[token] = true
	}

	p.tokens = unique
	p.index = 0

	for token := range p.failures {
		if !seen[token] {
			delete(p.failures, token)
		}
	}
	for token := range p.successes {
		if !seen[token] {
			delete(p.successes, token)
		}
	}
	for token := range p.disabledAt {
		if !seen[token] {
			delete(p.disabledAt, token)
		}
	}

	clear(p.byIdentity)
	clear(p.identities)
	for _, token := range unique {
		id := identity(p.salt, token)
		p.byIdentity[id] = token
		p.identities[token] = id
	}

	p.persistLocked()
}

// Contains reports whether the token is in the pool.
func (p *Pool) Contains(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.containsLocked(token)
}

// IdentityOf returns the identity hash for a pool token.
func (p *Pool) IdentityOf(token string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.identities[token]
	return id, ok
}

// ResolveIdentity returns the token behind an identity hash. Management
// handlers use this to act on a token without ever receiving the secret.
func (p *Pool) ResolveIdentity(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, ok := p.byIdentity[id]
	return token, ok
}

// Tokens returns a copy of the current token list in rotation order.
func (p *Pool) Tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.tokens))
	copy(out, p.tokens)
	return out
}

// Size returns the number of tokens in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

// availableLocked returns tokens whose cooldown (if any) has elapsed.
// Expired cooldowns are evaluated lazily against the clock; no background
// sweeper exists.
func (p *Pool) availableLocked() []string {
	now := p.now()
	available := make([]string, 0, len(p.tokens))
	for _, token := range p.tokens {
		if disabledAt, ok := p.disabledAt[token]; ok && now.Sub(disabledAt) < p.cooldown {
			continue
		}
		available = append(available, token)
	}
	return available
}

func (p *Pool) containsLocked(token string) bool {
	if token == "" {
		return false
	}
	_, ok := p.identities[token]
	return ok
}

// persistLocked writes the token document through the store. Persistence
// failures leave the in-memory pool fully functional.
func (p *Pool) persistLocked() {
	if p.store == nil {
		return
	}

	doc := &Document{
		Tokens: append([]string(nil), p.tokens...),
		Salt:   encodeSalt(p.salt),
	}

	if err := p.store.Save(doc); err != nil {
		p.logger.Warn("persisting token pool failed", zap.Error(err))
	}
}
