package tokenpool

// Snapshot is a read-only view of the pool for dashboards and management
// endpoints. It never contains token secrets.
type Snapshot struct {
	Size   int               `json:"size"`
	Cursor int               `json:"cursor"`
	Tokens []CredentialState `json:"tokens"`
}

// CredentialState describes one token's health.
type CredentialState struct {
	Identity  string `json:"identity"`
	Display   string `json:"display"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
	Disabled  bool   `json:"disabled"`

	// CooldownRemaining is the whole seconds left before the token
	// re-enters rotation, 0 when it is not cooling down.
	CooldownRemaining int `json:"cooldown_remaining"`
}

// Snapshot returns the current pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	snap := Snapshot{
		Size:   len(p.tokens),
		Cursor: p.index,
		Tokens: make([]CredentialState, 0, len(p.tokens)),
	}

	for _, token := range p.tokens {
		state := CredentialState{
			Identity:  p.identities[token],
			Display:   Mask(token),
			Failures:  p.failures[token],
			Successes: p.successes[token],
		}

		if disabledAt, ok := p.disabledAt[token]; ok {
			if remaining := p.cooldown - now.Sub(disabledAt); remaining > 0 {
				state.Disabled = true
				state.CooldownRemaining = int(remaining.Seconds())
			}
		}

		snap.Tokens = append(snap.Tokens, state)
	}

	return snap
}
