package config

// Config is the resolved zrelay configuration. Values come from defaults,
// an optional config.toml, ZRELAY_* environment variables, and CLI flags,
// in increasing order of precedence.
type Config struct {
	// Listen is the address the relay HTTP server binds to.
	Listen string `mapstructure:"listen"`

	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`

	Upstream UpstreamConfig `mapstructure:"upstream"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Think    ThinkConfig    `mapstructure:"think"`
}

// UpstreamConfig holds settings for the upstream chat service.
type UpstreamConfig struct {
	// Base is the upstream base URL.
	Base string `mapstructure:"base"`

	// Model is the fallback model when a request names none.
	Model string `mapstructure:"model"`

	// Token is a single static bearer token used when the pool is empty
	// and anonymous mode is off.
	Token string `mapstructure:"token"`

	// Anonymous enables fetching a visitor token from the upstream auth
	// endpoint when no pool or static token applies.
	Anonymous bool `mapstructure:"anonymous"`
}

// PoolConfig holds credential pool settings.
type PoolConfig struct {
	// Tokens is a raw token list, newline- or comma-separated.
	Tokens string `mapstructure:"tokens"`

	// File is the path of the persisted credential document.
	File string `mapstructure:"file"`

	// FailureThreshold is the consecutive-failure count that starts a
	// credential's cooldown. Minimum 1.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// CooldownSeconds is how long a tripped credential stays out of rotation.
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// ThinkConfig selects how reasoning content is rendered.
type ThinkConfig struct {
	// TagsMode is one of: reasoning, think, strip, details.
	// Unknown values fall back to raw <reasoning> tags with a warning.
	TagsMode string `mapstructure:"tags_mode"`
}
