package config

const (
	defaultListen = ":8080"

	defaultUpstreamBase = "https://chat.z.ai"
	defaultModel        = "GLM-4.5"

	defaultPoolFile         = "tokens.json"
	defaultFailureThreshold = 3
	defaultCooldownSeconds  = 1800

	defaultTagsMode = "reasoning"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		Upstream: UpstreamConfig{
			Base:      defaultUpstreamBase,
			Model:     defaultModel,
			Anonymous: true,
		},
		Pool: PoolConfig{
			File:             defaultPoolFile,
			FailureThreshold: defaultFailureThreshold,
			CooldownSeconds:  defaultCooldownSeconds,
		},
		Think: ThinkConfig{
			TagsMode: defaultTagsMode,
		},
	}
}
