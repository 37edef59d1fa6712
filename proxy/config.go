package proxy

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zrelay/zrelay/pkg/normalizer"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// DefaultModel serves requests that omit a model.
	DefaultModel string

	// Token is the static fallback credential used when the pool is empty.
	Token string

	// Anonymous disables configured credentials entirely: every request
	// runs on a guest token fetched from the backend.
	Anonymous bool

	// ThinkMode selects how reasoning content is rendered to clients.
	ThinkMode normalizer.Mode

	// Registry, if set, receives the relay's Prometheus collectors and
	// backs the /metrics endpoint.
	Registry *prometheus.Registry
}
