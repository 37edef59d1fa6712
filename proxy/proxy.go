// Package proxy provides the OpenAI-compatible HTTP front of the relay: it
// rotates backend credentials, forwards chat requests to the Z.ai backend,
// and normalizes the backend's phase-tagged stream into OpenAI deltas.
package proxy

import (
	"context"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/metrics"
	"github.com/zrelay/zrelay/pkg/tokenpool"
	"github.com/zrelay/zrelay/pkg/upstream"
	"github.com/zrelay/zrelay/proxy/header"
	"github.com/zrelay/zrelay/proxy/worker"
)

// Proxy is the relay server. It is transparent to OpenAI clients: requests
// come in as chat completions and leave as chat completions, with the
// backend's reasoning protocol rewritten in between.
type Proxy struct {
	config   Config
	pool     *tokenpool.Pool
	client   *upstream.Client
	recorder *metrics.Recorder
	verifier *worker.Pool
	logger   *zap.Logger
	server   *fiber.App
}

// New creates a Proxy around the given credential pool and backend client.
func New(config Config, pool *tokenpool.Pool, client *upstream.Client, logger *zap.Logger) (*Proxy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})
	app.Use(header.CORS())

	var reg *metrics.Recorder
	if config.Registry != nil {
		reg = metrics.New(config.Registry, logger)
	} else {
		reg = metrics.New(nil, logger)
	}

	verifier, err := worker.NewPool(&worker.Config{
		Pool:     pool,
		Verifier: client,
		Metrics:  reg,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		config:   config,
		pool:     pool,
		client:   client,
		recorder: reg,
		verifier: verifier,
		logger:   logger,
		server:   app,
	}

	app.Get("/v1/models", p.handleModels)
	app.Post("/v1/models", p.handleModels)
	app.Post("/v1/chat/completions", p.handleChat)

	app.Get("/dashboard", p.handleDashboard)
	app.Get("/dashboard/stats", p.handleDashboardStats)
	app.Get("/dashboard/pool", p.handleDashboardPool)
	app.Post("/dashboard/pool", p.handleDashboardPoolUpdate)
	app.Delete("/dashboard/pool/:id", p.handleDashboardPoolDelete)
	app.Post("/dashboard/pool/verify", p.handleDashboardPoolVerify)

	if config.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{})))
	}

	return p, nil
}

// Run starts the relay server on the configured listening address.
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.client.Base()),
		zap.String("think_tags_mode", p.config.ThinkMode.String()),
		zap.Bool("anonymous", p.config.Anonymous),
		zap.Int("pool_size", p.pool.Size()),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.client.Base()),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server and drains the verification pool.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.verifier.Close()
	return err
}

// credential is the outcome of token acquisition for one call.
type credential struct {
	token    string
	identity string
	source   string
	pooled   bool
}

// acquireToken selects the credential for a backend call: pool rotation
// first, then the static token, then a guest token from the backend.
func (p *Proxy) acquireToken(ctx context.Context) credential {
	if token, ok := p.pool.Get(); ok {
		id, _ := p.pool.IdentityOf(token)
		p.logger.Debug("using pool token", zap.String("identity", id))
		return credential{token: token, identity: id, source: metrics.SourcePool, pooled: true}
	}

	if !p.config.Anonymous && p.config.Token != "" {
		return credential{token: p.config.Token, source: metrics.SourceStatic}
	}

	if token, err := p.client.AnonymousToken(ctx); err == nil {
		return credential{token: token, source: metrics.SourceAnonymous}
	} else {
		p.logger.Debug("anonymous token fetch failed", zap.Error(err))
	}

	if p.config.Token != "" {
		return credential{token: p.config.Token, source: metrics.SourceStatic}
	}
	return credential{source: metrics.SourceNone}
}

// reportHealth feeds a backend status back into pool health. Only auth
// rejections count against the credential.
func (p *Proxy) reportHealth(cred credential, status int) {
	if !cred.pooled {
		return
	}
	if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden {
		p.pool.MarkFailure(cred.token)
	} else if status > 0 {
		p.pool.MarkSuccess(cred.token)
	} else {
		// Transport failure with no status.
		p.pool.MarkFailure(cred.token)
	}
}
