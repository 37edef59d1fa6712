// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/config"
	"github.com/zrelay/zrelay/pkg/logger"
	"github.com/zrelay/zrelay/pkg/normalizer"
	"github.com/zrelay/zrelay/pkg/tokenpool"
	"github.com/zrelay/zrelay/pkg/upstream"
	"github.com/zrelay/zrelay/proxy"
)

type serveCommander struct {
	listen           string
	upstreamBase     string
	model            string
	token            string
	anonymous        bool
	poolTokens       string
	poolFile         string
	failureThreshold int
	cooldownSeconds  int
	thinkTags        string
	debug            bool

	logger *zap.Logger
}

const serveLongDesc string = `Run the relay server.

The relay accepts OpenAI chat completion requests, rotates backend
credentials from the pool, forwards each request to the Z.ai backend, and
rewrites the phase-tagged response stream into OpenAI deltas.

Credentials come from the persisted token file plus the --tokens list; edits
to the token file are picked up while the server runs.`

const serveShortDesc string = "Run the zrelay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("listen") {
				cmder.listen = cfg.Listen
			}
			if !cmd.Flags().Changed("upstream") {
				cmder.upstreamBase = cfg.Upstream.Base
			}
			if !cmd.Flags().Changed("model") {
				cmder.model = cfg.Upstream.Model
			}
			if !cmd.Flags().Changed("token") {
				cmder.token = cfg.Upstream.Token
			}
			if !cmd.Flags().Changed("anonymous") {
				cmder.anonymous = cfg.Upstream.Anonymous
			}
			if !cmd.Flags().Changed("tokens") {
				cmder.poolTokens = cfg.Pool.Tokens
			}
			if !cmd.Flags().Changed("pool-file") {
				cmder.poolFile = cfg.Pool.File
			}
			if !cmd.Flags().Changed("failure-threshold") {
				cmder.failureThreshold = cfg.Pool.FailureThreshold
			}
			if !cmd.Flags().Changed("cooldown") {
				cmder.cooldownSeconds = cfg.Pool.CooldownSeconds
			}
			if !cmd.Flags().Changed("think-tags") {
				cmder.thinkTags = cfg.Think.TagsMode
			}
			if cmd.Flags().Changed("debug") {
				cmder.debug, _ = cmd.Flags().GetBool("debug")
			} else {
				cmder.debug = cfg.Debug
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.Listen, "Address for the relay to listen on")
	cmd.Flags().StringVarP(&cmder.upstreamBase, "upstream", "u", defaults.Upstream.Base, "Z.ai backend base URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.Upstream.Model, "Fallback model when a request names none")
	cmd.Flags().StringVarP(&cmder.token, "token", "t", "", "Static backend bearer token")
	cmd.Flags().BoolVar(&cmder.anonymous, "anonymous", defaults.Upstream.Anonymous, "Fetch a guest token instead of using the static token")
	cmd.Flags().StringVar(&cmder.poolTokens, "tokens", "", "Pool token list, comma- or newline-separated")
	cmd.Flags().StringVar(&cmder.poolFile, "pool-file", defaults.Pool.File, "Path of the persisted credential document")
	cmd.Flags().IntVar(&cmder.failureThreshold, "failure-threshold", defaults.Pool.FailureThreshold, "Consecutive auth failures before a credential cools down")
	cmd.Flags().IntVar(&cmder.cooldownSeconds, "cooldown", defaults.Pool.CooldownSeconds, "Seconds a tripped credential stays out of rotation")
	cmd.Flags().StringVar(&cmder.thinkTags, "think-tags", defaults.Think.TagsMode, "Reasoning rendering mode (reasoning, think, strip, details)")

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.New(c.debug)
	defer func() { _ = c.logger.Sync() }()

	mode, ok := normalizer.ParseMode(c.thinkTags)
	if !ok {
		c.logger.Warn("unknown think tags mode, leaving raw reasoning markers",
			zap.String("mode", c.thinkTags),
		)
	}

	pool, store, err := c.newPool()
	if err != nil {
		return err
	}

	watcher, err := tokenpool.NewWatcher(store, pool, c.logger)
	if err != nil {
		c.logger.Warn("token file watching disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	client := upstream.New(upstream.Config{
		Base:   c.upstreamBase,
		Logger: c.logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := proxy.New(proxy.Config{
		ListenAddr:   c.listen,
		DefaultModel: c.model,
		Token:        c.token,
		Anonymous:    c.anonymous,
		ThinkMode:    mode,
		Registry:     registry,
	}, pool, client, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer p.Close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// newPool assembles the credential pool from the persisted document, the
// configured token list, and the static token.
func (c *serveCommander) newPool() (*tokenpool.Pool, *tokenpool.Store, error) {
	store := tokenpool.NewStore(c.poolFile)

	doc, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading token document: %w", err)
	}

	salt, err := doc.SaltBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("decoding token document salt: %w", err)
	}

	tokens := doc.Tokens
	for _, token := range tokenpool.ParseTokenList(c.poolTokens) {
		if !slices.Contains(tokens, token) {
			tokens = append(tokens, token)
		}
	}
	// The static token joins rotation unless guest mode is on.
	if c.token != "" && !c.anonymous && !slices.Contains(tokens, c.token) {
		tokens = append(tokens, c.token)
	}

	pool, err := tokenpool.New(&tokenpool.Config{
		Tokens:           tokens,
		FailureThreshold: c.failureThreshold,
		Cooldown:         time.Duration(c.cooldownSeconds) * time.Second,
		Salt:             salt,
		Store:            store,
		Logger:           c.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating token pool: %w", err)
	}

	c.logger.Info("credential pool ready",
		zap.Int("tokens", pool.Size()),
		zap.String("file", store.Path()),
	)

	return pool, store, nil
}
