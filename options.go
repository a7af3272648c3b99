package bundlestate

import (
	"context"
	"errors"
	"log/slog"
	"maps"
)

// Option configures a State.
type Option func(*stateConfig) error

type stateConfig struct {
	resolver    Resolver
	hookFactory ResolverHookFactory
	platform    []Properties
	strict      bool

	expectedTimestamp int64
	checkTimestamp    bool

	// logger is nil when logging is disabled.
	logger *slog.Logger
}

// WithResolver sets the resolver used by Resolve, ResolveBundles,
// ResolveAll and ResolveDynamicImport.
func WithResolver(r Resolver) Option {
	return func(c *stateConfig) error {
		if r == nil {
			return errors.New("resolver must not be nil")
		}
		c.resolver = r
		return nil
	}
}

// WithResolverHookFactory installs a hook factory consulted once per
// resolve operation.
func WithResolverHookFactory(f ResolverHookFactory) Option {
	return func(c *stateConfig) error {
		c.hookFactory = f
		return nil
	}
}

// WithPlatformProperties sets the initial platform environments.
func WithPlatformProperties(envs ...Properties) Option {
	return func(c *stateConfig) error {
		c.platform = copyPlatform(envs)
		return nil
	}
}

// WithStrictVisibility enables friends checks on exported packages.
func WithStrictVisibility(strict bool) Option {
	return func(c *stateConfig) error {
		c.strict = strict
		return nil
	}
}

// WithLogger sets a structured logger for state diagnostics.
// If not set, logging is disabled.
//
// Any slog backend works, for example a zap core:
//
//	logger := slog.New(zapslog.NewHandler(core))
//	s, err := bundlestate.NewState(bundlestate.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *stateConfig) error {
		c.logger = l
		return nil
	}
}

func (c *stateConfig) validate() error {
	for _, env := range c.platform {
		if env == nil {
			return errors.New("platform environment must not be nil")
		}
	}
	return nil
}

// log returns the configured logger, or a logger that discards everything.
func (c *stateConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func newStateConfig(opts ...Option) (*stateConfig, error) {
	c := &stateConfig{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func copyPlatform(envs []Properties) []Properties {
	out := make([]Properties, len(envs))
	for i, env := range envs {
		if env != nil {
			out[i] = maps.Clone(env)
		}
	}
	return out
}
