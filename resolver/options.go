package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/albertocavalcante/go-bundlestate/selection"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Resolver.
type Option func(*config) error

type config struct {
	policy   selection.Policy
	registry prometheus.Registerer

	// logger is nil when logging is disabled.
	logger *slog.Logger
}

// WithPolicy sets the selection policy used to choose among bundles with
// the same symbolic name. The default is selection.LeastPerturbation.
func WithPolicy(p selection.Policy) Option {
	return func(c *config) error {
		if p == nil {
			return errors.New("selection policy must not be nil")
		}
		c.policy = p
		return nil
	}
}

// WithMetrics registers the resolver's metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registry = reg
		return nil
	}
}

// WithLogger sets a structured logger. If not set, logging is disabled.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

func (c *config) log() *slog.Logger {
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

func newConfig(opts ...Option) (*config, error) {
	c := &config{policy: selection.LeastPerturbation()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
