package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/resolver"
	"github.com/albertocavalcante/go-bundlestate/selection"
	"github.com/albertocavalcante/go-bundlestate/wiring"
)

// State cache file names inside the cache directory.
const (
	headerFile = "state.cache"
	lazyFile   = "state.lazy"
)

func (a *app) cachePaths() (header, lazy string) {
	return filepath.Join(a.cfg.CacheDir, headerFile), filepath.Join(a.cfg.CacheDir, lazyFile)
}

func (a *app) stateOptions() ([]bundlestate.Option, error) {
	policy, err := selection.PolicyByName(a.cfg.Policy)
	if err != nil {
		return nil, err
	}
	r, err := resolver.New(
		resolver.WithPolicy(policy),
		resolver.WithLogger(a.log),
		resolver.WithMetrics(a.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}
	return []bundlestate.Option{
		bundlestate.WithResolver(r),
		bundlestate.WithLogger(a.log),
		bundlestate.WithStrictVisibility(a.cfg.Strict),
	}, nil
}

// openState resumes from the state cache when one is configured and
// readable, and starts an empty state otherwise. Configured platform
// environments replace cached ones.
func (a *app) openState() (*bundlestate.State, error) {
	opts, err := a.stateOptions()
	if err != nil {
		return nil, err
	}

	var s *bundlestate.State
	if a.cfg.CacheDir != "" {
		header, lazy := a.cachePaths()
		cached, ok, err := bundlestate.ReadStateFiles(header, lazy, opts...)
		switch {
		case errors.Is(err, os.ErrNotExist):
			a.log.Debug("no state cache", "dir", a.cfg.CacheDir)
		case err != nil:
			return nil, fmt.Errorf("failed to read state cache: %w", err)
		case !ok:
			a.log.Info("ignoring stale state cache", "dir", a.cfg.CacheDir)
		default:
			a.log.Debug("state cache loaded", "dir", a.cfg.CacheDir, "timestamp", cached.Timestamp())
			s = cached
		}
	}
	if s == nil {
		if s, err = bundlestate.NewState(opts...); err != nil {
			return nil, err
		}
	}

	if envs := a.cfg.platform(); len(envs) > 0 {
		if _, err := s.SetPlatformProperties(envs...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// saveState writes the state cache when a cache directory is configured.
func (a *app) saveState(s *bundlestate.State) error {
	if a.cfg.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	header, lazy := a.cachePaths()
	if err := s.WriteFiles(header, lazy); err != nil {
		return fmt.Errorf("failed to write state cache: %w", err)
	}
	a.log.Debug("state cache written", "dir", a.cfg.CacheDir, "timestamp", s.Timestamp())
	return nil
}

// printWiring writes the wiring of s in format.
func printWiring(w io.Writer, s *bundlestate.State, format string) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	proj := wiring.New(snap)
	var data []byte
	switch format {
	case "json":
		b, err := proj.ToJSON()
		if err != nil {
			return err
		}
		data = append(b, '\n')
	case "yaml":
		b, err := proj.ToYAML()
		if err != nil {
			return err
		}
		data = b
	case "dot":
		data = []byte(proj.ToDOT())
	default:
		data = []byte(proj.ToText())
	}
	_, err = w.Write(data)
	return err
}

// printUnresolved lists the unresolved bundles of s with their resolver
// errors and returns how many there are.
func printUnresolved(w io.Writer, s *bundlestate.State) int {
	var n int
	for _, b := range s.Bundles() {
		if b.IsResolved() {
			continue
		}
		n++
		fmt.Fprintf(w, "unresolved: %v\n", b)
		for _, e := range s.ResolverErrors(b) {
			fmt.Fprintf(w, "  %v\n", e)
		}
	}
	return n
}
