package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-resolve whenever the descriptor file changes",
		Long: `Watch resolves the descriptor file like resolve, then keeps the state in
memory and re-resolves incrementally each time the file is written. The state
cache is rewritten after every resolve when --cache-dir is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openState()
			if err != nil {
				return err
			}
			path := args[0]
			reload := func() error {
				if _, err := a.resolveFile(s, path); err != nil {
					return err
				}
				printUnresolved(cmd.ErrOrStderr(), s)
				return a.saveState(s)
			}
			if err := reload(); err != nil {
				return err
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.log.Info("serving metrics", "addr", metricsAddr)
			}

			w, err := newWatcher(path, debounce, reload, a.log)
			if err != nil {
				return err
			}
			defer w.close()
			return w.run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay before re-resolving after a change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

// watcher calls reload once the watched file has been quiet for the
// debounce delay after a change.
type watcher struct {
	path     string
	debounce time.Duration
	reload   func() error
	log      *slog.Logger
	fw       *fsnotify.Watcher
}

func newWatcher(path string, debounce time.Duration, reload func() error, log *slog.Logger) (*watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files on save; watching the directory survives that.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &watcher{path: abs, debounce: debounce, reload: reload, log: log, fw: fw}, nil
}

// run blocks until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	w.log.Info("watching descriptor file", "file", w.path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("descriptor file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("file watcher error", "error", err)
		case <-fire:
			fire = nil
			if err := w.reload(); err != nil {
				w.log.Error("reload failed", "file", w.path, "error", err)
			}
		}
	}
}

func (w *watcher) close() {
	if err := w.fw.Close(); err != nil {
		w.log.Error("failed to close file watcher", "error", err)
	}
}
