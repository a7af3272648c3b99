package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v        *viper.Viper
	cfg      config
	zap      *zap.Logger
	log      *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), registry: prometheus.NewRegistry()}

	root := &cobra.Command{
		Use:   "bundlestate",
		Short: "Resolve and inspect bundle wiring states",
		Long: `bundlestate resolves the bundles declared in a descriptor file, prints the
resulting wiring and persists it to a state cache that later runs resume from.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default .bundlestate.yaml)")
	pf.String("policy", "", "selection policy: least-perturbation or highest")
	pf.Bool("strict", false, "enforce x-friends package visibility")
	pf.String("cache-dir", "", "directory holding the state cache")
	pf.String("log-level", "", "log level: debug, info, warn or error")

	_ = a.v.BindPFlag("policy", pf.Lookup("policy"))
	_ = a.v.BindPFlag("strict", pf.Lookup("strict"))
	_ = a.v.BindPFlag("cache_dir", pf.Lookup("cache-dir"))
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(newResolveCmd(a), newInspectCmd(a), newDiffCmd(a), newWatchCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(a.v, file)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.zap, a.log, err = newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log.Debug("configuration loaded", "file", a.v.ConfigFileUsed(), "policy", cfg.Policy, "cache_dir", cfg.CacheDir)
	return nil
}

func (a *app) close() {
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

// output validates a --format value.
func output(format string) error {
	switch format {
	case "text", "json", "yaml", "dot":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, json, yaml or dot)", format)
}
