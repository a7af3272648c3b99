package main

import (
	"errors"
	"fmt"
	"io"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/wiring"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		format string
		bundle string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the wiring stored in the state cache",
		Long: `Inspect reads the state cache from --cache-dir and prints its wiring. With
--bundle it lists the packages visible to every bundle of that symbolic name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := output(format); err != nil {
				return err
			}
			s, err := a.readCache()
			if err != nil {
				return err
			}
			if bundle != "" {
				return printVisible(cmd.OutOrStdout(), s, bundle)
			}
			if err := printWiring(cmd.OutOrStdout(), s, format); err != nil {
				return err
			}
			printUnresolved(cmd.ErrOrStderr(), s)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, yaml or dot")
	cmd.Flags().StringVar(&bundle, "bundle", "", "list the packages visible to the named bundle")
	return cmd
}

// readCache reads the state cache, failing when it is missing or stale.
func (a *app) readCache() (*bundlestate.State, error) {
	if a.cfg.CacheDir == "" {
		return nil, errors.New("no state cache: set --cache-dir or cache_dir")
	}
	opts, err := a.stateOptions()
	if err != nil {
		return nil, err
	}
	header, lazy := a.cachePaths()
	s, ok, err := bundlestate.ReadStateFiles(header, lazy, opts...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state cache in %s was written by another format version", a.cfg.CacheDir)
	}
	return s, nil
}

func printVisible(w io.Writer, s *bundlestate.State, name string) error {
	bundles := s.BundlesByName(name)
	if len(bundles) == 0 {
		return fmt.Errorf("no bundle named %q", name)
	}
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	proj := wiring.New(snap)
	for _, b := range bundles {
		fmt.Fprintf(w, "%v\n", b)
		if !b.IsResolved() {
			fmt.Fprintln(w, "  (unresolved)")
			continue
		}
		for _, c := range proj.VisiblePackages(b) {
			fmt.Fprintf(w, "  %s;version=%s from %v\n", c.Name, c.Version, c.Provider())
		}
	}
	return nil
}
