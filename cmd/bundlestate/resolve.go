package main

import (
	"fmt"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/manifest"
	"github.com/spf13/cobra"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		format         string
		failUnresolved bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Resolve the bundles of a descriptor file",
		Long: `Resolve loads the state cache (when --cache-dir is set), synchronizes it with
the bundles declared in the descriptor file, resolves and prints the wiring.
Unresolved bundles and their resolver errors are reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output(format); err != nil {
				return err
			}
			s, err := a.openState()
			if err != nil {
				return err
			}
			if _, err := a.resolveFile(s, args[0]); err != nil {
				return err
			}
			if err := printWiring(cmd.OutOrStdout(), s, format); err != nil {
				return err
			}
			n := printUnresolved(cmd.ErrOrStderr(), s)
			if err := a.saveState(s); err != nil {
				return err
			}
			if failUnresolved && n > 0 {
				return fmt.Errorf("%d bundle(s) unresolved", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, yaml or dot")
	cmd.Flags().BoolVar(&failUnresolved, "fail-unresolved", false, "exit with an error when a bundle stays unresolved")
	return cmd
}

// resolveFile applies the descriptor file at path to s and resolves,
// refreshing bundles that depend on replaced or removed ones.
func (a *app) resolveFile(s *bundlestate.State, path string) (*bundlestate.Delta, error) {
	f, err := manifest.ParseFile(path)
	if err != nil {
		return nil, err
	}
	for _, w := range f.Warnings {
		a.log.Warn(w.Message, "pos", w.Pos.String())
	}
	sum, err := f.Apply(s)
	if err != nil {
		return nil, err
	}
	delta, err := s.ResolveBundles()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve: %w", err)
	}
	a.log.Info("descriptor file resolved",
		"file", path,
		"added", sum.Added,
		"updated", sum.Updated,
		"removed", sum.Removed,
		"resolved", len(delta.Changes(bundlestate.Resolved, false)),
		"unresolved", len(delta.Changes(bundlestate.Unresolved, false)),
		"timestamp", s.Timestamp(),
	)
	return delta, nil
}
