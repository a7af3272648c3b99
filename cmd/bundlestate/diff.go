package main

import (
	"encoding/json"
	"fmt"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/wiring"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDiffCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "diff <old-file> <new-file>",
		Short: "Compare the wiring of two descriptor files",
		Long: `Diff resolves both descriptor files into fresh states and reports bundles
that were added, removed, upgraded or downgraded, and requirements whose
provider changed. The state cache is neither read nor written.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
			opts, err := a.stateOptions()
			if err != nil {
				return err
			}
			var docs [2]*wiring.Document
			for i, path := range args {
				s, err := bundlestate.NewState(opts...)
				if err != nil {
					return err
				}
				if envs := a.cfg.platform(); len(envs) > 0 {
					if _, err := s.SetPlatformProperties(envs...); err != nil {
						return err
					}
				}
				if _, err := a.resolveFile(s, path); err != nil {
					return err
				}
				snap, err := s.Snapshot()
				if err != nil {
					return err
				}
				docs[i] = wiring.New(snap).Document()
			}

			d := wiring.DiffDocuments(docs[0], docs[1])
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				data, err := json.MarshalIndent(d, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\n", data)
				return err
			case "yaml":
				data, err := yaml.Marshal(d)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			_, err = fmt.Fprint(out, d.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}
