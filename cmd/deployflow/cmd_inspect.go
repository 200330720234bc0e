package main

import (
	"fmt"
	"sort"

	"github.com/branched-services/go-deployflow"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact-dir>",
		Short: "Print an artifact's methods, events and bytecode size",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			art, err := deployflow.LoadArtifact(args[0])
			if err != nil {
				return err
			}
			out := c.OutOrStdout()

			fmt.Fprintf(out, "Artifact : %s\n", art.Name)
			fmt.Fprintf(out, "Bytecode : %d bytes\n", len(art.Bytecode))

			methods := make([]string, 0, len(art.ABI.Methods))
			for _, m := range art.ABI.Methods {
				methods = append(methods, m.Sig)
			}
			sort.Strings(methods)
			for _, sig := range methods {
				fmt.Fprintf(out, "  method %s\n", sig)
			}

			events := make([]string, 0, len(art.ABI.Events))
			for _, e := range art.ABI.Events {
				events = append(events, e.Sig)
			}
			sort.Strings(events)
			for _, sig := range events {
				fmt.Fprintf(out, "  event  %s\n", sig)
			}
			return nil
		},
	}
}
