package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memsast/internal/core"
	"memsast/internal/detectors"
)

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List detectors and the rule IDs they report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DETECTOR\tRULES\tDESCRIPTION")
			for _, d := range detectors.Default() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name(), strings.Join(d.Rules(), ","), d.Description())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", "(analyzer)",
				strings.Join([]string{core.RuleAnalysisTimedOut, core.RuleInputError}, ","),
				"Functions not analysed to completion and unreadable inputs")
			return w.Flush()
		},
	}
}
