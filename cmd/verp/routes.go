package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	verp "github.com/tonyluong2025/verp-sub017"
)

func newRoutesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes [tenant]",
		Short: "Print the routing table of a tenant",
		Long: `Print the routing table compiled for a tenant from its installed modules.
Without a tenant, the table served when no database is selected is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			s, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			var tenant string
			if len(args) == 1 {
				tenant = args[0]
			}
			rules, err := s.app.Routes(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
}

func printRules(w io.Writer, rules []verp.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tMETHODS\tAUTH\tTYPE\tENDPOINT\tMODULE")
	for _, r := range rules {
		methods := "*"
		if len(r.Endpoint.Meta.Methods) > 0 {
			methods = strings.Join(r.Endpoint.Meta.Methods, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Pattern, methods, r.Endpoint.Meta.Auth, r.Endpoint.Meta.Type, r.Endpoint.Key, r.Endpoint.Module)
	}
	return tw.Flush()
}
