package main

import (
	"fmt"

	"github.com/spf13/cobra"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/pkg/db"
)

func newInvalidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <tenant|*>",
		Short: "Drop cached routing tables in every running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if target != "*" && !db.ValidTenant(target) {
				return fmt.Errorf("invalid tenant %q", target)
			}
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			pools := db.NewPools(cfg.DB)
			defer pools.Close()

			admin, err := pools.Admin(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.Notify(cmd.Context(), admin, verp.RegistryChannel, target); err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", target)
			return nil
		},
	}
}
