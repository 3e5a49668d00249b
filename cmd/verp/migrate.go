package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonyluong2025/verp-sub017/migrations"
	"github.com/tonyluong2025/verp-sub017/pkg/db"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "migrate [tenant...]",
		Short: "Create or upgrade the engine tables on tenant databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name at least one tenant or pass --all")
			}
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			pools := db.NewPools(cfg.DB)
			defer pools.Close()

			tenants := args
			if all {
				if tenants, err = pools.Databases(cmd.Context()); err != nil {
					return err
				}
			}
			for _, tenant := range tenants {
				pool, err := pools.Get(cmd.Context(), tenant)
				if err != nil {
					return fmt.Errorf("%s: %w", tenant, err)
				}
				if err := db.Migrate(cmd.Context(), pool, migrations.FS, cfg.DB.MigrationsTable, log.With("tenant", tenant)); err != nil {
					return fmt.Errorf("%s: %w", tenant, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", tenant)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Migrate every database on the server")
	return cmd
}
