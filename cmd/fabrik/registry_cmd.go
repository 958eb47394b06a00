package main

import (
	"context"
	"fmt"

	"github.com/cuemby/fabrik/pkg/config"
	"github.com/cuemby/fabrik/pkg/registry"
	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the component/application/environment registry",
}

var registryMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the PostgreSQL registry backend",
	Long: `migrate runs every pending golang-migrate migration against the
registry's PostgreSQL schema (registry.Migrate). It is a no-op, not an
error, if the schema is already current. Only applies to the "postgres"
registry backend; the "bolt" backend needs no migration step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, _ := cmd.Flags().GetString("dsn")
		if dsn == "" {
			dsn = cfg.Registry.DSN
		}
		if dsn == "" {
			return fmt.Errorf("--dsn is required (or set registry.dsn in config)")
		}
		if err := registry.Migrate(dsn); err != nil {
			return fmt.Errorf("migrate registry schema: %w", err)
		}
		fmt.Println("registry schema up to date")
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryMigrateCmd)
	registryMigrateCmd.Flags().String("dsn", "", "PostgreSQL connection string (default from config)")
}

// openRegistryStore opens the registry.Store named by rc.Backend: "bolt"
// (the default, single-binary-friendly) or "postgres".
func openRegistryStore(ctx context.Context, rc config.RegistryConfig) (registry.Store, error) {
	switch rc.Backend {
	case "", "bolt":
		return registry.NewBoltStore(rc.DataDir)
	case "postgres":
		return registry.NewPgxStore(ctx, rc.DSN)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", rc.Backend)
	}
}
