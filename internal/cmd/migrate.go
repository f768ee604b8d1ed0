package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Misakaka10086/IoT-Platform/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := schema.Up(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString()); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		all, _ := cmd.Flags().GetBool("all")
		if all {
			steps = 0
		} else if steps <= 0 {
			return fmt.Errorf("--steps must be positive, or pass --all")
		}
		if err := schema.Down(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString(), steps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd)
	},
}

type schemaVersion struct {
	Version uint `json:"version" yaml:"version"`
	Dirty   bool `json:"dirty" yaml:"dirty"`
	Applied bool `json:"applied" yaml:"applied"`
}

func printVersion(cmd *cobra.Command) error {
	v, dirty, ok, err := schema.Version(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString())
	if err != nil {
		return err
	}
	sv := schemaVersion{Version: v, Dirty: dirty, Applied: ok}
	return render(cmd.OutOrStdout(), sv, func(w io.Writer) {
		switch {
		case !ok:
			fmt.Fprintln(w, "no migrations applied")
		case dirty:
			fmt.Fprintf(w, "schema version %d (dirty)\n", v)
		default:
			fmt.Fprintf(w, "schema version %d\n", v)
		}
	})
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "roll back every migration")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
