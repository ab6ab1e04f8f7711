package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/postgres"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/sqlite"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var status, rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: "Applies the Postgres migrations when DATABASE_URL is set. The SQLite " +
			"schema is created on open, so for SQLite this only checks the file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status && rollback {
				return fmt.Errorf("--status and --rollback are exclusive")
			}
			ctx := cmd.Context()
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !cfg.Database.UsePostgres() {
				if rollback {
					return fmt.Errorf("rollback is only supported on Postgres")
				}
				s, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
				if err != nil {
					return err
				}
				defer s.Close()
				fmt.Fprintln(out, Good.Render(IconDone+" SQLite schema is up to date ")+Muted.Render(cfg.Database.SQLitePath))
				return nil
			}

			conn, err := postgres.Connect(ctx, cfg.Database.URL, postgres.DefaultPoolOptions())
			if err != nil {
				return err
			}
			defer conn.Close()
			m := postgres.NewMigrator(conn)

			switch {
			case status:
				list, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, Heading(IconScroll, "Migrations"))
				for _, mig := range list {
					state := Warn.Render("pending")
					if mig.IsApplied {
						state = Good.Render("applied") + " " + Muted.Render(mig.AppliedAt.Format("2006-01-02 15:04"))
					}
					fmt.Fprintf(out, "- %03d %s %s\n", mig.Version, mig.Name, state)
				}
			case rollback:
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, Warn.Render("Rolled back the last migration"))
			default:
				n, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, Good.Render(fmt.Sprintf("%s %d migration(s) applied", IconDone, n)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list migrations and their state")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "revert the last applied migration")
	return cmd
}
