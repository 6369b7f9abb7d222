package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bptrack/bptrack/internal/config"
	"github.com/bptrack/bptrack/internal/domain/measurement"
	"github.com/bptrack/bptrack/internal/domain/profile"
	"github.com/bptrack/bptrack/internal/platform/db"
	"github.com/bptrack/bptrack/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "bptrack-server",
		Short:        "Blood pressure tracking API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFS(flagOr(cmd, "dir", cfg.MigrationsDir)), flagOr(cmd, "schema", cfg.DBSchema))
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := flagOr(cmd, "schema", cfg.DBSchema)
			migrator := db.NewMigrator(pool, migrationFS(flagOr(cmd, "dir", cfg.MigrationsDir)), schema)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's measurements as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			out, _ := cmd.Flags().GetString("out")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			measurements, profiles := newServices(pool, logger)

			records, err := measurements.All(ctx, userID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				if out == "" {
					out = measurement.ExportFilename(time.Now())
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := measurement.WriteCSV(w, records, profiles.Location(ctx, userID)); err != nil {
				return err
			}
			logger.Info().Str("user_id", userID).Int("count", len(records)).Str("out", out).Msg("export written")
			return nil
		},
	}
	cmd.Flags().String("user", "", "Owner id whose measurements are exported")
	cmd.Flags().String("out", "", `Output file; "-" for stdout (default pomiary-cisnienia-<date>.csv)`)
	return cmd
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Schema:      cfg.DBSchema,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// newServices builds the measurement and profile services over pool.
func newServices(pool *pgxpool.Pool, logger zerolog.Logger) (*measurement.Service, *profile.Service) {
	measurements := measurement.NewService(
		measurement.NewMeasurementRepoPG(pool),
		measurement.NewInterpretationLogRepoPG(pool),
		logger,
	)
	measurements.SetSnapshot(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.ReadSnapshot(ctx, pool, fn)
	})
	profiles := profile.NewService(profile.NewRepoPG(pool), logger)
	return measurements, profiles
}

// migrationFS returns dir as a filesystem, or the embedded migrations when
// dir is empty.
func migrationFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
