package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"campus-sync-service/internal/config"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewSeedCmd writes the sample catalog into Postgres so `start` can load it.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the Postgres catalog with sample courses and quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			return seedPostgres(cmd.Context(), cfg)
		},
	}
}

func seedPostgres(ctx context.Context, cfg config.Config) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	for id, course := range sampleCourses() {
		if err := upsertCatalogRow(ctx, db, "courses", id, course); err != nil {
			return err
		}
	}
	for id, quiz := range sampleQuizzes() {
		if err := upsertCatalogRow(ctx, db, "quizzes", id, quiz); err != nil {
			return err
		}
	}
	log.Printf("catalog seeded into postgres")
	return nil
}

func upsertCatalogRow(ctx context.Context, db *bun.DB, table, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`
	_, err = db.ExecContext(ctx, query, id, string(data))
	return err
}
