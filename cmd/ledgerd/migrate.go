package main

import (
	"context"
	"fmt"

	"ledger/internal/config"
	"ledger/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newMigrateCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending relational-store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := pgxpool.New(cmd.Context(), cfg.RelationalURL)
			if err != nil {
				return fmt.Errorf("connect to relational store: %w", err)
			}
			defer pool.Close()

			return runMigrations(cmd.Context(), pool, log)
		},
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	names, err := migrations.Names()
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}
	for _, name := range names {
		body, err := migrations.Read(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied")
	}
	return nil
}
