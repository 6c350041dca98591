package main

import (
	"fmt"
	"os"

	"ledger/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(os.Getenv("CLUSTER_NODE_ID"), os.Getenv("LOG_LEVEL"))
	if _, err := os.Stat(".env"); err != nil {
		log.Warn().Msg("no .env file found")
	}

	root := &cobra.Command{
		Use:   "ledgerd",
		Short: "ledgerd runs the service-credit ledger",
	}
	root.AddCommand(newServeCmd(log))
	root.AddCommand(newMigrateCmd(log))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
