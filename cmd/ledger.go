package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zpool/internal/repository/db"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the placement ledger table",
}

var ledgerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the placement ledger table",
	RunE: func(cmd *cobra.Command, args []string) error {
		dynamoDb, err := db.NewDatabase(cfg.AwsConfig, cfg.LedgerTable)
		if err != nil {
			return fmt.Errorf("failed to connect to the database: %w", err)
		}

		if err := dynamoDb.MigrateDb(cmd.Context()); err != nil {
			return fmt.Errorf("failed to migrate the database: %w", err)
		}

		fmt.Println("Placement ledger initialized successfully")
		return nil
	},
}

var ledgerDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the placement ledger table",
	RunE: func(cmd *cobra.Command, args []string) error {
		dynamoDb, err := db.NewDatabase(cfg.AwsConfig, cfg.LedgerTable)
		if err != nil {
			return fmt.Errorf("failed to connect to the database: %w", err)
		}

		if err := dynamoDb.MigrateDown(cmd.Context()); err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}

		fmt.Println("Placement ledger dropped successfully")
		return nil
	},
}

var ledgerListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List recorded placements under a destination prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dynamoDb, err := db.NewDatabase(cfg.AwsConfig, cfg.LedgerTable)
		if err != nil {
			return fmt.Errorf("failed to connect to the database: %w", err)
		}

		records, err := dynamoDb.Placements().ListPlacementsByPrefix(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s/%s\t%s\t%s\n", r.Prefix, r.FileName, r.Account, r.Location)
		}
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerInitCmd)
	ledgerCmd.AddCommand(ledgerDownCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
	rootCmd.AddCommand(ledgerCmd)
}
