package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zpool/internal/config"
	zerrors "github.com/zzenonn/zpool/internal/errors"
	"github.com/zzenonn/zpool/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capacity of every account in the pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(m *service.Manager) error {
			status, err := m.Status()
			if errors.Is(err, zerrors.ErrNoAccounts) {
				fmt.Println("No accounts found")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Accounts: %d (%d active)\n", status.AccountCount, status.ActiveCount)
			for _, a := range m.Accounts() {
				fmt.Printf("  %s\n", a)
			}
			fmt.Printf("Total free: %s / %s\n",
				humanize.IBytes(uint64(status.TotalFree)),
				humanize.IBytes(uint64(status.TotalSpace)))
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [account]",
	Short: "Re-read capacity for one account or the whole pool",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(m *service.Manager) error {
			if len(args) == 1 {
				account, err := m.Refresh(cmd.Context(), args[0])
				if account.Name != "" {
					fmt.Println(account)
				}
				return err
			}

			report, err := m.RefreshAll(cmd.Context())
			for _, o := range report.Outcomes {
				if o.Err != nil {
					fmt.Printf("  ✗ %s: %v\n", o.Account, o.Err)
				} else {
					fmt.Printf("  ✓ %s\n", o.Account)
				}
			}
			fmt.Printf("Refreshed %d of %d account(s)\n", len(report.Succeeded()), len(report.Outcomes))
			return err
		})
	},
}

var addName string

var addCmd = &cobra.Command{
	Use:   "add [session-file | account]",
	Short: "Add an account to the pool and show its capacity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(m *service.Manager) error {
			account, err := m.Add(cmd.Context(), args[0], addName)
			if account.Name != "" {
				fmt.Printf("Added %s\n", account)
			}
			return err
		})
	},
}

var bestCmd = &cobra.Command{
	Use:   "best [size]",
	Short: "Show which account would receive a file of the given size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := config.ParseSize(args[0])
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", args[0], err)
		}

		return withPool(cmd.Context(), func(m *service.Manager) error {
			account, err := m.BestAccount(cmd.Context(), size)
			if err != nil {
				return err
			}
			fmt.Println(account)
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "account name, defaults to the session file name")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(bestCmd)
}
