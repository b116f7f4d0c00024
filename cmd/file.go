package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
	"github.com/zzenonn/zpool/internal/service"
)

var dest string

// localFiles stats each path into a file descriptor
func localFiles(paths []string) ([]domain.File, error) {
	files := make([]domain.File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, domain.File{ID: p, Path: p, Size: info.Size()})
	}
	return files, nil
}

var planCmd = &cobra.Command{
	Use:   "plan [file-path...]",
	Short: "Show which account each file would be placed on",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := localFiles(args)
		if err != nil {
			return err
		}

		return withPool(cmd.Context(), func(m *service.Manager) error {
			plan, err := m.Plan(cmd.Context(), files)
			if err != nil && !errors.Is(err, zerrors.ErrPlanInfeasible) {
				return err
			}

			for _, a := range plan.Assignments {
				account := a.Account
				if !a.Assigned() {
					account = "(no space)"
				}
				fmt.Printf("  %s (%s) -> %s\n", a.File.Path, humanize.IBytes(uint64(a.File.Size)), account)
			}
			fmt.Printf("%d file(s), %s across %d account(s)\n",
				plan.FileCount(), humanize.IBytes(uint64(plan.TotalSize)), len(plan.AccountsUsed()))
			return err
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file-path...]",
	Short: "Upload files, rotating to the next account when one fills up",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := localFiles(args)
		if err != nil {
			return err
		}

		return withPool(cmd.Context(), func(m *service.Manager) error {
			for _, f := range files {
				result, err := m.UploadWithRotation(cmd.Context(), f, dest)
				if err != nil {
					return fmt.Errorf("error uploading %s: %w", f.Path, err)
				}
				fmt.Printf("File uploaded successfully: %s -> %s (%s)\n", f.Path, result.Location, result.Account)
				if len(result.Tried) > 0 {
					fmt.Printf("  rotated past full account(s): %v\n", result.Tried)
				}
			}
			return nil
		})
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate [file-name]",
	Short: "Find the account holding a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(m *service.Manager) error {
			record, err := m.Locate(cmd.Context(), dest, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s is on %s", record.Prefix, record.FileName, record.Account)
			if record.Location != "" {
				fmt.Printf(" at %s", record.Location)
			}
			fmt.Println()
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a folder across every account in the pool",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return withPool(cmd.Context(), func(m *service.Manager) error {
			entries, err := m.ListAll(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No files found")
				return nil
			}
			for _, e := range entries {
				if e.IsDir {
					fmt.Printf("%-20s %10s  %s/\n", e.Account, "-", e.Key)
					continue
				}
				fmt.Printf("%-20s %10s  %s\n", e.Account, humanize.IBytes(uint64(e.Size)), e.Key)
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, locateCmd} {
		c.Flags().StringVarP(&dest, "dest", "d", "", "destination folder on the account")
	}
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(lsCmd)
}
