package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/intake/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBPruneCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the intake tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if _, err := openStore(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Storage.Driver)
	return nil
}

func newDBPruneCmd() *cobra.Command {
	var (
		configPath string
		keepDays   int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished sessions older than the retention window",
		Long:  "Deletes completed, abandoned and expired sessions, with their transcripts, whose last activity is older than --keep-days (default retention.keep_days).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPrune(cmd, configPath, keepDays)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "override retention.keep_days")
	return cmd
}

func runDBPrune(cmd *cobra.Command, configPath string, keepDays int) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if keepDays == 0 {
		keepDays = cfg.Retention.KeepDays
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	n, err := st.Prune(keepDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d sessions older than %d days\n", n, keepDays)
	return nil
}
