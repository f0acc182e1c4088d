package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/dexindexer/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logWriter, logger, err := loadConfig()
		if err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		defer logWriter.Dispose()

		db.MustInitDB(&cfg.Database)
		defer db.MustCloseDB()
		if err := db.ApplyEmbeddedDbSchema(-2); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}

		logger.Infof("%v schema is up to date", cfg.Database.Engine)
		return nil
	},
}

var cursorsCmd = &cobra.Command{
	Use:   "cursors",
	Short: "Print the last processed block of every watched event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logWriter, _, err := loadConfig()
		if err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		defer logWriter.Dispose()

		db.MustInitDB(&cfg.Database)
		defer db.MustCloseDB()

		out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(out, "CHAIN\tEVENT\tCONTRACT\tLAST BLOCK")
		for _, chainConfig := range cfg.Chains {
			statuses, err := db.GetEventStatuses(cmd.Context(), chainConfig.ChainId)
			if err != nil {
				return err
			}
			for _, status := range statuses {
				fmt.Fprintf(out, "%v\t%v\t%v\t%v\n", status.ChainId, status.EventName, status.ContractAddress, status.LastBlockNumber)
			}
		}
		return out.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cursorsCmd)
}
