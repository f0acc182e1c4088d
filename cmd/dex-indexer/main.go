package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/dexindexer/types"
	"github.com/ethpandaops/dexindexer/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dex-indexer",
	Short: "Multi-chain DEX event indexer",
	Long:  "Indexes pool factories, pools and position managers of EVM DEX deployments into a relational store",
	RunE:  runIndexer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file, if empty string defaults will be used")
}

// loadConfig reads the config and initializes the global logger.
func loadConfig() (*types.Config, *utils.LogWriter, logrus.FieldLogger, error) {
	cfg := &types.Config{}
	if err := utils.ReadConfig(cfg, configPath); err != nil {
		return nil, nil, nil, err
	}
	utils.Config = cfg

	logWriter, logger := utils.InitLogger(cfg)
	return cfg, logWriter, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
