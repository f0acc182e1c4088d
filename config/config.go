package config

import (
	_ "embed"
)

// indexer defaults
//
//go:embed default.config.yml
var DefaultConfigYml string
