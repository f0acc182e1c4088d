package utils

import (
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/dexindexer/config"
	"github.com/ethpandaops/dexindexer/types"
)

// Config is the globally accessible configuration
var Config *types.Config

// ReadConfig will process a configuration
func ReadConfig(cfg *types.Config, path string) error {
	err := yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	if err != nil {
		return fmt.Errorf("error decoding default config: %v", err)
	}

	err = readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	err = readConfigEnv(cfg)
	if err != nil {
		return err
	}

	return ApplyChainDefaults(cfg)
}

// ApplyChainDefaults fills every chain from chainDefaults and validates the result.
func ApplyChainDefaults(cfg *types.Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("missing chain config (need at least 1 chain to run the indexer)")
	}

	seen := map[uint64]bool{}
	for idx := range cfg.Chains {
		chain := &cfg.Chains[idx]
		err := mergo.Merge(chain, cfg.ChainDefaults)
		if err != nil {
			return fmt.Errorf("error merging chain defaults for chain %v: %v", chain.ChainId, err)
		}

		if chain.ChainId == 0 {
			return fmt.Errorf("chain #%v: missing chainId", idx)
		}
		if seen[chain.ChainId] {
			return fmt.Errorf("chain %v configured twice", chain.ChainId)
		}
		seen[chain.ChainId] = true

		if chain.Name == "" {
			chain.Name = fmt.Sprintf("chain-%v", chain.ChainId)
		}
		if chain.BlockRange == 0 {
			chain.BlockRange = cfg.Indexer.DefaultBlockRange
		}
		if len(chain.Endpoints) == 0 {
			return fmt.Errorf("chain %v: missing rpc endpoints (need at least 1 endpoint)", chain.ChainId)
		}
		// merged defaults share their backing array with chainDefaults
		chain.Endpoints = append([]types.EndpointConfig(nil), chain.Endpoints...)
		for eidx := range chain.Endpoints {
			endpoint := &chain.Endpoints[eidx]
			if endpoint.Url == "" {
				return fmt.Errorf("chain %v: endpoint #%v has no url", chain.ChainId, eidx)
			}
			if endpoint.Name == "" {
				endpoint.Name = fmt.Sprintf("%v-rpc%v", chain.Name, eidx)
			}
		}

		for name, addr := range map[string]string{
			"oracleAddress":     chain.OracleAddress,
			"v2Factory.address": chain.V2Factory.Address,
			"clFactory.address": chain.ClFactory.Address,
			"nfpm.address":      chain.Nfpm.Address,
		} {
			if addr != "" && !common.IsHexAddress(addr) {
				return fmt.Errorf("chain %v: invalid %v: %v", chain.ChainId, name, addr)
			}
		}
		chain.OracleAddress = strings.ToLower(chain.OracleAddress)
		chain.V2Factory.Address = strings.ToLower(chain.V2Factory.Address)
		chain.ClFactory.Address = strings.ToLower(chain.ClFactory.Address)
		chain.Nfpm.Address = strings.ToLower(chain.Nfpm.Address)

		log.WithFields(log.Fields{
			"chainId":   chain.ChainId,
			"name":      chain.Name,
			"endpoints": len(chain.Endpoints),
			"range":     chain.BlockRange,
		}).Infof("did init chain config")
	}

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}
