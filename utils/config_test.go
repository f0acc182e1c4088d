package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadConfigMergesChainDefaults(t *testing.T) {
	path := writeConfig(t, `
chainDefaults:
  endpoints:
    - url: "http://127.0.0.1:8545"
chains:
  - chainId: 745
    name: "testnet"
    blockRange: 50
    v2Factory:
      address: "0xE41d241720FEE7cD6BDfA9aB3204d23687703CD5"
  - chainId: 2
    endpoints:
      - url: "http://127.0.0.1:9545"
        name: "local"
`)

	cfg := &types.Config{}
	require.NoError(t, ReadConfig(cfg, path))
	require.Len(t, cfg.Chains, 2)

	first := cfg.Chains[0]
	assert.Equal(t, uint64(50), first.BlockRange)
	require.Len(t, first.Endpoints, 1)
	assert.Equal(t, "http://127.0.0.1:8545", first.Endpoints[0].Url)
	assert.Equal(t, "testnet-rpc0", first.Endpoints[0].Name)
	assert.Equal(t, "0xe41d241720fee7cd6bdfa9ab3204d23687703cd5", first.V2Factory.Address)

	second := cfg.Chains[1]
	assert.Equal(t, "chain-2", second.Name)
	assert.Equal(t, uint64(100), second.BlockRange)
	require.Len(t, second.Endpoints, 1)
	assert.Equal(t, "local", second.Endpoints[0].Name)

	assert.Equal(t, 30*time.Second, cfg.Indexer.Lock.TTL)
	assert.Equal(t, "resource-lock", cfg.Indexer.Lock.Prefix)
}

func TestApplyChainDefaultsRejectsInvalidChains(t *testing.T) {
	endpoint := []types.EndpointConfig{{Url: "http://127.0.0.1:8545"}}

	tests := []struct {
		name   string
		chains []types.ChainConfig
	}{
		{"no chains", nil},
		{"missing chain id", []types.ChainConfig{{Endpoints: endpoint}}},
		{"duplicate chain id", []types.ChainConfig{{ChainId: 1, Endpoints: endpoint}, {ChainId: 1, Endpoints: endpoint}}},
		{"missing endpoints", []types.ChainConfig{{ChainId: 1}}},
		{"invalid address", []types.ChainConfig{{ChainId: 1, Endpoints: endpoint, Nfpm: types.ContractConfig{Address: "0x1234"}}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := &types.Config{Chains: test.chains}
			assert.Error(t, ApplyChainDefaults(cfg))
		})
	}
}
