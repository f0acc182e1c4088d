package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/chain"
	"github.com/ethpandaops/dexindexer/indexer/watchers"
	"github.com/ethpandaops/dexindexer/types"
)

func newTestService(t *testing.T) *IndexerService {
	t.Helper()
	logger, _ := test.NewNullLogger()

	access := &chain.Access{
		ChainId: 7,
		Config: &types.ChainConfig{
			ChainId:   7,
			Name:      "testnet",
			V2Factory: types.ContractConfig{Address: "0x00000000000000000000000000000000000000f1"},
		},
		Logger: logger,
	}
	indexerConfig := &types.IndexerConfig{DisableResolver: true}
	wc := watchers.NewWatcherCtx(access, nil, nil, nil, nil, indexerConfig)
	cs := newChainService(access, wc, indexerConfig)
	cs.sources[0].pools.Registry().Add(common.HexToAddress("0xb0"), 10)
	wc.Counters.Add("v2-pool", 4)

	return &IndexerService{
		logger: logger,
		config: &types.Config{},
		chains: []*chainService{cs},
	}
}

func TestChainServiceWiresEnabledWatchers(t *testing.T) {
	svc := newTestService(t)
	cs := svc.chains[0]

	names := []string{}
	for _, r := range cs.runners {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"v2-factory", "v2-pool"}, names)
	require.Len(t, cs.sources, 1)
}

func TestStatusEndpoint(t *testing.T) {
	svc := newTestService(t)
	router := NewStatusRouter(svc, false)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	response := &statusResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), response))
	require.Len(t, response.Chains, 1)
	assert.Equal(t, uint64(7), response.Chains[0].ChainId)
	assert.Equal(t, "testnet", response.Chains[0].Name)
	assert.Equal(t, 1, response.Chains[0].WatchedPools["v2-pool"])
	require.Len(t, response.Chains[0].Watchers, 1)
	assert.Equal(t, uint64(4), response.Chains[0].Watchers[0].Processed)
}

func TestHealthzWithoutDatabase(t *testing.T) {
	router := NewStatusRouter(newTestService(t), false)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}
