package execution

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEthService struct {
	blockNumber uint64
	fail        bool
	delay       time.Duration
	lastFilter  map[string]interface{}
}

func (s *fakeEthService) BlockNumber() (hexutil.Uint64, error) {
	time.Sleep(s.delay)
	if s.fail {
		return 0, errors.New("endpoint down")
	}
	return hexutil.Uint64(s.blockNumber), nil
}

func (s *fakeEthService) GetLogs(filter map[string]interface{}) ([]types.Log, error) {
	if s.fail {
		return nil, errors.New("endpoint down")
	}
	s.lastFilter = filter
	return []types.Log{}, nil
}

func startFakeEndpoint(t *testing.T, service *fakeEthService) string {
	t.Helper()
	server := gethrpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}

func newTestPool(t *testing.T, services ...*fakeEthService) *MultiEndpointClient {
	t.Helper()
	logger, _ := test.NewNullLogger()
	pool := NewMultiEndpointClient(1, 5*time.Second, logger)
	for i, service := range services {
		pool.AddEndpoint(&ClientConfig{
			URL:  startFakeEndpoint(t, service),
			Name: string(rune('a' + i)),
		})
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestRaceReturnsFirstSuccess(t *testing.T) {
	pool := newTestPool(t,
		&fakeEthService{fail: true},
		&fakeEthService{blockNumber: 1234, delay: 50 * time.Millisecond},
	)

	number, err := pool.GetLatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), number)

	assert.Equal(t, ClientStatusOffline, pool.GetAllEndpoints()[0].GetStatus())
	assert.Equal(t, ClientStatusOnline, pool.GetAllEndpoints()[1].GetStatus())
}

func TestRaceJoinsAllFailures(t *testing.T) {
	pool := newTestPool(t, &fakeEthService{fail: true}, &fakeEthService{fail: true})

	_, err := pool.GetLatestBlockNumber(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllEndpointsFailed)
	assert.Contains(t, err.Error(), "endpoint down")
}

func TestRaceWithoutEndpoints(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool := NewMultiEndpointClient(1, time.Second, logger)

	_, err := pool.GetLatestBlockNumber(context.Background())
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestFilterLogsInRangeClampsToLatest(t *testing.T) {
	service := &fakeEthService{}
	pool := newTestPool(t, service)

	logRange, err := pool.FilterLogsInRange(context.Background(), ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress("0x01")},
	}, 100, 150, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), logRange.FromBlock)
	assert.Equal(t, uint64(150), logRange.ToBlock)
	assert.Equal(t, "0x96", service.lastFilter["toBlock"])
}

func TestRangeEnd(t *testing.T) {
	tests := []struct {
		name          string
		from, latest  uint64
		endpointRange uint64
		defaultRange  uint64
		expected      uint64
	}{
		{"default range", 10, 1000, 0, 100, 110},
		{"endpoint range wins", 10, 1000, 20, 100, 30},
		{"clamped to latest", 10, 50, 0, 100, 50},
		{"never before start", 60, 50, 0, 100, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RangeEnd(tt.from, tt.latest, tt.endpointRange, tt.defaultRange))
		})
	}
}
