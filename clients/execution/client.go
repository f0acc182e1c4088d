package execution

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/clients/execution/rpc"
)

type ClientStatus uint8

var (
	ClientStatusUnknown ClientStatus = 0
	ClientStatusOnline  ClientStatus = 1
	ClientStatusOffline ClientStatus = 2
)

func (s ClientStatus) String() string {
	switch s {
	case ClientStatusOnline:
		return "online"
	case ClientStatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

type ClientConfig struct {
	URL        string
	Name       string
	Headers    map[string]string
	BlockRange uint64
	RateLimit  float64
	RateBurst  int
}

// Client is one json-rpc endpoint of a chain.
type Client struct {
	clientIdx      uint16
	endpointConfig *ClientConfig
	rpcClient      *rpc.ExecutionClient
	logger         logrus.FieldLogger

	requests  atomic.Uint64
	failures  atomic.Uint64
	statMutex sync.RWMutex
	status    ClientStatus
	lastError error
	lastEvent time.Time
}

func (pool *MultiEndpointClient) newPoolClient(clientIdx uint16, endpoint *ClientConfig) *Client {
	return &Client{
		clientIdx:      clientIdx,
		endpointConfig: endpoint,
		rpcClient:      rpc.NewExecutionClient(endpoint.Name, endpoint.URL, endpoint.Headers, endpoint.BlockRange, endpoint.RateLimit, endpoint.RateBurst),
		logger:         pool.logger.WithField("client", endpoint.Name),
	}
}

func (client *Client) GetName() string {
	return client.endpointConfig.Name
}

func (client *Client) GetStatus() ClientStatus {
	client.statMutex.RLock()
	defer client.statMutex.RUnlock()
	return client.status
}

func (client *Client) GetLastError() error {
	client.statMutex.RLock()
	defer client.statMutex.RUnlock()
	return client.lastError
}

func (client *Client) GetLastEventTime() time.Time {
	client.statMutex.RLock()
	defer client.statMutex.RUnlock()
	return client.lastEvent
}

// GetRequestStats returns the number of requests and failed requests sent to this endpoint.
func (client *Client) GetRequestStats() (uint64, uint64) {
	return client.requests.Load(), client.failures.Load()
}

func (client *Client) trackResult(err error) {
	client.requests.Add(1)

	client.statMutex.Lock()
	defer client.statMutex.Unlock()

	client.lastEvent = time.Now()
	if err != nil {
		client.failures.Add(1)
		client.status = ClientStatusOffline
		client.lastError = err
	} else {
		client.status = ClientStatusOnline
	}
}
