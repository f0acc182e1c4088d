package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/metrics"
)

var (
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	ErrNoEndpoints        = errors.New("no endpoints configured")
)

// LogRange is the result of a raced log query.
type LogRange struct {
	Logs      []types.Log
	FromBlock uint64
	ToBlock   uint64
	Endpoint  string
}

// ChainReader is the read access to one chain the indexer needs.
type ChainReader interface {
	GetChainId() uint64
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	// FilterLogsInRange queries logs from fromBlock up to the endpoint's preferred range, clamped to latestBlock.
	FilterLogsInRange(ctx context.Context, query ethereum.FilterQuery, fromBlock uint64, latestBlock uint64, defaultRange uint64) (*LogRange, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	GetTransactionFrom(ctx context.Context, hash common.Hash) (common.Address, error)
}

// MultiEndpointClient sends every read to all endpoints of a chain and returns the first success.
type MultiEndpointClient struct {
	chainId       uint64
	chainLabel    string
	logger        logrus.FieldLogger
	timeout       time.Duration
	clientCounter uint16
	clients       []*Client
	blockTimes    *lru.Cache[uint64, uint64]
}

var _ ChainReader = (*MultiEndpointClient)(nil)

func NewMultiEndpointClient(chainId uint64, timeout time.Duration, logger logrus.FieldLogger) *MultiEndpointClient {
	blockTimes, _ := lru.New[uint64, uint64](4096)
	return &MultiEndpointClient{
		chainId:    chainId,
		chainLabel: strconv.FormatUint(chainId, 10),
		logger:     logger,
		timeout:    timeout,
		clients:    make([]*Client, 0),
		blockTimes: blockTimes,
	}
}

func (pool *MultiEndpointClient) AddEndpoint(endpoint *ClientConfig) *Client {
	clientIdx := pool.clientCounter
	pool.clientCounter++
	client := pool.newPoolClient(clientIdx, endpoint)
	pool.clients = append(pool.clients, client)
	return client
}

func (pool *MultiEndpointClient) GetAllEndpoints() []*Client {
	return pool.clients
}

func (pool *MultiEndpointClient) GetChainId() uint64 {
	return pool.chainId
}

func (pool *MultiEndpointClient) Close() {
	for _, client := range pool.clients {
		client.rpcClient.Close()
	}
}

type raceResult[T any] struct {
	value  T
	client *Client
	err    error
}

// race runs fn against every endpoint concurrently. The first success cancels the others.
func race[T any](ctx context.Context, pool *MultiEndpointClient, op string, fn func(ctx context.Context, client *Client) (T, error)) (T, *Client, error) {
	var empty T
	if len(pool.clients) == 0 {
		return empty, nil, ErrNoEndpoints
	}

	startTime := time.Now()
	defer func() {
		metrics.RpcDuration.WithLabelValues(pool.chainLabel, op).Observe(time.Since(startTime).Seconds())
	}()

	var raceCtx context.Context
	var cancel context.CancelFunc
	if pool.timeout > 0 {
		raceCtx, cancel = context.WithTimeout(ctx, pool.timeout)
	} else {
		raceCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	results := make(chan raceResult[T], len(pool.clients))
	for _, client := range pool.clients {
		go func(client *Client) {
			value, err := fn(raceCtx, client)
			results <- raceResult[T]{value: value, client: client, err: err}
		}(client)
	}

	errs := make([]error, 0, len(pool.clients))
	for range pool.clients {
		result := <-results
		if result.err == nil {
			result.client.trackResult(nil)
			metrics.RpcRequests.WithLabelValues(pool.chainLabel, result.client.GetName(), "success").Inc()
			return result.value, result.client, nil
		}

		if ctx.Err() == nil {
			result.client.trackResult(result.err)
		}
		metrics.RpcRequests.WithLabelValues(pool.chainLabel, result.client.GetName(), "failure").Inc()
		pool.logger.WithField("client", result.client.GetName()).Debugf("%v failed: %v", op, result.err)
		errs = append(errs, fmt.Errorf("%v: %w", result.client.GetName(), result.err))
	}

	return empty, nil, fmt.Errorf("%v on chain %v: %w", op, pool.chainId, errors.Join(append([]error{ErrAllEndpointsFailed}, errs...)...))
}

func (pool *MultiEndpointClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	number, _, err := race(ctx, pool, "latest_block", func(ctx context.Context, client *Client) (uint64, error) {
		return client.rpcClient.GetLatestBlockNumber(ctx)
	})
	return number, err
}

func (pool *MultiEndpointClient) FilterLogsInRange(ctx context.Context, query ethereum.FilterQuery, fromBlock uint64, latestBlock uint64, defaultRange uint64) (*LogRange, error) {
	logRange, _, err := race(ctx, pool, "filter_logs", func(ctx context.Context, client *Client) (*LogRange, error) {
		toBlock := RangeEnd(fromBlock, latestBlock, client.rpcClient.GetBlockRange(), defaultRange)

		endpointQuery := query
		endpointQuery.FromBlock = new(big.Int).SetUint64(fromBlock)
		endpointQuery.ToBlock = new(big.Int).SetUint64(toBlock)

		logs, err := client.rpcClient.FilterLogs(ctx, endpointQuery)
		if err != nil {
			return nil, err
		}
		return &LogRange{
			Logs:      logs,
			FromBlock: fromBlock,
			ToBlock:   toBlock,
			Endpoint:  client.GetName(),
		}, nil
	})
	return logRange, err
}

func (pool *MultiEndpointClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	result, _, err := race(ctx, pool, "call", func(ctx context.Context, client *Client) ([]byte, error) {
		return client.rpcClient.CallContract(ctx, msg, nil)
	})
	return result, err
}

func (pool *MultiEndpointClient) GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if timestamp, ok := pool.blockTimes.Get(number); ok {
		return timestamp, nil
	}

	header, _, err := race(ctx, pool, "header", func(ctx context.Context, client *Client) (*types.Header, error) {
		return client.rpcClient.GetHeaderByNumber(ctx, number)
	})
	if err != nil {
		return 0, err
	}

	pool.blockTimes.Add(number, header.Time)
	return header.Time, nil
}

func (pool *MultiEndpointClient) GetTransactionFrom(ctx context.Context, hash common.Hash) (common.Address, error) {
	from, _, err := race(ctx, pool, "tx_sender", func(ctx context.Context, client *Client) (common.Address, error) {
		return client.rpcClient.GetTransactionFrom(ctx, hash)
	})
	return from, err
}

// RangeEnd returns the last block of a log query starting at fromBlock. The endpoint's range
// wins over defaultRange, the result never exceeds latestBlock.
func RangeEnd(fromBlock uint64, latestBlock uint64, endpointRange uint64, defaultRange uint64) uint64 {
	blockRange := endpointRange
	if blockRange == 0 {
		blockRange = defaultRange
	}
	toBlock := fromBlock + blockRange
	if toBlock > latestBlock {
		toBlock = latestBlock
	}
	if toBlock < fromBlock {
		toBlock = fromBlock
	}
	return toBlock
}
