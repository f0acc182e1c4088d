package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

type ExecutionClient struct {
	name       string
	endpoint   string
	headers    map[string]string
	blockRange uint64
	limiter    *rate.Limiter
	initMutex  sync.Mutex
	rpcClient  *rpc.Client
	ethClient  *ethclient.Client
}

// NewExecutionClient is used to create a new execution client.
// A rateLimit of 0 disables request throttling.
func NewExecutionClient(name, endpoint string, headers map[string]string, blockRange uint64, rateLimit float64, rateBurst int) *ExecutionClient {
	client := &ExecutionClient{
		name:       name,
		endpoint:   endpoint,
		headers:    headers,
		blockRange: blockRange,
	}

	if rateLimit > 0 {
		if rateBurst <= 0 {
			rateBurst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(rateLimit), rateBurst)
	}

	return client
}

func (ec *ExecutionClient) Initialize(ctx context.Context) error {
	ec.initMutex.Lock()
	defer ec.initMutex.Unlock()

	if ec.ethClient != nil {
		return nil
	}

	rpcClient, err := rpc.DialContext(ctx, ec.endpoint)
	if err != nil {
		return err
	}

	for hKey, hVal := range ec.headers {
		rpcClient.SetHeader(hKey, hVal)
	}

	ec.rpcClient = rpcClient
	ec.ethClient = ethclient.NewClient(rpcClient)

	return nil
}

func (ec *ExecutionClient) Close() {
	ec.initMutex.Lock()
	defer ec.initMutex.Unlock()

	if ec.rpcClient != nil {
		ec.rpcClient.Close()
		ec.rpcClient = nil
		ec.ethClient = nil
	}
}

func (ec *ExecutionClient) GetName() string {
	return ec.name
}

// GetBlockRange returns the preferred log query range of this endpoint, 0 if unset.
func (ec *ExecutionClient) GetBlockRange() uint64 {
	return ec.blockRange
}

// prepare lazily dials the endpoint and waits for the rate limiter.
func (ec *ExecutionClient) prepare(ctx context.Context) (*ethclient.Client, error) {
	if err := ec.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("could not connect to %v: %w", ec.name, err)
	}
	if ec.limiter != nil {
		if err := ec.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ec.initMutex.Lock()
	defer ec.initMutex.Unlock()
	if ec.ethClient == nil {
		return nil, fmt.Errorf("client %v closed", ec.name)
	}
	return ec.ethClient, nil
}

func (ec *ExecutionClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	client, err := ec.prepare(ctx)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

func (ec *ExecutionClient) GetHeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	client, err := ec.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
}

func (ec *ExecutionClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	client, err := ec.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return client.FilterLogs(ctx, query)
}

func (ec *ExecutionClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := ec.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, blockNumber)
}

type rpcTransaction struct {
	From        common.Address  `json:"from"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	BlockHash   *common.Hash    `json:"blockHash"`
	Hash        common.Hash     `json:"hash"`
	To          *common.Address `json:"to"`
}

// GetTransactionFrom returns the sender of a mined transaction.
func (ec *ExecutionClient) GetTransactionFrom(ctx context.Context, hash common.Hash) (common.Address, error) {
	client, err := ec.prepare(ctx)
	if err != nil {
		return common.Address{}, err
	}

	var result *rpcTransaction
	err = client.Client().CallContext(ctx, &result, "eth_getTransactionByHash", hash)
	if err != nil {
		return common.Address{}, err
	}
	if result == nil {
		return common.Address{}, ethereum.NotFound
	}
	return result.From, nil
}
