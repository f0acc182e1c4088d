package watchers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/utils"
)

// NfpmWatcher stages the position NFT transfers of the position manager for the NfpmResolver.
type NfpmWatcher struct {
	wc          *WatcherCtx
	name        string
	logger      logrus.FieldLogger
	contract    common.Address
	deployBlock uint64
}

func NewNfpmWatcher(wc *WatcherCtx) *NfpmWatcher {
	config := wc.Access.Config.Nfpm
	return &NfpmWatcher{
		wc:          wc,
		name:        "nfpm",
		logger:      wc.logger().WithField("watcher", "nfpm"),
		contract:    common.HexToAddress(config.Address),
		deployBlock: config.StartBlock,
	}
}

func (nw *NfpmWatcher) Name() string {
	return nw.name
}

func (nw *NfpmWatcher) Run(ctx context.Context) {
	defer utils.HandleSubroutinePanic("NfpmWatcher.Run")

	nw.logger.Infof("watching position manager %v from block %v", nw.contract.Hex(), nw.deployBlock)
	for ctx.Err() == nil {
		if _, err := nw.RunCycle(ctx); err != nil && ctx.Err() == nil {
			nw.logger.WithError(err).Warn("position manager cycle failed")
		}
		if !utils.Sleep(ctx, nw.wc.cycleInterval()) {
			break
		}
	}
}

func (nw *NfpmWatcher) RunCycle(ctx context.Context) (int, error) {
	return nw.wc.runCycle(ctx, &cycleOptions{
		watcher:     nw.name,
		contract:    nw.contract,
		deployBlock: nw.deployBlock,
		handlers: []*eventHandler{
			{
				event:  "Transfer",
				topic:  contracts.EventTopic(contracts.NfpmAbi, "Transfer"),
				handle: nw.handleTransfer,
			},
		},
	})
}

func (nw *NfpmWatcher) handleTransfer(ctx context.Context, log *types.Log) error {
	event := &contracts.PositionTransfer{}
	if err := contracts.DecodeLog(contracts.NfpmAbi, "Transfer", log, event); err != nil {
		return err
	}
	if _, err := nw.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	transferType := correlation.NfpmTransfer
	switch {
	case event.From == zeroAddress:
		transferType = correlation.NfpmMint
	case event.To == zeroAddress:
		transferType = correlation.NfpmBurn
	}

	return nw.wc.Correlation.StageNfpmTransfer(ctx, &correlation.NfpmTransferData{
		Header:  nw.wc.header(log),
		Type:    transferType,
		From:    lowerHex(event.From),
		To:      lowerHex(event.To),
		TokenId: event.TokenId.String(),
	})
}
