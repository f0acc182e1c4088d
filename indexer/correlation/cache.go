package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/cache"
	"github.com/ethpandaops/dexindexer/metrics"
)

// ErrNoCounterpart is returned when the other half of a liquidity action is not staged (yet).
var ErrNoCounterpart = errors.New("correlation counterpart not staged")

// HashStore is the shared hash storage holding staged entries.
type HashStore interface {
	HSet(ctx context.Context, hash string, field string, value []byte) error
	HGet(ctx context.Context, hash string, field string) ([]byte, error)
	HGetAll(ctx context.Context, hash string) (map[string]string, error)
	HDel(ctx context.Context, hash string, fields ...string) (int64, error)
	HLen(ctx context.Context, hash string) (int64, error)
}

// Cache stages half resolved actions until their counterpart arrives.
// Entries older than the configured ttl are moved to a dead letter hash by the resolvers.
type Cache struct {
	store  HashStore
	ttl    time.Duration
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewCache(store HashStore, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Expired reports whether an entry staged at stagedAt outlived the ttl. A zero ttl never expires.
func (c *Cache) Expired(header *Header) bool {
	if c.ttl <= 0 || header.StagedAt == 0 {
		return false
	}
	return c.now().Sub(time.UnixMilli(header.StagedAt)) > c.ttl
}

func (c *Cache) put(ctx context.Context, kind Kind, key string, header *Header, value interface{}) error {
	if header.StagedAt == 0 {
		header.StagedAt = c.now().UnixMilli()
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.store.HSet(ctx, string(kind), key, data); err != nil {
		return fmt.Errorf("error staging %v %v: %w", kind, key, err)
	}
	return nil
}

// decode reads a staged json object, accepting numbers encoded as strings and vice versa.
func decode(raw []byte, out interface{}) error {
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Squash:           true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

// StageTransfer stores a liquidity token transfer. Of several transfers of one pool in one
// transaction the largest amount is kept, ties go to the later transfer.
func (c *Cache) StageTransfer(ctx context.Context, data *TransferData) error {
	existing := &TransferData{}
	if raw, err := c.store.HGet(ctx, string(KindTransfer), data.Key()); err == nil && decode(raw, existing) == nil {
		newAmount, err1 := ParseAmount(data.Amount)
		oldAmount, err2 := ParseAmount(existing.Amount)
		if err1 == nil && err2 == nil && oldAmount.Cmp(newAmount) > 0 {
			return nil
		}
	} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}

	return c.put(ctx, KindTransfer, data.Key(), &data.Header, data)
}

// StageLiquidity stores the Mint or Burn half of a liquidity action.
func (c *Cache) StageLiquidity(ctx context.Context, kind Kind, data *LiquidityData) error {
	if kind != KindMint && kind != KindBurn {
		return fmt.Errorf("invalid liquidity kind %v", kind)
	}
	return c.put(ctx, kind, data.Key(), &data.Header, data)
}

func (c *Cache) StageSwap(ctx context.Context, data *SwapData) error {
	return c.put(ctx, KindSwap, data.Key(), &data.Header, data)
}

func (c *Cache) StageNfpmTransfer(ctx context.Context, data *NfpmTransferData) error {
	return c.put(ctx, KindNfpmTransfer, data.Key(), &data.Header, data)
}

// Counterpart loads the liquidity half of kind staged under key.
func (c *Cache) Counterpart(ctx context.Context, kind Kind, key string) (*LiquidityData, error) {
	raw, err := c.store.HGet(ctx, string(kind), key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNoCounterpart
	}
	if err != nil {
		return nil, err
	}

	data := &LiquidityData{}
	if err := decode(raw, data); err != nil {
		return nil, fmt.Errorf("invalid %v entry %v: %w", kind, key, err)
	}
	return data, nil
}

// Remove deletes resolved entries.
func (c *Cache) Remove(ctx context.Context, kind Kind, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.store.HDel(ctx, string(kind), keys...)
	return err
}

// DeadLetter moves an entry to the dead letter hash of its kind.
func (c *Cache) DeadLetter(ctx context.Context, kind Kind, key string) error {
	raw, err := c.store.HGet(ctx, string(kind), key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	if err == nil {
		if err := c.store.HSet(ctx, kind.DeadLetter(), key, raw); err != nil {
			return err
		}
	}
	_, err = c.store.HDel(ctx, string(kind), key)
	return err
}

// Pending returns the number of staged entries of kind and updates the gauge.
func (c *Cache) Pending(ctx context.Context, kind Kind) (int64, error) {
	count, err := c.store.HLen(ctx, string(kind))
	if err != nil {
		return 0, err
	}
	metrics.CorrelationPending.WithLabelValues(string(kind)).Set(float64(count))
	return count, nil
}

// entries decodes every entry of a hash. Undecodable entries are dead lettered.
func entries[T any](ctx context.Context, c *Cache, kind Kind, newEntry func() *T) (map[string]*T, error) {
	values, err := c.store.HGetAll(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("error loading %v entries: %w", kind, err)
	}

	result := make(map[string]*T, len(values))
	for key, raw := range values {
		entry := newEntry()
		if err := decode([]byte(raw), entry); err != nil {
			c.logger.WithError(err).Warnf("dropping undecodable %v entry %v", kind, key)
			if err := c.DeadLetter(ctx, kind, key); err != nil {
				return nil, err
			}
			continue
		}
		result[key] = entry
	}
	return result, nil
}

// Transfers returns all staged transfers ordered by block and log index.
func (c *Cache) Transfers(ctx context.Context) ([]*TransferData, error) {
	values, err := entries(ctx, c, KindTransfer, func() *TransferData { return &TransferData{} })
	if err != nil {
		return nil, err
	}
	result := make([]*TransferData, 0, len(values))
	for _, v := range values {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return headerLess(&result[i].Header, &result[j].Header) })
	return result, nil
}

// Swaps returns all staged swaps ordered by block and log index.
func (c *Cache) Swaps(ctx context.Context) ([]*SwapData, error) {
	values, err := entries(ctx, c, KindSwap, func() *SwapData { return &SwapData{} })
	if err != nil {
		return nil, err
	}
	result := make([]*SwapData, 0, len(values))
	for _, v := range values {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return headerLess(&result[i].Header, &result[j].Header) })
	return result, nil
}

// NfpmTransfers returns all staged position transfers ordered by block and log index.
func (c *Cache) NfpmTransfers(ctx context.Context) ([]*NfpmTransferData, error) {
	values, err := entries(ctx, c, KindNfpmTransfer, func() *NfpmTransferData { return &NfpmTransferData{} })
	if err != nil {
		return nil, err
	}
	result := make([]*NfpmTransferData, 0, len(values))
	for _, v := range values {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return headerLess(&result[i].Header, &result[j].Header) })
	return result, nil
}

// Liquidity returns all staged halves of kind, used to expire orphans.
func (c *Cache) Liquidity(ctx context.Context, kind Kind) (map[string]*LiquidityData, error) {
	return entries(ctx, c, kind, func() *LiquidityData { return &LiquidityData{} })
}

func headerLess(a *Header, b *Header) bool {
	if a.ChainId != b.ChainId {
		return a.ChainId < b.ChainId
	}
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	return a.LogIndex < b.LogIndex
}
