package bracket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/dex"
	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Composer builds the master Safe transactions operating a fleet of brackets.
// Every transaction it returns is a single MultiSend delegate call the
// master executes; calls run in the order they are listed.
type Composer struct {
	master    common.Address
	multiSend common.Address
	exchange  dex.Exchange
	tokens    dex.TokenRegistry
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewComposer creates a composer for the fleet owned by master
func NewComposer(master, multiSend common.Address, exchange dex.Exchange, tokens dex.TokenRegistry, m *metrics.Metrics, logger *zap.Logger) (*Composer, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Composer{
		master:    master,
		multiSend: multiSend,
		exchange:  exchange,
		tokens:    tokens,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Master returns the master Safe address
func (c *Composer) Master() common.Address {
	return c.master
}

// MultiSend returns the MultiSend contract address
func (c *Composer) MultiSend() common.Address {
	return c.multiSend
}

// Bundle flattens txs into one MultiSend transaction
func (c *Composer) Bundle(txs []types.Transaction) (types.Transaction, error) {
	bundle, err := safe.FlattenBatch(c.multiSend, txs)
	if err != nil {
		return types.Transaction{}, err
	}
	c.logger.Debug("Built bundle",
		zap.Int("calls", len(txs)),
		zap.String("fingerprint", safe.Fingerprint(bundle)))
	return bundle, nil
}

// OrdersTransaction places both orders of every pair from its bracket
func (c *Composer) OrdersTransaction(pairs []types.OrderPair) (types.Transaction, error) {
	calls := make([]types.Transaction, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Bracket.Address == (common.Address{}) {
			return types.Transaction{}, fmt.Errorf("bracket %d has no address", pair.Bracket.Index)
		}
		place, err := c.exchange.PlaceValidFromOrders([]types.Order{pair.Sell, pair.Buy})
		if err != nil {
			return types.Transaction{}, fmt.Errorf("failed to build orders of bracket %d: %w", pair.Bracket.Index, err)
		}
		call, err := safe.WrapAsOwnerCall(c.master, pair.Bracket.Address, place)
		if err != nil {
			return types.Transaction{}, err
		}
		c.logger.Info("Bracket orders",
			zap.Int("bracket", pair.Bracket.Index),
			zap.String("address", pair.Bracket.Address.Hex()),
			zap.Float64("buyBelow", pair.Bracket.LowerLimit),
			zap.Float64("sellAbove", pair.Bracket.UpperLimit))
		calls = append(calls, call)
	}
	if c.metrics != nil {
		c.metrics.OrdersBuilt.Add(float64(2 * len(pairs)))
	}
	return c.Bundle(calls)
}

// describe renders amount of token for logs, falling back to raw units
func (c *Composer) describe(ctx context.Context, token common.Address, amount *big.Int) []zap.Field {
	fields := []zap.Field{zap.String("token", token.Hex()), zap.String("units", amount.String())}
	meta, err := c.tokens.Token(ctx, token)
	if err != nil {
		return fields
	}
	return append(fields,
		zap.String("symbol", meta.Symbol),
		zap.String("amount", bmath.FormatUnits(amount, meta.Decimals)))
}
