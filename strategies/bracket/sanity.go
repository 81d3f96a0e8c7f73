package bracket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/dex"
	"github.com/michaelpento.lv/bracketbot/pricefeed"
	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PriceChecker compares an operator price with an online source
type PriceChecker interface {
	IsPriceReasonable(ctx context.Context, base, quote types.Token, price, tolerance float64) (bool, error)
}

// Sanity check names, used as metric labels
const (
	checkBalance  = "balance"
	checkSigner   = "signer"
	checkCount    = "bracket_count"
	checkOwner    = "bracket_owner"
	checkOrders   = "existing_orders"
	checkPrice    = "price"
	checkBounds   = "bounds"
	checkDeposits = "deposits"
)

// SanityChecker runs the safety checks performed before a strategy is
// proposed to the master Safe
type SanityChecker struct {
	backend  safe.Backend
	exchange dex.Exchange
	tokens   dex.TokenRegistry
	prices   PriceChecker
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewSanityChecker creates a checker. prices may be nil, in which case every
// price check fails unless skipped.
func NewSanityChecker(backend safe.Backend, exchange dex.Exchange, tokens dex.TokenRegistry, prices PriceChecker, m *metrics.Metrics, logger *zap.Logger) (*SanityChecker, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &SanityChecker{
		backend:  backend,
		exchange: exchange,
		tokens:   tokens,
		prices:   prices,
		logger:   logger,
		metrics:  m,
	}, nil
}

func (s *SanityChecker) fail(check string, err error) error {
	if s.metrics != nil {
		s.metrics.SanityFailures.WithLabelValues(check).Inc()
	}
	s.logger.Warn("Sanity check failed", zap.String("check", check), zap.Error(err))
	return err
}

// CheckBalances verifies that master holds at least the required amount of
// every token
func (s *SanityChecker) CheckBalances(ctx context.Context, master common.Address, required map[common.Address]*big.Int) error {
	g, ctx := errgroup.WithContext(ctx)
	for token, want := range required {
		token, want := token, want
		g.Go(func() error {
			have, err := s.tokens.Balance(ctx, token, master)
			if err != nil {
				return fmt.Errorf("failed to get master balance of %s: %w", token.Hex(), err)
			}
			if have.Cmp(want) < 0 {
				return s.fail(checkBalance, &types.InsufficientBalanceError{Token: token, Have: have, Want: want})
			}
			return nil
		})
	}
	return g.Wait()
}

// CheckSigner verifies that signer is an owner of master
func (s *SanityChecker) CheckSigner(ctx context.Context, master, signer common.Address) error {
	reader, err := safe.NewReader(s.backend, master)
	if err != nil {
		return err
	}
	owners, err := reader.Owners(ctx)
	if err != nil {
		return fmt.Errorf("failed to get owners of master: %w", err)
	}
	for _, owner := range owners {
		if owner == signer {
			return nil
		}
	}
	return s.fail(checkSigner, fmt.Errorf("%w: %s is not among %v", types.ErrNotOwner, signer.Hex(), owners))
}

// CheckBracketCount rejects fleets too large for a single transaction
func (s *SanityChecker) CheckBracketCount(count int) error {
	if count > types.MaxBrackets {
		return s.fail(checkCount, fmt.Errorf("%w: %d brackets, at most %d", types.ErrTooManyBrackets, count, types.MaxBrackets))
	}
	return nil
}

// CheckBrackets verifies that every bracket is owned solely by master and,
// unless allowExisting, has never placed an order
func (s *SanityChecker) CheckBrackets(ctx context.Context, master common.Address, brackets []common.Address, allowExisting bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, bracket := range brackets {
		bracket := bracket
		g.Go(func() error {
			reader, err := safe.NewReader(s.backend, bracket)
			if err != nil {
				return err
			}
			if err := reader.CheckSoleOwner(ctx, master); err != nil {
				return s.fail(checkOwner, err)
			}
			if allowExisting {
				return nil
			}
			orders, err := s.exchange.EncodedUserOrders(ctx, bracket)
			if err != nil {
				return err
			}
			if len(orders) > 0 {
				return s.fail(checkOrders, fmt.Errorf("%w: %s has %d orders", types.ErrExistingOrders, bracket.Hex(), len(orders)))
			}
			return nil
		})
	}
	return g.Wait()
}

// CheckPrice verifies the operator price against the price feed and the
// ladder bounds against the operator price. With skip the failures are only
// logged.
func (s *SanityChecker) CheckPrice(ctx context.Context, base, quote types.Token, currentPrice, lowest, highest float64, skip bool) error {
	reasonable := false
	if s.prices != nil {
		var err error
		reasonable, err = s.prices.IsPriceReasonable(ctx, base, quote, currentPrice, pricefeed.DefaultTolerance)
		if err != nil {
			s.logger.Warn("Price feed unavailable", zap.Error(err))
		}
	}
	if !reasonable {
		err := fmt.Errorf("%w: %v %s per %s", types.ErrUnreasonablePrice, currentPrice, quote.Symbol, base.Symbol)
		if !skip {
			return s.fail(checkPrice, err)
		}
		s.logger.Warn("Proceeding despite failed price check", zap.Error(err))
	}

	if err := pricefeed.CheckBounds(currentPrice, lowest, highest); err != nil {
		if !skip {
			return s.fail(checkBounds, err)
		}
		s.logger.Warn("Proceeding despite failed bound check", zap.Error(err))
	}
	return nil
}
