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
	"golang.org/x/sync/errgroup"
)

// MarketPrices returns how many bought tokens one sold token is worth
type MarketPrices interface {
	Price(ctx context.Context, bought, sold string) (float64, error)
}

// VerifyOptions describes the expected state of a fleet
type VerifyOptions struct {
	// Template is the Safe master copy every bracket proxies to
	Template common.Address
	// MasterOwners and MasterThreshold are checked when both are set
	MasterOwners    []common.Address
	MasterThreshold *big.Int
	CheckOrders     bool
}

// Verifier inspects deployed brackets
type Verifier struct {
	backend  safe.Backend
	exchange dex.Exchange
	tokens   dex.TokenRegistry
	prices   MarketPrices
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewVerifier creates a verifier. Without prices the check for orders
// offering better than market prices is skipped.
func NewVerifier(backend safe.Backend, exchange dex.Exchange, tokens dex.TokenRegistry, prices MarketPrices, m *metrics.Metrics, logger *zap.Logger) (*Verifier, error) {
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
	return &Verifier{
		backend:  backend,
		exchange: exchange,
		tokens:   tokens,
		prices:   prices,
		logger:   logger,
		metrics:  m,
	}, nil
}

func (v *Verifier) fail(check string, err error) error {
	if v.metrics != nil {
		v.metrics.SanityFailures.WithLabelValues(check).Inc()
	}
	return err
}

// VerifyBrackets checks that every bracket is a plain single-owner Safe of
// master: sole owner, threshold one, no modules, the expected master copy and
// the template's fallback handler. Master has to have no modules either.
func (v *Verifier) VerifyBrackets(ctx context.Context, master common.Address, brackets []common.Address, opts VerifyOptions) error {
	masterReader, err := safe.NewReader(v.backend, master)
	if err != nil {
		return err
	}

	if opts.MasterOwners != nil && opts.MasterThreshold != nil {
		if err := v.verifyMasterOwners(ctx, masterReader, opts); err != nil {
			return v.fail(checkOwner, err)
		}
	} else {
		v.logger.Warn("Master owner verification skipped")
	}

	templateReader, err := safe.NewReader(v.backend, opts.Template)
	if err != nil {
		return err
	}
	defaultHandler, err := templateReader.FallbackHandler(ctx)
	if err != nil {
		return err
	}

	if err := v.verifyNoModules(ctx, masterReader); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, bracket := range brackets {
		bracket := bracket
		g.Go(func() error {
			reader, err := safe.NewReader(v.backend, bracket)
			if err != nil {
				return err
			}
			if err := reader.CheckSoleOwner(gctx, master); err != nil {
				return v.fail(checkOwner, err)
			}
			masterCopy, err := reader.MasterCopy(gctx)
			if err != nil {
				return err
			}
			if masterCopy != opts.Template {
				return v.fail(checkOwner, fmt.Errorf("bracket %s proxies to %s instead of %s",
					bracket.Hex(), masterCopy.Hex(), opts.Template.Hex()))
			}
			if err := v.verifyNoModules(gctx, reader); err != nil {
				return err
			}
			handler, err := reader.FallbackHandler(gctx)
			if err != nil {
				return err
			}
			if handler != defaultHandler {
				return v.fail(checkOwner, fmt.Errorf("fallback handler of %s changed to %s", bracket.Hex(), handler.Hex()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.CheckOrders {
		return v.VerifyOrders(ctx, brackets)
	}
	return nil
}

func (v *Verifier) verifyMasterOwners(ctx context.Context, master *safe.Reader, opts VerifyOptions) error {
	threshold, err := master.Threshold(ctx)
	if err != nil {
		return err
	}
	if threshold.Cmp(opts.MasterThreshold) != 0 {
		return fmt.Errorf("master threshold is %s while it is supposed to be %s", threshold, opts.MasterThreshold)
	}
	owners, err := master.Owners(ctx)
	if err != nil {
		return err
	}
	if len(owners) != len(opts.MasterOwners) {
		return fmt.Errorf("master owners %v differ from %v", owners, opts.MasterOwners)
	}
	expected := make(map[common.Address]bool, len(opts.MasterOwners))
	for _, owner := range opts.MasterOwners {
		expected[owner] = true
	}
	for _, owner := range owners {
		if !expected[owner] {
			return fmt.Errorf("master owners %v differ from %v", owners, opts.MasterOwners)
		}
	}
	return nil
}

func (v *Verifier) verifyNoModules(ctx context.Context, reader *safe.Reader) error {
	modules, err := reader.Modules(ctx)
	if err != nil {
		return err
	}
	if len(modules) > 0 {
		return v.fail(checkOwner, fmt.Errorf("modules present in Safe %s: %v", reader.Address().Hex(), modules))
	}
	return nil
}

// VerifyOrders checks that every bracket has exactly one order pair trading
// back and forth on the same tokens, that a round trip through both orders
// gains tokens, and that no order is priced better than the market
func (v *Verifier) VerifyOrders(ctx context.Context, brackets []common.Address) error {
	orders := make([][]types.EncodedOrder, len(brackets))
	g, gctx := errgroup.WithContext(ctx)
	for i, bracket := range brackets {
		i, bracket := i, bracket
		g.Go(func() error {
			owned, err := v.exchange.EncodedUserOrders(gctx, bracket)
			if err != nil {
				return err
			}
			orders[i] = owned
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, owned := range orders {
		if len(owned) != 2 {
			return v.fail(checkOrders, fmt.Errorf("bracket %s has %d orders, expected 2", brackets[i].Hex(), len(owned)))
		}
		if owned[0].BuyToken != owned[1].SellToken || owned[0].SellToken != owned[1].BuyToken {
			return v.fail(checkOrders, fmt.Errorf("orders of %s do not trade back and forth on one token pair", brackets[i].Hex()))
		}
		product := new(big.Rat).Mul(orderPrice(owned[0]), orderPrice(owned[1]))
		if product.Cmp(big.NewRat(1, 1)) <= 0 {
			return v.fail(checkOrders, &types.ProfitabilityViolation{Bracket: i, Product: product.FloatString(18)})
		}
	}

	if v.prices == nil {
		v.logger.Warn("No price feed, skipping check for profitable offers")
		return nil
	}
	for _, owned := range orders {
		for _, order := range owned {
			if err := v.checkNoProfitableOffer(ctx, order); err != nil {
				return v.fail(checkOrders, err)
			}
		}
	}
	return nil
}

// orderPrice is the limit price of an order in buy units per sell unit
func orderPrice(order types.EncodedOrder) *big.Rat {
	if order.PriceDenominator == nil || order.PriceDenominator.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(order.PriceNumerator, order.PriceDenominator)
}

// checkNoProfitableOffer fails when order asks for less than the market
// price, i.e. gives tokens away. Orders whose price or value is unknown and
// orders worth less than one USDC pass.
func (v *Verifier) checkNoProfitableOffer(ctx context.Context, order types.EncodedOrder) error {
	sellToken, err := v.tokens.TokenByID(ctx, order.SellToken)
	if err != nil {
		return err
	}
	buyToken, err := v.tokens.TokenByID(ctx, order.BuyToken)
	if err != nil {
		return err
	}

	market, err := v.prices.Price(ctx, buyToken.Symbol, sellToken.Symbol)
	if err != nil {
		v.logger.Debug("No market price for order", zap.String("user", order.User.Hex()), zap.Error(err))
		return nil
	}

	if usd, err := v.prices.Price(ctx, "USDC", sellToken.Symbol); err == nil {
		value := new(big.Rat).SetFrac(order.SellTokenBalance, bmath.Pow10(int(sellToken.Decimals)))
		value.Mul(value, floatRat(usd))
		if value.Cmp(big.NewRat(1, 1)) < 0 {
			return nil
		}
	}

	marketUnitPrice := unitPrice(market, sellToken.Decimals, buyToken.Decimals)
	if marketUnitPrice.Cmp(orderPrice(order)) >= 0 {
		return fmt.Errorf("order of bracket %s selling %s for %s is profitable for takers", order.User.Hex(), sellToken.Symbol, buyToken.Symbol)
	}
	return nil
}

// VerifyDeposits checks the exchange balances of funded brackets: brackets
// entirely below currentPrice hold only quote, brackets entirely above hold
// only base and the bracket around the price holds either.
func (v *Verifier) VerifyDeposits(ctx context.Context, brackets []common.Address, base, quote types.Token, currentPrice float64, quotePerBracket, basePerBracket *big.Int) error {
	baseID, err := base.ExchangeID()
	if err != nil {
		return err
	}
	quoteID, err := quote.ExchangeID()
	if err != nil {
		return err
	}
	current := unitPrice(currentPrice, base.Decimals, quote.Decimals)

	g, ctx := errgroup.WithContext(ctx)
	for _, bracket := range brackets {
		bracket := bracket
		g.Go(func() error {
			err := v.verifyBracketDeposit(ctx, bracket, base.Address, quote.Address, baseID, quoteID, current, quotePerBracket, basePerBracket)
			if err != nil {
				return v.fail(checkDeposits, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (v *Verifier) verifyBracketDeposit(ctx context.Context, bracket, base, quote common.Address, baseID, quoteID uint16, current *big.Rat, quotePerBracket, basePerBracket *big.Int) error {
	quoteBalance, err := v.exchange.Balance(ctx, bracket, quote)
	if err != nil {
		return err
	}
	baseBalance, err := v.exchange.Balance(ctx, bracket, base)
	if err != nil {
		return err
	}
	owned, err := v.exchange.EncodedUserOrders(ctx, bracket)
	if err != nil {
		return err
	}
	if len(owned) != 2 {
		return fmt.Errorf("bracket %s has %d orders, expected 2", bracket.Hex(), len(owned))
	}

	var buyBase, sellBase *types.EncodedOrder
	for i := range owned {
		switch {
		case owned[i].BuyToken == baseID && owned[i].SellToken == quoteID:
			buyBase = &owned[i]
		case owned[i].SellToken == baseID && owned[i].BuyToken == quoteID:
			sellBase = &owned[i]
		}
	}
	if buyBase == nil || sellBase == nil {
		return fmt.Errorf("bracket %s does not trade the expected token pair", bracket.Hex())
	}

	buyingPrice := orderPrice(*buyBase)
	if buyingPrice.Sign() == 0 {
		return fmt.Errorf("bracket %s has a buy order without price", bracket.Hex())
	}
	buyingPrice.Inv(buyingPrice)
	sellingPrice := orderPrice(*sellBase)
	if buyingPrice.Cmp(sellingPrice) >= 0 {
		return fmt.Errorf("bracket %s buys at %s and sells at %s", bracket.Hex(), buyingPrice.FloatString(18), sellingPrice.FloatString(18))
	}

	holdsOnlyQuote := baseBalance.Sign() == 0 && quoteBalance.Cmp(quotePerBracket) == 0
	holdsOnlyBase := quoteBalance.Sign() == 0 && baseBalance.Cmp(basePerBracket) == 0
	switch {
	case sellingPrice.Cmp(current) < 0 && !holdsOnlyQuote:
		return fmt.Errorf("bracket %s below the price holds %s base and %s quote", bracket.Hex(), baseBalance, quoteBalance)
	case buyingPrice.Cmp(current) > 0 && !holdsOnlyBase:
		return fmt.Errorf("bracket %s above the price holds %s base and %s quote", bracket.Hex(), baseBalance, quoteBalance)
	case !holdsOnlyQuote && !holdsOnlyBase:
		return fmt.Errorf("bracket %s around the price holds %s base and %s quote", bracket.Hex(), baseBalance, quoteBalance)
	}
	return nil
}

// unitPrice converts a price of buy tokens per sell token into buy units per sell unit
func unitPrice(price float64, sellDecimals, buyDecimals uint8) *big.Rat {
	p := floatRat(price)
	p.Mul(p, new(big.Rat).SetInt(bmath.Pow10(int(buyDecimals))))
	return p.Quo(p, new(big.Rat).SetInt(bmath.Pow10(int(sellDecimals))))
}

func floatRat(f float64) *big.Rat {
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return new(big.Rat)
	}
	return r
}
