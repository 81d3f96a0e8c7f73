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

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FleetDeployer deploys brackets owned by one master
type FleetDeployer interface {
	Deploy(ctx context.Context, opts *bind.TransactOpts, owner, template common.Address, size int, saltNonce *big.Int) ([]common.Address, error)
}

// StrategyParams defines one liquidity provision
type StrategyParams struct {
	Master common.Address
	// Signer proposes the transactions and must own the master, unless VerifyOnly
	Signer       common.Address
	BaseTokenID  uint16
	QuoteTokenID uint16
	// DepositBase and DepositQuote are human readable totals, e.g. "1.5"
	DepositBase  string
	DepositQuote string
	CurrentPrice float64
	LowestLimit  float64
	HighestLimit float64
	NumBrackets  int
	// Brackets reuses an existing fleet instead of deploying one
	Brackets  []common.Address
	SaltNonce *big.Int
	Order     OrderParams

	SkipPriceCheck      bool
	AllowExistingOrders bool
	VerifyOnly          bool
	// DepositFile receives the allocated deposits when set
	DepositFile string
}

// Plan holds everything built for one provision, in execution order
type Plan struct {
	RunID     string
	Base      types.Token
	Quote     types.Token
	Ladder    *Ladder
	Pairs     []types.OrderPair
	Deposits  []types.Deposit
	OrdersTx  types.Transaction
	FundingTx types.Transaction
}

// Transactions returns the master transactions of the plan. They are meant
// for consecutive master nonces.
func (p *Plan) Transactions() []types.Transaction {
	return []types.Transaction{p.OrdersTx, p.FundingTx}
}

// Provisioner turns strategy parameters into master Safe transactions
type Provisioner struct {
	caller       ethereum.ContractCaller
	exchange     dex.Exchange
	tokens       dex.TokenRegistry
	composer     *Composer
	sanity       *SanityChecker
	deployer     FleetDeployer
	fleetFactory common.Address
	template     common.Address
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// ProvisionerConfig holds the collaborators of a Provisioner
type ProvisionerConfig struct {
	Caller       ethereum.ContractCaller
	Exchange     dex.Exchange
	Tokens       dex.TokenRegistry
	Composer     *Composer
	Sanity       *SanityChecker
	Deployer     FleetDeployer
	FleetFactory common.Address
	Template     common.Address
	Metrics      *metrics.Metrics
}

// NewProvisioner creates a provisioner. Deployer may be nil when only
// existing fleets are used.
func NewProvisioner(cfg ProvisionerConfig, logger *zap.Logger) (*Provisioner, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token registry cannot be nil")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("composer cannot be nil")
	}
	if cfg.Sanity == nil {
		return nil, fmt.Errorf("sanity checker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Provisioner{
		caller:       cfg.Caller,
		exchange:     cfg.Exchange,
		tokens:       cfg.Tokens,
		composer:     cfg.Composer,
		sanity:       cfg.Sanity,
		deployer:     cfg.Deployer,
		fleetFactory: cfg.FleetFactory,
		template:     cfg.Template,
		logger:       logger,
		metrics:      cfg.Metrics,
	}, nil
}

// PredictFleet returns the addresses a deployment for master with saltNonce
// will produce
func (p *Provisioner) PredictFleet(ctx context.Context, saltNonce *big.Int, count int) ([]common.Address, error) {
	return safe.PredictFleet(ctx, p.caller, p.fleetFactory, p.template, saltNonce, count)
}

// Provision deploys a fleet unless params names one, then plans orders and
// funding for it
func (p *Provisioner) Provision(ctx context.Context, params StrategyParams, opts *bind.TransactOpts) (*Plan, error) {
	if err := p.sanity.CheckBracketCount(params.NumBrackets); err != nil {
		return nil, err
	}

	brackets := params.Brackets
	if len(brackets) == 0 {
		if p.deployer == nil {
			return nil, fmt.Errorf("no brackets given and no deployer configured")
		}
		if params.SaltNonce == nil {
			return nil, fmt.Errorf("salt nonce is required to deploy a fleet")
		}
		predicted, err := p.PredictFleet(ctx, params.SaltNonce, params.NumBrackets)
		if err != nil {
			return nil, fmt.Errorf("failed to predict fleet: %w", err)
		}
		deployed, err := p.deployer.Deploy(ctx, opts, params.Master, p.template, params.NumBrackets, params.SaltNonce)
		if err != nil {
			return nil, fmt.Errorf("failed to deploy fleet: %w", err)
		}
		if err := sameFleet(predicted, deployed); err != nil {
			return nil, err
		}
		if p.metrics != nil {
			p.metrics.BracketsDeployed.Add(float64(len(deployed)))
		}
		brackets = deployed
	} else if params.SaltNonce != nil {
		predicted, err := p.PredictFleet(ctx, params.SaltNonce, len(brackets))
		if err != nil {
			return nil, fmt.Errorf("failed to predict fleet: %w", err)
		}
		if err := sameFleet(predicted, brackets); err != nil {
			return nil, err
		}
	}

	params.Brackets = brackets
	return p.Plan(ctx, params)
}

func sameFleet(predicted, actual []common.Address) error {
	if len(predicted) != len(actual) {
		return fmt.Errorf("expected %d brackets, got %d", len(predicted), len(actual))
	}
	for i := range predicted {
		if predicted[i] != actual[i] {
			return fmt.Errorf("bracket %d is %s, expected %s", i, actual[i].Hex(), predicted[i].Hex())
		}
	}
	return nil
}

// Plan runs the sanity checks and builds the order and funding transactions
// for the fleet in params.Brackets
func (p *Provisioner) Plan(ctx context.Context, params StrategyParams) (*Plan, error) {
	runID := uuid.New().String()
	logger := p.logger.With(zap.String("run_id", runID))

	if len(params.Brackets) != params.NumBrackets {
		return nil, fmt.Errorf("strategy has %d brackets but %d addresses were given", params.NumBrackets, len(params.Brackets))
	}
	if err := p.sanity.CheckBracketCount(params.NumBrackets); err != nil {
		return nil, err
	}
	ladder, err := BuildLadder(params.LowestLimit, params.HighestLimit, params.NumBrackets)
	if err != nil {
		return nil, err
	}
	ladder, err = ladder.WithAddresses(params.Brackets)
	if err != nil {
		return nil, err
	}

	var (
		base, quote  types.Token
		currentBatch uint32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = p.tokens.TokenByID(gctx, params.BaseTokenID)
		return err
	})
	g.Go(func() error {
		var err error
		quote, err = p.tokens.TokenByID(gctx, params.QuoteTokenID)
		return err
	})
	g.Go(func() error {
		var err error
		currentBatch, err = p.exchange.CurrentBatchID(gctx)
		return err
	})
	if !params.VerifyOnly && params.Signer != (common.Address{}) {
		g.Go(func() error {
			return p.sanity.CheckSigner(gctx, params.Master, params.Signer)
		})
	}
	g.Go(func() error {
		return p.sanity.CheckBrackets(gctx, params.Master, params.Brackets, params.AllowExistingOrders)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totalBase, err := bmath.ToUnits(params.DepositBase, int(base.Decimals))
	if err != nil {
		return nil, fmt.Errorf("invalid base deposit: %w", err)
	}
	totalQuote, err := bmath.ToUnits(params.DepositQuote, int(quote.Decimals))
	if err != nil {
		return nil, fmt.Errorf("invalid quote deposit: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.sanity.CheckBalances(gctx, params.Master, map[common.Address]*big.Int{
			base.Address:  totalBase,
			quote.Address: totalQuote,
		})
	})
	g.Go(func() error {
		return p.sanity.CheckPrice(gctx, base, quote, params.CurrentPrice, params.LowestLimit, params.HighestLimit, params.SkipPriceCheck)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orderParams := params.Order
	if orderParams == (OrderParams{}) {
		orderParams = DefaultOrderParams()
	}
	pairs, err := BuildOrderPairs(ladder, base, quote, currentBatch, orderParams)
	if err != nil {
		return nil, err
	}
	deposits, err := AllocateDeposits(ladder, params.CurrentPrice, quote.Address, base.Address, totalQuote, totalBase)
	if err != nil {
		return nil, err
	}
	p.recordDeposits(deposits, base.Address)

	if params.DepositFile != "" {
		if err := WriteDepositFile(params.DepositFile, deposits); err != nil {
			logger.Warn("Deposits could not be stored as a file", zap.Error(err))
		}
	}

	ordersTx, err := p.composer.OrdersTransaction(pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to build orders transaction: %w", err)
	}
	fundingTx, err := p.composer.BuildTransferApproveDeposit(ctx, deposits)
	if err != nil {
		return nil, fmt.Errorf("failed to build funding transaction: %w", err)
	}

	logger.Info("Planned liquidity provision",
		zap.String("master", params.Master.Hex()),
		zap.String("pair", base.Symbol+"/"+quote.Symbol),
		zap.Int("brackets", ladder.Len()),
		zap.Uint32("currentBatch", currentBatch),
		zap.String("ordersFingerprint", safe.Fingerprint(ordersTx)),
		zap.String("fundingFingerprint", safe.Fingerprint(fundingTx)))

	return &Plan{
		RunID:     runID,
		Base:      base,
		Quote:     quote,
		Ladder:    ladder,
		Pairs:     pairs,
		Deposits:  deposits,
		OrdersTx:  ordersTx,
		FundingTx: fundingTx,
	}, nil
}

func (p *Provisioner) recordDeposits(deposits []types.Deposit, base common.Address) {
	if p.metrics == nil {
		return
	}
	for _, d := range deposits {
		side := "quote"
		if d.TokenAddress == base {
			side = "base"
		}
		p.metrics.DepositsAllocated.WithLabelValues(side).Inc()
	}
}
