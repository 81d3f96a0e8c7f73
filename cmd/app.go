package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/michaelpento.lv/bracketbot/config"
	"github.com/michaelpento.lv/bracketbot/dex"
	"github.com/michaelpento.lv/bracketbot/dex/batchexchange"
	"github.com/michaelpento.lv/bracketbot/gas"
	"github.com/michaelpento.lv/bracketbot/pricefeed"
	"github.com/michaelpento.lv/bracketbot/relay"
	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/simulator"
	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"
	"github.com/michaelpento.lv/bracketbot/utils/monitor"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const metricsNamespace = "bracketbot"

// app holds the components shared by all commands
type app struct {
	cfg       *config.Config
	client    *ethclient.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	exchange  *batchexchange.BatchExchange
	tokens    *dex.TokenCache
	prices    *pricefeed.Client
	estimator *gas.Estimator
	simulator *simulator.Simulator
	decoder   *utils.TransactionDecoder
	signer    *ecdsa.PrivateKey
	relay     *relay.Client

	closers []func()
}

// newApp connects to the node and wires the components. The proposer key is
// only loaded when withSigner is set.
func newApp(ctx context.Context, withSigner bool) (*app, error) {
	logger := utils.GetLogger()

	cfg, err := config.LoadConfig(cfgFile, network, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	a := &app{
		cfg:     cfg,
		client:  client,
		logger:  logger.With(zap.String("network", cfg.Network)),
		metrics: metrics.NewMetrics(metricsNamespace, metrics.Registry()),
		closers: []func(){client.Close},
	}

	if err := a.startMetrics(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(withSigner); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(withSigner bool) error {
	var err error
	a.exchange, err = batchexchange.NewBatchExchange(a.client, a.cfg.Contracts.BatchExchange)
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}
	a.tokens, err = dex.NewTokenCache(a.client, a.exchange, a.cfg.TokenCacheSize, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create token cache: %w", err)
	}
	a.prices, err = pricefeed.NewClient(pricefeed.Config{
		BaseURL:           a.cfg.PriceFeedURL,
		Timeout:           a.cfg.NetworkTimeout,
		Attempts:          a.cfg.PriceFeedAttempts,
		RetryDelay:        a.cfg.PriceFeedRetry,
		RequestsPerSecond: a.cfg.PriceRateLimit.RequestsPerSecond,
		Burst:             a.cfg.PriceRateLimit.BurstSize,
	}, a.metrics, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create price feed: %w", err)
	}
	a.estimator, err = gas.NewEstimator(a.client, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create gas estimator: %w", err)
	}
	a.simulator, err = simulator.NewSimulator(a.client, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}
	a.decoder, err = utils.NewTransactionDecoder(a.logger, append(safe.ABIs(), a.exchange.ABI(), dex.ERC20())...)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if !withSigner {
		return nil
	}
	a.signer, err = config.LoadSigner()
	if err != nil {
		return err
	}
	a.relay, err = relay.NewClient(relay.Config{
		Network:           a.cfg.Network,
		BaseURL:           a.cfg.RelayURL,
		Timeout:           a.cfg.NetworkTimeout,
		RequestsPerSecond: a.cfg.RelayRateLimit.RequestsPerSecond,
		Burst:             a.cfg.RelayRateLimit.BurstSize,
		Attempts:          a.cfg.RelayAttempts,
		RetryDelay:        a.cfg.RelayRetry,
		DryRun:            dryRun,
	}, a.signer, a.client, a.estimator, a.metrics, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create relay client: %w", err)
	}
	return nil
}

func (a *app) startMetrics(ctx context.Context) error {
	addr := metricsAddr
	if addr == "" && a.cfg.PrometheusEnabled {
		addr = a.cfg.PrometheusEndpoint
	}
	if addr == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	a.closers = append(a.closers, cancel)
	mon, err := monitor.NewRuntimeMonitor(ctx, metrics.Registry(), 5*time.Second, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start runtime monitor: %w", err)
	}
	a.closers = append(a.closers, mon.Cleanup)

	go func() {
		if err := metrics.Serve(ctx, addr, a.logger); err != nil {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// Close releases the node connection and stops the metrics server
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) composer(master common.Address) (*bracket.Composer, error) {
	return bracket.NewComposer(master, a.cfg.Contracts.MultiSend, a.exchange, a.tokens, a.metrics, a.logger)
}

func (a *app) sanityChecker() (*bracket.SanityChecker, error) {
	return bracket.NewSanityChecker(a.client, a.exchange, a.tokens, a.prices, a.metrics, a.logger)
}

func (a *app) verifier() (*bracket.Verifier, error) {
	return bracket.NewVerifier(a.client, a.exchange, a.tokens, a.prices, a.metrics, a.logger)
}

func (a *app) fleetDeployer() (*safe.FleetDeployer, error) {
	if err := a.cfg.Contracts.RequireFleetFactory(); err != nil {
		return nil, err
	}
	return safe.NewFleetDeployer(a.client, a.cfg.Contracts.FleetFactory, a.logger)
}

func (a *app) provisioner(master common.Address, withDeployer bool) (*bracket.Provisioner, error) {
	composer, err := a.composer(master)
	if err != nil {
		return nil, err
	}
	sanity, err := a.sanityChecker()
	if err != nil {
		return nil, err
	}
	cfg := bracket.ProvisionerConfig{
		Caller:       a.client,
		Exchange:     a.exchange,
		Tokens:       a.tokens,
		Composer:     composer,
		Sanity:       sanity,
		FleetFactory: a.cfg.Contracts.FleetFactory,
		Template:     a.cfg.Contracts.SafeTemplate,
		Metrics:      a.metrics,
	}
	if withDeployer {
		deployer, err := a.fleetDeployer()
		if err != nil {
			return nil, err
		}
		cfg.Deployer = deployer
	}
	return bracket.NewProvisioner(cfg, a.logger)
}

// transactOpts signs on-chain transactions with the proposer key
func (a *app) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("no signer loaded")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(a.signer, new(big.Int).SetUint64(a.cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// describe logs every call a master transaction will make
func (a *app) describe(master common.Address, tx types.Transaction) {
	leaves, err := safe.Leaves(a.cfg.Contracts.MultiSend, []types.Transaction{tx})
	if err != nil {
		a.logger.Warn("Transaction could not be unpacked", zap.Error(err))
		return
	}
	for i, leaf := range leaves {
		fields := []zap.Field{
			zap.Int("call", i),
			zap.String("to", leaf.To.Hex()),
		}
		if inner, err := safe.UnwrapOwnerCall(leaf); err == nil {
			leaf = inner
			fields = append(fields, zap.String("innerTo", leaf.To.Hex()))
		}
		if call, err := a.decoder.Decode(leaf.Data); err == nil {
			fields = append(fields, zap.String("method", call.Method), zap.Any("params", call.Params))
		}
		a.logger.Debug("Master call", fields...)
	}
	a.logger.Info("Master transaction",
		zap.String("master", master.Hex()),
		zap.Int("calls", len(leaves)),
		zap.String("fingerprint", safe.Fingerprint(tx)))
}

// propose signs txs for consecutive nonces of master, starting at the first
// one not used by a pending proposal, and posts them to the transaction
// service. With simulate set each transaction is dry-run first.
func (a *app) propose(ctx context.Context, master common.Address, txs []types.Transaction, simulate bool) error {
	if a.relay == nil {
		return fmt.Errorf("relay client not configured")
	}
	nonce, err := a.relay.FirstAvailableNonce(ctx, master)
	if err != nil {
		return fmt.Errorf("failed to get master nonce: %w", err)
	}

	for i, tx := range txs {
		a.describe(master, tx)
		if simulate {
			result, err := a.simulator.SimulateBundle(ctx, master, a.relay.Sender(), tx)
			if err != nil {
				return fmt.Errorf("failed to simulate transaction %d: %w", i, err)
			}
			if !result.Success {
				return fmt.Errorf("transaction %d reverts in simulation: %v", i, result.Error)
			}
			a.logger.Info("Simulation succeeded", zap.Int("tx", i), zap.Uint64("gasUsed", result.GasUsed))
		}

		txNonce := nonce + uint64(i)
		proposal, err := a.relay.SignAndSend(ctx, master, tx, &txNonce)
		if err != nil {
			return fmt.Errorf("failed to propose transaction %d: %w", i, err)
		}
		if cost, err := a.estimator.EstimateGasCost(ctx, proposal.SafeTxGas); err == nil {
			a.logger.Info("Estimated execution cost",
				zap.Uint64("nonce", txNonce),
				zap.String("eth", bmath.FormatUnits(cost, 18)))
		}
	}
	return nil
}

// checkProposed verifies that txs are the latest len(txs) proposals of master
func (a *app) checkProposed(ctx context.Context, master common.Address, txs []types.Transaction) error {
	if a.relay == nil {
		return fmt.Errorf("relay client not configured")
	}
	next, err := a.relay.FirstAvailableNonce(ctx, master)
	if err != nil {
		return fmt.Errorf("failed to get master nonce: %w", err)
	}
	if next < uint64(len(txs)) {
		return fmt.Errorf("master has %d proposals, expected at least %d", next, len(txs))
	}

	first := next - uint64(len(txs))
	for i, tx := range txs {
		nonce := first + uint64(i)
		ok, err := a.relay.MatchesProposal(ctx, master, tx, &nonce)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transaction %d does not match the proposal at nonce %d", i, nonce)
		}
	}
	return nil
}
