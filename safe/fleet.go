package safe

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// FleetBackend can send the deployment transaction and wait for its receipt
type FleetBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// FleetDeployer creates bracket Safes through the fleet factory
type FleetDeployer struct {
	backend  FleetBackend
	factory  common.Address
	contract *bind.BoundContract
	logger   *zap.Logger
}

// FleetDeployed mirrors the factory event emitted for every deployment
type FleetDeployed struct {
	Owner common.Address
	Fleet []common.Address
}

// NewFleetDeployer creates a deployer for the factory at factory
func NewFleetDeployer(backend FleetBackend, factory common.Address, logger *zap.Logger) (*FleetDeployer, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &FleetDeployer{
		backend:  backend,
		factory:  factory,
		contract: bind.NewBoundContract(factory, fleetFactoryABI, backend, backend, backend),
		logger:   logger,
	}, nil
}

// Deploy creates size proxies of template owned by owner and returns their
// addresses in deployment order.
func (d *FleetDeployer) Deploy(ctx context.Context, opts *bind.TransactOpts, owner, template common.Address, size int, saltNonce *big.Int) ([]common.Address, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid fleet size %d", size)
	}
	if opts.Context == nil {
		opts.Context = ctx
	}

	tx, err := d.contract.Transact(opts, "deployFleetWithNonce", owner, big.NewInt(int64(size)), template, saltNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to send fleet deployment: %w", err)
	}
	d.logger.Info("Fleet deployment sent",
		zap.String("tx", tx.Hash().Hex()),
		zap.Int("size", size),
		zap.String("owner", owner.Hex()))

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for fleet deployment: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("fleet deployment %s reverted", tx.Hash().Hex())
	}

	event, err := d.ParseFleetDeployed(receipt.Logs)
	if err != nil {
		return nil, err
	}
	if len(event.Fleet) != size {
		return nil, fmt.Errorf("factory deployed %d safes, expected %d", len(event.Fleet), size)
	}

	d.logger.Info("Fleet deployed",
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gasUsed", receipt.GasUsed))
	return event.Fleet, nil
}

// ParseFleetDeployed returns the first FleetDeployed event the factory emitted in logs
func (d *FleetDeployer) ParseFleetDeployed(logs []*ethtypes.Log) (*FleetDeployed, error) {
	eventID := fleetFactoryABI.Events["FleetDeployed"].ID
	for _, log := range logs {
		if log.Address != d.factory || len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}
		event := new(FleetDeployed)
		if err := d.contract.UnpackLog(event, "FleetDeployed", *log); err != nil {
			return nil, fmt.Errorf("failed to unpack FleetDeployed: %w", err)
		}
		return event, nil
	}
	return nil, fmt.Errorf("no FleetDeployed event from %s", d.factory.Hex())
}
