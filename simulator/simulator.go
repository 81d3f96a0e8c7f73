package simulator

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SimulationResult represents the result of a bundle simulation
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Error   error
}

// Backend executes calls against the latest state
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
}

// Simulator dry-runs master Safe transactions before they are proposed
type Simulator struct {
	backend Backend
	logger  *zap.Logger
}

// NewSimulator creates a new transaction simulator
func NewSimulator(backend Backend, logger *zap.Logger) (*Simulator, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Simulator{backend: backend, logger: logger}, nil
}

// SimulateBundle executes tx through the master as if owner sent the
// execTransaction itself. Only masters with a threshold of one accept the
// single owner signature; others report the threshold revert.
// A reverting bundle is a result, not an error.
func (s *Simulator) SimulateBundle(ctx context.Context, master, owner common.Address, tx types.Transaction) (*SimulationResult, error) {
	data, err := safe.ExecTransactionData(tx, nil, safe.OwnerSignature(owner))
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{
		From: owner,
		To:   &master,
		Data: data,
	}

	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		s.logger.Warn("Bundle simulation reverted",
			zap.String("master", master.Hex()),
			zap.String("fingerprint", safe.Fingerprint(tx)),
			zap.Error(err))
		return &SimulationResult{Success: false, Error: err}, nil
	}

	msg.Gas = gasUsed
	result, err := s.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return &SimulationResult{Success: false, GasUsed: gasUsed, Error: err}, nil
	}

	// execTransaction reports inner failures through its bool result
	success, err := safe.UnpackExecResult(result)
	if err != nil {
		return nil, err
	}
	if !success {
		return &SimulationResult{
			Success: false,
			GasUsed: gasUsed,
			Error:   fmt.Errorf("execTransaction returned false"),
		}, nil
	}

	s.logger.Info("Bundle simulation succeeded",
		zap.String("master", master.Hex()),
		zap.String("fingerprint", safe.Fingerprint(tx)),
		zap.Uint64("gasUsed", gasUsed))
	return &SimulationResult{Success: true, GasUsed: gasUsed}, nil
}
