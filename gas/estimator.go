package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Backend is the node access the estimator needs
type Backend interface {
	ethereum.ContractCaller
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator estimates the gas Safe transactions need and what they cost
type Estimator struct {
	backend Backend
	logger  *zap.Logger
}

// NewEstimator creates a new gas estimator
func NewEstimator(backend Backend, logger *zap.Logger) (*Estimator, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Estimator{backend: backend, logger: logger}, nil
}

// EstimateSafeTxGas returns the safeTxGas for executing tx through safeAddress.
// requiredTxGas always reverts with the measured gas, so the figure comes
// from the revert payload. The result leaves room for the 1/64 of gas the
// EVM withholds from nested calls.
func (e *Estimator) EstimateSafeTxGas(ctx context.Context, safeAddress common.Address, tx types.Transaction) (uint64, error) {
	data, err := safe.RequiredTxGasData(tx)
	if err != nil {
		return 0, err
	}

	raw, err := e.backend.CallContract(ctx, ethereum.CallMsg{
		From: safeAddress,
		To:   &safeAddress,
		Data: data,
	}, nil)
	if err != nil {
		raw, err = revertData(err)
		if err != nil {
			return 0, fmt.Errorf("failed to estimate safeTxGas: %w", err)
		}
	}

	required, err := utils.DecodeRequiredTxGas(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate safeTxGas: %w", err)
	}

	safeTxGas := (required*64 + 62) / 63
	e.logger.Debug("Estimated safeTxGas",
		zap.String("safe", safeAddress.Hex()),
		zap.Uint64("required", required),
		zap.Uint64("safeTxGas", safeTxGas))
	return safeTxGas, nil
}

// revertData extracts the revert payload a node attaches to a failed eth_call
func revertData(err error) ([]byte, error) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, err
	}
	encoded, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil, fmt.Errorf("unexpected revert data %v: %w", dataErr.ErrorData(), err)
	}
	data, decodeErr := hexutil.Decode(encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode revert data: %w", decodeErr)
	}
	return data, nil
}

// EstimateGasCost estimates the cost in wei of gasLimit at the current base
// fee plus the suggested tip
func (e *Estimator) EstimateGasCost(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	priorityFee, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	gasPrice := new(big.Int).Set(priorityFee)
	if header.BaseFee != nil {
		gasPrice.Add(gasPrice, header.BaseFee)
	}
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit)), nil
}
