package safe

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is the chain access a Safe reader needs
type Backend interface {
	ethereum.ContractCaller
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Reader queries the on-chain state of one Safe
type Reader struct {
	backend Backend
	address common.Address
}

// NewReader creates a reader for the Safe at address
func NewReader(backend Backend, address common.Address) (*Reader, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	return &Reader{backend: backend, address: address}, nil
}

// Address returns the Safe address
func (r *Reader) Address() common.Address {
	return r.address
}

// Nonce returns the Safe's current transaction nonce
func (r *Reader) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := callABI(ctx, r.backend, safeABI, r.address, "nonce")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Owners returns the Safe owners
func (r *Reader) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := callABI(ctx, r.backend, safeABI, r.address, "getOwners")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

// Threshold returns the number of owner signatures required
func (r *Reader) Threshold(ctx context.Context) (*big.Int, error) {
	out, err := callABI(ctx, r.backend, safeABI, r.address, "getThreshold")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Modules returns the enabled Safe modules
func (r *Reader) Modules(ctx context.Context) ([]common.Address, error) {
	out, err := callABI(ctx, r.backend, safeABI, r.address, "getModules")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

// IsOwner reports whether owner is an owner of the Safe
func (r *Reader) IsOwner(ctx context.Context, owner common.Address) (bool, error) {
	out, err := callABI(ctx, r.backend, safeABI, r.address, "isOwner", owner)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// MasterCopy reads the implementation address from storage slot 0 of the proxy
func (r *Reader) MasterCopy(ctx context.Context) (common.Address, error) {
	raw, err := r.backend.StorageAt(ctx, r.address, common.Hash{}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read master copy of %s: %w", r.address.Hex(), err)
	}
	return common.BytesToAddress(raw), nil
}

// FallbackHandlerSlot is the storage slot holding a Safe's fallback handler
var FallbackHandlerSlot = crypto.Keccak256Hash([]byte("fallback_manager.handler.address"))

// FallbackHandler reads the contract receiving calls the Safe does not handle itself
func (r *Reader) FallbackHandler(ctx context.Context) (common.Address, error) {
	raw, err := r.backend.StorageAt(ctx, r.address, FallbackHandlerSlot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read fallback handler of %s: %w", r.address.Hex(), err)
	}
	return common.BytesToAddress(raw), nil
}

// TransactionHash returns the hash owners sign for tx at nonce
func (r *Reader) TransactionHash(ctx context.Context, tx types.Transaction, safeTxGas, nonce *big.Int) (common.Hash, error) {
	if safeTxGas == nil {
		safeTxGas = new(big.Int)
	}
	out, err := callABI(ctx, r.backend, safeABI, r.address, "getTransactionHash",
		tx.To,
		valueOrZero(tx.Value),
		tx.Data,
		uint8(tx.Operation),
		safeTxGas,
		new(big.Int),
		new(big.Int),
		common.Address{},
		common.Address{},
		nonce,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

// CheckSoleOwner verifies that owner is the only owner and the threshold is one
func (r *Reader) CheckSoleOwner(ctx context.Context, owner common.Address) error {
	owners, err := r.Owners(ctx)
	if err != nil {
		return err
	}
	if len(owners) != 1 || owners[0] != owner {
		return fmt.Errorf("%w: %s is owned by %v", types.ErrNotSoleOwner, r.address.Hex(), owners)
	}
	threshold, err := r.Threshold(ctx)
	if err != nil {
		return err
	}
	if threshold.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("%w: %s has threshold %s", types.ErrNotSoleOwner, r.address.Hex(), threshold)
	}
	return nil
}

func callABI(ctx context.Context, caller ethereum.ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}
