package safe

import (
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerSignature returns a Safe signature that is valid whenever the
// transaction is sent by owner itself: r holds the owner address, s is zero
// and v == 1 marks it as pre-approved by the sender.
func OwnerSignature(owner common.Address) []byte {
	sig := make([]byte, 65)
	copy(sig[12:32], owner.Bytes())
	sig[64] = 1
	return sig
}

// ExecTransactionData encodes execTransaction for inner with zero gas refund
// parameters and the given signatures.
func ExecTransactionData(inner types.Transaction, safeTxGas *big.Int, signatures []byte) ([]byte, error) {
	if safeTxGas == nil {
		safeTxGas = new(big.Int)
	}
	data, err := safeABI.Pack("execTransaction",
		inner.To,
		valueOrZero(inner.Value),
		inner.Data,
		uint8(inner.Operation),
		safeTxGas,
		new(big.Int), // baseGas
		new(big.Int), // gasPrice
		common.Address{},
		common.Address{},
		signatures,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execTransaction: %w", err)
	}
	return data, nil
}

// WrapAsOwnerCall builds the call through which master makes the bracket
// execute inner. The bracket must have master as its single owner and a
// threshold of one.
func WrapAsOwnerCall(master, bracket common.Address, inner types.Transaction) (types.Transaction, error) {
	data, err := ExecTransactionData(inner, nil, OwnerSignature(master))
	if err != nil {
		return types.Transaction{}, err
	}
	return types.Transaction{
		Operation: types.Call,
		To:        bracket,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

// UnwrapOwnerCall reverses WrapAsOwnerCall
func UnwrapOwnerCall(tx types.Transaction) (types.Transaction, error) {
	if len(tx.Data) < 4 {
		return types.Transaction{}, fmt.Errorf("invalid data length")
	}
	method, err := safeABI.MethodById(tx.Data[:4])
	if err != nil || method.Name != "execTransaction" {
		return types.Transaction{}, fmt.Errorf("not an execTransaction call")
	}
	args, err := method.Inputs.Unpack(tx.Data[4:])
	if err != nil {
		return types.Transaction{}, fmt.Errorf("failed to unpack execTransaction: %w", err)
	}
	return types.Transaction{
		To:        args[0].(common.Address),
		Value:     args[1].(*big.Int),
		Data:      args[2].([]byte),
		Operation: types.Operation(args[3].(uint8)),
	}, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// RequiredTxGasData encodes requiredTxGas for tx. The Safe answers it by
// reverting with the gas amount, so it has to be called from the Safe itself.
func RequiredTxGasData(tx types.Transaction) ([]byte, error) {
	data, err := safeABI.Pack("requiredTxGas", tx.To, valueOrZero(tx.Value), tx.Data, uint8(tx.Operation))
	if err != nil {
		return nil, fmt.Errorf("failed to pack requiredTxGas: %w", err)
	}
	return data, nil
}

// UnpackExecResult decodes the success flag returned by execTransaction
func UnpackExecResult(result []byte) (bool, error) {
	out, err := safeABI.Unpack("execTransaction", result)
	if err != nil {
		return false, fmt.Errorf("failed to unpack execTransaction result: %w", err)
	}
	return out[0].(bool), nil
}
