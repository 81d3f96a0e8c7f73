package safe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// header of one packed MultiSend entry: operation 1 | to 20 | value 32 | length 32
const multiSendHeaderLength = 1 + 20 + 32 + 32

// EncodeMultiSend packs transactions in the layout MultiSend iterates over.
// Execution order equals slice order.
func EncodeMultiSend(txs []types.Transaction) []byte {
	var packed []byte
	for _, tx := range txs {
		packed = append(packed, byte(tx.Operation))
		packed = append(packed, tx.To.Bytes()...)
		packed = append(packed, common.LeftPadBytes(valueOrZero(tx.Value).Bytes(), 32)...)
		packed = append(packed, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
		packed = append(packed, tx.Data...)
	}
	return packed
}

// DecodeMultiSend splits a packed MultiSend payload into its transactions
func DecodeMultiSend(packed []byte) ([]types.Transaction, error) {
	var txs []types.Transaction
	for offset := 0; offset < len(packed); {
		if len(packed)-offset < multiSendHeaderLength {
			return nil, fmt.Errorf("truncated multisend entry at offset %d", offset)
		}
		operation := types.Operation(packed[offset])
		if operation != types.Call && operation != types.DelegateCall {
			return nil, fmt.Errorf("invalid operation %d at offset %d", operation, offset)
		}
		to := common.BytesToAddress(packed[offset+1 : offset+21])
		value := new(big.Int).SetBytes(packed[offset+21 : offset+53])
		lengthWord := packed[offset+53 : offset+85]
		for _, b := range lengthWord[:24] {
			if b != 0 {
				return nil, fmt.Errorf("data length overflow at offset %d", offset)
			}
		}
		length := binary.BigEndian.Uint64(lengthWord[24:])
		start := offset + multiSendHeaderLength
		if length > uint64(len(packed)-start) {
			return nil, fmt.Errorf("data length %d exceeds payload at offset %d", length, offset)
		}
		end := start + int(length)

		data := make([]byte, length)
		copy(data, packed[start:end])
		txs = append(txs, types.Transaction{Operation: operation, To: to, Value: value, Data: data})
		offset = end
	}
	return txs, nil
}

// FlattenBatch turns a list of transactions into one delegate call to the
// MultiSend contract at multiSend. Nothing is reordered or deduplicated.
func FlattenBatch(multiSend common.Address, txs []types.Transaction) (types.Transaction, error) {
	data, err := multiSendABI.Pack("multiSend", EncodeMultiSend(txs))
	if err != nil {
		return types.Transaction{}, fmt.Errorf("failed to pack multiSend: %w", err)
	}
	return types.Transaction{
		Operation: types.DelegateCall,
		To:        multiSend,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

// UnpackBatch returns the transactions of a batch built by FlattenBatch
func UnpackBatch(multiSend common.Address, tx types.Transaction) ([]types.Transaction, error) {
	if !IsBatch(multiSend, tx) {
		return nil, fmt.Errorf("transaction is not a multisend batch")
	}
	args, err := multiSendABI.Methods["multiSend"].Inputs.Unpack(tx.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multiSend: %w", err)
	}
	return DecodeMultiSend(args[0].([]byte))
}

// IsBatch reports whether tx is a delegate call into the MultiSend contract
func IsBatch(multiSend common.Address, tx types.Transaction) bool {
	method := multiSendABI.Methods["multiSend"]
	return tx.Operation == types.DelegateCall &&
		tx.To == multiSend &&
		len(tx.Data) >= 4 &&
		bytes.Equal(tx.Data[:4], method.ID)
}

// Leaves expands nested batches and returns the calls in execution order.
// Owner calls into brackets are leaves: their inner batch runs in another account.
func Leaves(multiSend common.Address, txs []types.Transaction) ([]types.Transaction, error) {
	var leaves []types.Transaction
	for _, tx := range txs {
		if !IsBatch(multiSend, tx) {
			leaves = append(leaves, tx)
			continue
		}
		inner, err := UnpackBatch(multiSend, tx)
		if err != nil {
			return nil, err
		}
		expanded, err := Leaves(multiSend, inner)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, expanded...)
	}
	return leaves, nil
}

// Fingerprint is a short digest of a transaction for log correlation
func Fingerprint(tx types.Transaction) string {
	h := xxhash.New()
	_, _ = h.Write([]byte{byte(tx.Operation)})
	_, _ = h.Write(tx.To.Bytes())
	_, _ = h.Write(valueOrZero(tx.Value).Bytes())
	_, _ = h.Write(tx.Data)
	return fmt.Sprintf("%016x", h.Sum64())
}
