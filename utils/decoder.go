package utils

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// encodedOrderLength is the size of one packed order returned by getEncodedUserOrders:
// user 20 | sellTokenBalance 32 | buyToken 2 | sellToken 2 | validFrom 4 |
// validUntil 4 | priceNumerator 16 | priceDenominator 16 | remainingAmount 16
const encodedOrderLength = 112

// DecodeOrders unpacks the byte string returned by getEncodedUserOrders
func DecodeOrders(packed []byte) ([]types.EncodedOrder, error) {
	if len(packed)%encodedOrderLength != 0 {
		return nil, fmt.Errorf("invalid encoded orders length %d", len(packed))
	}

	orders := make([]types.EncodedOrder, 0, len(packed)/encodedOrderLength)
	for offset := 0; offset < len(packed); offset += encodedOrderLength {
		b := packed[offset : offset+encodedOrderLength]
		orders = append(orders, types.EncodedOrder{
			User:             common.BytesToAddress(b[0:20]),
			SellTokenBalance: new(big.Int).SetBytes(b[20:52]),
			BuyToken:         binary.BigEndian.Uint16(b[52:54]),
			SellToken:        binary.BigEndian.Uint16(b[54:56]),
			ValidFrom:        binary.BigEndian.Uint32(b[56:60]),
			ValidUntil:       binary.BigEndian.Uint32(b[60:64]),
			PriceNumerator:   new(big.Int).SetBytes(b[64:80]),
			PriceDenominator: new(big.Int).SetBytes(b[80:96]),
			RemainingAmount:  new(big.Int).SetBytes(b[96:112]),
		})
	}
	return orders, nil
}

// EncodeOrders is the inverse of DecodeOrders
func EncodeOrders(orders []types.EncodedOrder) []byte {
	packed := make([]byte, 0, len(orders)*encodedOrderLength)
	for _, o := range orders {
		b := make([]byte, encodedOrderLength)
		copy(b[0:20], o.User.Bytes())
		putBig(b[20:52], o.SellTokenBalance)
		binary.BigEndian.PutUint16(b[52:54], o.BuyToken)
		binary.BigEndian.PutUint16(b[54:56], o.SellToken)
		binary.BigEndian.PutUint32(b[56:60], o.ValidFrom)
		binary.BigEndian.PutUint32(b[60:64], o.ValidUntil)
		putBig(b[64:80], o.PriceNumerator)
		putBig(b[80:96], o.PriceDenominator)
		putBig(b[96:112], o.RemainingAmount)
		packed = append(packed, b...)
	}
	return packed
}

func putBig(dst []byte, x *big.Int) {
	if x != nil {
		x.FillBytes(dst)
	}
}

// DecodeRequiredTxGas extracts the gas figure a Safe reports from
// requiredTxGas. The Safe reverts on purpose and places the value after the
// Error(string) selector, the string offset and the string length.
func DecodeRequiredTxGas(revertData []byte) (uint64, error) {
	const offset = 4 + 32 + 32
	if len(revertData) < offset+32 {
		return 0, fmt.Errorf("unexpected requiredTxGas response length %d", len(revertData))
	}
	gas := new(big.Int).SetBytes(revertData[offset : offset+32])
	if !gas.IsUint64() {
		return 0, fmt.Errorf("requiredTxGas value %s overflows uint64", gas)
	}
	return gas.Uint64(), nil
}

// DecodedCall is a human readable view of contract call data
type DecodedCall struct {
	Method string
	Params map[string]interface{}
}

// TransactionDecoder decodes call data against a set of known ABIs
type TransactionDecoder struct {
	abis   []abi.ABI
	logger *zap.Logger
}

// NewTransactionDecoder creates a decoder for the given ABIs
func NewTransactionDecoder(logger *zap.Logger, abis ...abi.ABI) (*TransactionDecoder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(abis) == 0 {
		return nil, fmt.Errorf("at least one ABI is required")
	}
	return &TransactionDecoder{abis: abis, logger: logger}, nil
}

// Decode looks up the method by selector and unpacks its arguments
func (d *TransactionDecoder) Decode(data []byte) (*DecodedCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid data length")
	}

	for _, contractABI := range d.abis {
		method, err := contractABI.MethodById(data[:4])
		if err != nil {
			continue
		}

		params := make(map[string]interface{})
		if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
			return nil, fmt.Errorf("failed to decode parameters of %s: %w", method.Name, err)
		}
		return &DecodedCall{Method: method.Name, Params: params}, nil
	}

	d.logger.Debug("Unknown method selector", zap.String("selector", common.Bytes2Hex(data[:4])))
	return nil, fmt.Errorf("unknown method selector 0x%x", data[:4])
}
