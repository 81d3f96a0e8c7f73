package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testBackend struct {
	*testutils.MockBackend
	baseFee *big.Int
	tip     *big.Int
}

func (b *testBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{BaseFee: b.baseFee}, nil
}

func (b *testBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return b.tip, nil
}

// requiredTxGasRevert encodes gas the way the Safe reports it: Error(string)
// whose string is the 32 byte gas figure
func requiredTxGasRevert(gas uint64) []byte {
	data := hexutil.MustDecode("0x08c379a0")
	data = append(data, common.LeftPadBytes([]byte{0x20}, 32)...)
	data = append(data, common.LeftPadBytes([]byte{0x20}, 32)...)
	return append(data, common.LeftPadBytes(new(big.Int).SetUint64(gas).Bytes(), 32)...)
}

func TestEstimateSafeTxGas(t *testing.T) {
	ctx := context.Background()
	master := testutils.Address(0x1)
	safeABI := testutils.ParseABI(t, safe.GnosisSafeABI)
	tx := types.Transaction{Operation: types.DelegateCall, To: testutils.Address(0x5e), Data: []byte{1, 2}}

	tests := []struct {
		name     string
		required uint64
		want     uint64
	}{
		{"Exact", 63000, 64000},
		{"RoundsUp", 63001, 64002},
		{"Zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &testBackend{MockBackend: testutils.NewMockBackend()}
			backend.Handle(master, safeABI, "requiredTxGas", func(msg ethereum.CallMsg, args []interface{}) ([]interface{}, error) {
				assert.Equal(t, master, msg.From)
				assert.Equal(t, tx.To, args[0].(common.Address))
				assert.Equal(t, uint8(types.DelegateCall), args[3].(uint8))
				return nil, &testutils.RevertError{Data: requiredTxGasRevert(tt.required)}
			})

			estimator, err := NewEstimator(backend, zaptest.NewLogger(t))
			require.NoError(t, err)

			gas, err := estimator.EstimateSafeTxGas(ctx, master, tx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gas)
		})
	}

	t.Run("PlainFailure", func(t *testing.T) {
		backend := &testBackend{MockBackend: testutils.NewMockBackend()}
		backend.Handle(master, safeABI, "requiredTxGas", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
			return nil, errors.New("connection refused")
		})
		estimator, err := NewEstimator(backend, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = estimator.EstimateSafeTxGas(ctx, master, tx)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("ShortRevert", func(t *testing.T) {
		backend := &testBackend{MockBackend: testutils.NewMockBackend()}
		backend.Handle(master, safeABI, "requiredTxGas", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
			return nil, &testutils.RevertError{Data: []byte{0x08, 0xc3}}
		})
		estimator, err := NewEstimator(backend, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = estimator.EstimateSafeTxGas(ctx, master, tx)
		assert.Error(t, err)
	})
}

func TestEstimateGasCost(t *testing.T) {
	backend := &testBackend{
		MockBackend: testutils.NewMockBackend(),
		baseFee:     big.NewInt(30),
		tip:         big.NewInt(2),
	}
	estimator, err := NewEstimator(backend, zaptest.NewLogger(t))
	require.NoError(t, err)

	cost, err := estimator.EstimateGasCost(context.Background(), 100000)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3200000), cost)

	_, err = NewEstimator(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}
