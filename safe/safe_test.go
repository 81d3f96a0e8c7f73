package safe

import (
	"context"
	"math/big"
	"testing"

	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProxyFactory = common.HexToAddress("0x76E2cFc1F5Fa8F6a5b3fC4c8F4788F0116861F9B")
	testTemplate     = common.HexToAddress("0x34CfAC646f301356fAa8B21e94227e3583Fe3F5F")
	testCreationCode = hexutil.MustDecode("0x608060405234801561001057600080fd5b50")
)

// create2Deployer hashes (saltNonce, index) from calldata, salts it with the
// hash of an empty initializer and CREATE2s the remaining calldata, returning
// the new address.
var create2Deployer = hexutil.MustDecode("0x366000602037604060202060205260006000206000526040600020604036036060" +
	"6000f560005260206000f3")

func TestPredictAddress(t *testing.T) {
	deployer := common.BytesToAddress([]byte("contract"))
	initCode := append(append([]byte{}, testCreationCode...), common.LeftPadBytes(testTemplate.Bytes(), 32)...)

	fleetFactory := testutils.Address(0xfa)
	backend := testutils.NewMockBackend()
	backend.Return(fleetFactory, fleetFactoryABI, "proxyFactory", deployer)
	backend.Return(deployer, proxyFactoryABI, "proxyCreationCode", testCreationCode)

	for _, saltNonce := range []int64{0, 1234, 1 << 40} {
		fleet, err := PredictFleet(context.Background(), backend, fleetFactory, testTemplate, big.NewInt(saltNonce), 3)
		require.NoError(t, err)
		require.Len(t, fleet, 3)

		for index := 0; index < 3; index++ {
			input := append(append(common.LeftPadBytes(big.NewInt(saltNonce).Bytes(), 32),
				common.LeftPadBytes(big.NewInt(int64(index)).Bytes(), 32)...), initCode...)
			ret, _, err := runtime.Execute(create2Deployer, input, nil)
			require.NoError(t, err)
			require.Len(t, ret, 32)
			deployed := common.BytesToAddress(ret)
			require.NotEqual(t, common.Address{}, deployed, "deployment failed")

			got := PredictAddress(deployer, testTemplate, testCreationCode, big.NewInt(saltNonce), index)
			assert.Equal(t, deployed, got, "salt nonce %d index %d", saltNonce, index)
			assert.Equal(t, deployed, fleet[index], "fleet salt nonce %d index %d", saltNonce, index)
		}
	}

	first := PredictAddress(testProxyFactory, testTemplate, testCreationCode, big.NewInt(1234), 0)
	assert.NotEqual(t, first, PredictAddress(testProxyFactory, testTemplate, testCreationCode, big.NewInt(1235), 0))
	assert.NotEqual(t, first, PredictAddress(testProxyFactory, testTemplate, testCreationCode, big.NewInt(1234), 1))
	assert.NotEqual(t, first, PredictAddress(testProxyFactory, testutils.Address(0x7e), testCreationCode, big.NewInt(1234), 0))
}

func TestPredictFleet(t *testing.T) {
	fleetFactory := testutils.Address(0xfa)
	backend := testutils.NewMockBackend()
	backend.Return(fleetFactory, fleetFactoryABI, "proxyFactory", testProxyFactory)
	backend.Return(testProxyFactory, proxyFactoryABI, "proxyCreationCode", testCreationCode)

	fleet, err := PredictFleet(context.Background(), backend, fleetFactory, testTemplate, big.NewInt(1234), 3)
	require.NoError(t, err)
	require.Len(t, fleet, 3)
	for i, address := range fleet {
		assert.Equal(t, PredictAddress(testProxyFactory, testTemplate, testCreationCode, big.NewInt(1234), i), address)
	}

	empty, err := PredictFleet(context.Background(), backend, fleetFactory, testTemplate, big.NewInt(1234), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = PredictFleet(context.Background(), nil, fleetFactory, testTemplate, big.NewInt(1234), 1)
	assert.Error(t, err)
}

func TestOwnerSignature(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sig := OwnerSignature(owner)

	require.Len(t, sig, 65)
	assert.Equal(t, make([]byte, 12), sig[:12])
	assert.Equal(t, owner.Bytes(), sig[12:32])
	assert.Equal(t, make([]byte, 32), sig[32:64])
	assert.Equal(t, byte(1), sig[64])
}

func TestWrapAsOwnerCall(t *testing.T) {
	master := testutils.Address(0x1)
	bracket := testutils.Address(0xb1)
	inner := types.Transaction{
		Operation: types.DelegateCall,
		To:        testutils.Address(0x2),
		Value:     big.NewInt(0),
		Data:      []byte{0xde, 0xad, 0xbe, 0xef},
	}

	wrapped, err := WrapAsOwnerCall(master, bracket, inner)
	require.NoError(t, err)
	assert.Equal(t, types.Call, wrapped.Operation)
	assert.Equal(t, bracket, wrapped.To)
	assert.Zero(t, wrapped.Value.Sign())

	method, err := safeABI.MethodById(wrapped.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "execTransaction", method.Name)

	args, err := method.Inputs.Unpack(wrapped.Data[4:])
	require.NoError(t, err)
	assert.Zero(t, args[4].(*big.Int).Sign(), "safeTxGas")
	assert.Zero(t, args[5].(*big.Int).Sign(), "baseGas")
	assert.Zero(t, args[6].(*big.Int).Sign(), "gasPrice")
	assert.Equal(t, common.Address{}, args[7])
	assert.Equal(t, common.Address{}, args[8])
	assert.Equal(t, OwnerSignature(master), args[9])

	unwrapped, err := UnwrapOwnerCall(wrapped)
	require.NoError(t, err)
	assert.Equal(t, inner.Operation, unwrapped.Operation)
	assert.Equal(t, inner.To, unwrapped.To)
	assert.Equal(t, inner.Data, unwrapped.Data)

	_, err = UnwrapOwnerCall(types.Transaction{Data: []byte{1}})
	assert.Error(t, err)
}

func TestMultiSend(t *testing.T) {
	multiSend := testutils.Address(0x5e)
	txs := []types.Transaction{
		{Operation: types.Call, To: testutils.Address(0xa), Value: big.NewInt(0), Data: []byte{1, 2, 3}},
		{Operation: types.DelegateCall, To: testutils.Address(0xb), Value: big.NewInt(7), Data: nil},
		{Operation: types.Call, To: testutils.Address(0xc), Data: make([]byte, 100)},
	}

	t.Run("EncodeDecode", func(t *testing.T) {
		packed := EncodeMultiSend(txs)
		assert.Len(t, packed, 3*multiSendHeaderLength+3+0+100)
		assert.Equal(t, byte(0), packed[0])
		assert.Equal(t, testutils.Address(0xa).Bytes(), packed[1:21])

		decoded, err := DecodeMultiSend(packed)
		require.NoError(t, err)
		require.Len(t, decoded, 3)
		for i := range txs {
			assert.Equal(t, txs[i].Operation, decoded[i].Operation)
			assert.Equal(t, txs[i].To, decoded[i].To)
			assert.Equal(t, valueOrZero(txs[i].Value).String(), decoded[i].Value.String())
			assert.Equal(t, len(txs[i].Data), len(decoded[i].Data))
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		packed := EncodeMultiSend(txs[:1])
		_, err := DecodeMultiSend(packed[:len(packed)-1])
		assert.Error(t, err)

		_, err = DecodeMultiSend(packed[:10])
		assert.Error(t, err)

		bad := append([]byte(nil), packed...)
		bad[0] = 2
		_, err = DecodeMultiSend(bad)
		assert.Error(t, err)
	})

	t.Run("FlattenBatch", func(t *testing.T) {
		batch, err := FlattenBatch(multiSend, txs)
		require.NoError(t, err)
		assert.Equal(t, types.DelegateCall, batch.Operation)
		assert.Equal(t, multiSend, batch.To)
		assert.True(t, IsBatch(multiSend, batch))
		assert.False(t, IsBatch(testutils.Address(0x5f), batch))

		unpacked, err := UnpackBatch(multiSend, batch)
		require.NoError(t, err)
		assert.Len(t, unpacked, 3)

		_, err = UnpackBatch(multiSend, txs[0])
		assert.Error(t, err)
	})

	t.Run("NestingPreservesOrder", func(t *testing.T) {
		inner, err := FlattenBatch(multiSend, txs[1:])
		require.NoError(t, err)
		nested, err := FlattenBatch(multiSend, []types.Transaction{txs[0], inner})
		require.NoError(t, err)
		flat, err := FlattenBatch(multiSend, txs)
		require.NoError(t, err)

		nestedLeaves, err := Leaves(multiSend, []types.Transaction{nested})
		require.NoError(t, err)
		flatLeaves, err := Leaves(multiSend, []types.Transaction{flat})
		require.NoError(t, err)

		require.Len(t, nestedLeaves, len(flatLeaves))
		for i := range flatLeaves {
			assert.Equal(t, Fingerprint(flatLeaves[i]), Fingerprint(nestedLeaves[i]))
		}
	})

	t.Run("Fingerprint", func(t *testing.T) {
		assert.Equal(t, Fingerprint(txs[0]), Fingerprint(txs[0]))
		assert.NotEqual(t, Fingerprint(txs[0]), Fingerprint(txs[1]))
		assert.Len(t, Fingerprint(txs[0]), 16)
	})
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	master := testutils.Address(0x1)
	bracket := testutils.Address(0xb1)

	backend := testutils.NewMockBackend()
	backend.Return(bracket, safeABI, "getOwners", []common.Address{master})
	backend.Return(bracket, safeABI, "getThreshold", big.NewInt(1))
	backend.Return(bracket, safeABI, "nonce", big.NewInt(4))
	backend.Return(bracket, safeABI, "getModules", []common.Address{})
	backend.Handle(bracket, safeABI, "isOwner", func(_ ethereum.CallMsg, args []interface{}) ([]interface{}, error) {
		return []interface{}{args[0].(common.Address) == master}, nil
	})
	backend.SetStorage(bracket, common.Hash{}, testTemplate.Bytes())

	reader, err := NewReader(backend, bracket)
	require.NoError(t, err)

	nonce, err := reader.Nonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), nonce.Int64())

	modules, err := reader.Modules(ctx)
	require.NoError(t, err)
	assert.Empty(t, modules)

	isOwner, err := reader.IsOwner(ctx, master)
	require.NoError(t, err)
	assert.True(t, isOwner)

	masterCopy, err := reader.MasterCopy(ctx)
	require.NoError(t, err)
	assert.Equal(t, testTemplate, masterCopy)

	handler := testutils.Address(0xfb)
	backend.SetStorage(bracket, FallbackHandlerSlot, handler.Bytes())
	fallback, err := reader.FallbackHandler(ctx)
	require.NoError(t, err)
	assert.Equal(t, handler, fallback)
	assert.Equal(t, "0x6c9a6c4a39284e37ed1cf53d337577d14212a4870fb976a4366c693b939918d5", FallbackHandlerSlot.Hex())

	assert.NoError(t, reader.CheckSoleOwner(ctx, master))
	assert.ErrorIs(t, reader.CheckSoleOwner(ctx, testutils.Address(0x2)), types.ErrNotSoleOwner)

	backend.Return(bracket, safeABI, "getThreshold", big.NewInt(2))
	assert.ErrorIs(t, reader.CheckSoleOwner(ctx, master), types.ErrNotSoleOwner)

	_, err = NewReader(nil, bracket)
	assert.Error(t, err)
}
