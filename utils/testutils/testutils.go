package testutils

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Address returns a readable test address ending in n
func Address(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// PrivateKey returns a deterministic private key for tests
func PrivateKey(t *testing.T) *ecdsa.PrivateKey {
	key := make([]byte, 32)
	for i := 0; i < 32; i++ {
		key[i] = byte(i + 1)
	}
	privateKey, err := crypto.ToECDSA(key)
	require.NoError(t, err)
	return privateKey
}

// ParseABI parses an ABI definition and fails the test on error
func ParseABI(t *testing.T, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	require.NoError(t, err)
	return parsed
}

// Handler answers one contract call with its unpacked arguments
type Handler func(msg ethereum.CallMsg, args []interface{}) ([]interface{}, error)

type callKey struct {
	to       common.Address
	selector string
}

type route struct {
	method  abi.Method
	handler Handler
}

// RevertError carries revert data the way an RPC node reports it
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	return "execution reverted"
}

// ErrorCode implements rpc.Error
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData implements rpc.DataError
func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(e.Data)
}

// MockBackend is an in-memory contract caller routing eth_call by target and selector
type MockBackend struct {
	mu      sync.Mutex
	routes  map[callKey]route
	storage map[common.Address]map[common.Hash][]byte
	calls   []ethereum.CallMsg
}

// NewMockBackend creates an empty mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		routes:  make(map[callKey]route),
		storage: make(map[common.Address]map[common.Hash][]byte),
	}
}

// Handle registers handler for calls of method on contract at to
func (m *MockBackend) Handle(to common.Address, contract abi.ABI, method string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown method %s", method))
	}
	m.routes[callKey{to: to, selector: string(def.ID)}] = route{method: def, handler: handler}
}

// Return registers fixed return values for method on contract at to
func (m *MockBackend) Return(to common.Address, contract abi.ABI, method string, results ...interface{}) {
	m.Handle(to, contract, method, func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		return results, nil
	})
}

// SetStorage sets a storage slot of account
func (m *MockBackend) SetStorage(account common.Address, key common.Hash, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage[account] == nil {
		m.storage[account] = make(map[common.Hash][]byte)
	}
	m.storage[account][key] = common.LeftPadBytes(value, 32)
}

// Calls returns the messages received so far
func (m *MockBackend) Calls() []ethereum.CallMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ethereum.CallMsg(nil), m.calls...)
}

// CallContract implements ethereum.ContractCaller
func (m *MockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("unexpected call %+v", msg)
	}

	m.mu.Lock()
	m.calls = append(m.calls, msg)
	r, ok := m.routes[callKey{to: *msg.To, selector: string(msg.Data[:4])}]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler for selector %x on %s", msg.Data[:4], msg.To.Hex())
	}

	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	results, err := r.handler(msg, args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(results...)
}

// CodeAt implements ethereum.ContractCaller
func (m *MockBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

// StorageAt returns a slot set with SetStorage, zero otherwise
func (m *MockBackend) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.storage[account][key]; ok {
		return value, nil
	}
	return make([]byte, 32), nil
}
