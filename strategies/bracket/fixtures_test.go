package bracket

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/michaelpento.lv/bracketbot/dex/batchexchange"
	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"
	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	testMaster    = testutils.Address(0x1)
	testMultiSend = testutils.Address(0x5e)
	testExchange  = testutils.Address(0xe0)
	testTemplate  = testutils.Address(0x7e)
	testBase      = testutils.Address(0x10)
	testQuote     = testutils.Address(0x20)
)

func tokenID(id uint16) *uint16 {
	return &id
}

func testTokens() (base, quote types.Token) {
	base = types.Token{Address: testBase, Decimals: 18, Symbol: "WETH", ID: tokenID(1)}
	quote = types.Token{Address: testQuote, Decimals: 6, Symbol: "USDC", ID: tokenID(4)}
	return base, quote
}

func testBrackets(n int) []common.Address {
	brackets := make([]common.Address, n)
	for i := range brackets {
		brackets[i] = testutils.Address(uint64(0xb0 + i))
	}
	return brackets
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// fakeExchange builds calls with the real BatchExchange encoding and answers
// reads from memory
type fakeExchange struct {
	*batchexchange.BatchExchange

	mu       sync.Mutex
	batch    uint32
	balances map[balanceKey]*big.Int
	pending  map[balanceKey]*big.Int
	after    map[balanceKey]uint32
	orders   map[common.Address][]types.EncodedOrder
}

func newFakeExchange(t *testing.T) *fakeExchange {
	built, err := batchexchange.NewBatchExchange(testutils.NewMockBackend(), testExchange)
	require.NoError(t, err)
	return &fakeExchange{
		BatchExchange: built,
		batch:         5300000,
		balances:      make(map[balanceKey]*big.Int),
		pending:       make(map[balanceKey]*big.Int),
		after:         make(map[balanceKey]uint32),
		orders:        make(map[common.Address][]types.EncodedOrder),
	}
}

func (e *fakeExchange) CurrentBatchID(ctx context.Context) (uint32, error) {
	return e.batch, nil
}

func (e *fakeExchange) Balance(ctx context.Context, user, token common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.balances[balanceKey{token, user}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (e *fakeExchange) PendingWithdraw(ctx context.Context, user, token common.Address) (*big.Int, uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := balanceKey{token, user}
	if p, ok := e.pending[key]; ok {
		return new(big.Int).Set(p), e.after[key], nil
	}
	return new(big.Int), 0, nil
}

func (e *fakeExchange) EncodedUserOrders(ctx context.Context, user common.Address) ([]types.EncodedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders[user], nil
}

func (e *fakeExchange) setBalance(user, token common.Address, amount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[balanceKey{token, user}] = big.NewInt(amount)
}

func (e *fakeExchange) setPending(user, token common.Address, amount int64, claimableAfter uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[balanceKey{token, user}] = big.NewInt(amount)
	e.after[balanceKey{token, user}] = claimableAfter
}

// fakeTokens is an in-memory token registry with ERC20 balances
type fakeTokens struct {
	mu       sync.Mutex
	tokens   map[common.Address]types.Token
	balances map[balanceKey]*big.Int
}

func newFakeTokens(tokens ...types.Token) *fakeTokens {
	f := &fakeTokens{
		tokens:   make(map[common.Address]types.Token),
		balances: make(map[balanceKey]*big.Int),
	}
	for _, token := range tokens {
		f.tokens[token.Address] = token
	}
	return f
}

func (f *fakeTokens) Token(ctx context.Context, address common.Address) (types.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[address]
	if !ok {
		return types.Token{}, fmt.Errorf("unknown token %s", address.Hex())
	}
	return token, nil
}

func (f *fakeTokens) TokenByID(ctx context.Context, id uint16) (types.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.ID != nil && *token.ID == id {
			return token, nil
		}
	}
	return types.Token{}, fmt.Errorf("no token with id %d", id)
}

func (f *fakeTokens) Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeTokens) setBalance(token, holder common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey{token, holder}] = amount
}

type fakePrices struct {
	reasonable bool
	err        error
	quotes     map[string]float64
}

func (p *fakePrices) IsPriceReasonable(ctx context.Context, base, quote types.Token, price, tolerance float64) (bool, error) {
	return p.reasonable, p.err
}

func (p *fakePrices) Price(ctx context.Context, bought, sold string) (float64, error) {
	if price, ok := p.quotes[bought+"/"+sold]; ok {
		return price, nil
	}
	return 0, fmt.Errorf("no price for %s/%s", bought, sold)
}

// setOwners makes safeAddress a Safe owned by owners with the given threshold
func setOwners(t *testing.T, backend *testutils.MockBackend, safeAddress common.Address, threshold int64, owners ...common.Address) {
	safeABI := testutils.ParseABI(t, safe.GnosisSafeABI)
	backend.Return(safeAddress, safeABI, "getOwners", owners)
	backend.Return(safeAddress, safeABI, "getThreshold", big.NewInt(threshold))
	backend.Return(safeAddress, safeABI, "getModules", []common.Address{})
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics("bracket_test", prometheus.NewRegistry())
}

func newTestComposer(t *testing.T, exchange *fakeExchange, tokens *fakeTokens) *Composer {
	composer, err := NewComposer(testMaster, testMultiSend, exchange, tokens, newTestMetrics(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return composer
}

// ownerCalls unpacks a master bundle into its owner calls and their inner transactions
func ownerCalls(t *testing.T, bundle types.Transaction) ([]types.Transaction, []types.Transaction) {
	calls, err := safe.UnpackBatch(testMultiSend, bundle)
	require.NoError(t, err)
	inner := make([]types.Transaction, 0, len(calls))
	for _, call := range calls {
		if call.To == testBase || call.To == testQuote {
			inner = append(inner, types.Transaction{})
			continue
		}
		unwrapped, err := safe.UnwrapOwnerCall(call)
		require.NoError(t, err)
		inner = append(inner, unwrapped)
	}
	return calls, inner
}
