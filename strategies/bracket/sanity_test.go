package bracket

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/michaelpento.lv/bracketbot/pricefeed"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"
	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sanityFixture struct {
	backend  *testutils.MockBackend
	exchange *fakeExchange
	tokens   *fakeTokens
	prices   *fakePrices
	metrics  *metrics.Metrics
	checker  *SanityChecker
}

func newSanityFixture(t *testing.T) *sanityFixture {
	base, quote := testTokens()
	f := &sanityFixture{
		backend:  testutils.NewMockBackend(),
		exchange: newFakeExchange(t),
		tokens:   newFakeTokens(base, quote),
		prices:   &fakePrices{reasonable: true},
		metrics:  newTestMetrics(),
	}
	checker, err := NewSanityChecker(f.backend, f.exchange, f.tokens, f.prices, f.metrics, zaptest.NewLogger(t))
	require.NoError(t, err)
	f.checker = checker
	return f
}

func (f *sanityFixture) failures(check string) float64 {
	return testutil.ToFloat64(f.metrics.SanityFailures.WithLabelValues(check))
}

func TestNewSanityChecker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	backend := testutils.NewMockBackend()
	exchange := newFakeExchange(t)
	tokens := newFakeTokens()

	_, err := NewSanityChecker(nil, exchange, tokens, nil, nil, logger)
	assert.Error(t, err)
	_, err = NewSanityChecker(backend, nil, tokens, nil, nil, logger)
	assert.Error(t, err)
	_, err = NewSanityChecker(backend, exchange, nil, nil, nil, logger)
	assert.Error(t, err)
	_, err = NewSanityChecker(backend, exchange, tokens, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewSanityChecker(backend, exchange, tokens, nil, nil, logger)
	assert.NoError(t, err)
}

func TestCheckSigner(t *testing.T) {
	f := newSanityFixture(t)
	signer := testutils.Address(0x51)
	setOwners(t, f.backend, testMaster, 2, testutils.Address(0x50), signer)

	require.NoError(t, f.checker.CheckSigner(context.Background(), testMaster, signer))

	err := f.checker.CheckSigner(context.Background(), testMaster, testutils.Address(0x52))
	assert.ErrorIs(t, err, types.ErrNotOwner)
	assert.Equal(t, float64(1), f.failures(checkSigner))
}

func TestCheckBracketCount(t *testing.T) {
	f := newSanityFixture(t)
	assert.NoError(t, f.checker.CheckBracketCount(types.MaxBrackets))
	assert.ErrorIs(t, f.checker.CheckBracketCount(types.MaxBrackets+1), types.ErrTooManyBrackets)
	assert.Equal(t, float64(1), f.failures(checkCount))
}

func TestCheckBrackets(t *testing.T) {
	ctx := context.Background()
	f := newSanityFixture(t)
	brackets := testBrackets(3)
	for _, bracket := range brackets {
		setOwners(t, f.backend, bracket, 1, testMaster)
	}

	require.NoError(t, f.checker.CheckBrackets(ctx, testMaster, brackets, false))

	t.Run("ExistingOrders", func(t *testing.T) {
		f.exchange.orders[brackets[1]] = []types.EncodedOrder{{User: brackets[1]}}
		defer delete(f.exchange.orders, brackets[1])

		err := f.checker.CheckBrackets(ctx, testMaster, brackets, false)
		assert.ErrorIs(t, err, types.ErrExistingOrders)
		assert.NoError(t, f.checker.CheckBrackets(ctx, testMaster, brackets, true))
	})

	t.Run("ForeignOwner", func(t *testing.T) {
		foreign := testutils.Address(0xf0)
		setOwners(t, f.backend, foreign, 1, testutils.Address(0x99))
		err := f.checker.CheckBrackets(ctx, testMaster, []common.Address{foreign}, true)
		assert.ErrorIs(t, err, types.ErrNotSoleOwner)
		assert.Equal(t, float64(1), f.failures(checkOwner))
	})

	t.Run("Threshold", func(t *testing.T) {
		shared := testutils.Address(0xf1)
		setOwners(t, f.backend, shared, 2, testMaster)
		err := f.checker.CheckBrackets(ctx, testMaster, []common.Address{shared}, true)
		assert.ErrorIs(t, err, types.ErrNotSoleOwner)
	})
}

func TestCheckBalances(t *testing.T) {
	ctx := context.Background()
	f := newSanityFixture(t)
	f.tokens.setBalance(testBase, testMaster, big.NewInt(100))
	f.tokens.setBalance(testQuote, testMaster, big.NewInt(50))

	require.NoError(t, f.checker.CheckBalances(ctx, testMaster, map[common.Address]*big.Int{
		testBase:  big.NewInt(100),
		testQuote: big.NewInt(0),
	}))

	err := f.checker.CheckBalances(ctx, testMaster, map[common.Address]*big.Int{
		testBase:  big.NewInt(10),
		testQuote: big.NewInt(51),
	})
	var balanceErr *types.InsufficientBalanceError
	require.True(t, errors.As(err, &balanceErr), "got %v", err)
	assert.Equal(t, testQuote, balanceErr.Token)
	assert.Equal(t, int64(50), balanceErr.Have.Int64())
	assert.Equal(t, float64(1), f.failures(checkBalance))
}

func TestCheckPrice(t *testing.T) {
	ctx := context.Background()
	base, quote := testTokens()

	tests := []struct {
		name       string
		reasonable bool
		feedErr    error
		lowest     float64
		highest    float64
		skip       bool
		wantErr    error
	}{
		{name: "Reasonable", reasonable: true, lowest: 90, highest: 120},
		{name: "UnreasonablePrice", reasonable: false, lowest: 90, highest: 120, wantErr: types.ErrUnreasonablePrice},
		{name: "FeedDown", feedErr: errors.New("timeout"), lowest: 90, highest: 120, wantErr: types.ErrUnreasonablePrice},
		{name: "BoundsTooWide", reasonable: true, lowest: 50, highest: 120, wantErr: pricefeed.ErrUnreasonableBounds},
		{name: "PriceOutsideBounds", reasonable: true, lowest: 101, highest: 120, wantErr: pricefeed.ErrUnreasonableBounds},
		{name: "Skipped", reasonable: false, lowest: 50, highest: 120, skip: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newSanityFixture(t)
			f.prices.reasonable = tc.reasonable
			f.prices.err = tc.feedErr
			err := f.checker.CheckPrice(ctx, base, quote, 100, tc.lowest, tc.highest, tc.skip)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("NoFeed", func(t *testing.T) {
		f := newSanityFixture(t)
		checker, err := NewSanityChecker(f.backend, f.exchange, f.tokens, nil, f.metrics, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.ErrorIs(t, checker.CheckPrice(ctx, base, quote, 100, 90, 120, false), types.ErrUnreasonablePrice)
		assert.NoError(t, checker.CheckPrice(ctx, base, quote, 100, 90, 120, true))
	})
}
