package dex

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelpento.lv/bracketbot/dex/batchexchange"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCache(t *testing.T) (*TokenCache, *testutils.MockBackend, *int32) {
	exchangeAddress := testutils.Address(0xe0)
	weth := testutils.Address(0x10)
	dai := testutils.Address(0x20)

	backend := testutils.NewMockBackend()
	exchange, err := batchexchange.NewBatchExchange(backend, exchangeAddress)
	require.NoError(t, err)

	var decimalCalls int32
	backend.Handle(weth, erc20ABI, "decimals", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		atomic.AddInt32(&decimalCalls, 1)
		return []interface{}{uint8(18)}, nil
	})
	backend.Return(weth, erc20ABI, "symbol", "WETH")
	backend.Return(dai, erc20ABI, "decimals", uint8(18))
	backend.Handle(dai, erc20ABI, "symbol", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		return nil, errors.New("execution reverted")
	})
	backend.Return(weth, erc20ABI, "balanceOf", big.NewInt(5))

	backend.Handle(exchangeAddress, exchange.ABI(), "tokenAddressToIdMap", func(_ ethereum.CallMsg, args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) == weth {
			return []interface{}{uint16(1)}, nil
		}
		return nil, errors.New("execution reverted: Must have Address to get ID")
	})
	backend.Handle(exchangeAddress, exchange.ABI(), "tokenIdToAddressMap", func(_ ethereum.CallMsg, args []interface{}) ([]interface{}, error) {
		if args[0].(uint16) == 1 {
			return []interface{}{weth}, nil
		}
		return []interface{}{common.Address{}}, nil
	})

	cache, err := NewTokenCache(backend, exchange, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	return cache, backend, &decimalCalls
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()
	cache, _, decimalCalls := newTestCache(t)
	weth := testutils.Address(0x10)
	dai := testutils.Address(0x20)

	t.Run("ListedToken", func(t *testing.T) {
		token, err := cache.Token(ctx, weth)
		require.NoError(t, err)
		assert.Equal(t, "WETH", token.Symbol)
		assert.Equal(t, uint8(18), token.Decimals)
		id, err := token.ExchangeID()
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)
	})

	t.Run("UnlistedToken", func(t *testing.T) {
		token, err := cache.Token(ctx, dai)
		require.NoError(t, err)
		assert.Equal(t, dai.Hex(), token.Symbol)
		_, err = token.ExchangeID()
		assert.Error(t, err)
	})

	t.Run("ByID", func(t *testing.T) {
		token, err := cache.TokenByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, weth, token.Address)

		_, err = cache.TokenByID(ctx, 9)
		assert.Error(t, err)
	})

	t.Run("FetchedOnce", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := cache.Token(ctx, weth)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(decimalCalls))
	})

	t.Run("Balance", func(t *testing.T) {
		balance, err := cache.Balance(ctx, weth, testutils.Address(0x1))
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance.Int64())
	})
}

func TestTokenCacheConcurrentLookups(t *testing.T) {
	cache, _, decimalCalls := newTestCache(t)
	weth := testutils.Address(0x10)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.Token(context.Background(), weth)
			assert.NoError(t, err)
			assert.Equal(t, "WETH", token.Symbol)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(decimalCalls))
}

func TestTokenCacheCancelledCaller(t *testing.T) {
	cache, backend, _ := newTestCache(t)
	mkr := testutils.Address(0x30)

	started := make(chan struct{})
	release := make(chan struct{})
	var decimalCalls int32
	backend.Handle(mkr, erc20ABI, "decimals", func(ethereum.CallMsg, []interface{}) ([]interface{}, error) {
		if atomic.AddInt32(&decimalCalls, 1) == 1 {
			close(started)
		}
		<-release
		return []interface{}{uint8(18)}, nil
	})
	backend.Return(mkr, erc20ABI, "symbol", "MKR")

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cache.Token(ctx, mkr)
		first <- err
	}()
	<-started
	cancel()

	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	type result struct {
		token types.Token
		err   error
	}
	second := make(chan result, 1)
	go func() {
		token, err := cache.Token(context.Background(), mkr)
		second <- result{token, err}
	}()
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "MKR", res.token.Symbol, "lookup finished on a live context")
	assert.Equal(t, int32(1), atomic.LoadInt32(&decimalCalls))

	cached, err := cache.Token(context.Background(), mkr)
	require.NoError(t, err)
	assert.Equal(t, "MKR", cached.Symbol)
}

func TestNewTokenCacheValidation(t *testing.T) {
	backend := testutils.NewMockBackend()
	exchange, err := batchexchange.NewBatchExchange(backend, testutils.Address(0xe0))
	require.NoError(t, err)

	_, err = NewTokenCache(nil, exchange, 10, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = NewTokenCache(backend, nil, 10, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = NewTokenCache(backend, exchange, 10, nil)
	assert.Error(t, err)
}
