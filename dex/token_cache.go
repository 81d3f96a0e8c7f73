package dex

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenCacheSize bounds the number of tokens kept per run
	DefaultTokenCacheSize = 256

	lookupTimeout = 30 * time.Second
)

// TokenCache resolves token metadata once per address for the lifetime of a
// strategy run. Concurrent lookups of the same token share one request.
type TokenCache struct {
	caller   ethereum.ContractCaller
	exchange Exchange
	logger   *zap.Logger
	tokens   *lru.Cache
	ids      *lru.Cache
	group    singleflight.Group
}

// NewTokenCache creates a cache reading tokens through caller and ids through exchange
func NewTokenCache(caller ethereum.ContractCaller, exchange Exchange, size int, logger *zap.Logger) (*TokenCache, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if size <= 0 {
		size = DefaultTokenCacheSize
	}

	tokens, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	ids, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &TokenCache{
		caller:   caller,
		exchange: exchange,
		logger:   logger,
		tokens:   tokens,
		ids:      ids,
	}, nil
}

// Token returns the metadata of the token at address
func (c *TokenCache) Token(ctx context.Context, address common.Address) (types.Token, error) {
	if cached, ok := c.tokens.Get(address); ok {
		return cached.(types.Token), nil
	}

	v, shared, err := c.do(ctx, "token:"+address.Hex(), func(ctx context.Context) (interface{}, error) {
		if cached, ok := c.tokens.Get(address); ok {
			return cached.(types.Token), nil
		}
		token, err := c.fetch(ctx, address)
		if err != nil {
			return nil, err
		}
		c.tokens.Add(address, token)
		return token, nil
	})
	if err != nil {
		return types.Token{}, err
	}
	if shared {
		c.logger.Debug("Coalesced token lookup", zap.String("token", address.Hex()))
	}
	return v.(types.Token), nil
}

// TokenByID returns the metadata of the token listed under id
func (c *TokenCache) TokenByID(ctx context.Context, id uint16) (types.Token, error) {
	if cached, ok := c.ids.Get(id); ok {
		return c.Token(ctx, cached.(common.Address))
	}

	v, _, err := c.do(ctx, "id:"+strconv.Itoa(int(id)), func(ctx context.Context) (interface{}, error) {
		address, err := c.exchange.TokenAddress(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve token id %d: %w", id, err)
		}
		if address == (common.Address{}) {
			return nil, fmt.Errorf("no token listed under id %d", id)
		}
		c.ids.Add(id, address)
		return address, nil
	})
	if err != nil {
		return types.Token{}, err
	}
	return c.Token(ctx, v.(common.Address))
}

// do runs fn once for all concurrent callers of key. fn runs on a context
// detached from the caller that started it; each caller returns when its
// own ctx ends.
func (c *TokenCache) do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return fn(lookupCtx)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// Balance reads the live ERC20 balance of holder. Balances are not cached.
func (c *TokenCache) Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return BalanceOf(ctx, c.caller, token, holder)
}

func (c *TokenCache) fetch(ctx context.Context, address common.Address) (types.Token, error) {
	decimals, err := Decimals(ctx, c.caller, address)
	if err != nil {
		return types.Token{}, fmt.Errorf("failed to get decimals: %w", err)
	}

	symbol, err := Symbol(ctx, c.caller, address)
	if err != nil {
		// some tokens return bytes32 symbols
		c.logger.Debug("Token has no string symbol", zap.String("token", address.Hex()), zap.Error(err))
		symbol = address.Hex()
	}

	token := types.Token{Address: address, Decimals: decimals, Symbol: symbol}
	id, err := c.exchange.TokenID(ctx, address)
	if err != nil {
		c.logger.Debug("Token is not listed on the exchange", zap.String("token", address.Hex()), zap.Error(err))
	} else {
		token.ID = &id
		c.ids.Add(id, address)
	}

	c.logger.Debug("Fetched token",
		zap.String("token", address.Hex()),
		zap.String("symbol", symbol),
		zap.Uint8("decimals", decimals))
	return token, nil
}
