package batchexchange

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract addresses
var (
	MainnetAddress = common.HexToAddress("0x6F400810b62df8E13fded51bE75fF5393eaa841F")
	RinkebyAddress = common.HexToAddress("0xC576eA7bd102F7E476368a5E98FA455d1Ea34dE2")
)

// BatchExchangeABI contains the exchange methods the strategy reads and calls
const BatchExchangeABI = `[
	{"inputs":[],"name":"getCurrentBatchId","outputs":[{"name":"","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint16"}],"name":"tokenIdToAddressMap","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"address"}],"name":"tokenAddressToIdMap","outputs":[{"name":"","type":"uint16"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"name":"getPendingWithdraw","outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getEncodedUserOrders","outputs":[{"name":"elements","type":"bytes"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"name":"buyTokens","type":"uint16[]"},
		{"name":"sellTokens","type":"uint16[]"},
		{"name":"validFroms","type":"uint32[]"},
		{"name":"validUntils","type":"uint32[]"},
		{"name":"buyAmounts","type":"uint128[]"},
		{"name":"sellAmounts","type":"uint128[]"}],
	 "name":"placeValidFromOrders","outputs":[{"name":"orderIds","type":"uint16[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"requestWithdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// BatchExchange reads exchange state and builds exchange calls
type BatchExchange struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewBatchExchange creates a binding for the exchange deployed at address
func NewBatchExchange(caller ethereum.ContractCaller, address common.Address) (*BatchExchange, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	parsedABI, err := abi.JSON(strings.NewReader(BatchExchangeABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange ABI: %w", err)
	}
	return &BatchExchange{
		caller:  caller,
		address: address,
		abi:     parsedABI,
	}, nil
}

// Address returns the exchange contract address
func (e *BatchExchange) Address() common.Address {
	return e.address
}

// ABI returns the parsed exchange ABI
func (e *BatchExchange) ABI() abi.ABI {
	return e.abi
}

// CurrentBatchID returns the batch currently collecting orders
func (e *BatchExchange) CurrentBatchID(ctx context.Context) (uint32, error) {
	out, err := e.call(ctx, "getCurrentBatchId")
	if err != nil {
		return 0, err
	}
	return out[0].(uint32), nil
}

// TokenAddress returns the token listed under id
func (e *BatchExchange) TokenAddress(ctx context.Context, id uint16) (common.Address, error) {
	out, err := e.call(ctx, "tokenIdToAddressMap", id)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// TokenID returns the listing index of token. Unlisted tokens revert.
func (e *BatchExchange) TokenID(ctx context.Context, token common.Address) (uint16, error) {
	out, err := e.call(ctx, "tokenAddressToIdMap", token)
	if err != nil {
		return 0, err
	}
	return out[0].(uint16), nil
}

// Balance returns the exchange balance of user in token
func (e *BatchExchange) Balance(ctx context.Context, user, token common.Address) (*big.Int, error) {
	out, err := e.call(ctx, "getBalance", user, token)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// PendingWithdraw returns the requested amount and the batch after which it can be claimed
func (e *BatchExchange) PendingWithdraw(ctx context.Context, user, token common.Address) (*big.Int, uint32, error) {
	out, err := e.call(ctx, "getPendingWithdraw", user, token)
	if err != nil {
		return nil, 0, err
	}
	return out[0].(*big.Int), out[1].(uint32), nil
}

// EncodedUserOrders returns all orders of user, including expired ones
func (e *BatchExchange) EncodedUserOrders(ctx context.Context, user common.Address) ([]types.EncodedOrder, error) {
	out, err := e.call(ctx, "getEncodedUserOrders", user)
	if err != nil {
		return nil, err
	}
	orders, err := utils.DecodeOrders(out[0].([]byte))
	if err != nil {
		return nil, fmt.Errorf("failed to decode orders of %s: %w", user.Hex(), err)
	}
	return orders, nil
}

// PlaceValidFromOrders builds the call placing orders in slice order
func (e *BatchExchange) PlaceValidFromOrders(orders []types.Order) (types.Transaction, error) {
	n := len(orders)
	buyTokens := make([]uint16, n)
	sellTokens := make([]uint16, n)
	validFroms := make([]uint32, n)
	validUntils := make([]uint32, n)
	buyAmounts := make([]*big.Int, n)
	sellAmounts := make([]*big.Int, n)
	for i, order := range orders {
		if order.BuyAmount == nil || order.SellAmount == nil {
			return types.Transaction{}, fmt.Errorf("order %d has no amounts", i)
		}
		buyTokens[i] = order.BuyToken
		sellTokens[i] = order.SellToken
		validFroms[i] = order.ValidFrom
		validUntils[i] = order.ValidUntil
		buyAmounts[i] = order.BuyAmount
		sellAmounts[i] = order.SellAmount
	}
	return e.transaction("placeValidFromOrders", buyTokens, sellTokens, validFroms, validUntils, buyAmounts, sellAmounts)
}

// Deposit builds the call depositing amount of token for the sender
func (e *BatchExchange) Deposit(token common.Address, amount *big.Int) (types.Transaction, error) {
	return e.transaction("deposit", token, amount)
}

// RequestWithdraw builds the call requesting a withdrawal for the sender
func (e *BatchExchange) RequestWithdraw(token common.Address, amount *big.Int) (types.Transaction, error) {
	return e.transaction("requestWithdraw", token, amount)
}

// Withdraw builds the call claiming the pending withdrawal of user
func (e *BatchExchange) Withdraw(user, token common.Address) (types.Transaction, error) {
	return e.transaction("withdraw", user, token)
}

func (e *BatchExchange) transaction(method string, args ...interface{}) (types.Transaction, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return types.Transaction{
		Operation: types.Call,
		To:        e.address,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

func (e *BatchExchange) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	out, err := e.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}
