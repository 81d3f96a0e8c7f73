package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI is the subset of the token interface used for funding and metadata
const ERC20ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// ERC20 returns the parsed token ABI
func ERC20() abi.ABI {
	return erc20ABI
}

// Transfer builds token.transfer(to, amount)
func Transfer(token, to common.Address, amount *big.Int) (types.Transaction, error) {
	return erc20Transaction(token, "transfer", to, amount)
}

// Approve builds token.approve(spender, amount)
func Approve(token, spender common.Address, amount *big.Int) (types.Transaction, error) {
	return erc20Transaction(token, "approve", spender, amount)
}

func erc20Transaction(token common.Address, method string, args ...interface{}) (types.Transaction, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return types.Transaction{
		Operation: types.Call,
		To:        token,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

// BalanceOf reads the token balance of holder
func BalanceOf(ctx context.Context, caller ethereum.ContractCaller, token, holder common.Address) (*big.Int, error) {
	out, err := callERC20(ctx, caller, token, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Decimals reads the token's decimals
func Decimals(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (uint8, error) {
	out, err := callERC20(ctx, caller, token, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// Symbol reads the token's symbol
func Symbol(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (string, error) {
	out, err := callERC20(ctx, caller, token, "symbol")
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

func callERC20(ctx context.Context, caller ethereum.ContractCaller, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, token.Hex(), err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s of %s: %w", method, token.Hex(), err)
	}
	return out, nil
}
