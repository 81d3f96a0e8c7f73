package bracket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/dex"
	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Transfer sends a human readable Amount of a token from the master to Receiver
type Transfer struct {
	Amount       string         `json:"amount"`
	TokenAddress common.Address `json:"tokenAddress"`
	Receiver     common.Address `json:"receiver"`
}

// TransferApproveDepositCalls returns the master calls moving one deposit from
// the master into the exchange balance of its bracket: a transfer to the
// bracket, then an owner call making the bracket approve and deposit.
func (c *Composer) TransferApproveDepositCalls(deposit types.Deposit) ([]types.Transaction, error) {
	transfer, err := dex.Transfer(deposit.TokenAddress, deposit.BracketAddress, deposit.Amount)
	if err != nil {
		return nil, err
	}
	deposited, err := c.approveAndDeposit(deposit)
	if err != nil {
		return nil, err
	}
	return []types.Transaction{transfer, deposited}, nil
}

// BuildTransferApproveDeposit funds every bracket from the master in one bundle
func (c *Composer) BuildTransferApproveDeposit(ctx context.Context, deposits []types.Deposit) (types.Transaction, error) {
	var calls []types.Transaction
	for _, deposit := range deposits {
		c.logger.Info("Funding bracket",
			append(c.describe(ctx, deposit.TokenAddress, deposit.Amount),
				zap.String("bracket", deposit.BracketAddress.Hex()))...)
		depositCalls, err := c.TransferApproveDepositCalls(deposit)
		if err != nil {
			return types.Transaction{}, fmt.Errorf("failed to build deposit into %s: %w", deposit.BracketAddress.Hex(), err)
		}
		calls = append(calls, depositCalls...)
	}
	return c.Bundle(calls)
}

// BuildDeposit makes every bracket deposit tokens it already holds
func (c *Composer) BuildDeposit(ctx context.Context, deposits []types.Deposit) (types.Transaction, error) {
	calls := make([]types.Transaction, 0, len(deposits))
	for _, deposit := range deposits {
		c.logger.Info("Bracket depositing",
			append(c.describe(ctx, deposit.TokenAddress, deposit.Amount),
				zap.String("bracket", deposit.BracketAddress.Hex()))...)
		call, err := c.approveAndDeposit(deposit)
		if err != nil {
			return types.Transaction{}, fmt.Errorf("failed to build deposit of %s: %w", deposit.BracketAddress.Hex(), err)
		}
		calls = append(calls, call)
	}
	return c.Bundle(calls)
}

func (c *Composer) approveAndDeposit(deposit types.Deposit) (types.Transaction, error) {
	if deposit.Amount == nil || deposit.Amount.Sign() < 0 {
		return types.Transaction{}, fmt.Errorf("invalid deposit amount")
	}
	approve, err := dex.Approve(deposit.TokenAddress, c.exchange.Address(), deposit.Amount)
	if err != nil {
		return types.Transaction{}, err
	}
	depositCall, err := c.exchange.Deposit(deposit.TokenAddress, deposit.Amount)
	if err != nil {
		return types.Transaction{}, err
	}
	inner, err := safe.FlattenBatch(c.multiSend, []types.Transaction{approve, depositCall})
	if err != nil {
		return types.Transaction{}, err
	}
	return safe.WrapAsOwnerCall(c.master, deposit.BracketAddress, inner)
}

// BuildTransfers sends tokens from the master to arbitrary receivers. Unless
// unsafe is set the master's balance must cover the sum per token.
func (c *Composer) BuildTransfers(ctx context.Context, transfers []Transfer, unsafe bool) (types.Transaction, error) {
	calls := make([]types.Transaction, 0, len(transfers))
	totals := make(map[common.Address]*big.Int)
	var order []common.Address

	for _, transfer := range transfers {
		token, err := c.tokens.Token(ctx, transfer.TokenAddress)
		if err != nil {
			return types.Transaction{}, err
		}
		units, err := bmath.ToUnits(transfer.Amount, int(token.Decimals))
		if err != nil {
			return types.Transaction{}, fmt.Errorf("invalid amount for %s: %w", token.Symbol, err)
		}
		if totals[token.Address] == nil {
			totals[token.Address] = new(big.Int)
			order = append(order, token.Address)
		}
		totals[token.Address].Add(totals[token.Address], units)

		call, err := dex.Transfer(token.Address, transfer.Receiver, units)
		if err != nil {
			return types.Transaction{}, err
		}
		c.logger.Info("Transfer",
			zap.String("symbol", token.Symbol),
			zap.String("amount", bmath.FormatUnits(units, token.Decimals)),
			zap.String("receiver", transfer.Receiver.Hex()))
		calls = append(calls, call)
	}

	if !unsafe {
		for _, token := range order {
			if err := c.checkMasterBalance(ctx, token, totals[token]); err != nil {
				return types.Transaction{}, err
			}
		}
		c.logger.Info("Balance verification passed", zap.Int("tokens", len(order)))
	}
	return c.Bundle(calls)
}

func (c *Composer) checkMasterBalance(ctx context.Context, token common.Address, want *big.Int) error {
	have, err := c.tokens.Balance(ctx, token, c.master)
	if err != nil {
		return fmt.Errorf("failed to get master balance: %w", err)
	}
	if have.Cmp(want) < 0 {
		return &types.InsufficientBalanceError{Token: token, Have: have, Want: want}
	}
	return nil
}
