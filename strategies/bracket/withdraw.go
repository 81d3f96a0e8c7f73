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
	"golang.org/x/sync/errgroup"
)

// WithdrawMode selects which step of getting funds back to the master to build
type WithdrawMode int

const (
	// RequestWithdraw asks the exchange to release the bracket's balance
	RequestWithdraw WithdrawMode = iota
	// ClaimWithdraw claims released balances into the brackets
	ClaimWithdraw
	// TransferToMaster moves the brackets' token balances to the master
	TransferToMaster
	// ClaimAndTransfer claims and forwards the claimed amounts to the master
	ClaimAndTransfer
)

func (m WithdrawMode) String() string {
	switch m {
	case RequestWithdraw:
		return "request-withdraw"
	case ClaimWithdraw:
		return "withdraw"
	case TransferToMaster:
		return "transfer-to-master"
	case ClaimAndTransfer:
		return "withdraw-and-transfer"
	default:
		return fmt.Sprintf("WithdrawMode(%d)", int(m))
	}
}

// BuildRequestWithdraw requests the withdrawal of every entry from the exchange
func (c *Composer) BuildRequestWithdraw(ctx context.Context, withdrawals []types.Deposit) (types.Transaction, error) {
	return c.buildOwnerCalls(ctx, withdrawals, "Requesting withdrawal", func(w types.Deposit) (types.Transaction, error) {
		return c.exchange.RequestWithdraw(w.TokenAddress, w.Amount)
	})
}

// BuildWithdraw claims the pending withdrawal of every entry. Amounts are
// ignored: the exchange releases the full requested amount.
func (c *Composer) BuildWithdraw(ctx context.Context, withdrawals []types.Deposit) (types.Transaction, error) {
	return c.buildOwnerCalls(ctx, withdrawals, "Withdrawing", func(w types.Deposit) (types.Transaction, error) {
		return c.exchange.Withdraw(w.BracketAddress, w.TokenAddress)
	})
}

// BuildTransferFundsToMaster moves tokens held by the brackets to the master.
// With limitToBalance each amount is capped by the bracket's token balance.
func (c *Composer) BuildTransferFundsToMaster(ctx context.Context, withdrawals []types.Deposit, limitToBalance bool) (types.Transaction, error) {
	amounts := make([]types.Deposit, len(withdrawals))
	copy(amounts, withdrawals)
	if limitToBalance {
		g, gctx := errgroup.WithContext(ctx)
		for i := range amounts {
			i := i
			g.Go(func() error {
				balance, err := c.tokens.Balance(gctx, amounts[i].TokenAddress, amounts[i].BracketAddress)
				if err != nil {
					return err
				}
				amounts[i].Amount = bmath.MinBig(amounts[i].Amount, balance)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return types.Transaction{}, fmt.Errorf("failed to get bracket balances: %w", err)
		}
	}
	return c.buildOwnerCalls(ctx, amounts, "Transferring to master", func(w types.Deposit) (types.Transaction, error) {
		return dex.Transfer(w.TokenAddress, c.master, w.Amount)
	})
}

// BuildWithdrawAndTransferFundsToMaster claims withdrawals and forwards the
// requested amounts to the master in one bundle.
func (c *Composer) BuildWithdrawAndTransferFundsToMaster(ctx context.Context, withdrawals []types.Deposit) (types.Transaction, error) {
	claim, err := c.BuildWithdraw(ctx, withdrawals)
	if err != nil {
		return types.Transaction{}, err
	}
	transfer, err := c.BuildTransferFundsToMaster(ctx, withdrawals, false)
	if err != nil {
		return types.Transaction{}, err
	}
	return c.Bundle([]types.Transaction{claim, transfer})
}

// BuildWithdrawal dispatches on mode
func (c *Composer) BuildWithdrawal(ctx context.Context, mode WithdrawMode, withdrawals []types.Deposit) (types.Transaction, error) {
	switch mode {
	case RequestWithdraw:
		return c.BuildRequestWithdraw(ctx, withdrawals)
	case ClaimWithdraw:
		return c.BuildWithdraw(ctx, withdrawals)
	case TransferToMaster:
		return c.BuildTransferFundsToMaster(ctx, withdrawals, true)
	case ClaimAndTransfer:
		return c.BuildWithdrawAndTransferFundsToMaster(ctx, withdrawals)
	default:
		return types.Transaction{}, fmt.Errorf("unknown withdraw mode %d", int(mode))
	}
}

// MaxWithdrawable returns the amount mode can move for bracket and token:
// the exchange balance for a request, the claimable pending withdrawal for a
// claim, the token balance otherwise.
func (c *Composer) MaxWithdrawable(ctx context.Context, mode WithdrawMode, bracket, token common.Address, currentBatch uint32) (types.Deposit, error) {
	w := types.Deposit{TokenAddress: token, BracketAddress: bracket}
	switch mode {
	case RequestWithdraw:
		balance, err := c.exchange.Balance(ctx, bracket, token)
		if err != nil {
			return w, err
		}
		w.Amount = balance
	case ClaimWithdraw, ClaimAndTransfer:
		pending, claimableAfter, err := c.exchange.PendingWithdraw(ctx, bracket, token)
		if err != nil {
			return w, err
		}
		w.Amount = pending
		if claimableAfter >= currentBatch {
			c.logger.Warn("Requested withdrawal is not claimable yet, skipping",
				zap.String("bracket", bracket.Hex()),
				zap.String("token", token.Hex()),
				zap.Uint32("batchesLeft", claimableAfter-currentBatch+1))
			w.Amount = new(big.Int)
		}
	default:
		balance, err := c.tokens.Balance(ctx, token, bracket)
		if err != nil {
			return w, err
		}
		w.Amount = balance
	}
	return w, nil
}

// CollectWithdrawals queries the maximal amounts for every bracket and token
// and keeps the non-zero ones, ordered by token then bracket.
func (c *Composer) CollectWithdrawals(ctx context.Context, mode WithdrawMode, brackets, tokens []common.Address) ([]types.Deposit, error) {
	currentBatch, err := c.exchange.CurrentBatchID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current batch: %w", err)
	}

	candidates := make([]types.Deposit, len(tokens)*len(brackets))
	g, gctx := errgroup.WithContext(ctx)
	for ti, token := range tokens {
		for bi, bracket := range brackets {
			slot, token, bracket := ti*len(brackets)+bi, token, bracket
			g.Go(func() error {
				w, err := c.MaxWithdrawable(gctx, mode, bracket, token, currentBatch)
				if err != nil {
					return fmt.Errorf("failed to get withdrawable amount of %s: %w", bracket.Hex(), err)
				}
				candidates[slot] = w
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	withdrawals := make([]types.Deposit, 0, len(candidates))
	for _, w := range candidates {
		if w.Amount.Sign() > 0 {
			withdrawals = append(withdrawals, w)
		}
	}
	return withdrawals, nil
}

func (c *Composer) buildOwnerCalls(ctx context.Context, withdrawals []types.Deposit, action string, build func(types.Deposit) (types.Transaction, error)) (types.Transaction, error) {
	calls := make([]types.Transaction, 0, len(withdrawals))
	for _, w := range withdrawals {
		if w.Amount == nil {
			return types.Transaction{}, fmt.Errorf("withdrawal for %s has no amount", w.BracketAddress.Hex())
		}
		inner, err := build(w)
		if err != nil {
			return types.Transaction{}, err
		}
		call, err := safe.WrapAsOwnerCall(c.master, w.BracketAddress, inner)
		if err != nil {
			return types.Transaction{}, err
		}
		c.logger.Info(action, append(c.describe(ctx, w.TokenAddress, w.Amount), zap.String("bracket", w.BracketAddress.Hex()))...)
		calls = append(calls, call)
	}
	return c.Bundle(calls)
}
