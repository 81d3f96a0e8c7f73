package dex

import (
	"context"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange is the batch auction exchange the brackets trade on
type Exchange interface {
	// Address returns the exchange contract address
	Address() common.Address

	// CurrentBatchID returns the index of the auction batch currently collecting orders
	CurrentBatchID(ctx context.Context) (uint32, error)

	// TokenAddress returns the token listed under id
	TokenAddress(ctx context.Context, id uint16) (common.Address, error)

	// TokenID returns the listing index of token
	TokenID(ctx context.Context, token common.Address) (uint16, error)

	// Balance returns the exchange balance of user in token
	Balance(ctx context.Context, user, token common.Address) (*big.Int, error)

	// PendingWithdraw returns the requested withdrawal amount and the batch it becomes claimable after
	PendingWithdraw(ctx context.Context, user, token common.Address) (*big.Int, uint32, error)

	// EncodedUserOrders returns the decoded order records of user
	EncodedUserOrders(ctx context.Context, user common.Address) ([]types.EncodedOrder, error)

	// PlaceValidFromOrders builds the call placing orders
	PlaceValidFromOrders(orders []types.Order) (types.Transaction, error)

	// Deposit builds the call depositing amount of token for the sender
	Deposit(token common.Address, amount *big.Int) (types.Transaction, error)

	// RequestWithdraw builds the call requesting a withdrawal of amount of token
	RequestWithdraw(token common.Address, amount *big.Int) (types.Transaction, error)

	// Withdraw builds the call claiming the pending withdrawal of user in token
	Withdraw(user, token common.Address) (types.Transaction, error)
}

// TokenRegistry resolves token metadata
type TokenRegistry interface {
	Token(ctx context.Context, address common.Address) (types.Token, error)
	TokenByID(ctx context.Context, id uint16) (types.Token, error)
	Balance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}
