package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the Safe execution mode of a transaction
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case Call:
		return "CALL"
	case DelegateCall:
		return "DELEGATECALL"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

const (
	// DefaultOrderExpiry is the highest batch index that still differs from
	// the exchange's "never expires" value.
	DefaultOrderExpiry uint32 = 1<<32 - 2

	// DefaultValidFromOffset is the number of auction batches orders wait
	// before becoming valid.
	DefaultValidFromOffset uint32 = 3

	// BatchDurationSeconds is the length of one auction batch.
	BatchDurationSeconds = 300

	// MaxBrackets is the largest fleet whose setup still fits into one block.
	MaxBrackets = 23
)

// Transaction is a single call executed by a Safe
type Transaction struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// Token holds the immutable metadata of an ERC20 token
type Token struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
	// ID is the token's index on the exchange, nil if unknown
	ID *uint16
}

// ExchangeID returns the exchange index or an error when the token is not listed
func (t Token) ExchangeID() (uint16, error) {
	if t.ID == nil {
		return 0, fmt.Errorf("token %s (%s) has no exchange id", t.Symbol, t.Address.Hex())
	}
	return *t.ID, nil
}

// Bracket is one price interval of the ladder, backed by one sub-Safe
type Bracket struct {
	Index      int
	LowerLimit float64
	UpperLimit float64
	Address    common.Address
}

// Order is an order as accepted by placeValidFromOrders
type Order struct {
	BuyToken   uint16
	SellToken  uint16
	ValidFrom  uint32
	ValidUntil uint32
	BuyAmount  *big.Int
	SellAmount *big.Int
}

// OrderPair is the sell-high / buy-low order pair of a bracket
type OrderPair struct {
	Bracket Bracket
	Sell    Order
	Buy     Order
}

// EncodedOrder is one record returned by getEncodedUserOrders
type EncodedOrder struct {
	User             common.Address
	SellTokenBalance *big.Int
	BuyToken         uint16
	SellToken        uint16
	ValidFrom        uint32
	ValidUntil       uint32
	PriceNumerator   *big.Int
	PriceDenominator *big.Int
	RemainingAmount  *big.Int
}

// Deposit moves Amount of TokenAddress into (or out of) BracketAddress
type Deposit struct {
	Amount         *big.Int
	TokenAddress   common.Address
	BracketAddress common.Address
}

type depositJSON struct {
	Amount         string         `json:"amount"`
	TokenAddress   common.Address `json:"tokenAddress"`
	BracketAddress common.Address `json:"bracketAddress"`
}

// MarshalJSON writes the amount as a decimal string
func (d Deposit) MarshalJSON() ([]byte, error) {
	amount := "0"
	if d.Amount != nil {
		amount = d.Amount.String()
	}
	return json.Marshal(depositJSON{
		Amount:         amount,
		TokenAddress:   d.TokenAddress,
		BracketAddress: d.BracketAddress,
	})
}

// UnmarshalJSON reads the amount from a decimal string
func (d *Deposit) UnmarshalJSON(data []byte) error {
	var raw depositJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount %q", raw.Amount)
	}
	d.Amount = amount
	d.TokenAddress = raw.TokenAddress
	d.BracketAddress = raw.BracketAddress
	return nil
}
