package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotOwner          = errors.New("signer is not an owner of the master safe")
	ErrTooManyBrackets   = errors.New("too many brackets for a single transaction")
	ErrNotSoleOwner      = errors.New("bracket is not owned solely by the master safe")
	ErrExistingOrders    = errors.New("bracket already has orders on the exchange")
	ErrUnreasonablePrice = errors.New("price deviates from the price feed")
)

// ParseError reports a malformed decimal amount
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse decimal representation of %q", e.Input)
}

// PrecisionError reports an amount that cannot be represented in token units
type PrecisionError struct {
	Input  string
	Reason string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("cannot represent %q: %s", e.Input, e.Reason)
}

// InvalidPriceError reports a non-positive or non-finite price
type InvalidPriceError struct {
	Price float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %v", e.Price)
}

// InvalidRangeError reports unusable ladder bounds
type InvalidRangeError struct {
	Lowest  float64
	Highest float64
	Count   int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid bracket range [%v, %v] with %d brackets", e.Lowest, e.Highest, e.Count)
}

// InsufficientBalanceError is returned before funding when the master lacks tokens
type InsufficientBalanceError struct {
	Token common.Address
	Have  *big.Int
	Want  *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance of %s: have %s, want %s", e.Token.Hex(), e.Have, e.Want)
}

// ProfitabilityViolation is returned when a bracket's orders lose on a round trip
type ProfitabilityViolation struct {
	Bracket int
	Product string
}

func (e *ProfitabilityViolation) Error() string {
	return fmt.Sprintf("bracket %d: round trip through both orders is not profitable (price product %s)", e.Bracket, e.Product)
}

// ExternalServiceError wraps the last failure of a remote collaborator
type ExternalServiceError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Service, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
