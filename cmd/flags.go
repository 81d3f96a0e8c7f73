package cmd

import (
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/config"
	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// strategyFlags are the strategy parameters shared by the commands. Values
// given on the command line override the strategy file.
type strategyFlags struct {
	file     string
	strategy config.Strategy

	skipPriceCheck bool
	allowExisting  bool
	depositFile    string
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.file, "strategy", "", "YAML strategy file")
	flags.StringVar(&f.strategy.Master, "master", "", "address of the master Safe")
	flags.Uint16Var(&f.strategy.BaseTokenID, "base-token-id", 0, "exchange id of the base token")
	flags.Uint16Var(&f.strategy.QuoteTokenID, "quote-token-id", 0, "exchange id of the quote token")
	flags.StringVar(&f.strategy.DepositBase, "deposit-base", "0", "total base token amount to invest, e.g. 1.5")
	flags.StringVar(&f.strategy.DepositQuote, "deposit-quote", "0", "total quote token amount to invest")
	flags.Float64Var(&f.strategy.CurrentPrice, "current-price", 0, "current price of the base token in quote token")
	flags.Float64Var(&f.strategy.LowestLimit, "lowest-limit", 0, "lowest price of the ladder")
	flags.Float64Var(&f.strategy.HighestLimit, "highest-limit", 0, "highest price of the ladder")
	flags.IntVar(&f.strategy.NumBrackets, "num-brackets", 0, "number of brackets")
	flags.StringSliceVar(&f.strategy.Brackets, "brackets", nil, "addresses of existing brackets, comma separated")
	flags.StringVar(&f.strategy.SaltNonce, "salt-nonce", "", "salt nonce of the fleet deployment")
	flags.BoolVar(&f.skipPriceCheck, "skip-price-check", false, "do not compare prices with the online price feed")
	flags.BoolVar(&f.allowExisting, "allow-existing", false, "accept brackets that already have orders")
	flags.StringVar(&f.depositFile, "deposit-file", bracket.DefaultDepositFile, "where to store the allocated deposits")
}

var strategyFlagNames = []string{
	"master", "base-token-id", "quote-token-id", "deposit-base", "deposit-quote",
	"current-price", "lowest-limit", "highest-limit", "num-brackets", "brackets", "salt-nonce",
}

// merged returns the strategy file overlaid with the flags set explicitly
func (f *strategyFlags) merged(cmd *cobra.Command) (config.Strategy, error) {
	if f.file == "" {
		return f.strategy, f.strategy.Validate()
	}
	fromFile, err := config.LoadStrategy(f.file)
	if err != nil {
		return config.Strategy{}, err
	}
	merged := *fromFile
	flags := cmd.Flags()
	for _, name := range strategyFlagNames {
		if !flags.Changed(name) {
			continue
		}
		switch name {
		case "master":
			merged.Master = f.strategy.Master
		case "base-token-id":
			merged.BaseTokenID = f.strategy.BaseTokenID
		case "quote-token-id":
			merged.QuoteTokenID = f.strategy.QuoteTokenID
		case "deposit-base":
			merged.DepositBase = f.strategy.DepositBase
		case "deposit-quote":
			merged.DepositQuote = f.strategy.DepositQuote
		case "current-price":
			merged.CurrentPrice = f.strategy.CurrentPrice
		case "lowest-limit":
			merged.LowestLimit = f.strategy.LowestLimit
		case "highest-limit":
			merged.HighestLimit = f.strategy.HighestLimit
		case "num-brackets":
			merged.NumBrackets = f.strategy.NumBrackets
		case "brackets":
			merged.Brackets = f.strategy.Brackets
		case "salt-nonce":
			merged.SaltNonce = f.strategy.SaltNonce
		}
	}
	return merged, merged.Validate()
}

// params converts the merged strategy into provisioning parameters
func (f *strategyFlags) params(cmd *cobra.Command) (bracket.StrategyParams, error) {
	s, err := f.merged(cmd)
	if err != nil {
		return bracket.StrategyParams{}, err
	}
	master, err := parseAddress("master", s.Master)
	if err != nil {
		return bracket.StrategyParams{}, err
	}
	if s.DepositBase == "" {
		s.DepositBase = "0"
	}
	if s.DepositQuote == "" {
		s.DepositQuote = "0"
	}

	params := bracket.StrategyParams{
		Master:              master,
		BaseTokenID:         s.BaseTokenID,
		QuoteTokenID:        s.QuoteTokenID,
		DepositBase:         s.DepositBase,
		DepositQuote:        s.DepositQuote,
		CurrentPrice:        s.CurrentPrice,
		LowestLimit:         s.LowestLimit,
		HighestLimit:        s.HighestLimit,
		NumBrackets:         s.NumBrackets,
		Brackets:            s.BracketAddresses(),
		SkipPriceCheck:      f.skipPriceCheck,
		AllowExistingOrders: f.allowExisting,
		DepositFile:         f.depositFile,
	}
	if params.NumBrackets == 0 {
		params.NumBrackets = len(params.Brackets)
	}
	if s.SaltNonce != "" {
		if params.SaltNonce, err = bmath.ParseBig(s.SaltNonce); err != nil {
			return bracket.StrategyParams{}, fmt.Errorf("invalid salt nonce: %w", err)
		}
	}
	return params, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s must be an address, got %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func parseAddresses(name string, values []string) ([]common.Address, error) {
	addresses := make([]common.Address, len(values))
	for i, value := range values {
		address, err := parseAddress(name, value)
		if err != nil {
			return nil, err
		}
		addresses[i] = address
	}
	return addresses, nil
}

func parseSaltNonce(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("--salt-nonce is required")
	}
	nonce, err := bmath.ParseBig(value)
	if err != nil {
		return nil, fmt.Errorf("invalid salt nonce: %w", err)
	}
	return nonce, nil
}
