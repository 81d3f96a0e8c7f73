package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// Strategy is a bracket strategy as written in a YAML file. Command line
// flags override the values read from the file.
type Strategy struct {
	Master       string   `yaml:"master"`
	BaseTokenID  uint16   `yaml:"base_token_id"`
	QuoteTokenID uint16   `yaml:"quote_token_id"`
	DepositBase  string   `yaml:"deposit_base"`
	DepositQuote string   `yaml:"deposit_quote"`
	CurrentPrice float64  `yaml:"current_price"`
	LowestLimit  float64  `yaml:"lowest_limit"`
	HighestLimit float64  `yaml:"highest_limit"`
	NumBrackets  int      `yaml:"num_brackets"`
	Brackets     []string `yaml:"brackets"`
	SaltNonce    string   `yaml:"salt_nonce"`
}

// LoadStrategy reads a strategy file
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}
	var strategy Strategy
	if err := yaml.UnmarshalStrict(data, &strategy); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return &strategy, nil
}

// Validate checks the fields set in the file. Fields left empty may still be
// supplied by flags.
func (s *Strategy) Validate() error {
	var errors []string
	if s.Master != "" && !common.IsHexAddress(s.Master) {
		errors = append(errors, fmt.Sprintf("master %q is not an address", s.Master))
	}
	for i, bracket := range s.Brackets {
		if !common.IsHexAddress(bracket) {
			errors = append(errors, fmt.Sprintf("bracket %d %q is not an address", i, bracket))
		}
	}
	if s.NumBrackets < 0 {
		errors = append(errors, "num_brackets must not be negative")
	}
	if len(s.Brackets) > 0 && s.NumBrackets != 0 && len(s.Brackets) != s.NumBrackets {
		errors = append(errors, fmt.Sprintf("num_brackets is %d but %d brackets are listed", s.NumBrackets, len(s.Brackets)))
	}
	if s.LowestLimit < 0 || s.HighestLimit < 0 || s.CurrentPrice < 0 {
		errors = append(errors, "prices must not be negative")
	}
	if len(errors) > 0 {
		return fmt.Errorf("invalid strategy: %s", strings.Join(errors, "; "))
	}
	return nil
}

// BracketAddresses parses the listed brackets
func (s *Strategy) BracketAddresses() []common.Address {
	addresses := make([]common.Address, len(s.Brackets))
	for i, bracket := range s.Brackets {
		addresses[i] = common.HexToAddress(bracket)
	}
	return addresses
}
