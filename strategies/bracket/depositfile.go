package bracket

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/michaelpento.lv/bracketbot/types"
)

// DefaultDepositFile is where computed deposits are written for audit and replay
const DefaultDepositFile = "./automaticallyGeneratedDeposits.json"

// WriteDepositFile stores deposits as a JSON array
func WriteDepositFile(path string, deposits []types.Deposit) error {
	if deposits == nil {
		deposits = []types.Deposit{}
	}
	data, err := json.MarshalIndent(deposits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deposits: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write deposit file: %w", err)
	}
	return nil
}

// ReadDepositFile loads a deposit or withdrawal list
func ReadDepositFile(path string) ([]types.Deposit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deposit file: %w", err)
	}
	var deposits []types.Deposit
	if err := json.Unmarshal(data, &deposits); err != nil {
		return nil, fmt.Errorf("failed to parse deposit file %s: %w", path, err)
	}
	return deposits, nil
}
