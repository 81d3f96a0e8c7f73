package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/spf13/cobra"
)

var transferFlags struct {
	master string
	file   string
	unsafe bool
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Propose token transfers from the master listed in a JSON file",
	Long: `Reads a JSON array of {"amount", "tokenAddress", "receiver"} entries, with
human readable amounts, and proposes one batch transferring them from the
master. The master balance must cover every token unless --unsafe is given.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseAddress("master", transferFlags.master); err != nil {
			return err
		}
		if transferFlags.file == "" {
			return fmt.Errorf("--transfer-file is required")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		master, _ := parseAddress("master", transferFlags.master)

		transfers, err := readTransferFile(transferFlags.file)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		composer, err := a.composer(master)
		if err != nil {
			return err
		}
		tx, err := composer.BuildTransfers(ctx, transfers, transferFlags.unsafe)
		if err != nil {
			return err
		}
		return a.propose(ctx, master, []types.Transaction{tx}, false)
	},
}

func readTransferFile(path string) ([]bracket.Transfer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer file: %w", err)
	}
	var transfers []bracket.Transfer
	if err := json.Unmarshal(data, &transfers); err != nil {
		return nil, fmt.Errorf("failed to parse transfer file %s: %w", path, err)
	}
	if len(transfers) == 0 {
		return nil, fmt.Errorf("transfer file %s lists no transfers", path)
	}
	return transfers, nil
}

func init() {
	transferCmd.Flags().StringVar(&transferFlags.master, "master", "", "address of the master Safe")
	transferCmd.Flags().StringVar(&transferFlags.file, "transfer-file", "", "JSON file listing the transfers")
	transferCmd.Flags().BoolVar(&transferFlags.unsafe, "unsafe", false, "skip the master balance check")
	rootCmd.AddCommand(transferCmd)
}
