package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type withdrawFlags struct {
	master      string
	brackets    []string
	tokens      []string
	file        string
	andTransfer bool
}

// newWithdrawCmd builds one step of moving funds from the brackets back to
// the master. Amounts come from a withdrawal file, or are the maximum the
// step can move for every bracket and token.
func newWithdrawCmd(use, short string, mode bracket.WithdrawMode) *cobra.Command {
	var flags withdrawFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseAddress("master", flags.master); err != nil {
				return err
			}
			if flags.file == "" && (len(flags.brackets) == 0 || len(flags.tokens) == 0) {
				return fmt.Errorf("either --withdrawal-file or both --brackets and --tokens are required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			master, _ := parseAddress("master", flags.master)
			mode := mode
			if flags.andTransfer {
				mode = bracket.ClaimAndTransfer
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

			var withdrawals []types.Deposit
			if flags.file != "" {
				withdrawals, err = bracket.ReadDepositFile(flags.file)
			} else {
				brackets, perr := parseAddresses("brackets", flags.brackets)
				if perr != nil {
					return perr
				}
				tokens, perr := parseAddresses("tokens", flags.tokens)
				if perr != nil {
					return perr
				}
				withdrawals, err = composer.CollectWithdrawals(ctx, mode, brackets, tokens)
			}
			if err != nil {
				return err
			}
			if len(withdrawals) == 0 {
				a.logger.Info("Nothing to withdraw", zap.Stringer("mode", mode))
				return nil
			}

			tx, err := composer.BuildWithdrawal(ctx, mode, withdrawals)
			if err != nil {
				return err
			}
			return a.propose(ctx, master, []types.Transaction{tx}, false)
		},
	}

	cmd.Flags().StringVar(&flags.master, "master", "", "address of the master Safe")
	cmd.Flags().StringSliceVar(&flags.brackets, "brackets", nil, "bracket addresses, comma separated")
	cmd.Flags().StringSliceVar(&flags.tokens, "tokens", nil, "token addresses, comma separated")
	cmd.Flags().StringVar(&flags.file, "withdrawal-file", "", "withdrawals in the deposit file format")
	if mode == bracket.ClaimWithdraw {
		cmd.Flags().BoolVar(&flags.andTransfer, "and-transfer", false, "also transfer the claimed funds to the master")
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newWithdrawCmd("request-withdraw", "Request the withdrawal of bracket funds from the exchange", bracket.RequestWithdraw),
		newWithdrawCmd("withdraw", "Claim requested withdrawals into the brackets", bracket.ClaimWithdraw),
		newWithdrawCmd("transfer-to-master", "Transfer the brackets' token balances to the master", bracket.TransferToMaster),
	)
}
