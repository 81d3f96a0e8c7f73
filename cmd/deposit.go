package cmd

import (
	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var depositFlags struct {
	master       string
	file         string
	fromBrackets bool
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Fund the brackets and deposit into the exchange as listed in a deposit file",
	Long: `Transfers every listed amount from the master to its bracket and deposits
it into the exchange on the bracket's behalf. With --from-brackets the
brackets deposit tokens they already hold.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := parseAddress("master", depositFlags.master)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		master, _ := parseAddress("master", depositFlags.master)

		deposits, err := bracket.ReadDepositFile(depositFlags.file)
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
		a.logger.Info("Loaded deposits", zap.Int("count", len(deposits)), zap.String("file", depositFlags.file))

		var tx types.Transaction
		if depositFlags.fromBrackets {
			tx, err = composer.BuildDeposit(ctx, deposits)
		} else {
			sanity, serr := a.sanityChecker()
			if serr != nil {
				return serr
			}
			if err := sanity.CheckBalances(ctx, master, bracket.Totals(deposits)); err != nil {
				return err
			}
			tx, err = composer.BuildTransferApproveDeposit(ctx, deposits)
		}
		if err != nil {
			return err
		}
		return a.propose(ctx, master, []types.Transaction{tx}, false)
	},
}

func init() {
	depositCmd.Flags().StringVar(&depositFlags.master, "master", "", "address of the master Safe")
	depositCmd.Flags().StringVar(&depositFlags.file, "deposit-file", bracket.DefaultDepositFile, "deposit file to execute")
	depositCmd.Flags().BoolVar(&depositFlags.fromBrackets, "from-brackets", false, "deposit funds the brackets already hold")
	rootCmd.AddCommand(depositCmd)
}
