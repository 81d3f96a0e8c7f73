package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	provisionFlags strategyFlags
	verifyOnly     bool
	simulate       bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Deploy brackets, place their orders and fund them in one run",
	Long: `Runs a complete liquidity provision: deploys a fleet for the master unless
--brackets names one, builds the order pairs of the price ladder and the
funding transaction, and proposes both to the master Safe for consecutive
nonces. With --verify-only nothing is deployed or proposed; the rebuilt
transactions are compared with the latest proposals of the master.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		params, err := provisionFlags.params(cmd)
		if err != nil {
			return err
		}
		return checkProvisionMode(params, verifyOnly, dryRun)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		params, err := provisionFlags.params(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		params.Signer = crypto.PubkeyToAddress(a.signer.PublicKey)
		params.VerifyOnly = verifyOnly
		deploy := len(params.Brackets) == 0

		provisioner, err := a.provisioner(params.Master, deploy)
		if err != nil {
			return err
		}

		var plan *bracket.Plan
		if verifyOnly {
			plan, err = provisioner.Plan(ctx, params)
		} else {
			var opts *bind.TransactOpts
			if deploy {
				if opts, err = a.transactOpts(ctx); err != nil {
					return err
				}
			}
			plan, err = provisioner.Provision(ctx, params, opts)
		}
		if err != nil {
			return err
		}

		logger := a.logger.With(zap.String("run_id", plan.RunID))
		for _, pair := range plan.Pairs {
			logger.Debug("Bracket",
				zap.Int("index", pair.Bracket.Index),
				zap.String("address", pair.Bracket.Address.Hex()),
				zap.Float64("lower", pair.Bracket.LowerLimit),
				zap.Float64("upper", pair.Bracket.UpperLimit))
		}

		if verifyOnly {
			if err := a.checkProposed(ctx, params.Master, plan.Transactions()); err != nil {
				return err
			}
			logger.Info("Proposed transactions match the strategy")
			return nil
		}
		return a.propose(ctx, params.Master, []types.Transaction{plan.OrdersTx, plan.FundingTx}, simulate)
	},
}

// checkProvisionMode rejects flag combinations that would fail only after
// connecting to the node
func checkProvisionMode(params bracket.StrategyParams, verifyOnly, dryRun bool) error {
	if len(params.Brackets) > 0 {
		return nil
	}
	if verifyOnly {
		return fmt.Errorf("--verify-only needs --brackets")
	}
	if dryRun {
		return fmt.Errorf("--dry-run cannot deploy a fleet, pass --brackets")
	}
	return nil
}

func init() {
	provisionFlags.register(provisionCmd)
	provisionCmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "compare the strategy with the latest proposals instead of proposing")
	provisionCmd.Flags().BoolVar(&simulate, "simulate", false, "dry-run each transaction against the master before proposing; needs a master threshold of one")
	rootCmd.AddCommand(provisionCmd)
}
