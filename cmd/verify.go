package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var verifyFlags struct {
	master          string
	brackets        []string
	masterOwners    []string
	masterThreshold int64
	checkOrders     bool

	baseTokenID     uint16
	quoteTokenID    uint16
	currentPrice    float64
	basePerBracket  string
	quotePerBracket string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that deployed brackets are set up as expected",
	Long: `Checks every bracket: the master is its only owner with threshold one, it
has no modules and proxies to the configured Safe template. Optionally checks
the master's owners, the brackets' orders and, with --current-price, that
each bracket holds the expected deposit on its side of the price.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseAddress("master", verifyFlags.master); err != nil {
			return err
		}
		if len(verifyFlags.brackets) == 0 {
			return fmt.Errorf("--brackets is required")
		}
		if len(verifyFlags.masterOwners) > 0 && verifyFlags.masterThreshold <= 0 {
			return fmt.Errorf("--master-threshold is required with --master-owners")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		master, _ := parseAddress("master", verifyFlags.master)
		brackets, err := parseAddresses("brackets", verifyFlags.brackets)
		if err != nil {
			return err
		}
		owners, err := parseAddresses("master-owners", verifyFlags.masterOwners)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		verifier, err := a.verifier()
		if err != nil {
			return err
		}
		opts := bracket.VerifyOptions{
			Template:    a.cfg.Contracts.SafeTemplate,
			CheckOrders: verifyFlags.checkOrders,
		}
		if len(owners) > 0 {
			opts.MasterOwners = owners
			opts.MasterThreshold = big.NewInt(verifyFlags.masterThreshold)
		}
		if err := verifier.VerifyBrackets(ctx, master, brackets, opts); err != nil {
			return err
		}

		if verifyFlags.currentPrice > 0 {
			if err := verifyDeposits(ctx, a, verifier, brackets); err != nil {
				return err
			}
		}

		a.logger.Info("Brackets verified", zap.String("master", master.Hex()), zap.Int("brackets", len(brackets)))
		return nil
	},
}

func verifyDeposits(ctx context.Context, a *app, verifier *bracket.Verifier, brackets []common.Address) error {
	var base, quote types.Token
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		base, err = a.tokens.TokenByID(gctx, verifyFlags.baseTokenID)
		return err
	})
	g.Go(func() (err error) {
		quote, err = a.tokens.TokenByID(gctx, verifyFlags.quoteTokenID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	basePerBracket, err := bmath.ToUnits(verifyFlags.basePerBracket, int(base.Decimals))
	if err != nil {
		return fmt.Errorf("invalid --base-per-bracket: %w", err)
	}
	quotePerBracket, err := bmath.ToUnits(verifyFlags.quotePerBracket, int(quote.Decimals))
	if err != nil {
		return fmt.Errorf("invalid --quote-per-bracket: %w", err)
	}
	return verifier.VerifyDeposits(ctx, brackets, base, quote, verifyFlags.currentPrice, quotePerBracket, basePerBracket)
}

func init() {
	flags := verifyCmd.Flags()
	flags.StringVar(&verifyFlags.master, "master", "", "address of the master Safe")
	flags.StringSliceVar(&verifyFlags.brackets, "brackets", nil, "bracket addresses, comma separated")
	flags.StringSliceVar(&verifyFlags.masterOwners, "master-owners", nil, "expected owners of the master")
	flags.Int64Var(&verifyFlags.masterThreshold, "master-threshold", 0, "expected threshold of the master")
	flags.BoolVar(&verifyFlags.checkOrders, "check-orders", false, "also check the brackets' orders")
	flags.Uint16Var(&verifyFlags.baseTokenID, "base-token-id", 0, "exchange id of the base token")
	flags.Uint16Var(&verifyFlags.quoteTokenID, "quote-token-id", 0, "exchange id of the quote token")
	flags.Float64Var(&verifyFlags.currentPrice, "current-price", 0, "price splitting base and quote brackets; enables the deposit check")
	flags.StringVar(&verifyFlags.basePerBracket, "base-per-bracket", "0", "expected base deposit of brackets above the price")
	flags.StringVar(&verifyFlags.quotePerBracket, "quote-per-bracket", "0", "expected quote deposit of brackets below the price")
	rootCmd.AddCommand(verifyCmd)
}
