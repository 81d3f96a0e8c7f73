package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/bracketbot/strategies/bracket"
	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var ordersFlags strategyFlags

var placeOrdersCmd = &cobra.Command{
	Use:   "place-orders",
	Short: "Propose the order pairs of every bracket to the master Safe",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		params, err := ordersFlags.params(cmd)
		if err != nil {
			return err
		}
		if len(params.Brackets) == 0 {
			return fmt.Errorf("--brackets is required")
		}

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		sanity, err := a.sanityChecker()
		if err != nil {
			return err
		}
		composer, err := a.composer(params.Master)
		if err != nil {
			return err
		}
		ladder, err := bracket.BuildLadder(params.LowestLimit, params.HighestLimit, len(params.Brackets))
		if err != nil {
			return err
		}
		if ladder, err = ladder.WithAddresses(params.Brackets); err != nil {
			return err
		}

		var (
			base, quote  types.Token
			currentBatch uint32
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			base, err = a.tokens.TokenByID(gctx, params.BaseTokenID)
			return err
		})
		g.Go(func() (err error) {
			quote, err = a.tokens.TokenByID(gctx, params.QuoteTokenID)
			return err
		})
		g.Go(func() (err error) {
			currentBatch, err = a.exchange.CurrentBatchID(gctx)
			return err
		})
		g.Go(func() error {
			return sanity.CheckSigner(gctx, params.Master, a.relay.Sender())
		})
		g.Go(func() error {
			return sanity.CheckBrackets(gctx, params.Master, params.Brackets, params.AllowExistingOrders)
		})
		if err := g.Wait(); err != nil {
			return err
		}

		pairs, err := bracket.BuildOrderPairs(ladder, base, quote, currentBatch, bracket.DefaultOrderParams())
		if err != nil {
			return err
		}
		tx, err := composer.OrdersTransaction(pairs)
		if err != nil {
			return err
		}
		return a.propose(ctx, params.Master, []types.Transaction{tx}, false)
	},
}

func init() {
	ordersFlags.register(placeOrdersCmd)
	rootCmd.AddCommand(placeOrdersCmd)
}
