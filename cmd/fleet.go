package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/bracketbot/safe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fleetFlags struct {
	master      string
	numBrackets int
	saltNonce   string
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Print the bracket addresses a fleet deployment will produce",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if fleetFlags.numBrackets <= 0 {
			return fmt.Errorf("--num-brackets must be positive")
		}
		_, err := parseSaltNonce(fleetFlags.saltNonce)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		saltNonce, _ := parseSaltNonce(fleetFlags.saltNonce)

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.cfg.Contracts.RequireFleetFactory(); err != nil {
			return err
		}
		fleet, err := safe.PredictFleet(ctx, a.client, a.cfg.Contracts.FleetFactory, a.cfg.Contracts.SafeTemplate, saltNonce, fleetFlags.numBrackets)
		if err != nil {
			return err
		}
		for i, address := range fleet {
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, address.Hex())
		}
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a fleet of brackets owned by the master Safe",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseAddress("master", fleetFlags.master); err != nil {
			return err
		}
		if fleetFlags.numBrackets <= 0 {
			return fmt.Errorf("--num-brackets must be positive")
		}
		_, err := parseSaltNonce(fleetFlags.saltNonce)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		master, _ := parseAddress("master", fleetFlags.master)
		saltNonce, _ := parseSaltNonce(fleetFlags.saltNonce)

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		sanity, err := a.sanityChecker()
		if err != nil {
			return err
		}
		if err := sanity.CheckBracketCount(fleetFlags.numBrackets); err != nil {
			return err
		}
		provisioner, err := a.provisioner(master, true)
		if err != nil {
			return err
		}
		predicted, err := provisioner.PredictFleet(ctx, saltNonce, fleetFlags.numBrackets)
		if err != nil {
			return err
		}
		if dryRun {
			a.logger.Info("Dry run, not deploying", zap.Int("brackets", len(predicted)))
			for i, address := range predicted {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, address.Hex())
			}
			return nil
		}

		opts, err := a.transactOpts(ctx)
		if err != nil {
			return err
		}
		deployer, err := a.fleetDeployer()
		if err != nil {
			return err
		}
		fleet, err := deployer.Deploy(ctx, opts, master, a.cfg.Contracts.SafeTemplate, fleetFlags.numBrackets, saltNonce)
		if err != nil {
			return err
		}
		for i := range fleet {
			if fleet[i] != predicted[i] {
				return fmt.Errorf("bracket %d deployed at %s, predicted %s", i, fleet[i].Hex(), predicted[i].Hex())
			}
		}
		a.metrics.BracketsDeployed.Add(float64(len(fleet)))

		for i, address := range fleet {
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, address.Hex())
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{addressesCmd, deployCmd} {
		cmd.Flags().IntVar(&fleetFlags.numBrackets, "num-brackets", 0, "number of brackets")
		cmd.Flags().StringVar(&fleetFlags.saltNonce, "salt-nonce", "", "salt nonce of the deployment")
		rootCmd.AddCommand(cmd)
	}
	deployCmd.Flags().StringVar(&fleetFlags.master, "master", "", "address of the master Safe owning the brackets")
}
