package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/bracketbot/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the defaults of the network to the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfig(network)
		if err != nil {
			return err
		}
		if endpoint, err := config.InfuraEndpoint(cfg.Network); err == nil {
			cfg.RPCEndpoint = endpoint
		}
		if err := config.SaveConfig(cfg, cfgFile); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s defaults; set contracts.fleet_factory before deploying\n", cfg.Network)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
