package cmd

import (
	"context"

	"github.com/michaelpento.lv/bracketbot/config"
	"github.com/michaelpento.lv/bracketbot/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	debug       bool
	network     string
	metricsAddr string
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "bracketbot",
	Short: "Provide liquidity on BatchExchange with a fleet of bracket Safes",
	Long: `A CLI that deploys single-owner bracket Safes under a master Safe,
places unlimited sell-high / buy-low order pairs on a geometric price ladder
and funds the brackets. Every master transaction is proposed to the Safe
transaction service for the remaining owners to confirm.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnv()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "network to use, mainnet or rinkeby (default is $NETWORK or rinkeby)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address during the run")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "build and sign transactions without proposing them")
}

func initConfig() {
	log := utils.InitLogger(debug)
	log.Debug("Logger initialized", zap.Bool("debug", debug))
}
