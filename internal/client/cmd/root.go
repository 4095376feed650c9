package cmd

import (
	"os"

	"github.com/rudransh-shrivastava/offgrid/internal/config"
	"github.com/rudransh-shrivastava/offgrid/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	envFile     string
	logLevel    string
	stunServers []string
	localName   string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           `offgrid`,
	Long:          `offgrid opens an ephemeral end-to-end encrypted chat with one peer`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if len(stunServers) > 0 {
			cfg.STUNServers = stunServers
		}
		if localName != "" {
			cfg.DisplayName = localName
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log = logger.New(os.Stderr, cfg.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.New(os.Stderr, "info").Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringArrayVar(&stunServers, "stun", nil, "STUN server url, repeatable")
	rootCmd.PersistentFlags().StringVar(&localName, "as", "", "name announced to the peer")

	rootCmd.AddCommand(inviteCmd)
	rootCmd.AddCommand(joinCmd)
}
