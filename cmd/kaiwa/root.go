package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kaiwa",
	Short: "Kaiwa agent session client",
	Long: `Kaiwa is a terminal client for a remote agent backend. It streams the
agent's event log over a websocket, mirrors the session state locally, and
sends chat messages and commands back.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kaiwa/config.yaml)")
	rootCmd.PersistentFlags().String("server.base_url", config.DefaultServerBaseURL, "agent backend base URL")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
}
