package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive session with the agent backend",
	Long: `Connect to the agent backend, stream its event log into the terminal, and
send messages and commands. Pass --conversation to resume an existing
conversation; otherwise a fresh one is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		conversationID, _ := cmd.Flags().GetString("conversation")
		if conversationID == "" {
			conversationID = loadedCfg.Session.ConversationID
		}
		if conversationID == "" {
			conversationID = fmt.Sprintf("cli-%d", time.Now().Unix())
		}

		components, err := buildComponents(loadedCfg, conversationID)
		if err != nil {
			return err
		}
		defer components.Stop()

		repl := NewREPL(components, loadedCfg.Server.BaseURL)
		return repl.Start()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("conversation", "c", "", "conversation ID to open or resume")
}
