package main

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/transcript"
	"github.com/harunnryd/kaiwa/internal/ui"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, replay and delete the session transcripts stored on this machine.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored session transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		infos, err := transcript.List(loadedCfg.Transcript.Dir)
		if err != nil {
			return fmt.Errorf("failed to list transcripts: %w", err)
		}

		fmt.Println(ui.NewRenderer().Sessions(infos))
		if len(infos) == 0 {
			fmt.Println("\nRun 'kaiwa chat' to start your first session.")
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Replay a stored session transcript",
	Long:  `Print the stored events of a conversation, oldest first. Use --tail to limit output to the most recent events.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		tail, _ := cmd.Flags().GetInt("tail")

		lines, err := transcript.Tail(loadedCfg.Transcript.Dir, args[0], tail)
		if err != nil {
			return err
		}

		renderer := ui.NewRenderer()
		shown := 0
		for _, line := range lines {
			evt, err := event.Parse(line)
			if err != nil {
				slog.Warn("Skipping malformed transcript line", "conversation", args[0], "error", err)
				continue
			}
			fmt.Println(renderer.Event(evt))
			shown++
		}

		fmt.Printf("\n%d event(s)\n", shown)
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset [id]",
	Short: "Delete a stored session transcript",
	Long:  `Delete the transcript, cursor and rotated backups of a conversation.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := transcript.Remove(loadedCfg.Transcript.Dir, args[0]); err != nil {
			return err
		}

		fmt.Printf("✓ Session '%s' reset successfully.\n", args[0])
		return nil
	},
}

func init() {
	sessionShowCmd.Flags().Int("tail", 0, "show only the last N events")
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}
