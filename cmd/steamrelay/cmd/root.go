package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steamrelay",
	Short: "steamrelay relays Steam friend messages for a pool of accounts",
	Long: `Logs a pool of Steam accounts in, broadcasts their inbound friend messages
to WebSocket clients and sends outbound messages to confirmed friends.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
