package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/steamrelay/internal/config"
	"github.com/jmcleod/steamrelay/storage"
)

var (
	eventsDataDir    string
	eventsLimit      int
	eventsOffset     int
	eventsJSONOutput bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print stored account lifecycle events, newest first",
	Long: `Reads the audit event log in the data directory. The running server
holds an exclusive lock on the log; stop it first. The command gives up
after waiting one second for the lock.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsDataDir, "data-dir", config.DefaultDataDir, "Directory holding events.db")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum number of events to print")
	eventsCmd.Flags().IntVar(&eventsOffset, "offset", 0, "Number of newest events to skip")
	eventsCmd.Flags().BoolVar(&eventsJSONOutput, "json", false, "Output events as JSON")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if eventsDataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}
	path := (&config.Config{DataDir: eventsDataDir}).EventsPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no event log at %s: %w", path, err)
	}
	log, err := openEventLog(path, true)
	if err != nil {
		return err
	}
	defer log.Close()

	events, total, err := log.List(eventsLimit, eventsOffset)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if eventsJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	return printEvents(cmd, events, total)
}

func printEvents(cmd *cobra.Command, events []storage.Event, total int) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tACCOUNT\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.Account, e.Detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d events\n", len(events), total)
	return nil
}
