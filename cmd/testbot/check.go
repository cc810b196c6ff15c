package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// outputCheckError wraps an error in JSON if JSON output is requested.
func outputCheckError(cmd *cobra.Command, message string, isJSON bool) error {
	if isJSON {
		if err := outputCheckJSON(cmd.OutOrStdout(), map[string]interface{}{
			"status": "error",
			"error":  message,
		}); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s", message)
}

var checkDownloadsCmd = &cobra.Command{
	Use:   "check-downloads",
	Short: "Check the download journal",
	Long: `Display the most recent journal entries for the user and aggregated statistics.
Every finished run writes one entry, whatever its outcome.

Use --all to include every user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		isJSON := mustGetString(cmd, "format") == "json"
		limit := mustGetInt(cmd, "limit")

		tb := getTestBot(cmd)
		if tb == nil {
			return outputCheckError(cmd, "testbot not initialized", isJSON)
		}

		userID := getUserID(cmd)
		if mustGetBool(cmd, "all") {
			userID = 0
		}

		downloads, err := tb.store.GetRecentDownloads(userID, limit)
		if err != nil {
			return outputCheckError(cmd, fmt.Sprintf("failed to get downloads: %v", err), isJSON)
		}
		stats, err := tb.store.GetDownloadStats(userID)
		if err != nil {
			return outputCheckError(cmd, fmt.Sprintf("failed to get stats: %v", err), isJSON)
		}

		if isJSON {
			return outputCheckJSON(cmd.OutOrStdout(), map[string]interface{}{
				"type":  "downloads",
				"count": len(downloads),
				"data":  downloads,
				"stats": stats,
			})
		}

		out := cmd.OutOrStdout()
		if userID == 0 {
			fmt.Fprintf(out, "Downloads for all users: %d total\n", stats.Total)
		} else {
			fmt.Fprintf(out, "Downloads for user %d: %d total\n", userID, stats.Total)
		}
		for status, n := range stats.ByStatus {
			fmt.Fprintf(out, "  %-20s %d\n", status, n)
		}
		for i, d := range downloads {
			line := fmt.Sprintf("%2d. [%s] %s (%dms)", i+1, d.Status, d.URL, d.DurationMs)
			if d.FileName != "" {
				line += " -> " + d.FileName
			}
			if d.Error != "" {
				line += ": " + d.Error
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	checkDownloadsCmd.Flags().String("format", "text", "Output format (text|json)")
	checkDownloadsCmd.Flags().Int("limit", 20, "Maximum entries to show")
	checkDownloadsCmd.Flags().Bool("all", false, "Show entries of every user")

	rootCmd.AddCommand(checkDownloadsCmd)
}
