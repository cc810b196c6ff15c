package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runixer/tubegrab/internal/extractor"
)

// clearUserFiles removes files in dir that belong to userID.
// Files kept after a failed send accumulate there.
func clearUserFiles(dir string, userID int64) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	prefix := extractor.Prefix(userID)
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

var clearFilesCmd = &cobra.Command{
	Use:   "clear-files",
	Short: "Remove leftover files of the user",
	Long: `Delete files named "{user}_*" from the download folder. A file stays there when
sending it to the chat failed.

Example:
  testbot clear-files -u 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tb := getTestBot(cmd)
		if tb == nil {
			return fmt.Errorf("testbot not initialized")
		}

		userID := getUserID(cmd)
		removed, err := clearUserFiles(tb.cfg.Download.Dir, userID)
		if err != nil {
			return err
		}

		for _, name := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d files for user %d\n", len(removed), userID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearFilesCmd)
}
