// Command testbot drives the bot from the terminal for manual and scripted testing.
//
// Usage:
//
//	./testbot run "https://www.youtube.com/watch?v=jNQXAC9IVRw" \
//	  --out ./videos \
//	  --output json
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error
		os.Exit(1)
	}
}
