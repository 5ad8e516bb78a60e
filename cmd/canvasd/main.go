package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellate/canvasd/cmd/canvasd/commands"
	"github.com/tessellate/canvasd/logger"
)

var rootCmd = &cobra.Command{
	Use:   "canvasd",
	Short: "canvasd - realtime collaborative canvas server",
	Long: `canvasd serves the realtime collaboration core of a multi-user design
canvas: WebSocket sessions, per-canvas broadcast, shape locking, presence
and reconnect sync, backed by SQLite.

Available commands:
  serve   - Start the WebSocket server
  migrate - Apply pending database migrations
  token   - Mint a signed access token for testing

Examples:
  canvasd serve                    # Start with defaults (:8080, canvasd.db)
  canvasd migrate --db canvasd.db  # Apply migrations and exit
  canvasd token --user alice       # Print a bearer token for alice`,
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.TokenCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
