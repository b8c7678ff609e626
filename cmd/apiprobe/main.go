package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/cmd/apiprobe/commands"
	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/logger"
)

var rootCmd = &cobra.Command{
	Use:   "apiprobe",
	Short: "apiprobe - API test execution orchestration",
	Long: `apiprobe - Test execution orchestration and result consolidation.

apiprobe drives an external Cucumber-style test runner against API endpoint
projects, consolidates the reports it produces into per-scenario results,
and serves execution history and live progress over HTTP and WebSocket.

Available commands:
  server     - Start the apiprobe HTTP/WebSocket server
  run        - Run tests for a project and wait for results
  executions - Inspect execution history
  config     - Manage apiprobe configuration
  db         - Manage apiprobe database operations
  version    - Show apiprobe version information

Examples:
  apiprobe server                      # Start the server
  apiprobe run payments                # Run every test for project "payments"
  apiprobe run payments --entity user  # Run tests for one entity
  apiprobe executions ls               # List recent executions
  apiprobe config show                 # Show current configuration
  apiprobe db stats                    # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs
		// Skip for commands that emit machine-readable output (like 'config show')
		if cmd.Name() != "show" {
			if err := logger.Initialize(config.Current().Log.JSON); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	// Initialize logger early so command setup can log
	// Use human-readable output for better UX
	if err := logger.Initialize(false); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}

	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	// Add commands
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ExecutionsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
