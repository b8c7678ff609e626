package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/catalog"
	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/event"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/logger"
	"github.com/apiprobe/apiprobe/runner"
	"github.com/apiprobe/apiprobe/server"
	"github.com/apiprobe/apiprobe/workspace"
)

// ServerCmd starts the apiprobe web server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the apiprobe server for triggering executions and streaming results",
	Long: `Launch the apiprobe server. Trigger test executions over the HTTP API,
follow live progress over WebSocket, and query execution history and
consolidated scenario results.`,
	RunE: runServer,
}

var (
	serverPort   int
	serverDBPath string
)

func init() {
	// Server command flags
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides config)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Get verbosity flag - default to 1 (Info) for server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}
	logger.ApplyVerbosity(verbosity)

	// Load configuration (env > project > user > default)
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	port := serverPort
	if port == 0 {
		port = cfg.GetServerPort()
	}

	dbPath := serverDBPath
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	// Open and migrate database
	database, err := openDatabase(dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// Watch the user config file so setting changes apply without a restart
	if configPath := config.UserConfigPath(); configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			logger.Warnw("Config watcher unavailable, settings require restart", "error", err)
		} else {
			watcher.Start()
			config.SetGlobalWatcher(watcher)
			defer watcher.Stop()
		}
	}

	// Print startup banner
	printStartupBanner(verbosity, dbPath, port)

	// Preflight the runner binary. Startup proceeds either way; executions
	// will fail individually if the runner stays missing.
	preflightCtx, preflightCancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	if err := runner.CheckVersion(preflightCtx, cfg.GetRunnerBinary()); err != nil {
		pterm.Warning.Printf("Runner preflight: %v\n", err)
	}
	preflightCancel()

	// Wire the execution engine
	publisher := event.NewPublisher(logger.Logger)
	ws := workspace.NewManager(cfg.GetWorkspaceRoot(), cfg.Workspace.Sources, logger.Logger)
	execStore := execution.NewStore(database)
	resultStore := execution.NewResultStore(database)
	catalogStore := catalog.NewStore(database)

	orch, err := execution.NewDefaultOrchestrator(execStore, resultStore, ws, catalogStore, publisher, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to create orchestrator")
	}

	// Create server
	srv, err := server.NewServer(server.Options{
		DB:        database,
		Executor:  orch,
		Publisher: publisher,
		Logger:    logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	// Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Server failed to start or stopped unexpectedly
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		// Start graceful shutdown in background. In-flight executions keep
		// running until they reach a terminal state.
		shutdownDone := make(chan error, 1)
		go func() {
			err := srv.Stop()
			orch.Wait()
			shutdownDone <- err
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			// Graceful shutdown completed
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}
