package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/execution"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage apiprobe database operations",
	Long: `Manage database operations including statistics and history pruning.

Examples:
  apiprobe db stats               # Show database statistics
  apiprobe db prune               # Apply the configured retention window
  apiprobe db prune --days 30     # Delete terminal executions older than 30 days`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display execution counts by status, scenario result totals, and catalog size",
	RunE:  runDbStats,
}

var dbPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete executions past the retention window",
	Long: `Delete terminal executions created before the retention window.

The window comes from execution.history_retention_days in the config;
--days overrides it. Scenario results are removed with their execution.
Running and pending executions always survive.`,
	RunE: runDbPrune,
}

var pruneDaysFlag int

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbPruneCmd)
	dbPruneCmd.Flags().IntVar(&pruneDaysFlag, "days", 0, "Retention window in days (overrides config)")
}

func runDbStats(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Open and migrate database
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// Get basic storage statistics
	var totalExecutions, totalResults, totalCases, totalSuites int
	err = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM executions),
			(SELECT COUNT(*) FROM scenario_results),
			(SELECT COUNT(*) FROM test_cases),
			(SELECT COUNT(*) FROM test_suites)
	`).Scan(&totalExecutions, &totalResults, &totalCases, &totalSuites)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query storage stats: %w", err)
	}

	// Print database info
	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:     %s\n", cfg.GetDatabasePath())
	fmt.Printf("Executions:        %d\n", totalExecutions)
	fmt.Printf("Scenario Results:  %d\n", totalResults)
	fmt.Printf("Test Cases:        %d\n", totalCases)
	fmt.Printf("Test Suites:       %d\n", totalSuites)
	fmt.Println()

	// Execution status breakdown
	rows, err := database.Query(`
		SELECT status, COUNT(*)
		FROM executions
		GROUP BY status
		ORDER BY COUNT(*) DESC
	`)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query status breakdown: %w", err)
	}
	if err == nil {
		defer rows.Close()

		fmt.Printf("Executions by Status:\n")
		hasRows := false
		for rows.Next() {
			hasRows = true
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				return fmt.Errorf("failed to scan status row: %w", err)
			}
			fmt.Printf("  %-12s %d\n", status, count)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read status breakdown: %w", err)
		}
		if !hasRows {
			fmt.Println("  No executions recorded yet")
		}
		fmt.Println()
	}

	// Scenario pass rate
	if totalResults > 0 {
		var passedResults int
		if err := database.QueryRow(
			`SELECT COUNT(*) FROM scenario_results WHERE status = 'passed'`,
		).Scan(&passedResults); err != nil {
			return fmt.Errorf("failed to query pass rate: %w", err)
		}
		fmt.Printf("Scenario Pass Rate: %.1f%% (%d/%d)\n",
			float64(passedResults)/float64(totalResults)*100, passedResults, totalResults)
	}

	// Recent activity
	var lastWeek int
	if err := database.QueryRow(
		`SELECT COUNT(*) FROM executions WHERE created_at > datetime('now', '-7 days')`,
	).Scan(&lastWeek); err != nil {
		return fmt.Errorf("failed to query recent activity: %w", err)
	}
	fmt.Printf("Executions (7 days): %d\n", lastWeek)

	if cfg.Execution.HistoryRetentionDays > 0 {
		fmt.Printf("Retention Window:    %d day(s)\n", cfg.Execution.HistoryRetentionDays)
	} else {
		fmt.Printf("Retention Window:    disabled (history kept forever)\n")
	}

	return nil
}

func runDbPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	days := pruneDaysFlag
	if days == 0 {
		days = cfg.Execution.HistoryRetentionDays
	}
	if days <= 0 {
		fmt.Println("History retention is disabled (execution.history_retention_days = 0); nothing to prune")
		return nil
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := execution.NewStore(database)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := store.DeleteOlderThan(cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to prune executions")
	}

	fmt.Printf("✓ Deleted %d execution(s) older than %d day(s)\n", deleted, days)
	return nil
}
