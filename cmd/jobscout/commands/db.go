package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/pipeline"
	"github.com/teliris/jobscout/queue"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the jobscout database",
	Long: `Manage database operations.

Examples:
  jobscout db migrate   # Apply pending schema migrations
  jobscout db stats     # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display item counts, lineage depth distribution, retry pressure and match totals",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// openDatabase migrates as a side effect
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database %s is up to date\n", cfg.Database.Path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	byStatus, err := queue.NewStore(database).CountByStatus()
	if err != nil {
		return err
	}

	var maxDepth, retrying int
	if err := database.QueryRow(`
		SELECT COALESCE(MAX(spawn_depth), 0),
		       COALESCE(SUM(CASE WHEN retry_count > 0 AND status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM queue_items
	`).Scan(&maxDepth, &retrying); err != nil {
		return err
	}

	matches, qualified, err := pipeline.NewMatchStore(database).Count()
	if err != nil {
		return err
	}

	fmt.Println("Database Statistics")
	fmt.Printf("Path:             %s\n", cfg.Database.Path)
	fmt.Println()
	total := 0
	for _, status := range queue.AllStatuses {
		if n := byStatus[status]; n > 0 {
			fmt.Printf("%-16s  %d\n", status+":", n)
			total += n
		}
	}
	fmt.Printf("%-16s  %d\n", "total items:", total)
	fmt.Println()
	fmt.Printf("Deepest lineage:  %d\n", maxDepth)
	fmt.Printf("Awaiting retry:   %d\n", retrying)
	fmt.Printf("Matches:          %d (%d qualified)\n", matches, qualified)
	return nil
}
