package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/pipeline"
	"github.com/teliris/jobscout/queue"
)

// StatusCmd shows queue and match counts.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and match counts",
	Long: `Show item counts by status and type, plus saved match totals.

Reads the database directly, so it works whether or not the serve daemon
is running.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := queue.NewStore(database)
	byType, err := store.CountByTypeAndStatus()
	if err != nil {
		return err
	}

	fmt.Println("Queue")
	total := 0
	for _, itemType := range []queue.ItemType{queue.ItemTypeJob, queue.ItemTypeCompany, queue.ItemTypeSourceDiscovery} {
		counts := byType[itemType]
		if len(counts) == 0 {
			continue
		}
		fmt.Printf("  %s:\n", itemType)
		for _, status := range queue.AllStatuses {
			if n := counts[status]; n > 0 {
				fmt.Printf("    %-12s %d\n", status, n)
				total += n
			}
		}
	}
	if total == 0 {
		fmt.Println("  (empty)")
	} else {
		fmt.Printf("  total: %d\n", total)
	}

	matches, qualified, err := pipeline.NewMatchStore(database).Count()
	if err != nil {
		return err
	}
	fmt.Printf("\nMatches: %d saved, %d qualified\n", matches, qualified)
	return nil
}
