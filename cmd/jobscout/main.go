package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/cmd/jobscout/commands"
	"github.com/teliris/jobscout/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jobscout",
	Short: "jobscout - self-expanding job discovery pipeline",
	Long: `jobscout - queue-driven job discovery that follows its own leads.

Submitted job postings are scraped, filtered, scored and saved. Along the
way the pipeline spawns derived work: company pages found in postings,
job boards found on company pages, and postings found on boards. Lineage
tracking keeps the recursion acyclic, deduplicated and depth-bounded.

Available commands:
  serve   - Run the pipeline daemon (workers + monitor endpoint)
  submit  - Seed the queue from a JSON file of job records
  status  - Show queue and match counts
  db      - Database operations (migrate, stats)
  config  - Show configuration

Examples:
  jobscout serve                          # Run the pipeline in foreground
  jobscout submit jobs.json --source feed # Seed postings from a file
  jobscout status                         # Queue counts at a glance
  jobscout db stats                       # Database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./jobscout.toml, ~/.jobscout/config.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
