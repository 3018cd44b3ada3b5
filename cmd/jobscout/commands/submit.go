package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/intake"
	"github.com/teliris/jobscout/logger"
	"github.com/teliris/jobscout/queue"
)

// SubmitCmd seeds the queue from a JSON file.
var SubmitCmd = &cobra.Command{
	Use:   "submit <file.json>",
	Short: "Seed the queue from a JSON file of job records",
	Long: `Seed the queue with job records from a JSON file.

The file holds an array of records:
  [{"url": "https://...", "title": "...", "company": "..."}]

Only the url field is required. Records whose normalized URL is already
queued, in progress, or successfully processed are skipped, so the same
file can be submitted repeatedly without redoing work. A running serve
daemon picks the new items up on its next poll.

Examples:
  jobscout submit jobs.json --source linkedin-export
  jobscout submit board-dump.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	SubmitCmd.Flags().String("source", "manual", "Label for where these records came from")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	var records []intake.RawJobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrapf(err, "failed to parse %s", args[0])
	}
	if len(records) == 0 {
		return errors.Newf("%s holds no records", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := intake.NewService(queue.NewStore(database), logger.Logger)
	accepted, err := svc.Submit(context.Background(), records, source)
	if err != nil {
		return err
	}

	fmt.Printf("Accepted %d of %d record(s) from %s\n", accepted, len(records), args[0])
	if skipped := len(records) - accepted; skipped > 0 {
		fmt.Printf("Skipped %d duplicate or invalid record(s)\n", skipped)
	}
	return nil
}
