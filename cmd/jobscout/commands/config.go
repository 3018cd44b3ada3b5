package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teliris/jobscout/errors"
)

// ConfigCmd groups configuration operations.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage jobscout configuration",
	Long: `Display jobscout configuration.

Configuration sources (in order of precedence):
1. Environment variables (JOBSCOUT_* prefix)
2. Project config (./jobscout.toml)
3. User config (~/.jobscout/config.toml)
4. Default values

Examples:
  jobscout config show                 # Show current configuration
  jobscout config show --format json   # Show configuration as JSON`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged configuration from all sources",
	RunE:  runConfigShow,
}

func init() {
	configShowCmd.Flags().String("format", "toml", "Output format: toml, json, or yaml")
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	var out []byte
	switch format {
	case "toml":
		out, err = toml.Marshal(cfg)
	case "json":
		out, err = json.MarshalIndent(cfg, "", "  ")
	case "yaml":
		out, err = yaml.Marshal(cfg)
	default:
		return errors.Newf("unknown format %q (want toml, json, or yaml)", format)
	}
	if err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}

	fmt.Println(string(out))
	return nil
}
