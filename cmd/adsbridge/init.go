package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peteski22/adsbridge/internal/config"
)

const configTemplate = `# adsbridge configuration
# Every key can also be set as an environment variable, e.g. ADSBRIDGE_START_DATE.

# From the developer portal -> Projects & Apps -> Keys and tokens.
consumer_key: ""
consumer_secret: ""
access_token: ""
access_token_secret: ""

# Comma-separated ad account IDs.
account_ids: ""

# Initial watermark for streams with no bookmark.
start_date: "2024-01-01T00:00:00Z"

# Days of report data always re-fetched.
attribution_window: 14

# ISO codes used by segmented reports and targeting streams.
country_codes: "US"

with_deleted: "true"

# Where bookmarks are kept: file, ssm, dynamodb or none.
state_backend: "file"

log_format: "console"
log_level: "info"

# Analytics reports, e.g.
# reports:
#   - name: campaign_daily
#     entity: CAMPAIGN
#     segment: NO_SEGMENT
#     granularity: DAY
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}
}

// runInit creates a sample configuration file.
func runInit(w io.Writer) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	configPath, err := config.ConfigFilePath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	catalogPath, err := config.CatalogFilePath()
	if err != nil {
		return fmt.Errorf("getting catalog path: %w", err)
	}

	fmt.Fprintln(w, "Created config file:", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Edit the config file with your credentials and accounts")
	fmt.Fprintln(w, "  2. Run 'adsbridge check' to verify access")
	fmt.Fprintf(w, "  3. Run 'adsbridge discover > %s' and mark streams selected\n", catalogPath)
	fmt.Fprintln(w, "  4. Run 'adsbridge sync --dry-run' to test")

	return nil
}
