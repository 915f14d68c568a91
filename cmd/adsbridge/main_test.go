package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/peteski22/adsbridge/internal/app"
	"github.com/peteski22/adsbridge/internal/catalog"
)

// captureRunner records the flags a sync was started with.
type captureRunner struct {
	calls      int
	configPath string
	opts       syncOptions
}

func (c *captureRunner) run(cmd *cobra.Command, opts syncOptions) error {
	c.calls++
	c.opts = opts
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return err
	}
	c.configPath = path
	return nil
}

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADSBRIDGE_START_DATE", "2024-01-01T00:00:00Z")
	t.Setenv("ADSBRIDGE_ACCOUNT_IDS", "acc1")
	t.Setenv("ADSBRIDGE_CONSUMER_KEY", "key")
	t.Setenv("ADSBRIDGE_CONSUMER_SECRET", "secret")
	t.Setenv("ADSBRIDGE_ACCESS_TOKEN", "token")
	t.Setenv("ADSBRIDGE_ACCESS_TOKEN_SECRET", "token-secret")
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(runSync)
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"check", "discover", "init", "sync"} {
		require.True(t, names[want], "missing %s command", want)
	}
	require.NotNil(t, cmd.PersistentFlags().Lookup(flagConfig))
}

func TestSyncFlags(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args       []string
		want       app.Options
		wantConfig string
	}{
		"root defaults": {
			args: []string{},
			want: app.Options{},
		},
		"root flags": {
			args: []string{"--dry-run", "--catalog", "catalog.yaml", "--state", "state.json"},
			want: app.Options{CatalogPath: "catalog.yaml", DryRun: true, StatePath: "state.json"},
		},
		"sync subcommand": {
			args:       []string{"sync", "--config", "config.yaml", "--catalog", "catalog.json", "--dry-run"},
			want:       app.Options{CatalogPath: "catalog.json", DryRun: true},
			wantConfig: "config.yaml",
		},
		"config before subcommand": {
			args:       []string{"--config", "other.yaml", "sync", "--state", "s.json"},
			want:       app.Options{StatePath: "s.json"},
			wantConfig: "other.yaml",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner := &captureRunner{}
			cmd := newRootCmd(runner.run)
			cmd.SetArgs(tc.args)

			require.NoError(t, cmd.Execute())
			require.Equal(t, 1, runner.calls)
			require.Equal(t, tc.want, runner.opts.appOptions())
			require.Equal(t, tc.wantConfig, runner.configPath)
		})
	}
}

func TestSyncRejectsArguments(t *testing.T) {
	t.Parallel()

	runner := &captureRunner{}
	cmd := newRootCmd(runner.run)
	cmd.SetArgs([]string{"sync", "extra"})

	require.Error(t, cmd.Execute())
	require.Zero(t, runner.calls)
}

func TestSyncInvalidConfig(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADSBRIDGE_START_DATE", "")

	for _, args := range [][]string{{"sync"}, {"check"}, {"discover"}} {
		cmd := newRootCmd(runSync)
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})

		err := cmd.Execute()
		require.ErrorContains(t, err, "loading config", "command %v", args)
		require.ErrorContains(t, err, "start_date is required", "command %v", args)
	}
}

func TestDiscoverCommand(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().

	setRequiredEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`reports:
  - name: campaign_daily
    entity: CAMPAIGN
`), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd(runSync)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"discover", "--config", configPath})

	require.NoError(t, cmd.Execute())

	var cat catalog.Catalog
	require.NoError(t, json.Unmarshal(out.Bytes(), &cat))

	streams := map[string]bool{}
	for _, s := range cat.Streams {
		streams[s.TapStreamID] = true
	}
	require.True(t, streams["campaigns"])
	require.True(t, streams["targeting_criteria"])
	require.True(t, streams["campaign_daily"])
	require.Empty(t, cat.Selected().ToSlice())
}
