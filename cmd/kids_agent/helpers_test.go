package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
output_dir: %[1]s/out
data_dir: %[1]s/data
content:
  niche: animal facts
  target_age: "3-6"
languages:
  - code: en
    name: English
    voices: [en-US-AnaNeural]
analytics:
  enabled: true
schedule:
  upload_days: [monday, wednesday, friday]
  upload_time: "10:00"
  timezone: UTC
database:
  driver: sqlite
  url: %[1]s/data/kids_videos.db
`

// writeTestConfig writes a valid config under a temp dir and returns the
// config path and the database path.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfigYAML, dir)), 0644))

	dbPath := filepath.Join(dir, "data", "kids_videos.db")
	t.Setenv("DATABASE_URL", dbPath)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	return path, dbPath
}

// executeCommand runs the root command in-process with args and returns its
// stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores defaults so flag state does not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
