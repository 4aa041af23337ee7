package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func validConfig(mode string) Config {
	return Config{
		Mode:       mode,
		Dataset:    datasetNUSWide,
		Split:      "train",
		Workers:    4,
		HDF5File:   "labels.hdf5",
		ResultsDir: "results",
		ListenPort: 2120,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		mode    string
		wantErr string
	}{
		{name: "acquire", mode: "acquire"},
		{name: "summary json", mode: "summary", modify: func(c *Config) { c.OutputFormat = "json" }},
		{name: "coco", mode: "sample", modify: func(c *Config) { c.Dataset = datasetCOCO }},
		{name: "db split", mode: "acquire", modify: func(c *Config) { c.Split = "db" }},
		{name: "unknown mode", mode: "benchmark", wantErr: `unrecognized mode "benchmark"`},
		{name: "unknown dataset", mode: "acquire", modify: func(c *Config) { c.Dataset = "cifar" }, wantErr: "unsupported dataset"},
		{name: "invalid split", mode: "acquire", modify: func(c *Config) { c.Split = "val" }, wantErr: "val"},
		{name: "negative retries", mode: "acquire", modify: func(c *Config) { c.Retries = -1 }, wantErr: "retries"},
		{name: "no workers", mode: "acquire", modify: func(c *Config) { c.Workers = 0 }, wantErr: "workers"},
		{name: "bad format", mode: "summary", modify: func(c *Config) { c.OutputFormat = "csv" }, wantErr: "output format"},
		{name: "negative index", mode: "sample", modify: func(c *Config) { c.Index = -1 }, wantErr: "index"},
		{name: "export without file", mode: "export", modify: func(c *Config) { c.HDF5File = "" }, wantErr: "hdf5"},
		{name: "custom labels", mode: "summary", modify: func(c *Config) { c.Labels = "team=search" }},
		{name: "reserved split label", mode: "summary", modify: func(c *Config) { c.Labels = "split=x" }, wantErr: `label "split" is reserved`},
		{name: "reserved dataset label", mode: "summary", modify: func(c *Config) { c.Labels = "team=a,dataset=b" }, wantErr: `label "dataset" is reserved`},
		{name: "reserved run_id label", mode: "summary", modify: func(c *Config) { c.Labels = "run_id=1" }, wantErr: `label "run_id" is reserved`},
		{name: "bad port", mode: "serve-metrics", modify: func(c *Config) { c.ListenPort = 0 }, wantErr: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(tt.mode)
			if tt.modify != nil {
				tt.modify(&cfg)
			}

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig("summary")
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join("data", "nus-wide"), cfg.Root)
	require.Equal(t, "text", cfg.OutputFormat)

	cfg = validConfig("summary")
	cfg.Root = "/srv/datasets/nus"
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/srv/datasets/nus", cfg.Root)
}

func TestParseLabels(t *testing.T) {
	cfg := Config{Labels: "team=search,note=a=b,broken"}
	cfg.parseLabels()
	require.Equal(t, map[string]string{"team": "search", "note": "a=b"}, cfg.LabelMap)
}

func testFlags() (*pflag.FlagSet, *Config) {
	var cfg Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&cfg.ConfigFile, "config", "", "")
	flags.StringVar(&cfg.Dataset, "dataset", "nus-wide", "")
	flags.StringVar(&cfg.Root, "root", "", "")
	flags.IntVar(&cfg.Retries, "retries", 0, "")
	flags.BoolVar(&cfg.ForceDownload, "force-download", false, "")
	return flags, &cfg
}

func TestLoadEnvAndConfigFile(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("DEEPHASH_DATASET", "coco")
		t.Setenv("DEEPHASH_FORCE_DOWNLOAD", "true")
		flags, cfg := testFlags()
		require.NoError(t, flags.Parse(nil))

		require.NoError(t, loadEnvAndConfigFile(flags, ""))
		require.Equal(t, "coco", cfg.Dataset)
		require.True(t, cfg.ForceDownload)
	})

	t.Run("command line wins", func(t *testing.T) {
		t.Setenv("DEEPHASH_ROOT", "/from/env")
		flags, cfg := testFlags()
		require.NoError(t, flags.Parse([]string{"--root", "/from/flag"}))

		require.NoError(t, loadEnvAndConfigFile(flags, ""))
		require.Equal(t, "/from/flag", cfg.Root)
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deephash.yaml")
		require.NoError(t, os.WriteFile(path, []byte("retries: 3\nroot: /data/coco\n"), 0o644))
		flags, cfg := testFlags()
		require.NoError(t, flags.Parse(nil))

		require.NoError(t, loadEnvAndConfigFile(flags, path))
		require.Equal(t, 3, cfg.Retries)
		require.Equal(t, "/data/coco", cfg.Root)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("DEEPHASH_RETRIES", "many")
		flags, _ := testFlags()
		require.NoError(t, flags.Parse(nil))

		require.ErrorContains(t, loadEnvAndConfigFile(flags, ""), "retries")
	})

	t.Run("missing config file", func(t *testing.T) {
		flags, _ := testFlags()
		require.Error(t, loadEnvAndConfigFile(flags, filepath.Join(t.TempDir(), "none.yaml")))
	})
}
