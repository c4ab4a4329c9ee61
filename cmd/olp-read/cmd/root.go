// Package cmd wires cobra commands to viper-bound configuration, per
// SPEC_FULL.md 2.3.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/heremaps/here-data-sdk-go/pkg/config"
)

var (
	settings config.ClientSettings
	logger   *zap.Logger

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "olp-read",
	Short: "Read partitions, tiles and data from a versioned HERE platform catalog layer",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bindSettings()
		return nil
	},
}

// Execute runs the root command; main's only job is to report its error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.olp-read.yaml)")
	flags.String("hrn", "", "catalog HRN")
	flags.String("layer", "", "layer ID")
	flags.String("metadata-url", "", "metadata service base URL")
	flags.String("api-key", "", "platform API key")
	flags.String("disk-path-mutable", "", "mutable on-disk cache path (empty disables disk caching)")
	flags.Uint64("max-disk-storage", 0, "max disk cache size in bytes (0 = unlimited)")
	flags.Int64("max-memory-cache-size", int64(config.DefaultClientSettings().Cache.MaxMemoryCacheSize), "max in-memory cache size in bytes")
	flags.Int("max-attempts", config.DefaultClientSettings().Retry.MaxAttempts, "max HTTP retry attempts")

	for _, name := range []string{
		"hrn", "layer", "metadata-url", "api-key",
		"disk-path-mutable", "max-disk-storage", "max-memory-cache-size", "max-attempts",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	viper.SetEnvPrefix("OLP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".olp-read")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME")
	}
	// A missing config file is fine: flags and env vars still apply.
	_ = viper.ReadInConfig()
}

func bindSettings() {
	settings = config.DefaultClientSettings()
	settings.HRN = viper.GetString("hrn")
	settings.Layer = viper.GetString("layer")
	settings.MetadataURL = viper.GetString("metadata-url")
	settings.APIKey = viper.GetString("api-key")

	if v := viper.GetString("disk-path-mutable"); v != "" {
		settings.Cache.DiskPathMutable = v
	}
	if v := viper.GetUint64("max-disk-storage"); v > 0 {
		settings.Cache.MaxDiskStorage = v
	}
	if v := viper.GetInt64("max-memory-cache-size"); v > 0 {
		settings.Cache.MaxMemoryCacheSize = uint64(v)
	}
	if v := viper.GetInt("max-attempts"); v > 0 {
		settings.Retry.MaxAttempts = v
	}

	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
}
