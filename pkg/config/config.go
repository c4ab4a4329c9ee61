// Package config holds the plain, mapstructure-tagged configuration
// structs cmd/olp-read binds through viper, per spec.md 6's enumerated
// configuration surface.
package config

import (
	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
)

// ClientSettings is the top-level configuration for one versioned.Client:
// catalog addressing, credentials, and the cache/retry sub-configs.
type ClientSettings struct {
	HRN         string `mapstructure:"hrn"`
	Layer       string `mapstructure:"layer"`
	MetadataURL string `mapstructure:"metadata-url"`
	APIKey      string `mapstructure:"api-key"`
	UserAgent   string `mapstructure:"user-agent"`

	Cache cache.Config            `mapstructure:"cache"`
	Retry olpclient.RetrySettings `mapstructure:"retry"`

	// UseSystemTime selects wall-clock time for cache expiry checks; false
	// means server-time-aligned (spec.md 6), a refinement this SDK leaves
	// to a future Cache.SetClock(serverTimeSource) caller.
	UseSystemTime   bool `mapstructure:"use-system-time"`
	TokenCacheLimit int  `mapstructure:"token-cache-limit"`
}

// DefaultClientSettings mirrors the defaults spec.md 4.1 and 4.3 describe.
func DefaultClientSettings() ClientSettings {
	return ClientSettings{
		UserAgent:     "here-data-sdk-go",
		Retry:         olpclient.DefaultRetrySettings(),
		UseSystemTime: true,
		Cache: cache.Config{
			MaxDiskStorage:     ^uint64(0),
			MaxMemoryCacheSize: 64 << 20,
			EvictionPolicy:     cache.EvictionLRU,
		},
	}
}
