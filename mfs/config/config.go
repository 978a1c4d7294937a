package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/meridianfm/meridian/mfs"

	"github.com/spf13/viper"
)

// Config stores all configuration of the engine.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
}

// EngineConfig stores the tunables of the file operation engine.
type EngineConfig struct {
	CacheDir string        `mapstructure:"cacheDir"`
	Trash    TrashConfig   `mapstructure:"trash"`
	Journal  JournalConfig `mapstructure:"journal"`
	Watcher  WatcherConfig `mapstructure:"watcher"`
	Executor ExecConfig    `mapstructure:"executor"`
	Search   SearchConfig  `mapstructure:"search"`
	Notify   NotifyConfig  `mapstructure:"notify"`
}

// TrashConfig stores trash collaborator settings.
type TrashConfig struct {
	Dir string `mapstructure:"dir"`
}

// JournalConfig stores operation journal settings.
type JournalConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// WatcherConfig stores change watcher settings.
type WatcherConfig struct {
	DebounceDelayMs    int `mapstructure:"debounceDelayMs"`
	MaxDebounceDelayMs int `mapstructure:"maxDebounceDelayMs"`
	QueueCapacity      int `mapstructure:"queueCapacity"`
}

// ExecConfig stores operation executor settings.
type ExecConfig struct {
	MaxConcurrentOps int `mapstructure:"maxConcurrentOps"`
	CopyBufferKB     int `mapstructure:"copyBufferKB"`
	StallTimeoutSec  int `mapstructure:"stallTimeoutSec"`
	PrePassWorkers   int `mapstructure:"prePassWorkers"`
}

// SearchConfig stores search engine settings.
type SearchConfig struct {
	ResultBuffer       int   `mapstructure:"resultBuffer"`
	ContentSizeCapKB   int   `mapstructure:"contentSizeCapKB"`
	MaxIndexedEntries  int64 `mapstructure:"maxIndexedEntries"`
	WarnBufferCapacity int   `mapstructure:"warnBufferCapacity"`
}

// NotifyConfig stores notification fan-out settings.
type NotifyConfig struct {
	MailboxCapacity int `mapstructure:"mailboxCapacity"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("engine.cacheDir", internal.DefaultCacheDir)
	viper.SetDefault("engine.trash.dir", internal.DefaultTrashDir)
	viper.SetDefault("engine.journal.path", internal.DefaultJournalDBPath)
	viper.SetDefault("engine.journal.enabled", true)
	viper.SetDefault("engine.watcher.debounceDelayMs", 100)
	viper.SetDefault("engine.watcher.maxDebounceDelayMs", 2000)
	viper.SetDefault("engine.watcher.queueCapacity", 1000)
	viper.SetDefault("engine.executor.maxConcurrentOps", 4)
	viper.SetDefault("engine.executor.copyBufferKB", 32)
	viper.SetDefault("engine.executor.stallTimeoutSec", 30)
	viper.SetDefault("engine.executor.prePassWorkers", 4)
	viper.SetDefault("engine.search.resultBuffer", 256)
	viper.SetDefault("engine.search.contentSizeCapKB", 1024)
	viper.SetDefault("engine.search.maxIndexedEntries", 1_000_000)
	viper.SetDefault("engine.search.warnBufferCapacity", 64)
	viper.SetDefault("engine.notify.mailboxCapacity", 1024)

	viper.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // engine.watcher.debounceDelayMs becomes MERIDIAN_ENGINE_WATCHER_DEBOUNCEDELAYMS

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}

// DebounceDelay returns the configured debounce window as a duration.
func (w WatcherConfig) DebounceDelay() time.Duration {
	return time.Duration(w.DebounceDelayMs) * time.Millisecond
}

// MaxDebounceDelay returns the configured debounce cap as a duration.
func (w WatcherConfig) MaxDebounceDelay() time.Duration {
	return time.Duration(w.MaxDebounceDelayMs) * time.Millisecond
}

// StallTimeout returns the configured progress staleness interval.
func (e ExecConfig) StallTimeout() time.Duration {
	return time.Duration(e.StallTimeoutSec) * time.Second
}

// CopyBuffer returns the copy chunk size in bytes.
func (e ExecConfig) CopyBuffer() int {
	return e.CopyBufferKB * 1024
}
