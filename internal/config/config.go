package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Config struct {
	Prefix                 string  `mapstructure:"prefix"`
	Installer              string  `mapstructure:"installer"`
	EnableVulkan           bool    `mapstructure:"enable_vulkan"`
	EnableTahoma           bool    `mapstructure:"enable_tahoma"`
	EnableDXVK             bool    `mapstructure:"enable_dxvk"`
	StageTable             string  `mapstructure:"stage_table"`
	MinFreeDiskGB          float64 `mapstructure:"min_free_disk_gb"`
	LogDir                 string  `mapstructure:"log_dir"`
	LogLevel               string  `mapstructure:"log_level"`
	LogFormat              string  `mapstructure:"log_format"`
	DataHome               string  `mapstructure:"data_home"`
	FetchShims             bool    `mapstructure:"fetch_shims"`
	CreateShortcut         bool    `mapstructure:"create_shortcut"`
	MonitorIntervalSeconds int     `mapstructure:"monitor_interval_seconds"`
	IdleThresholdSeconds   int     `mapstructure:"idle_threshold_seconds"`
	FeedAddr               string  `mapstructure:"feed_addr"`
	FeedMaxClients         int     `mapstructure:"feed_max_clients"`
}

func Default() *Config {
	return &Config{
		Prefix:                 "~/.AffinityOnLinux",
		MinFreeDiskGB:          5,
		LogDir:                 "~/.local/state/affinity-installer",
		LogLevel:               "info",
		LogFormat:              "text",
		DataHome:               "~/.local/share",
		FetchShims:             true,
		CreateShortcut:         true,
		MonitorIntervalSeconds: 5,
		IdleThresholdSeconds:   30,
		FeedMaxClients:         4,
	}
}

// Load reads cfgFile, or affinity-installer.yaml from the config directory
// or the working directory when cfgFile is empty. AFFINITY_* environment
// variables override file values. A missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("affinity-installer")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AFFINITY")
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("prefix", cfg.Prefix)
	v.SetDefault("installer", cfg.Installer)
	v.SetDefault("enable_vulkan", cfg.EnableVulkan)
	v.SetDefault("enable_tahoma", cfg.EnableTahoma)
	v.SetDefault("enable_dxvk", cfg.EnableDXVK)
	v.SetDefault("stage_table", cfg.StageTable)
	v.SetDefault("min_free_disk_gb", cfg.MinFreeDiskGB)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("data_home", cfg.DataHome)
	v.SetDefault("fetch_shims", cfg.FetchShims)
	v.SetDefault("create_shortcut", cfg.CreateShortcut)
	v.SetDefault("monitor_interval_seconds", cfg.MonitorIntervalSeconds)
	v.SetDefault("idle_threshold_seconds", cfg.IdleThresholdSeconds)
	v.SetDefault("feed_addr", cfg.FeedAddr)
	v.SetDefault("feed_max_clients", cfg.FeedMaxClients)
}

// ExpandPaths resolves a leading ~ in path settings.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Prefix, &c.Installer, &c.StageTable, &c.LogDir, &c.DataHome} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "affinity-installer")
	}
	home, err := homedir.Dir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "affinity-installer")
}
