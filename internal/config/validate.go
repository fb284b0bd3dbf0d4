package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("config")

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult splits problems into fatals, which must stop the run,
// and warnings, which were corrected or can be ignored.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal problem was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// All returns fatals followed by warnings.
func (r ValidationResult) All() []error {
	return append(append([]error(nil), r.Fatals...), r.Warnings...)
}

// Validate checks the config and returns every problem found. Out-of-range
// numbers are clamped in place.
func (c *Config) Validate() []error {
	return c.ValidateTiered().All()
}

// ValidateTiered checks the config, clamps out-of-range numbers and logs
// warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	switch {
	case c.Prefix == "":
		r.Fatals = append(r.Fatals, fmt.Errorf("prefix must not be empty"))
	case !filepath.IsAbs(c.Prefix):
		r.Fatals = append(r.Fatals, fmt.Errorf("prefix %q must be an absolute path", c.Prefix))
	case filepath.Clean(c.Prefix) == "/":
		r.Fatals = append(r.Fatals, fmt.Errorf("prefix must not be the filesystem root"))
	}
	for name, value := range map[string]string{"prefix": c.Prefix, "installer": c.Installer, "log_dir": c.LogDir} {
		if strings.IndexFunc(value, unicode.IsControl) >= 0 {
			r.Fatals = append(r.Fatals, fmt.Errorf("%s contains control characters", name))
		}
	}

	if c.Installer != "" {
		switch strings.ToLower(filepath.Ext(c.Installer)) {
		case ".exe", ".msix":
		default:
			r.Fatals = append(r.Fatals, fmt.Errorf("installer %q must be a .exe or .msix file", c.Installer))
		}
	}

	if c.FeedAddr != "" {
		if _, _, err := net.SplitHostPort(c.FeedAddr); err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("feed_addr %q is not host:port: %w", c.FeedAddr, err))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.MinFreeDiskGB < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_free_disk_gb %.1f is negative, disabling check", c.MinFreeDiskGB))
		c.MinFreeDiskGB = 0
	} else if c.MinFreeDiskGB > 500 {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_free_disk_gb %.1f exceeds maximum 500, clamping", c.MinFreeDiskGB))
		c.MinFreeDiskGB = 500
	}

	if c.MonitorIntervalSeconds < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("monitor_interval_seconds %d is below minimum 1, clamping", c.MonitorIntervalSeconds))
		c.MonitorIntervalSeconds = 1
	} else if c.MonitorIntervalSeconds > 300 {
		r.Warnings = append(r.Warnings, fmt.Errorf("monitor_interval_seconds %d exceeds maximum 300, clamping", c.MonitorIntervalSeconds))
		c.MonitorIntervalSeconds = 300
	}

	if c.IdleThresholdSeconds < c.MonitorIntervalSeconds {
		r.Warnings = append(r.Warnings, fmt.Errorf("idle_threshold_seconds %d is below the monitor interval, clamping", c.IdleThresholdSeconds))
		c.IdleThresholdSeconds = c.MonitorIntervalSeconds
	}

	if c.FeedMaxClients < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("feed_max_clients %d is below minimum 1, clamping", c.FeedMaxClients))
		c.FeedMaxClients = 1
	} else if c.FeedMaxClients > 64 {
		r.Warnings = append(r.Warnings, fmt.Errorf("feed_max_clients %d exceeds maximum 64, clamping", c.FeedMaxClients))
		c.FeedMaxClients = 64
	}

	for _, err := range r.Warnings {
		log.Warn("config validation", zap.Error(err))
	}
	return r
}
