package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/config"
	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/health"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/pipeline"
	"github.com/seapear/AffinityOnLinux/internal/privilege"
	"github.com/seapear/AffinityOnLinux/internal/runtimecheck"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether this host is ready for installation",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDoctor())
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() int {
	cfg := loadConfig()
	logging.Init(cfg.LogFormat, "error", os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	m := health.NewMonitor()
	overall := m.RunAll(ctx, doctorProbes(cfg, distro.Detector{}, runtimecheck.NewChecker(), executor.Available))

	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(map[string]any{"status": overall, "checks": m.All()})
	} else {
		for _, c := range m.All() {
			fmt.Printf("%s %-12s %s\n", statusMark(c.Status), c.Name, c.Message)
		}
	}

	if overall == health.Unhealthy {
		return 1
	}
	return 0
}

type detector interface {
	Detect() distro.Distribution
}

type runtimeChecker interface {
	Check(ctx context.Context) runtimecheck.Info
}

func doctorProbes(cfg *config.Config, det detector, rt runtimeChecker, available func(string) bool) []health.Probe {
	return []health.Probe{
		{Name: "distribution", Run: func(context.Context) (health.Status, string) {
			d := det.Detect()
			if !d.Family.Known() {
				return health.Unhealthy, fmt.Sprintf("%s is not supported, install Wine 10+ and winetricks manually", d.ID)
			}
			return health.Healthy, fmt.Sprintf("%s (%s)", d.ID, d.Family)
		}},
		{Name: "elevation", Run: func(context.Context) (health.Status, string) {
			switch {
			case privilege.IsRunningAsRoot():
				return health.Healthy, "running as root"
			case available("sudo"):
				return health.Healthy, "sudo available"
			}
			return health.Unhealthy, "sudo not found"
		}},
		{Name: "wine", Run: func(ctx context.Context) (health.Status, string) {
			info := rt.Check(ctx)
			switch info.Status {
			case runtimecheck.StatusOK:
				return health.Healthy, "wine " + info.Version
			case runtimecheck.StatusOld:
				return health.Degraded, fmt.Sprintf("wine %s will be upgraded to %d+", info.Version, runtimecheck.MinMajor)
			}
			return health.Degraded, "not installed yet"
		}},
		{Name: "winetricks", Run: func(context.Context) (health.Status, string) {
			if available("winetricks") {
				return health.Healthy, "available"
			}
			return health.Degraded, "not installed yet"
		}},
		{Name: "disk", Run: func(context.Context) (health.Status, string) {
			if cfg.MinFreeDiskGB <= 0 {
				return health.Healthy, "check disabled"
			}
			check := pipeline.CheckDiskSpace(cfg.Prefix, cfg.MinFreeDiskGB)
			if !check.Passed {
				return health.Unhealthy, check.Message
			}
			return health.Healthy, check.Message
		}},
	}
}

func statusMark(s health.Status) string {
	switch s {
	case health.Healthy:
		return color.GreenString("✓")
	case health.Degraded:
		return color.YellowString("⚠")
	case health.Unhealthy:
		return color.RedString("✗")
	}
	return "?"
}
