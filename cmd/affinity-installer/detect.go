package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/runtimecheck"
)

var detectJSON bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected distribution and whether it is supported",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDetect())
	},
}

var checkRuntimeCmd = &cobra.Command{
	Use:   "check-runtime",
	Short: "Check the installed Wine version",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runCheckRuntime())
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print JSON")
}

type detectReport struct {
	ID        string             `json:"id"`
	Name      string             `json:"name,omitempty"`
	Family    distro.Family      `json:"family"`
	Codename  string             `json:"codename,omitempty"`
	Supported bool               `json:"supported"`
	Host      distro.HostSummary `json:"host"`
}

func runDetect() int {
	dist := distro.Detector{}.Detect()
	report := detectReport{
		ID:        dist.ID,
		Name:      dist.Name,
		Family:    dist.Family,
		Codename:  dist.Codename,
		Supported: dist.Family.Known(),
		Host:      distro.CollectHostSummary(),
	}

	if detectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	fmt.Printf("Distribution: %s (%s)\n", report.ID, report.Name)
	fmt.Printf("Family:       %s\n", report.Family)
	if report.Codename != "" {
		fmt.Printf("Codename:     %s\n", report.Codename)
	}
	fmt.Printf("Kernel:       %s %s\n", report.Host.KernelVersion, report.Host.Architecture)
	if report.Supported {
		fmt.Println(color.GreenString("✓ supported"))
	} else {
		fmt.Println(color.YellowString("⚠ not supported, install Wine 10+ and winetricks manually"))
	}
	return 0
}

func runCheckRuntime() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info := runtimecheck.NewChecker().Check(ctx)
	switch info.Status {
	case runtimecheck.StatusOK:
		fmt.Println(color.GreenString("✓ Wine %s", info.Version))
		return 0
	case runtimecheck.StatusOld:
		fmt.Println(color.YellowString("⚠ Wine %s is older than %d.0", info.Version, runtimecheck.MinMajor))
	default:
		fmt.Println(color.RedString("✗ Wine is not installed"))
	}
	return 1
}
