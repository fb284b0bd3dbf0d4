package distro

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// HostSummary describes the machine for diagnostics output.
type HostSummary struct {
	Hostname        string `json:"hostname"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	KernelVersion   string `json:"kernelVersion"`
	Architecture    string `json:"architecture"`
}

// CollectHostSummary gathers host facts. Missing facts are left empty.
func CollectHostSummary() HostSummary {
	summary := HostSummary{Architecture: runtime.GOARCH}

	info, err := host.Info()
	if err != nil {
		return summary
	}
	summary.Hostname = info.Hostname
	summary.Platform = info.Platform
	summary.PlatformVersion = info.PlatformVersion
	summary.KernelVersion = info.KernelVersion
	if info.KernelArch != "" {
		summary.Architecture = info.KernelArch
	}
	return summary
}
