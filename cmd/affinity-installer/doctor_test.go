package main

import (
	"context"
	"testing"

	"github.com/seapear/AffinityOnLinux/internal/config"
	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/health"
	"github.com/seapear/AffinityOnLinux/internal/runtimecheck"
)

type fixedDistro distro.Distribution

func (d fixedDistro) Detect() distro.Distribution { return distro.Distribution(d) }

type fixedRuntime runtimecheck.Info

func (r fixedRuntime) Check(context.Context) runtimecheck.Info { return runtimecheck.Info(r) }

func runProbes(t *testing.T, d distro.Distribution, rt runtimecheck.Info, tools map[string]bool) *health.Monitor {
	t.Helper()
	cfg := config.Default()
	cfg.Prefix = t.TempDir()
	cfg.MinFreeDiskGB = 0

	m := health.NewMonitor()
	m.RunAll(context.Background(), doctorProbes(cfg, fixedDistro(d), fixedRuntime(rt), func(name string) bool { return tools[name] }))
	return m
}

func TestDoctorReadyHost(t *testing.T) {
	m := runProbes(t,
		distro.Distribution{ID: "fedora", Family: distro.FamilyFedora},
		runtimecheck.Info{Status: runtimecheck.StatusOK, Version: "10.0", Major: 10},
		map[string]bool{"sudo": true, "winetricks": true},
	)

	for _, name := range []string{"distribution", "wine", "winetricks", "disk"} {
		if c, _ := m.Get(name); c.Status != health.Healthy {
			t.Errorf("%s = %+v", name, c)
		}
	}
}

func TestDoctorUnsupportedDistribution(t *testing.T) {
	m := runProbes(t,
		distro.Distribution{ID: "gentoo", Family: distro.FamilyUnknown},
		runtimecheck.Info{Status: runtimecheck.StatusMissing},
		map[string]bool{"sudo": true},
	)

	if m.Overall() != health.Unhealthy {
		t.Fatalf("overall = %q", m.Overall())
	}
	if c, _ := m.Get("wine"); c.Status != health.Degraded {
		t.Fatalf("missing wine = %+v, want degraded", c)
	}
}

func TestDoctorOldRuntimeIsDegraded(t *testing.T) {
	m := runProbes(t,
		distro.Distribution{ID: "ubuntu", Family: distro.FamilyDebian},
		runtimecheck.Info{Status: runtimecheck.StatusOld, Version: "9.0", Major: 9},
		map[string]bool{"sudo": true, "winetricks": true},
	)

	c, _ := m.Get("wine")
	if c.Status != health.Degraded {
		t.Fatalf("wine = %+v", c)
	}
}
