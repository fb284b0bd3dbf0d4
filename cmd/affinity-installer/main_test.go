package main

import (
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/config"
	"github.com/seapear/AffinityOnLinux/internal/prompt"
	"github.com/seapear/AffinityOnLinux/internal/stages"
)

func newFlagCommand(t *testing.T, args ...string) (*cobra.Command, *installFlags) {
	t.Helper()
	f := &installFlags{}
	cmd := &cobra.Command{Use: "test"}
	addInstallFlags(cmd, f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd, f
}

func TestApplyOnlyOverridesChangedFlags(t *testing.T) {
	cfg := config.Default()
	cfg.EnableVulkan = true
	cfg.MinFreeDiskGB = 12

	cmd, f := newFlagCommand(t, "--prefix", "/opt/affinity", "--enable-dxvk", "--no-shortcut")
	f.apply(cmd, cfg)

	if cfg.Prefix != "/opt/affinity" {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}
	if !cfg.EnableVulkan {
		t.Error("unset --enable-vulkan must not clear the config value")
	}
	if !cfg.EnableDXVK {
		t.Error("EnableDXVK not applied")
	}
	if cfg.MinFreeDiskGB != 12 {
		t.Errorf("MinFreeDiskGB = %v, want 12", cfg.MinFreeDiskGB)
	}
	if cfg.CreateShortcut {
		t.Error("--no-shortcut not applied")
	}
	if !cfg.FetchShims {
		t.Error("FetchShims changed without --no-helpers")
	}
}

func TestWorkerArgsRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Prefix = "/home/u/.AffinityOnLinux"
	cfg.Installer = "/home/u/Downloads/Affinity x64.msix"
	cfg.EnableTahoma = true
	cfg.FetchShims = false

	args := workerArgs(cfg, "/etc/affinity.yaml", "/tmp/install.log", true, false)
	if args[0] != "install" || !slices.Contains(args, "--supervised") || !slices.Contains(args, "--credential-stdin") {
		t.Fatalf("args = %q", args)
	}

	f := &installFlags{}
	cmd := &cobra.Command{Use: "install"}
	addInstallFlags(cmd, f)
	cmd.Flags().Bool("supervised", false, "")
	cmd.Flags().Bool("credential-stdin", false, "")
	cmd.Flags().String("log-file", "", "")
	cmd.Flags().String("config", "", "")
	if err := cmd.ParseFlags(args[1:]); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	got := config.Default()
	f.apply(cmd, got)
	if got.Prefix != cfg.Prefix || got.Installer != cfg.Installer || !got.EnableTahoma || got.EnableVulkan || got.FetchShims {
		t.Fatalf("worker config = %+v", got)
	}
	if got.MinFreeDiskGB != cfg.MinFreeDiskGB {
		t.Fatalf("MinFreeDiskGB = %v", got.MinFreeDiskGB)
	}
}

func TestWorkerArgsWithoutCredential(t *testing.T) {
	args := workerArgs(config.Default(), "", "/tmp/install.log", false, true)
	if slices.Contains(args, "--credential-stdin") || slices.Contains(args, "--config") {
		t.Fatalf("args = %q", args)
	}
	if !slices.Contains(args, "--verbose") {
		t.Fatalf("args = %q", args)
	}
}

type scriptedUI struct {
	opts      stages.Options
	installer string
	confirm   bool
}

func (u scriptedUI) Options(stages.Options) (stages.Options, error) { return u.opts, nil }
func (u scriptedUI) InstallerPath(string) (string, error)           { return u.installer, nil }
func (u scriptedUI) Confirm(string, bool) (bool, error)             { return u.confirm, nil }

func TestAskInstallOptions(t *testing.T) {
	cfg := config.Default()
	ui := scriptedUI{opts: stages.Options{Vulkan: true}, installer: "/tmp/a.exe", confirm: true}
	if err := askInstallOptions(ui, cfg); err != nil {
		t.Fatalf("askInstallOptions: %v", err)
	}
	if !cfg.EnableVulkan || cfg.EnableDXVK || cfg.Installer != "/tmp/a.exe" {
		t.Fatalf("cfg = %+v", cfg)
	}

	ui.confirm = false
	if err := askInstallOptions(ui, cfg); err != prompt.ErrCancelled {
		t.Fatalf("declined confirmation = %v, want ErrCancelled", err)
	}
}

func TestInstallerConfigSelectsArtifacts(t *testing.T) {
	cfg := config.Default()
	cfg.Prefix = "/p"
	cfg.EnableDXVK = true
	if ic := installerConfig(cfg); len(ic.Artifacts) == 0 || !ic.Features.DXVK || ic.Prefix != "/p" {
		t.Fatalf("installer config = %+v", ic)
	}
	cfg.FetchShims = false
	if ic := installerConfig(cfg); len(ic.Artifacts) != 0 {
		t.Fatalf("artifacts = %v", ic.Artifacts)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"install", "supervise", "detect", "check-runtime", "doctor", "uninstall", "version"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing subcommand %q in %s", want, strings.Join(names, ","))
		}
	}
}
