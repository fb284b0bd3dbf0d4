package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/config"
)

// installFlags are shared by install and supervise. Only flags set on the
// command line override the config file.
type installFlags struct {
	prefix       string
	installer    string
	enableVulkan bool
	enableTahoma bool
	enableDXVK   bool
	stageTable   string
	minFreeGB    float64
	noShims      bool
	noShortcut   bool
	interactive  bool
	verbose      bool
}

func addInstallFlags(cmd *cobra.Command, f *installFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.prefix, "prefix", "", "Wine prefix directory (default ~/.AffinityOnLinux)")
	fs.StringVar(&f.installer, "installer", "", "Affinity installer to run after the runtime (.exe or .msix)")
	fs.BoolVar(&f.enableVulkan, "enable-vulkan", false, "use the Vulkan rendering backend")
	fs.BoolVar(&f.enableTahoma, "enable-tahoma", false, "install the Tahoma font")
	fs.BoolVar(&f.enableDXVK, "enable-dxvk", false, "install DXVK")
	fs.StringVar(&f.stageTable, "stage-table", "", "override the built-in stage table with a YAML file")
	fs.Float64Var(&f.minFreeGB, "min-free-disk-gb", 0, "free space required for the prefix, 0 disables the check")
	fs.BoolVar(&f.noShims, "no-helpers", false, "skip downloading wintypes.dll and Windows.winmd")
	fs.BoolVar(&f.noShortcut, "no-shortcut", false, "do not create a desktop launcher")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "choose options and installer interactively")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show command output and log records")
}

// apply copies explicitly set flags onto cfg.
func (f *installFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("prefix") {
		cfg.Prefix = f.prefix
	}
	if changed("installer") {
		cfg.Installer = f.installer
	}
	if changed("enable-vulkan") {
		cfg.EnableVulkan = f.enableVulkan
	}
	if changed("enable-tahoma") {
		cfg.EnableTahoma = f.enableTahoma
	}
	if changed("enable-dxvk") {
		cfg.EnableDXVK = f.enableDXVK
	}
	if changed("stage-table") {
		cfg.StageTable = f.stageTable
	}
	if changed("min-free-disk-gb") {
		cfg.MinFreeDiskGB = f.minFreeGB
	}
	if f.noShims {
		cfg.FetchShims = false
	}
	if f.noShortcut {
		cfg.CreateShortcut = false
	}
}

// workerArgs renders cfg as arguments for a supervised install worker. The
// credential is never among them.
func workerArgs(cfg *config.Config, configFile, logFile string, credentialOnStdin, verbose bool) []string {
	args := []string{"install", "--supervised", "--log-file", logFile, "--prefix", cfg.Prefix}
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	if credentialOnStdin {
		args = append(args, "--credential-stdin")
	}
	if cfg.Installer != "" {
		args = append(args, "--installer", cfg.Installer)
	}
	if cfg.EnableVulkan {
		args = append(args, "--enable-vulkan")
	}
	if cfg.EnableTahoma {
		args = append(args, "--enable-tahoma")
	}
	if cfg.EnableDXVK {
		args = append(args, "--enable-dxvk")
	}
	if cfg.StageTable != "" {
		args = append(args, "--stage-table", cfg.StageTable)
	}
	args = append(args, "--min-free-disk-gb", strconv.FormatFloat(cfg.MinFreeDiskGB, 'f', -1, 64))
	if !cfg.FetchShims {
		args = append(args, "--no-helpers")
	}
	if !cfg.CreateShortcut {
		args = append(args, "--no-shortcut")
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}
