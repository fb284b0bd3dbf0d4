package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/prompt"
	"github.com/seapear/AffinityOnLinux/internal/shortcut"
)

var (
	uninstallPrefix string
	uninstallYes    bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the Wine prefix and desktop launchers",
	Long: `Removes the Wine prefix with everything installed into it, and the Affinity
desktop entries. Wine itself and the distribution packages are left in place.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runUninstall(cmd))
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallPrefix, "prefix", "", "Wine prefix directory (default ~/.AffinityOnLinux)")
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "do not ask for confirmation")
}

func runUninstall(cmd *cobra.Command) int {
	cfg := loadConfig()
	if cmd.Flags().Changed("prefix") {
		cfg.Prefix = uninstallPrefix
	}
	if err := cfg.ExpandPaths(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		return 1
	}
	validateOrExit(cfg)
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)

	if !uninstallYes {
		ok, err := prompt.NewHuhUI().Confirm(fmt.Sprintf("Delete %s and Affinity desktop entries?", cfg.Prefix), false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v (use --yes to skip confirmation)\n", err)
			return 1
		}
		if !ok {
			fmt.Println("Nothing removed.")
			return 0
		}
	}

	failed := false
	if _, err := os.Stat(cfg.Prefix); err == nil {
		if err := os.RemoveAll(cfg.Prefix); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", cfg.Prefix, err)
			failed = true
		} else {
			fmt.Printf("Removed %s\n", cfg.Prefix)
		}
	} else {
		fmt.Printf("No prefix at %s\n", cfg.Prefix)
	}

	removed, err := shortcut.NewCreator(cfg.DataHome).Remove(context.Background())
	for _, p := range removed {
		fmt.Printf("Removed %s\n", p)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to remove desktop entries: %v\n", err)
		failed = true
	}

	if failed {
		return 1
	}
	return 0
}
