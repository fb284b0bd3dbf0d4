package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seapear/AffinityOnLinux/internal/config"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "affinity-installer",
	Short: "Affinity on Linux installer",
	Long: `affinity-installer sets up a Wine 10 environment with winetricks components
for Affinity on Debian, Fedora and Arch based distributions, then optionally
installs the Affinity application and a desktop launcher.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("affinity-installer v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/affinity-installer/affinity-installer.yaml)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(superviseCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(checkRuntimeCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and validates it. Fatal problems end the
// process; warnings are printed.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func validateOrExit(cfg *config.Config) {
	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "config warning: %v\n", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			fmt.Fprintf(os.Stderr, "config error: %v\n", f)
		}
		os.Exit(1)
	}
}
