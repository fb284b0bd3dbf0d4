package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/config"
	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/installer"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/payload"
	"github.com/seapear/AffinityOnLinux/internal/pipeline"
	"github.com/seapear/AffinityOnLinux/internal/privilege"
	"github.com/seapear/AffinityOnLinux/internal/prompt"
	"github.com/seapear/AffinityOnLinux/internal/protocol"
	"github.com/seapear/AffinityOnLinux/internal/secmem"
	"github.com/seapear/AffinityOnLinux/internal/shims"
	"github.com/seapear/AffinityOnLinux/internal/shortcut"
	"github.com/seapear/AffinityOnLinux/internal/stages"
	"github.com/seapear/AffinityOnLinux/internal/terminal"
)

const credentialPrompt = "Administrator password: "

var (
	installOpts     installFlags
	supervised      bool
	credentialStdin bool
	logFile         string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the Wine runtime and optionally Affinity",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runInstall(cmd))
	},
}

func init() {
	addInstallFlags(installCmd, &installOpts)
	installCmd.Flags().BoolVar(&supervised, "supervised", false, "write protocol lines to stdout for a supervising process")
	installCmd.Flags().BoolVar(&credentialStdin, "credential-stdin", false, "read the administrator password as one line from stdin")
	installCmd.Flags().StringVar(&logFile, "log-file", "", "action log path (default <log_dir>/install_YYYYMMDD_HHMMSS.log)")
}

func runInstall(cmd *cobra.Command) int {
	cfg := loadConfig()
	installOpts.apply(cmd, cfg)
	if err := cfg.ExpandPaths(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		return installer.ExitFailure
	}

	if installOpts.interactive && !supervised {
		if err := askInstallOptions(prompt.NewHuhUI(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return installer.ExitFailure
		}
	}
	validateOrExit(cfg)

	path := logFile
	if path == "" {
		path = logging.DefaultActionLogPath(cfg.LogDir, time.Now())
	}
	actionLog, err := logging.NewActionLog(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open action log: %v\n", err)
		return installer.ExitFailure
	}
	defer actionLog.Close()

	var logOut io.Writer = actionLog
	if installOpts.verbose && !supervised {
		logOut = logging.TeeWriter(os.Stderr, actionLog)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, logOut)
	defer logging.Sync()
	log := logging.L("main")

	var out protocol.Sink
	if supervised {
		out = protocol.NewWriter(os.Stdout)
	} else {
		out = protocol.NewHumanWriter(os.Stdout, installOpts.verbose)
		fmt.Printf("Action log: %s\n", path)
	}
	sink := installer.RecordingSink(out, actionLog)

	table, err := loadStageTable(cfg.StageTable)
	if err != nil {
		log.Error("invalid stage table", zap.String("path", cfg.StageTable), zap.Error(err))
		sink.Emit(protocol.Error("Invalid stage table: " + err.Error()))
		return installer.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(cfg, table)
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		sink.Emit(protocol.Error(err.Error()))
		return installer.ExitFailure
	}
	defer cleanup()

	orch := installer.New(installerConfig(cfg), deps, sink)
	ctx = logging.NewContext(ctx, logging.WithRun(log, orch.RunID()))
	log.Info("installation starting",
		zap.String("version", version),
		zap.String("prefix", cfg.Prefix),
		zap.String("installer", cfg.Installer),
		zap.Bool("supervised", supervised))

	res := orch.Run(ctx)
	if !supervised {
		printSummary(res, path)
	}
	return res.ExitCode()
}

func loadStageTable(path string) (*stages.Table, error) {
	if path == "" {
		return stages.Default()
	}
	return stages.LoadFile(path)
}

func installerConfig(cfg *config.Config) installer.Config {
	ic := installer.Config{
		Prefix:    cfg.Prefix,
		Installer: cfg.Installer,
		Features: stages.Options{
			Vulkan: cfg.EnableVulkan,
			Tahoma: cfg.EnableTahoma,
			DXVK:   cfg.EnableDXVK,
		},
		MinFreeGB:      cfg.MinFreeDiskGB,
		ExecutableName: "Affinity.exe",
	}
	if cfg.FetchShims {
		ic.Artifacts = shims.Defaults
	}
	return ic
}

// buildDeps wires the host implementations. cleanup removes the download
// directory.
func buildDeps(cfg *config.Config, table *stages.Table) (installer.Deps, func(), error) {
	var session *privilege.Session
	if privilege.IsRunningAsRoot() {
		session = privilege.NewRootSession(nil)
	} else {
		session = privilege.NewSession(nil)
	}

	deps := installer.Deps{
		Detector:    distro.Detector{},
		Credentials: installer.CredentialFunc(readCredential),
		Session:     session,
		Pipeline:    pipeline.New(table),
	}
	cleanup := func() {}

	if cfg.Installer == "" {
		return deps, cleanup, nil
	}
	deps.Payload = payload.NewInstaller()
	deps.Locate = payload.FindExecutable

	if cfg.FetchShims {
		dir, err := os.MkdirTemp("", "affinity-helpers-*")
		if err != nil {
			return deps, cleanup, fmt.Errorf("create download directory: %w", err)
		}
		cleanup = func() { os.RemoveAll(dir) }
		deps.Fetcher = shims.NewFetcher(dir)
		deps.PlaceArtifacts = shims.Install
	}
	if cfg.CreateShortcut {
		deps.Shortcuts = shortcut.NewCreator(cfg.DataHome)
	}
	return deps, cleanup, nil
}

// readCredential takes the password from stdin when piped by a supervisor,
// otherwise from the terminal without echo.
func readCredential(ctx context.Context) (*secmem.Secret, error) {
	if credentialStdin {
		return terminal.ReadSecretLine(os.Stdin)
	}
	if !terminal.IsInteractive() {
		return nil, prompt.ErrNotInteractive
	}
	return terminal.ReadSecret(os.Stdin, os.Stderr, credentialPrompt)
}

func askInstallOptions(ui prompt.UI, cfg *config.Config) error {
	opts, err := ui.Options(stages.Options{Vulkan: cfg.EnableVulkan, Tahoma: cfg.EnableTahoma, DXVK: cfg.EnableDXVK})
	if err != nil {
		return err
	}
	cfg.EnableVulkan, cfg.EnableTahoma, cfg.EnableDXVK = opts.Vulkan, opts.Tahoma, opts.DXVK

	path, err := ui.InstallerPath(cfg.Installer)
	if err != nil {
		return err
	}
	cfg.Installer = path

	ok, err := ui.Confirm(fmt.Sprintf("Install into %s?", cfg.Prefix), true)
	if err != nil {
		return err
	}
	if !ok {
		return prompt.ErrCancelled
	}
	return nil
}

func printSummary(res installer.Result, logPath string) {
	fmt.Println()
	switch code := res.ExitCode(); code {
	case installer.ExitSuccess:
		fmt.Printf("Finished in %s.\n", res.Duration.Round(time.Second))
		if res.Shortcut != "" {
			fmt.Printf("Launcher: %s\n", res.Shortcut)
		}
	case installer.ExitPartial:
		fmt.Println("The Wine environment is ready but Affinity was not installed.")
		fmt.Println("Re-run with --installer once the problem is fixed; completed steps are skipped.")
	case installer.ExitCancelled:
		fmt.Println("Installation cancelled. Re-running resumes where it stopped.")
	default:
		fmt.Printf("Installation failed: %v\n", res.Err)
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %v\n", w)
	}
	fmt.Printf("Details: %s\n", logPath)
}
