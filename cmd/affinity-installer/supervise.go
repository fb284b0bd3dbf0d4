package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/installer"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/privilege"
	"github.com/seapear/AffinityOnLinux/internal/prompt"
	"github.com/seapear/AffinityOnLinux/internal/protocol"
	"github.com/seapear/AffinityOnLinux/internal/secmem"
	"github.com/seapear/AffinityOnLinux/internal/supervisor"
	"github.com/seapear/AffinityOnLinux/internal/terminal"
	"github.com/seapear/AffinityOnLinux/internal/websocket"
)

var (
	superviseOpts installFlags
	feedAddr      string
)

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run the installation in a worker process and follow its progress",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSupervise(cmd))
	},
}

func init() {
	addInstallFlags(superviseCmd, &superviseOpts)
	superviseCmd.Flags().StringVar(&feedAddr, "feed-addr", "", "serve a live progress feed on this address (e.g. 127.0.0.1:8765)")
}

func runSupervise(cmd *cobra.Command) int {
	cfg := loadConfig()
	superviseOpts.apply(cmd, cfg)
	if cmd.Flags().Changed("feed-addr") {
		cfg.FeedAddr = feedAddr
	}
	if err := cfg.ExpandPaths(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		return installer.ExitFailure
	}
	if superviseOpts.interactive {
		if err := askInstallOptions(prompt.NewHuhUI(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return installer.ExitFailure
		}
	}
	validateOrExit(cfg)

	level := "warn"
	if superviseOpts.verbose {
		level = cfg.LogLevel
	}
	logging.Init(cfg.LogFormat, level, os.Stderr)
	defer logging.Sync()
	log := logging.L("main")

	var secret *secmem.Secret
	if !privilege.IsRunningAsRoot() {
		if !terminal.IsInteractive() {
			fmt.Fprintln(os.Stderr, "An administrator password is required; run from a terminal or as root.")
			return installer.ExitFailure
		}
		var err error
		secret, err = terminal.ReadSecret(os.Stdin, os.Stderr, credentialPrompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return installer.ExitFailure
		}
	}

	logPath := logging.DefaultActionLogPath(cfg.LogDir, time.Now())
	fmt.Printf("Action log: %s\n", logPath)

	opts := supervisor.Options{
		Args:          workerArgs(cfg, cfgFile, logPath, secret != nil, superviseOpts.verbose),
		LogPath:       logPath,
		Secret:        secret,
		Sink:          protocol.NewHumanWriter(os.Stdout, superviseOpts.verbose),
		Interval:      time.Duration(cfg.MonitorIntervalSeconds) * time.Second,
		IdleThreshold: time.Duration(cfg.IdleThresholdSeconds) * time.Second,
	}

	var hub *websocket.Hub
	if cfg.FeedAddr != "" {
		hub = websocket.NewHub(nil)
		opts.Broadcaster = hub
	}
	sup := supervisor.New(opts)

	if hub != nil {
		hub.SetSnapshot(sup.FeedSnapshot)
		server, err := websocket.Listen(cfg.FeedAddr, hub, cfg.FeedMaxClients)
		if err != nil {
			log.Error("progress feed unavailable", zap.String("addr", cfg.FeedAddr), zap.Error(err))
			fmt.Fprintf(os.Stderr, "Progress feed unavailable: %v\n", err)
		} else {
			fmt.Printf("Progress feed: ws://%s/feed\n", server.Addr())
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				server.Shutdown(ctx)
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := sup.Run(ctx)
	if err != nil {
		log.Warn("worker ended abnormally", zap.Error(err))
	}

	snap := sup.Snapshot()
	fmt.Println()
	switch code {
	case installer.ExitSuccess:
		fmt.Println("Installation finished.")
	case installer.ExitPartial:
		fmt.Println("The Wine environment is ready but Affinity was not installed.")
	case installer.ExitCancelled:
		fmt.Println("Installation cancelled.")
	default:
		if snap.Error != "" {
			fmt.Printf("Installation failed: %s\n", snap.Error)
		} else {
			fmt.Printf("Installation failed (exit code %d).\n", code)
		}
	}
	fmt.Printf("Details: %s\n", logPath)
	return code
}
