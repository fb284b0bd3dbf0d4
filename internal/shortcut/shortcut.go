// Package shortcut creates and removes desktop launcher entries.
package shortcut

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/httputil"
	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("shortcut")

// IconURL is the launcher icon source.
const IconURL = "https://upload.wikimedia.org/wikipedia/commons/c/cf/Affinity_%28App%29_Logo.svg"

// EntryName is the desktop entry file written by Create.
const EntryName = "Affinity.desktop"

// RemovePatterns match entries Remove deletes.
var RemovePatterns = []string{"affinity-*.desktop", "Affinity*.desktop", "*affinity*.desktop"}

// Creator writes launcher entries under DataHome (usually
// ~/.local/share).
type Creator struct {
	DataHome string
	Runner   executor.Runner
	Client   *http.Client
	Retry    httputil.RetryConfig
	IconURL  string
}

// NewCreator returns a Creator for the user's data directory.
func NewCreator(dataHome string) *Creator {
	return &Creator{
		DataHome: dataHome,
		Runner:   executor.New(executor.Options{}),
		Client:   &http.Client{Timeout: 30 * time.Second},
		Retry:    httputil.RetryConfig{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1},
		IconURL:  IconURL,
	}
}

// ApplicationsDir is where desktop entries are written.
func (c *Creator) ApplicationsDir() string {
	return filepath.Join(c.DataHome, "applications")
}

// IconPath is where the launcher icon is stored.
func (c *Creator) IconPath() string {
	return filepath.Join(c.DataHome, "icons", "Affinity.svg")
}

// Create writes a launcher for exe inside prefix. The icon download and
// desktop database refresh are best effort.
func (c *Creator) Create(ctx context.Context, prefix, exe string) (string, error) {
	if err := os.MkdirAll(c.ApplicationsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create applications dir: %w", err)
	}

	if c.IconURL != "" && c.Client != nil {
		if _, err := httputil.Download(ctx, c.Client, c.IconURL, c.IconPath(), c.Retry); err != nil {
			log.Warn("icon download failed", zap.Error(err))
		}
	}

	path := filepath.Join(c.ApplicationsDir(), EntryName)
	if err := os.WriteFile(path, []byte(Entry(prefix, exe, c.IconPath())), 0o755); err != nil {
		return "", fmt.Errorf("write desktop entry: %w", err)
	}
	log.Info("desktop entry created", zap.String("path", path), zap.String("exe", exe))

	c.refresh(ctx)
	return path, nil
}

// Remove deletes every launcher matching RemovePatterns and returns the
// removed paths.
func (c *Creator) Remove(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var removed []string
	var firstErr error
	for _, pattern := range RemovePatterns {
		matches, err := filepath.Glob(filepath.Join(c.ApplicationsDir(), pattern))
		if err != nil {
			return removed, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			if err := os.Remove(m); err != nil {
				log.Warn("failed to remove desktop entry", zap.String("path", m), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed = append(removed, m)
		}
	}
	if len(removed) > 0 {
		c.refresh(ctx)
	}
	return removed, firstErr
}

func (c *Creator) refresh(ctx context.Context) {
	if c.Runner == nil || !executor.Available("update-desktop-database") {
		return
	}
	res := c.Runner.Run(ctx, executor.Command{Argv: []string{"update-desktop-database", c.ApplicationsDir()}}, 30*time.Second, nil)
	if !res.OK {
		log.Warn("update-desktop-database failed", zap.Error(res.Err))
	}
}

// Entry renders the desktop entry text.
func Entry(prefix, exe, icon string) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Name=Affinity\n")
	b.WriteString("Comment=Unified Affinity application for photo editing, design, and publishing\n")
	fmt.Fprintf(&b, "Icon=%s\n", icon)
	fmt.Fprintf(&b, "Path=%s\n", prefix)
	fmt.Fprintf(&b, "Exec=env WINEPREFIX=%s wine %s\n", execQuote(prefix), execQuote(exe))
	b.WriteString("Terminal=false\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Categories=Graphics;\n")
	b.WriteString("StartupNotify=true\n")
	b.WriteString("StartupWMClass=affinity.exe\n")
	return b.String()
}

// execQuote quotes an Exec argument per the desktop entry specification.
func execQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}
