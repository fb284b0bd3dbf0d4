// Package payload installs the application package into a Wine prefix.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("payload")

// ErrPayloadInstallFailure wraps every payload failure.
var ErrPayloadInstallFailure = errors.New("payload install failed")

// InstallerTimeout bounds an interactive .exe installer.
const InstallerTimeout = time.Hour

// Format is the installer package type.
type Format string

const (
	FormatEXE  Format = "exe"
	FormatMSIX Format = "msix"
)

// DetectFormat returns the package format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe":
		return FormatEXE, nil
	case ".msix":
		return FormatMSIX, nil
	}
	return "", fmt.Errorf("%w: unsupported installer type %q (expected .exe or .msix)", ErrPayloadInstallFailure, filepath.Ext(path))
}

// AppDir is where the application lives inside prefix.
func AppDir(prefix string) string {
	return filepath.Join(prefix, "drive_c", "Program Files", "Affinity")
}

// Installer runs installer packages against a prefix.
type Installer struct {
	Runner  executor.Runner
	Timeout time.Duration
}

// NewInstaller returns an Installer using the default executor.
func NewInstaller() *Installer {
	return &Installer{Runner: executor.New(executor.Options{}), Timeout: InstallerTimeout}
}

// Install installs the package at path into prefix and returns the
// application directory, or "" when the installer placed it elsewhere.
func (i *Installer) Install(ctx context.Context, prefix, path string, sink executor.LineSink) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: installer file not found: %s", ErrPayloadInstallFailure, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: installer path is a directory: %s", ErrPayloadInstallFailure, path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return "", err
	}
	logger := log.With(zap.String("installer", path), zap.String("format", string(format)))
	logger.Info("installing payload")

	switch format {
	case FormatEXE:
		res := i.Runner.Run(ctx, executor.Command{
			Argv: []string{"wine", path},
			Env:  []string{"WINEPREFIX=" + prefix},
		}, i.Timeout, sink)
		if !res.OK {
			logger.Error("installer failed", zap.Int("exitCode", res.ExitCode), zap.Error(res.Err))
			return "", fmt.Errorf("%w: %s: %w", ErrPayloadInstallFailure, res.Command, res.Err)
		}
	case FormatMSIX:
		n, err := ExtractMSIX(path, AppDir(prefix))
		if err != nil {
			logger.Error("msix extraction failed", zap.Error(err))
			return "", fmt.Errorf("%w: %w", ErrPayloadInstallFailure, err)
		}
		logger.Info("msix extracted", zap.Int("files", n))
	}

	appDir := AppDir(prefix)
	if _, err := os.Stat(appDir); err != nil {
		logger.Warn("application directory not found after install", zap.String("dir", appDir))
		return "", nil
	}
	return appDir, nil
}

// ExtractMSIX copies the App/ tree of an MSIX package into dest. It returns
// the number of files written.
func ExtractMSIX(path, dest string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open msix: %w", err)
	}
	defer r.Close()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	const root = "App/"
	written := 0
	for _, f := range r.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if !strings.HasPrefix(name, root) || name == root {
			continue
		}

		target := filepath.Join(absDest, filepath.FromSlash(strings.TrimPrefix(name, root)))
		rel, err := filepath.Rel(absDest, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return written, fmt.Errorf("invalid path in package: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		if err := extractFile(f, target); err != nil {
			return written, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		written++
	}

	if written == 0 {
		return 0, fmt.Errorf("package has no %s directory", strings.TrimSuffix(root, "/"))
	}
	return written, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FindExecutable searches prefix's drive_c for name and returns the first
// match.
func FindExecutable(prefix, name string) (string, error) {
	root := filepath.Join(prefix, "drive_c")
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), name) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%s not found under %s", name, root)
	}
	return found, nil
}
