// Package shims fetches the auxiliary files the application needs inside
// the prefix and places them after the payload is installed.
package shims

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/httputil"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/workerpool"
)

var log = logging.L("shims")

// ErrDownloadFailure wraps every fetch failure. It is never fatal to an
// installation.
var ErrDownloadFailure = errors.New("download failed")

// Placement says where an artifact goes inside the prefix.
type Placement int

const (
	// PlaceAppDir copies the file next to the application executable.
	PlaceAppDir Placement = iota
	// PlaceWinMetadata copies the file into system32/WinMetadata.
	PlaceWinMetadata
)

// Artifact is one downloadable file.
type Artifact struct {
	Name     string
	URL      string
	FileName string
	Place    Placement
}

// Defaults are the artifacts the application needs under Wine.
var Defaults = []Artifact{
	{
		Name:     "wintypes",
		URL:      "https://github.com/ElementalWarrior/wine-wintypes.dll-for-affinity/raw/refs/heads/master/wintypes_shim.dll.so",
		FileName: "wintypes.dll",
		Place:    PlaceAppDir,
	},
	{
		Name:     "winmd",
		URL:      "https://github.com/microsoft/windows-rs/raw/master/crates/libs/bindgen/default/Windows.winmd",
		FileName: "Windows.winmd",
		Place:    PlaceWinMetadata,
	},
}

// Fetched maps artifact names to downloaded local files.
type Fetched map[string]Download

// Download is one successfully fetched artifact.
type Download struct {
	Artifact Artifact
	Path     string
	Bytes    int64
}

// Fetcher downloads artifacts concurrently with retries.
type Fetcher struct {
	Client  *http.Client
	Retry   httputil.RetryConfig
	Workers int
	// Dir receives the downloads. It should be private to the run.
	Dir string
}

// NewFetcher returns a Fetcher writing into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		Client:  &http.Client{Timeout: 5 * time.Minute},
		Retry:   httputil.DefaultRetryConfig(),
		Workers: 2,
		Dir:     dir,
	}
}

// Fetch downloads every artifact. Artifacts that could not be fetched are
// left out of the result and reported in the returned error, which wraps
// ErrDownloadFailure.
func (f *Fetcher) Fetch(ctx context.Context, artifacts []Artifact) (Fetched, error) {
	pool := workerpool.New(ctx, f.Workers)
	results := make([]Download, len(artifacts))

	for i, a := range artifacts {
		pool.Submit(a.Name, func(ctx context.Context) error {
			dst := filepath.Join(f.Dir, a.FileName)
			n, err := httputil.Download(ctx, f.Client, a.URL, dst, f.Retry)
			if err != nil {
				return err
			}
			results[i] = Download{Artifact: a, Path: dst, Bytes: n}
			return nil
		})
	}

	taskErrs := pool.Wait()
	fetched := make(Fetched, len(artifacts))
	for _, d := range results {
		if d.Path != "" {
			fetched[d.Artifact.Name] = d
			log.Info("artifact downloaded", zap.String("artifact", d.Artifact.Name), zap.Int64("bytes", d.Bytes))
		}
	}

	if len(taskErrs) == 0 {
		return fetched, nil
	}
	errs := make([]error, 0, len(taskErrs))
	for _, te := range taskErrs {
		log.Warn("artifact download failed", zap.String("artifact", te.Name), zap.Error(te.Err))
		errs = append(errs, fmt.Errorf("%w: %s: %w", ErrDownloadFailure, te.Name, te.Err))
	}
	return fetched, errors.Join(errs...)
}

// Install copies fetched artifacts into the prefix. appDir is the installed
// application directory; when empty, app-dir artifacts are skipped. It
// returns the destination paths written.
func Install(prefix, appDir string, fetched Fetched) ([]string, error) {
	var written []string
	var errs []error
	for _, d := range fetched {
		var dir string
		switch d.Artifact.Place {
		case PlaceAppDir:
			if appDir == "" {
				log.Warn("application directory not found, skipping artifact", zap.String("artifact", d.Artifact.Name))
				continue
			}
			dir = appDir
		case PlaceWinMetadata:
			dir = filepath.Join(prefix, "drive_c", "windows", "system32", "WinMetadata")
		}

		dst := filepath.Join(dir, d.Artifact.FileName)
		if err := copyFile(d.Path, dst); err != nil {
			errs = append(errs, fmt.Errorf("install %s: %w", d.Artifact.Name, err))
			continue
		}
		log.Info("artifact installed", zap.String("artifact", d.Artifact.Name), zap.String("path", dst))
		written = append(written, dst)
	}
	return written, errors.Join(errs...)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
