package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// MaxDownloadSize caps a single downloaded artifact.
const MaxDownloadSize = 512 << 20

// Download fetches url into dst. The body is written to a temporary file in
// dst's directory and renamed into place so dst is never left partial.
func Download(ctx context.Context, client *http.Client, url, dst string, cfg RetryConfig) (int64, error) {
	resp, err := Get(ctx, client, url, nil, cfg)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create download directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, MaxDownloadSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	if n > MaxDownloadSize {
		return 0, fmt.Errorf("download %s exceeds %d bytes", url, MaxDownloadSize)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("move download into place: %w", err)
	}
	log.Debug("downloaded artifact", zap.String("url", url), zap.String("path", dst), zap.Int64("bytes", n))
	return n, nil
}
