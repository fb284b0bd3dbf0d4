package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

const bytesPerGB = 1024 * 1024 * 1024

// FreeSpaceFunc reports free bytes on the filesystem holding path.
type FreeSpaceFunc func(path string) (uint64, error)

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// PreflightCheck is one individual check result.
type PreflightCheck struct {
	Name    string
	Passed  bool
	Message string
}

// checkDiskSpace verifies the filesystem that will hold target has at least
// minGB free. target need not exist yet.
func checkDiskSpace(free FreeSpaceFunc, target string, minGB float64) PreflightCheck {
	check := PreflightCheck{Name: "disk_space"}

	dir := existingAncestor(target)
	avail, err := free(dir)
	if err != nil {
		// Unknown free space does not block the install.
		check.Passed = true
		check.Message = fmt.Sprintf("could not check disk space on %s: %v", dir, err)
		return check
	}

	freeGB := float64(avail) / bytesPerGB
	if freeGB < minGB {
		check.Message = fmt.Sprintf("insufficient disk space: %.1f GB free on %s, minimum %.1f GB required", freeGB, dir, minGB)
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("%.1f GB free on %s", freeGB, dir)
	return check
}

func existingAncestor(path string) string {
	if path == "" {
		path = "."
	}
	dir := filepath.Clean(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// CheckDiskSpace runs the free-space check against the host filesystem.
func CheckDiskSpace(target string, minGB float64) PreflightCheck {
	return checkDiskSpace(diskFree, target, minGB)
}
