// Package runtimecheck inspects the installed Wine runtime.
package runtimecheck

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("runtimecheck")

// MinMajor is the oldest supported runtime major version.
const MinMajor = 10

const probeTimeout = 15 * time.Second

// Status classifies the installed runtime.
type Status string

const (
	StatusOK      Status = "ok"
	StatusOld     Status = "old"
	StatusMissing Status = "missing"
)

// Info is the result of a runtime probe.
type Info struct {
	Status  Status
	Version string
	Major   int
	Minor   int
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// Parse extracts the version from `wine --version` output such as
// "wine-10.0" or "wine-9.22 (Staging)".
func Parse(output string) (major, minor int, version string, ok bool) {
	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, "", false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, m[0], true
}

// Classify maps a probe output to Info against minMajor.
func Classify(output string, minMajor int) Info {
	major, minor, version, ok := Parse(output)
	if !ok {
		return Info{Status: StatusMissing}
	}
	info := Info{Status: StatusOK, Version: version, Major: major, Minor: minor}
	if major < minMajor {
		info.Status = StatusOld
	}
	return info
}

// Checker runs the runtime probe.
type Checker struct {
	Runner   executor.Runner
	MinMajor int
}

// NewChecker returns a Checker with the default executor.
func NewChecker() *Checker {
	return &Checker{Runner: executor.New(executor.Options{}), MinMajor: MinMajor}
}

// Check runs `wine --version`. A missing binary or unparsable output is
// reported as missing.
func (c *Checker) Check(ctx context.Context) Info {
	minMajor := c.MinMajor
	if minMajor <= 0 {
		minMajor = MinMajor
	}

	result := c.Runner.Run(ctx, executor.Command{Argv: []string{"wine", "--version"}}, probeTimeout, nil)
	if !result.OK {
		log.Info("wine not available", zap.Error(result.Err))
		return Info{Status: StatusMissing}
	}

	info := Classify(strings.TrimSpace(result.Output), minMajor)
	log.Info("wine detected", zap.String("version", info.Version), zap.String("status", string(info.Status)))
	return info
}

// AtLeast reports whether the installed runtime major version is >= major.
func (c *Checker) AtLeast(ctx context.Context, major int) bool {
	info := c.Check(ctx)
	return info.Status != StatusMissing && info.Major >= major
}
