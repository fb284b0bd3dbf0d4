// Package distro identifies the host Linux distribution and maps it to the
// package-manager family that drives the install pipeline.
package distro

import (
	"bufio"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("distro")

// OSReleasePath is the standard location of the os-release file.
const OSReleasePath = "/etc/os-release"

// Family groups distributions that share a package manager and repository
// layout.
type Family string

const (
	FamilyDebian  Family = "debian-like"
	FamilyFedora  Family = "fedora-like"
	FamilyArch    Family = "arch-like"
	FamilyUnknown Family = "unknown"
)

// Known reports whether f has an install pipeline.
func (f Family) Known() bool {
	return f == FamilyDebian || f == FamilyFedora || f == FamilyArch
}

// Distribution is the detected host distribution. It is immutable once
// returned by Detect.
type Distribution struct {
	ID       string
	Family   Family
	Codename string
	// Upstream is the repository base for debian-like hosts: "ubuntu" for
	// Ubuntu and its derivatives, "debian" otherwise.
	Upstream string
	Name     string
}

// families maps os-release IDs to their family.
var families = map[string]Family{
	"ubuntu":      FamilyDebian,
	"debian":      FamilyDebian,
	"linuxmint":   FamilyDebian,
	"pop":         FamilyDebian,
	"zorin":       FamilyDebian,
	"elementary":  FamilyDebian,
	"kali":        FamilyDebian,
	"raspbian":    FamilyDebian,
	"neon":        FamilyDebian,
	"fedora":      FamilyFedora,
	"nobara":      FamilyFedora,
	"rhel":        FamilyFedora,
	"centos":      FamilyFedora,
	"rocky":       FamilyFedora,
	"almalinux":   FamilyFedora,
	"ultramarine": FamilyFedora,
	"arch":        FamilyArch,
	"manjaro":     FamilyArch,
	"endeavouros": FamilyArch,
	"garuda":      FamilyArch,
	"cachyos":     FamilyArch,
	"artix":       FamilyArch,
}

// FamilyOf maps an os-release ID to its family.
func FamilyOf(id string) Family {
	if f, ok := families[strings.ToLower(strings.TrimSpace(id))]; ok {
		return f
	}
	return FamilyUnknown
}

// Detector reads os-release data. The zero value reads OSReleasePath.
type Detector struct {
	Path string
}

// Detect reads the os-release file and classifies the host. Any read or
// parse problem yields an unknown distribution rather than an error.
func (d Detector) Detect() Distribution {
	path := d.Path
	if path == "" {
		path = OSReleasePath
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn("cannot read os-release", zap.String("path", path), zap.Error(err))
		return Distribution{ID: "unknown", Family: FamilyUnknown}
	}
	defer f.Close()

	dist := Parse(f)
	log.Info("distribution detected", zap.String("id", dist.ID), zap.String("family", string(dist.Family)), zap.String("codename", dist.Codename))
	return dist
}

// Parse classifies os-release content read from r.
func Parse(r io.Reader) Distribution {
	fields := parseOSRelease(r)

	id := strings.ToLower(fields["ID"])
	if id == "" {
		id = "unknown"
	}
	dist := Distribution{
		ID:       id,
		Family:   FamilyOf(id),
		Codename: fields["UBUNTU_CODENAME"],
		Name:     fields["PRETTY_NAME"],
	}
	// Derivatives name their own releases; the Ubuntu base is what
	// upstream repositories are published for.
	if dist.Codename == "" {
		dist.Codename = fields["VERSION_CODENAME"]
	}

	if dist.Family == FamilyUnknown {
		for _, like := range strings.Fields(strings.ToLower(fields["ID_LIKE"])) {
			if f := FamilyOf(like); f != FamilyUnknown {
				dist.Family = f
				break
			}
		}
	}

	if dist.Family == FamilyDebian {
		dist.Upstream = "debian"
		if id == "ubuntu" || fields["UBUNTU_CODENAME"] != "" || strings.Contains(fields["ID_LIKE"], "ubuntu") {
			dist.Upstream = "ubuntu"
		}
	}
	return dist
}

func parseOSRelease(r io.Reader) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return fields
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return strings.Trim(v, `"'`)
}
