package distro

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		id   string
		want Family
	}{
		{"ubuntu", FamilyDebian},
		{"pop", FamilyDebian},
		{"linuxmint", FamilyDebian},
		{"fedora", FamilyFedora},
		{"nobara", FamilyFedora},
		{"rhel", FamilyFedora},
		{"arch", FamilyArch},
		{"endeavouros", FamilyArch},
		{"CachyOS", FamilyArch},
		{"gentoo", FamilyUnknown},
		{"", FamilyUnknown},
	}
	for _, tt := range tests {
		if got := FamilyOf(tt.id); got != tt.want {
			t.Errorf("FamilyOf(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestParseQuotedFields(t *testing.T) {
	content := `NAME="Ubuntu"
PRETTY_NAME="Ubuntu 24.04 LTS"
ID=ubuntu
ID_LIKE=debian
VERSION_CODENAME=noble
`
	d := Parse(strings.NewReader(content))
	if d.ID != "ubuntu" || d.Family != FamilyDebian {
		t.Fatalf("got %+v", d)
	}
	if d.Codename != "noble" {
		t.Fatalf("Codename = %q, want noble", d.Codename)
	}
	if d.Name != "Ubuntu 24.04 LTS" {
		t.Fatalf("Name = %q", d.Name)
	}
}

func TestParseUnknownWithoutIDLike(t *testing.T) {
	d := Parse(strings.NewReader("ID=gentoo\nNAME=Gentoo\n"))
	if d.ID != "gentoo" || d.Family != FamilyUnknown {
		t.Fatalf("got %+v, want gentoo/unknown", d)
	}
}

func TestParseFallsBackToIDLike(t *testing.T) {
	d := Parse(strings.NewReader(`ID="tuxedo"
ID_LIKE="ubuntu debian"
UBUNTU_CODENAME=jammy
`))
	if d.Family != FamilyDebian {
		t.Fatalf("Family = %q, want debian-like", d.Family)
	}
	if d.Codename != "jammy" {
		t.Fatalf("Codename = %q, want jammy from UBUNTU_CODENAME", d.Codename)
	}
}

func TestParseSingleQuotesAndComments(t *testing.T) {
	d := Parse(strings.NewReader("# comment\nID='fedora'\nbroken line\n"))
	if d.ID != "fedora" || d.Family != FamilyFedora {
		t.Fatalf("got %+v", d)
	}
}

func TestParseEmpty(t *testing.T) {
	d := Parse(strings.NewReader(""))
	if d.ID != "unknown" || d.Family != FamilyUnknown {
		t.Fatalf("got %+v", d)
	}
}

func TestDetectMissingFileIsUnknown(t *testing.T) {
	d := Detector{Path: filepath.Join(t.TempDir(), "missing")}.Detect()
	if d.Family != FamilyUnknown {
		t.Fatalf("Family = %q, want unknown", d.Family)
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(path, []byte("ID=arch\n"), 0644); err != nil {
		t.Fatal(err)
	}
	det := Detector{Path: path}
	first, second := det.Detect(), det.Detect()
	if first != second {
		t.Fatalf("Detect() not idempotent: %+v vs %+v", first, second)
	}
	if first.Family != FamilyArch {
		t.Fatalf("Family = %q, want arch-like", first.Family)
	}
}

func TestFamilyKnown(t *testing.T) {
	if FamilyUnknown.Known() {
		t.Fatal("unknown family reported as known")
	}
	for _, f := range []Family{FamilyDebian, FamilyFedora, FamilyArch} {
		if !f.Known() {
			t.Fatalf("%s reported as unknown", f)
		}
	}
}

func TestCollectHostSummaryHasArchitecture(t *testing.T) {
	if CollectHostSummary().Architecture == "" {
		t.Fatal("Architecture should never be empty")
	}
}

func TestParseUpstream(t *testing.T) {
	tests := []struct {
		content      string
		wantUpstream string
		wantCodename string
	}{
		{"ID=ubuntu\nVERSION_CODENAME=noble\n", "ubuntu", "noble"},
		{"ID=linuxmint\nID_LIKE=\"ubuntu debian\"\nVERSION_CODENAME=wilma\nUBUNTU_CODENAME=noble\n", "ubuntu", "noble"},
		{"ID=debian\nVERSION_CODENAME=bookworm\n", "debian", "bookworm"},
		{"ID=fedora\nVERSION_CODENAME=\"\"\n", "", ""},
	}
	for _, tt := range tests {
		d := Parse(strings.NewReader(tt.content))
		if d.Upstream != tt.wantUpstream || d.Codename != tt.wantCodename {
			t.Errorf("Parse(%q) upstream/codename = %q/%q, want %q/%q", tt.content, d.Upstream, d.Codename, tt.wantUpstream, tt.wantCodename)
		}
	}
}
