package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/huh"

	"github.com/seapear/AffinityOnLinux/internal/stages"
)

func stubForm(t *testing.T, fn func(*huh.Form) error) {
	t.Helper()
	orig := runFormFunc
	runFormFunc = fn
	t.Cleanup(func() { runFormFunc = orig })
}

func interactiveUI() *HuhUI {
	return &HuhUI{isTerminal: func() bool { return true }}
}

func TestNonInteractiveRefuses(t *testing.T) {
	ui := &HuhUI{isTerminal: func() bool { return false }}
	if _, err := ui.Options(stages.Options{}); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("err = %v, want ErrNotInteractive", err)
	}
}

func TestAbortMapsToCancelled(t *testing.T) {
	stubForm(t, func(*huh.Form) error { return huh.ErrUserAborted })
	if _, err := interactiveUI().Confirm("Continue?", true); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestOptionsKeepsCurrentWhenUnchanged(t *testing.T) {
	stubForm(t, func(*huh.Form) error { return nil })
	current := stages.Options{Vulkan: true, Tahoma: true}
	got, err := interactiveUI().Options(current)
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if got != current {
		t.Fatalf("Options = %+v, want %+v", got, current)
	}
}

func TestLabelRoundTrip(t *testing.T) {
	for _, o := range []stages.Options{{}, {Vulkan: true}, {DXVK: true, Tahoma: true}, {Vulkan: true, DXVK: true, Tahoma: true}} {
		if got := labelsToOptions(optionsToLabels(o)); got != o {
			t.Errorf("round trip %+v = %+v", o, got)
		}
	}
}

func TestValidateInstallerPath(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "setup.exe")
	os.WriteFile(exe, []byte("MZ"), 0o644)

	tests := []struct {
		path string
		ok   bool
	}{
		{"", true},
		{exe, true},
		{filepath.Join(dir, "missing.msix"), false},
		{filepath.Join(dir, "notes.txt"), false},
	}
	for _, tt := range tests {
		if err := validateInstallerPath(tt.path); (err == nil) != tt.ok {
			t.Errorf("validateInstallerPath(%q) = %v", tt.path, err)
		}
	}
}
