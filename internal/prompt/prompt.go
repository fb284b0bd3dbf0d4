// Package prompt asks the user for install choices on a terminal.
package prompt

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/seapear/AffinityOnLinux/internal/payload"
	"github.com/seapear/AffinityOnLinux/internal/stages"
	"github.com/seapear/AffinityOnLinux/internal/terminal"
)

// ErrCancelled is returned when the user aborts a form.
var ErrCancelled = errors.New("prompt cancelled")

// ErrNotInteractive is returned when no terminal is attached.
var ErrNotInteractive = errors.New("interactive prompts require a terminal")

// Option labels shown in the selection form.
const (
	LabelVulkan = "Vulkan rendering (OpenCL hardware acceleration)"
	LabelDXVK   = "DXVK (stability shim, may help with some GPUs)"
	LabelTahoma = "Tahoma font"
)

// UI asks install questions.
type UI interface {
	Options(current stages.Options) (stages.Options, error)
	InstallerPath(current string) (string, error)
	Confirm(title string, value bool) (bool, error)
}

// HuhUI implements UI using charmbracelet/huh.
type HuhUI struct {
	isTerminal func() bool
}

var runFormFunc = func(form *huh.Form) error { return form.Run() }

// NewHuhUI returns a HuhUI using the default terminal check.
func NewHuhUI() *HuhUI {
	return &HuhUI{isTerminal: terminal.IsInteractive}
}

func (ui *HuhUI) runForm(form *huh.Form) error {
	check := ui.isTerminal
	if check == nil {
		check = terminal.IsInteractive
	}
	if !check() {
		return ErrNotInteractive
	}

	form.WithProgramOptions(tea.WithOutput(os.Stderr))
	err := runFormFunc(form)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCancelled
	}
	return err
}

// Options lets the user toggle additive install options.
func (ui *HuhUI) Options(current stages.Options) (stages.Options, error) {
	selected := optionsToLabels(current)
	err := ui.runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Optional components").
				Filterable(false).
				Options(
					huh.NewOption(LabelVulkan, LabelVulkan),
					huh.NewOption(LabelDXVK, LabelDXVK),
					huh.NewOption(LabelTahoma, LabelTahoma),
				).
				Value(&selected),
		),
	))
	if err != nil {
		return current, err
	}
	return labelsToOptions(selected), nil
}

// InstallerPath asks for an optional .exe or .msix installer.
func (ui *HuhUI) InstallerPath(current string) (string, error) {
	value := current
	err := ui.runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Affinity installer (.exe or .msix, leave empty to skip)").
				Value(&value).
				Validate(validateInstallerPath),
		),
	))
	return value, err
}

// Confirm renders a yes/no prompt.
func (ui *HuhUI) Confirm(title string, value bool) (bool, error) {
	err := ui.runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&value),
		),
	))
	return value, err
}

func validateInstallerPath(path string) error {
	if path == "" {
		return nil
	}
	if _, err := payload.DetectFormat(path); err != nil {
		return fmt.Errorf("expected a .exe or .msix file")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file not found: %s", path)
	}
	return nil
}

func optionsToLabels(o stages.Options) []string {
	var labels []string
	if o.Vulkan {
		labels = append(labels, LabelVulkan)
	}
	if o.DXVK {
		labels = append(labels, LabelDXVK)
	}
	if o.Tahoma {
		labels = append(labels, LabelTahoma)
	}
	return labels
}

func labelsToOptions(labels []string) stages.Options {
	var o stages.Options
	for _, l := range labels {
		switch l {
		case LabelVulkan:
			o.Vulkan = true
		case LabelDXVK:
			o.DXVK = true
		case LabelTahoma:
			o.Tahoma = true
		}
	}
	return o
}
