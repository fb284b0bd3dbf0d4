// Package stages holds the declarative install-stage tables and renders
// their commands against a closed set of parameters.
package stages

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seapear/AffinityOnLinux/internal/distro"
)

//go:embed stages.yaml
var defaultTable []byte

// Option is an additive install option.
type Option string

const (
	OptionDXVK   Option = "dxvk"
	OptionVulkan Option = "vulkan"
	OptionTahoma Option = "tahoma"
)

// AllOptions lists options in the order their arguments are appended.
var AllOptions = []Option{OptionDXVK, OptionVulkan, OptionTahoma}

// Options selects which additive options are enabled.
type Options struct {
	// Vulkan enables the Vulkan rendering backend.
	Vulkan bool
	// Tahoma installs the extra Tahoma font.
	Tahoma bool
	// DXVK installs the DXVK stability shim.
	DXVK bool
}

// Enabled reports whether opt is on.
func (o Options) Enabled(opt Option) bool {
	switch opt {
	case OptionVulkan:
		return o.Vulkan
	case OptionTahoma:
		return o.Tahoma
	case OptionDXVK:
		return o.DXVK
	}
	return false
}

// Params are the only values a stage table may reference.
type Params struct {
	Prefix   string
	Codename string
	Distro   string
	Upstream string
}

func (p Params) lookup(name string) (string, bool) {
	switch name {
	case "prefix":
		return p.Prefix, true
	case "codename":
		return p.Codename, true
	case "distro":
		return p.Distro, true
	case "upstream":
		return p.Upstream, true
	}
	return "", false
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Precondition describes state under which a mutating step is redundant.
// All set fields must hold for the precondition to be satisfied.
type Precondition struct {
	PathExists       string `yaml:"path_exists"`
	CommandAvailable string `yaml:"command_available"`
	// RuntimeVersion is the minimum installed runtime major version.
	RuntimeVersion int `yaml:"runtime_version"`
}

// IsZero reports whether no condition is set.
func (p *Precondition) IsZero() bool {
	return p == nil || (p.PathExists == "" && p.CommandAvailable == "" && p.RuntimeVersion == 0)
}

// Command is one step of a stage.
type Command struct {
	Argv       []string            `yaml:"argv"`
	Env        []string            `yaml:"env"`
	Privileged bool                `yaml:"privileged"`
	Timeout    time.Duration       `yaml:"timeout"`
	Options    map[Option][]string `yaml:"options"`
	SkipIf     *Precondition       `yaml:"skip_if"`
}

// Stage is a named group of commands owning the progress range
// [Start, End].
type Stage struct {
	Name     string        `yaml:"name"`
	Start    int           `yaml:"start"`
	End      int           `yaml:"end"`
	Commands []Command     `yaml:"commands"`
	SkipIf   *Precondition `yaml:"skip_if"`
	// When gates the whole stage on an option. Gated stages only run when
	// the option is enabled.
	When     Option        `yaml:"when"`
}

// Gated reports whether s is excluded by opts.
func (s Stage) Gated(opts Options) bool {
	return s.When != "" && !opts.Enabled(s.When)
}

// Group is an ordered list of stages sharing an optional precondition.
type Group struct {
	SkipIf *Precondition `yaml:"skip_if"`
	Stages []Stage       `yaml:"stages"`
}

// Table is the full set of install stages.
type Table struct {
	Runtime map[distro.Family]Group `yaml:"runtime"`
	Prefix  Group                   `yaml:"prefix"`
}

// Default returns the built-in table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// LoadFile reads a table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a table from r.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stage table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode stage table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks every family sequence for ordered progress ranges,
// non-empty commands and known placeholders.
func (t *Table) Validate() error {
	if len(t.Runtime) == 0 {
		return &ValidationError{Field: "runtime", Message: "no families defined"}
	}
	for family := range t.Runtime {
		if !family.Known() {
			return &ValidationError{Field: "runtime." + string(family), Message: "unknown family"}
		}
		seq, _ := t.Sequence(family)
		if err := validateSequence(string(family), seq); err != nil {
			return err
		}
	}
	return nil
}

// Sequence returns the ordered stages for family: its runtime stages then
// the shared prefix stages. Group preconditions are copied onto stages that
// have none of their own, except option-gated stages, which keep only their
// own precondition. The second result is false when the family has no
// runtime stages.
func (t *Table) Sequence(family distro.Family) ([]Stage, bool) {
	group, ok := t.Runtime[family]
	if !ok {
		return nil, false
	}
	seq := make([]Stage, 0, len(group.Stages)+len(t.Prefix.Stages))
	seq = appendGroup(seq, group)
	seq = appendGroup(seq, t.Prefix)
	return seq, true
}

func appendGroup(seq []Stage, g Group) []Stage {
	for _, s := range g.Stages {
		if s.SkipIf.IsZero() && !g.SkipIf.IsZero() && s.When == "" {
			s.SkipIf = g.SkipIf
		}
		seq = append(seq, s)
	}
	return seq
}

func validateSequence(family string, seq []Stage) error {
	if len(seq) == 0 {
		return &ValidationError{Field: family, Message: "no stages"}
	}
	if seq[0].Start != 0 {
		return &ValidationError{Field: family, Message: "first stage must start at 0"}
	}
	if seq[len(seq)-1].End != 100 {
		return &ValidationError{Field: family, Message: "last stage must end at 100"}
	}

	prevEnd := 0
	for i, s := range seq {
		field := family + ".stages[" + strconv.Itoa(i) + "]"
		if s.Name == "" {
			return &ValidationError{Field: field, Message: "missing name"}
		}
		if s.Start < prevEnd || s.End < s.Start || s.End > 100 {
			return &ValidationError{Field: field, Message: fmt.Sprintf("range %d-%d out of order", s.Start, s.End)}
		}
		prevEnd = s.End

		if s.When != "" && !knownOption(s.When) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown option %q", s.When)}
		}
		if err := checkPlaceholders(field, s.SkipIf); err != nil {
			return err
		}
		for j, c := range s.Commands {
			cf := field + ".commands[" + strconv.Itoa(j) + "]"
			if len(c.Argv) == 0 || c.Argv[0] == "" {
				return &ValidationError{Field: cf, Message: "empty argv"}
			}
			if c.Timeout < 0 {
				return &ValidationError{Field: cf, Message: "negative timeout"}
			}
			for opt := range c.Options {
				if !knownOption(opt) {
					return &ValidationError{Field: cf, Message: fmt.Sprintf("unknown option %q", opt)}
				}
			}
			strs := append(append([]string{}, c.Argv...), c.Env...)
			for _, args := range c.Options {
				strs = append(strs, args...)
			}
			for _, s := range strs {
				if err := checkString(cf, s); err != nil {
					return err
				}
			}
			if err := checkPlaceholders(cf, c.SkipIf); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkPlaceholders(field string, p *Precondition) error {
	if p == nil {
		return nil
	}
	if err := checkString(field+".skip_if", p.PathExists); err != nil {
		return err
	}
	return checkString(field+".skip_if", p.CommandAvailable)
}

func checkString(field, s string) error {
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if _, ok := (Params{}).lookup(m[1]); !ok {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown placeholder {%s}", m[1])}
		}
	}
	return nil
}

func knownOption(opt Option) bool {
	for _, o := range AllOptions {
		if o == opt {
			return true
		}
	}
	return false
}

// Expand substitutes placeholders in s.
func (p Params) Expand(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		v, ok := p.lookup(m[1 : len(m)-1])
		if !ok {
			return m
		}
		return v
	})
}

// Render returns the argv and environment for c with enabled options
// appended in AllOptions order. Base arguments are never removed.
func (c Command) Render(p Params, opts Options) (argv, env []string) {
	argv = make([]string, 0, len(c.Argv))
	for _, a := range c.Argv {
		argv = append(argv, p.Expand(a))
	}
	for _, opt := range AllOptions {
		if !opts.Enabled(opt) {
			continue
		}
		for _, a := range c.Options[opt] {
			argv = append(argv, p.Expand(a))
		}
	}
	for _, e := range c.Env {
		env = append(env, p.Expand(e))
	}
	return argv, env
}

// ValidationError reports a malformed stage table.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage table: %s: %s", e.Field, e.Message)
}
