// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/proof-engine/internal/toolchain"
)

// DefaultTimeout bounds the wait for the prover to complete one command.
const DefaultTimeout = 30 * time.Second

// Binding maps a physical directory to a logical library prefix.
type Binding struct {
	Dir     string
	Logical string
}

// IQR describes the load paths visible to the prover, mirroring coqc's
// -I, -Q, and -R flags.
type IQR struct {
	// ML lists OCaml plugin include directories (-I).
	ML []string

	// Q lists non-recursive directory bindings (-Q).
	Q []Binding

	// R lists recursive directory bindings (-R).
	R []Binding
}

// Args renders the load paths as sertop command-line arguments.
func (iqr IQR) Args() []string {
	var args []string
	for _, dir := range iqr.ML {
		args = append(args, "-I", dir)
	}
	for _, b := range iqr.Q {
		args = append(args, "-Q", b.Dir+","+b.Logical)
	}
	for _, b := range iqr.R {
		args = append(args, "-R", b.Dir+","+b.Logical)
	}
	return args
}

func (iqr IQR) String() string {
	return strings.Join(iqr.Args(), " ")
}

// Merge concatenates two sets of load paths, dropping repeated bindings.
func (iqr IQR) Merge(other IQR) IQR {
	var out IQR
	seen := make(map[string]bool)
	for _, dir := range concat(iqr.ML, other.ML) {
		if !seen["I "+dir] {
			seen["I "+dir] = true
			out.ML = append(out.ML, dir)
		}
	}
	for _, b := range concat(iqr.Q, other.Q) {
		key := "Q " + b.Dir + "," + b.Logical
		if !seen[key] {
			seen[key] = true
			out.Q = append(out.Q, b)
		}
	}
	for _, b := range concat(iqr.R, other.R) {
		key := "R " + b.Dir + "," + b.Logical
		if !seen[key] {
			seen[key] = true
			out.R = append(out.R, b)
		}
	}
	return out
}

// LocalModpath infers the logical library path of a project file, the name
// under which other files import it. The first binding whose directory
// prefixes the file wins; a "." binding applies when nothing else matches.
// Path components after the logical prefix join with dots, each capitalized
// the way module names derive from file names.
func (iqr IQR) LocalModpath(filename string) string {
	p := strings.TrimSuffix(filename, path.Ext(filename))
	dotLogical := ""
	haveDot := false
	matched := false
	for _, b := range append(append([]Binding(nil), iqr.Q...), iqr.R...) {
		if !strings.HasPrefix(p, b.Dir) {
			if b.Dir == "." && !haveDot {
				dotLogical, haveDot = b.Logical, true
			}
			continue
		}
		rest := strings.TrimPrefix(p[len(b.Dir):], "/")
		if rest == "" {
			p = b.Logical
		} else {
			p = b.Logical + "/" + rest
		}
		matched = true
		break
	}
	if !matched && haveDot {
		p = dotLogical + "/" + strings.TrimPrefix(p, "/")
	}
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, upperFirst(part))
		}
	}
	return strings.Join(parts, ".")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// add appends one parsed load path flag.
func (iqr *IQR) add(flag, arg string) error {
	if flag == "-I" {
		iqr.ML = append(iqr.ML, arg)
		return nil
	}
	dir, logical, ok := strings.Cut(arg, ",")
	if !ok {
		return fmt.Errorf("serapi: flag %s %q is not of the form dir,logical", flag, arg)
	}
	b := Binding{Dir: dir, Logical: logical}
	if flag == "-Q" {
		iqr.Q = append(iqr.Q, b)
	} else {
		iqr.R = append(iqr.R, b)
	}
	return nil
}

// ParseIQR parses a flag string holding only load path flags,
// e.g. "-R src,Lib -Q theories,Theories -I plugins".
func ParseIQR(s string) (IQR, error) {
	var iqr IQR
	fields := splitArgs(s)
	for i := 0; i < len(fields); i++ {
		flag := fields[i]
		switch flag {
		case "-I", "-Q", "-R":
		default:
			return IQR{}, fmt.Errorf("serapi: unknown load path flag %q", flag)
		}
		if i+1 >= len(fields) {
			return IQR{}, fmt.Errorf("serapi: flag %q missing its argument", flag)
		}
		i++
		if err := iqr.add(flag, fields[i]); err != nil {
			return IQR{}, err
		}
	}
	return iqr, nil
}

// splitArgs tokenizes a flag string. Double quotes group spaces into one
// argument and are dropped, the way a shell would read the string.
func splitArgs(s string) []string {
	var (
		args   []string
		cur    strings.Builder
		open   bool
		quoted bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			open = true
		case unicode.IsSpace(r) && !quoted:
			if open {
				args = append(args, cur.String())
				cur.Reset()
				open = false
			}
		default:
			cur.WriteRune(r)
			open = true
		}
	}
	if open {
		args = append(args, cur.String())
	}
	return args
}

// ParseOptions parses a coqc-form flag string into prover options. This is
// the form project manifests record, covering load paths plus the flags
// extraction cares about, e.g. "-noinit -R src,Lib -w -deprecated".
func ParseOptions(s string) (Options, error) {
	var o Options
	args := splitArgs(s)
	for i := 0; i < len(args); i++ {
		flag := args[i]
		arg := ""
		switch flag {
		case "-I", "-Q", "-R", "-w", "-set", "-unset",
			"-l", "-load-vernac-source", "-lv", "-load-vernac-source-verbose":
			if i+1 >= len(args) {
				return Options{}, fmt.Errorf("serapi: flag %q missing its argument", flag)
			}
			i++
			arg = args[i]
		}
		switch flag {
		case "-I", "-Q", "-R":
			if err := o.IQR.add(flag, arg); err != nil {
				return Options{}, err
			}
		case "-noinit", "-nois":
			o.NoInit = true
		case "-w":
			for _, w := range strings.Split(arg, ",") {
				o.Warnings = append(o.Warnings, ParseWarning(w))
			}
		case "-set", "-unset":
			name, value, hasValue := strings.Cut(arg, "=")
			if flag == "-set" && hasValue {
				o.Settings = append(o.Settings, Option{Name: name, Value: value})
			} else {
				o.Settings = append(o.Settings, Flag{Name: name, Value: flag == "-set"})
			}
		case "-l", "-load-vernac-source":
			o.LoadedFiles = append(o.LoadedFiles, LoadedFile{Name: arg})
		case "-lv", "-load-vernac-source-verbose":
			o.LoadedFiles = append(o.LoadedFiles, LoadedFile{Verbose: true, Name: arg})
		case "-allow-sprop":
			o.AllowSProp = true
		case "-disallow-sprop":
			o.DisallowSProp = true
		case "-type-in-type":
			o.TypeInType = true
		case "-impredicative-set":
			o.ImpredicativeSet = true
		case "-indices-matter":
			o.IndicesMatter = true
		default:
			return Options{}, fmt.Errorf("serapi: unknown prover flag %q", flag)
		}
	}
	return o, nil
}

// WarningState selects how the prover treats one class of warnings.
type WarningState int

const (
	// WarningEnabled reports the warning normally.
	WarningEnabled WarningState = iota

	// WarningDisabled suppresses the warning.
	WarningDisabled

	// WarningElevated turns the warning into an error.
	WarningElevated
)

// prefix is the state's spelling in a warning list: "-" disables, "+"
// elevates, a bare name enables.
func (st WarningState) prefix() string {
	switch st {
	case WarningDisabled:
		return "-"
	case WarningElevated:
		return "+"
	default:
		return ""
	}
}

// Warning is one named warning class and the state to put it in. When
// several warnings name the same class, the later one wins.
type Warning struct {
	State WarningState
	Name  string
}

// ParseWarning reads a warning from its command-line spelling.
func ParseWarning(s string) Warning {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		return Warning{State: WarningDisabled, Name: s[1:]}
	case strings.HasPrefix(s, "+"):
		return Warning{State: WarningElevated, Name: s[1:]}
	default:
		return Warning{State: WarningEnabled, Name: s}
	}
}

func (w Warning) String() string { return w.State.prefix() + w.Name }

// AsCommand renders the vernacular sentence that applies the warning.
func (w Warning) AsCommand() string {
	return fmt.Sprintf("Set Warnings %q.", w.String())
}

// Setting is a prover flag or valued option applied at startup. The two
// implementations are Flag and Option.
type Setting interface {
	// AsCommand renders the vernacular sentence that applies the setting.
	AsCommand() string

	// Args renders the setting as coqc command-line arguments, nil when
	// it has no command-line form.
	Args() []string

	settingName() string
}

// Flag is a boolean setting, spelled Set Name. or Unset Name.
type Flag struct {
	Name  string
	Value bool
}

func (f Flag) AsCommand() string {
	if f.Value {
		return "Set " + f.Name + "."
	}
	return "Unset " + f.Name + "."
}

func (f Flag) Args() []string {
	if f.Value {
		return []string{"-set", f.Name}
	}
	return []string{"-unset", f.Name}
}

func (f Flag) settingName() string { return f.Name }

// Option is a setting carrying a value, spelled Set Name Value. An empty
// value resets the option to its default.
type Option struct {
	Name  string
	Value string
}

func (o Option) AsCommand() string {
	if o.Value == "" {
		return "Unset " + o.Name + "."
	}
	return fmt.Sprintf("Set %s %s.", o.Name, o.Value)
}

func (o Option) Args() []string {
	if o.Value == "" {
		return nil
	}
	return []string{"-set", o.Name + "=" + o.Value}
}

func (o Option) settingName() string { return o.Name }

// LoadedFile is a script the prover loads on startup.
type LoadedFile struct {
	// Verbose echoes the script's sentences as they execute.
	Verbose bool

	// Name is the script file, without the extension.
	Name string
}

// AsCommand renders the vernacular sentence that loads the script.
func (l LoadedFile) AsCommand() string {
	if l.Verbose {
		return fmt.Sprintf("Load Verbose %s.", l.Name)
	}
	return fmt.Sprintf("Load %s.", l.Name)
}

func (l LoadedFile) Args() []string {
	if l.Verbose {
		return []string{"-lv", l.Name}
	}
	return []string{"-l", l.Name}
}

// Versions where sertop's command-line surface changed.
var (
	versionNoPrelude        = toolchain.Version("8.10.0")
	versionSPropArgs        = toolchain.Version("8.11.0+0.11.1")
	versionImpredicativeSet = toolchain.Version("8.16.0+0.16.2")
)

// Options configures a Session: the prover process to run and the state
// the document starts in.
type Options struct {
	// Prover is the resolved sertop binary, version, and environment.
	Prover toolchain.Prover

	// IQR supplies additional load paths for the prover.
	IQR IQR

	// NoInit skips loading the standard prelude on startup.
	NoInit bool

	// Warnings are warning states applied at startup, in order.
	Warnings []Warning

	// Settings are flags and options applied at startup, in order.
	Settings []Setting

	// AllowSProp enables the proof-irrelevant SProp sort.
	AllowSProp bool

	// DisallowSProp forbids the SProp sort.
	DisallowSProp bool

	// TypeInType disables universe consistency checking.
	TypeInType bool

	// ImpredicativeSet declares the sort Set impredicative.
	ImpredicativeSet bool

	// IndicesMatter makes levels of indices contribute to the level of
	// inductives.
	IndicesMatter bool

	// LoadedFiles are scripts the prover loads on startup.
	LoadedFiles []LoadedFile

	// Dir is the working directory for the prover process. Empty means
	// the current directory.
	Dir string

	// Timeout bounds the wait for each command. Zero means DefaultTimeout.
	Timeout time.Duration

	// Logger receives session-level debug output. Nil means no logging.
	Logger *zap.Logger
}

// checkSupported rejects options the given prover version can express
// neither as sertop arguments nor as startup commands.
func (o Options) checkSupported(version toolchain.Version) error {
	if version.Less(versionNoPrelude) {
		if o.AllowSProp {
			return fmt.Errorf("%w: -allow-sprop", ErrUnsupportedOption)
		}
		if o.DisallowSProp {
			return fmt.Errorf("%w: -disallow-sprop", ErrUnsupportedOption)
		}
	}
	if version.Less(versionSPropArgs) && o.IndicesMatter {
		return fmt.Errorf("%w: -indices-matter", ErrUnsupportedOption)
	}
	if version.Less(versionImpredicativeSet) && o.ImpredicativeSet {
		return fmt.Errorf("%w: -impredicative-set", ErrUnsupportedOption)
	}
	return nil
}

// SertopArgs assembles the sertop argument list for the given prover
// version. The prover prints terms with implicit arguments shown and
// delimits every response unit with a NUL so units can carry newlines.
// Options sertop does not accept as arguments are applied after startup
// instead, see SertopCommands.
func (o Options) SertopArgs(version toolchain.Version) ([]string, error) {
	if err := o.checkSupported(version); err != nil {
		return nil, err
	}
	args := []string{"--implicit", "--print0"}
	if o.NoInit {
		if version.Less(versionNoPrelude) {
			args = append(args, "--no_init")
		} else {
			args = append(args, "--no_prelude")
		}
	}
	args = append(args, o.IQR.Args()...)
	if !version.Less(versionSPropArgs) {
		if o.DisallowSProp {
			args = append(args, "--disallow-sprop")
		}
		if o.IndicesMatter {
			args = append(args, "--indices-matter")
		}
	}
	if !version.Less(versionImpredicativeSet) && o.ImpredicativeSet {
		args = append(args, "--impredicative-set")
	}
	return args, nil
}

// StartupCommand is one command the session runs right after the handshake
// to imitate a prover option sertop does not accept as an argument.
type StartupCommand struct {
	// Protocol marks a raw protocol command. Otherwise Cmd is a
	// vernacular sentence.
	Protocol bool
	Cmd      string
}

// SertopCommands lists the startup commands that imitate the options the
// given prover version does not accept as sertop arguments, in the order
// they must run.
func (o Options) SertopCommands(version toolchain.Version) ([]StartupCommand, error) {
	if err := o.checkSupported(version); err != nil {
		return nil, err
	}
	var cmds []StartupCommand
	if o.NoInit && version.Less(versionNoPrelude) {
		cmds = append(cmds, StartupCommand{
			Protocol: true,
			Cmd:      `(NewDoc ((top_name (TopLogical (DirPath ((Id "Sertop"))))) (require_libs ()) ))`,
		})
	}
	for _, w := range o.Warnings {
		cmds = append(cmds, StartupCommand{Cmd: w.AsCommand()})
	}
	for _, s := range o.Settings {
		cmds = append(cmds, StartupCommand{Cmd: s.AsCommand()})
	}
	if o.TypeInType {
		cmds = append(cmds, StartupCommand{Cmd: "Unset Universe Checking."})
	}
	if version.Less(versionSPropArgs) {
		if o.AllowSProp {
			cmds = append(cmds, StartupCommand{Cmd: "Set Allow StrictProp."})
		}
		if o.DisallowSProp {
			cmds = append(cmds, StartupCommand{Cmd: "Unset Allow StrictProp."})
		}
	}
	return cmds, nil
}

// CoqArgs renders the prover options as coqc command-line arguments, the
// form project manifests record them in.
func (o Options) CoqArgs() []string {
	var args []string
	if o.NoInit {
		args = append(args, "-noinit")
	}
	args = append(args, o.IQR.Args()...)
	for _, w := range o.Warnings {
		args = append(args, "-w", w.String())
	}
	for _, s := range o.Settings {
		args = append(args, s.Args()...)
	}
	if o.AllowSProp {
		args = append(args, "-allow-sprop")
	}
	if o.DisallowSProp {
		args = append(args, "-disallow-sprop")
	}
	if o.TypeInType {
		args = append(args, "-type-in-type")
	}
	if o.ImpredicativeSet {
		args = append(args, "-impredicative-set")
	}
	if o.IndicesMatter {
		args = append(args, "-indices-matter")
	}
	for _, l := range o.LoadedFiles {
		args = append(args, l.Args()...)
	}
	return args
}

// Merge combines two option sets the way layered project metadata does:
// booleans or together, warnings and settings of the same name take the
// later value, load paths and loaded files concatenate without
// duplicates. Process wiring (Prover, Dir, Timeout, Logger) keeps the
// receiver's values, filled from other where the receiver leaves them
// zero.
func (o Options) Merge(other Options) Options {
	merged := o
	if merged.Prover.Path == "" {
		merged.Prover = other.Prover
	}
	if merged.Dir == "" {
		merged.Dir = other.Dir
	}
	if merged.Timeout == 0 {
		merged.Timeout = other.Timeout
	}
	if merged.Logger == nil {
		merged.Logger = other.Logger
	}

	merged.IQR = o.IQR.Merge(other.IQR)
	merged.NoInit = o.NoInit || other.NoInit
	merged.AllowSProp = o.AllowSProp || other.AllowSProp
	merged.DisallowSProp = o.DisallowSProp || other.DisallowSProp
	merged.TypeInType = o.TypeInType || other.TypeInType
	merged.ImpredicativeSet = o.ImpredicativeSet || other.ImpredicativeSet
	merged.IndicesMatter = o.IndicesMatter || other.IndicesMatter

	var warnNames []string
	warnStates := make(map[string]WarningState)
	for _, w := range concat(o.Warnings, other.Warnings) {
		if _, seen := warnStates[w.Name]; !seen {
			warnNames = append(warnNames, w.Name)
		}
		warnStates[w.Name] = w.State
	}
	merged.Warnings = nil
	for _, name := range warnNames {
		merged.Warnings = append(merged.Warnings, Warning{State: warnStates[name], Name: name})
	}

	var settingNames []string
	settings := make(map[string]Setting)
	for _, s := range concat(o.Settings, other.Settings) {
		if _, seen := settings[s.settingName()]; !seen {
			settingNames = append(settingNames, s.settingName())
		}
		settings[s.settingName()] = s
	}
	merged.Settings = nil
	for _, name := range settingNames {
		merged.Settings = append(merged.Settings, settings[name])
	}

	var loadNames []string
	loads := make(map[string]bool)
	for _, l := range concat(o.LoadedFiles, other.LoadedFiles) {
		if _, seen := loads[l.Name]; !seen {
			loadNames = append(loadNames, l.Name)
		}
		loads[l.Name] = l.Verbose
	}
	merged.LoadedFiles = nil
	for _, name := range loadNames {
		merged.LoadedFiles = append(merged.LoadedFiles, LoadedFile{Verbose: loads[name], Name: name})
	}

	return merged
}

func concat[T any](a, b []T) []T {
	return append(append([]T(nil), a...), b...)
}
