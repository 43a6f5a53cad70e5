// Package shellenv holds the single process-wide shell environment:
// variables, aliases, functions, shell options, positional parameters,
// the open-fd registry, and the interactive/login/clean flag bitset.
// It is generalized from oxide's ShellEnv (original_source/src/shellenv.rs),
// reshaped as a single owning container passed by reference through the
// walker instead of process-wide global handles.
package shellenv

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/gosh-project/gosh/internal/shellerr"
)

// Flags mirrors oxide's EnvFlags bitflags.
type Flags uint32

const (
	NoAlias Flags = 1 << iota
	NoVar
	NoFunc
	InFunc
	LoginShell
	Interactive
	Clean
	NoRC
	InSubshell
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// ShellEnv is the one process-wide shell-state object. Source/Execer is
// supplied by the engine package at construction time so that
// SourceFile can parse and walk startup files without an import cycle
// between shellenv and engine.
type ShellEnv struct {
	Flags Flags

	envVars   map[string]string
	variables map[string]string
	aliases   map[string]string
	functions map[string]*syntax.FuncDecl
	shopts    map[string]int
	params    map[string]string
	openFds   map[int]struct{}
	lastInput string
	lastExit  int

	// run is invoked by SourceFile to parse+walk a script body in this
	// environment; the engine package supplies it to avoid an import
	// cycle (engine already imports shellenv).
	run func(env *ShellEnv, src, name string) error
}

// New constructs a ShellEnv with the given flags, seeding standard
// environment variables and sourcing the rc/profile files per spec.md
// 4.B's Initialization rules. run is called back into by SourceFile.
func New(flags Flags, run func(env *ShellEnv, src, name string) error) *ShellEnv {
	e := &ShellEnv{
		Flags:     flags,
		envVars:   map[string]string{},
		variables: map[string]string{},
		aliases:   map[string]string{},
		functions: map[string]*syntax.FuncDecl{},
		shopts:    initShopts(),
		params:    map[string]string{"?": "0"},
		openFds:   map[int]struct{}{0: {}, 1: {}, 2: {}},
		run:       run,
	}
	e.initEnvVars(flags.has(Clean))

	home := e.envVars["HOME"]
	if flags.has(LoginShell) {
		profile := filepath.Join(home, ".gosh_profile")
		if _, err := os.Stat(profile); err == nil {
			if err := e.SourceFile(profile); err != nil {
				fmt.Fprintf(os.Stderr, "gosh: failed to source %s: %v\n", profile, err)
			}
		}
	}
	if !flags.has(NoRC) {
		rc := filepath.Join(home, ".goshrc")
		if _, err := os.Stat(rc); err == nil {
			if err := e.SourceFile(rc); err != nil {
				fmt.Fprintf(os.Stderr, "gosh: failed to source %s: %v\n", rc, err)
			}
		}
	}
	return e
}

func (e *ShellEnv) initEnvVars(clean bool) {
	if !clean {
		for _, kv := range os.Environ() {
			if name, val, ok := strings.Cut(kv, "="); ok {
				e.envVars[name] = val
			}
		}
	}

	hostname, _ := os.Hostname()
	u, uerr := user.Current()
	home, username, uid := "", "unknown", "0"
	if uerr == nil {
		home, username, uid = u.HomeDir, u.Username, u.Uid
	}
	cwd, _ := os.Getwd()
	exe, _ := os.Executable()

	e.envVars["HOSTNAME"] = hostname
	e.envVars["UID"] = uid
	e.envVars["TMPDIR"] = envOr("TMPDIR", "/tmp")
	e.envVars["TERM"] = "xterm-256color"
	e.envVars["LANG"] = "en_US.UTF-8"
	e.envVars["USER"] = username
	e.envVars["LOGNAME"] = username
	e.envVars["PWD"] = cwd
	e.envVars["OLDPWD"] = cwd
	e.envVars["HOME"] = home
	e.envVars["SHELL"] = exe
	e.envVars["HIST_FILE"] = filepath.Join(home, ".gosh_hist")
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func initShopts() map[string]int {
	return map[string]int{
		"dotglob":            0,
		"trunc_prompt_path":  4,
		"int_comments":       1,
		"hist_ignore_dupes":  1,
		"max_hist":           1000,
		"edit_mode":          1,
		"comp_limit":         100,
		"auto_hist":          1,
		"prompt_highlight":   1,
		"tab_stop":           4,
		"bell_style":         1,
	}
}

// IsInteractive reports the INTERACTIVE flag.
func (e *ShellEnv) IsInteractive() bool { return e.Flags.has(Interactive) }

// IsLogin reports the LOGIN_SHELL flag.
func (e *ShellEnv) IsLogin() bool { return e.Flags.has(LoginShell) }

// InFunction reports the IN_FUNC flag, used to reject a bare top-level
// `return` as a builtin error per spec.md 4.F.
func (e *ShellEnv) InFunction() bool { return e.Flags.has(InFunc) }

// SetLastInput records the most recently read input buffer for error context.
func (e *ShellEnv) SetLastInput(s string) { e.lastInput = s }

// LastInput returns the most recently read input buffer.
func (e *ShellEnv) LastInput() string { return e.lastInput }

// LastExit returns $?.
func (e *ShellEnv) LastExit() int { return e.lastExit }

// SetLastExit sets $?, keeping the "?" positional-parameter key in sync
// so word expansion resolves it through the ordinary parameter path.
func (e *ShellEnv) SetLastExit(code int) {
	e.lastExit = code
	e.params["?"] = strconv.Itoa(code)
}

// GetVar looks up a name in variables, then env_vars, then positional
// parameters, in that order, per spec.md 4.B.
func (e *ShellEnv) GetVar(name string) (string, bool) {
	if v, ok := e.variables[name]; ok {
		return v, true
	}
	if v, ok := e.envVars[name]; ok {
		return v, true
	}
	if v, ok := e.params[name]; ok {
		return v, true
	}
	return "", false
}

// SetVar sets a shell-local variable (not exported to children).
func (e *ShellEnv) SetVar(name, value string) {
	e.variables[name] = strings.Trim(value, `"`)
}

// Export writes to both variables and env_vars; an empty value removes
// the name from both, matching oxide's export_variable.
func (e *ShellEnv) Export(name, value string) {
	value = strings.Trim(value, `"`)
	if value == "" {
		delete(e.variables, name)
		delete(e.envVars, name)
		return
	}
	e.variables[name] = value
	e.envVars[name] = value
}

// EnvPairs returns the "name=value" slice used to exec children,
// matching oxide's get_cvars.
func (e *ShellEnv) EnvPairs() []string {
	pairs := make([]string, 0, len(e.envVars))
	for k, v := range e.envVars {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

// VarNames returns the names of every shell-local and exported variable,
// for the bare `set` builtin listing form.
func (e *ShellEnv) VarNames() []string {
	seen := map[string]struct{}{}
	for k := range e.variables {
		seen[k] = struct{}{}
	}
	for k := range e.envVars {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	return names
}

// GetAlias returns an alias expansion, honoring the NO_ALIAS guard flag.
func (e *ShellEnv) GetAlias(name string) (string, bool) {
	if e.Flags.has(NoAlias) {
		return "", false
	}
	v, ok := e.aliases[name]
	return v, ok
}

// SetAlias enforces the alias/function name-disjointness invariant.
func (e *ShellEnv) SetAlias(name, value string) error {
	if _, isFunc := e.functions[name]; isFunc {
		return shellerr.Builtinf("alias", "%s: name already in use as a function", name)
	}
	e.aliases[name] = strings.Trim(value, `"`)
	return nil
}

// RemoveAlias deletes an alias, returning its prior value if any.
func (e *ShellEnv) RemoveAlias(name string) (string, bool) {
	v, ok := e.aliases[name]
	delete(e.aliases, name)
	return v, ok
}

// AliasNames returns alias names sorted, for `alias` with no args.
func (e *ShellEnv) AliasNames() []string {
	names := make([]string, 0, len(e.aliases))
	for k := range e.aliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetFunction returns a function body, honoring NO_FUNC.
func (e *ShellEnv) GetFunction(name string) (*syntax.FuncDecl, bool) {
	if e.Flags.has(NoFunc) {
		return nil, false
	}
	fn, ok := e.functions[name]
	return fn, ok
}

// SetFunction enforces the alias/function name-disjointness invariant.
func (e *ShellEnv) SetFunction(name string, body *syntax.FuncDecl) error {
	if _, isAlias := e.aliases[name]; isAlias {
		return shellerr.Builtinf(name, "name already in use as an alias")
	}
	e.functions[name] = body
	return nil
}

// GetShopt reads a shell option; unknown options read as zero.
func (e *ShellEnv) GetShopt(name string) int { return e.shopts[name] }

// SetShopt sets a shell option.
func (e *ShellEnv) SetShopt(name string, value int) { e.shopts[name] = value }

// ShoptNames returns shopt names sorted, for listing.
func (e *ShellEnv) ShoptNames() []string {
	names := make([]string, 0, len(e.shopts))
	for k := range e.shopts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetParameter reads a positional parameter ("1".."N", "@", "#", "?").
func (e *ShellEnv) GetParameter(key string) (string, bool) {
	v, ok := e.params[key]
	return v, ok
}

// SetParameter sets "N" and appends it to the "@" aggregate, matching
// oxide's set_parameter.
func (e *ShellEnv) SetParameter(key, value string) {
	if key != "" && key[0] >= '0' && key[0] <= '9' {
		agg := e.params["@"]
		if agg == "" {
			agg = value
		} else {
			agg = agg + " " + value
		}
		e.params["@"] = agg
	}
	e.params[key] = value
}

// ClearPosParameters removes "1","2",... until the first gap, matching
// oxide's clear_pos_parameters, and resets "@"/"#".
func (e *ShellEnv) ClearPosParameters() {
	i := 1
	for {
		key := strconv.Itoa(i)
		if _, ok := e.params[key]; !ok {
			break
		}
		delete(e.params, key)
		i++
	}
	delete(e.params, "@")
	delete(e.params, "#")
}

// PushPositional appends one more positional parameter, updating "#".
func (e *ShellEnv) PushPositional(value string) {
	n := 1
	for {
		if _, ok := e.params[strconv.Itoa(n)]; !ok {
			break
		}
		n++
	}
	e.SetParameter(strconv.Itoa(n), value)
	e.params["#"] = strconv.Itoa(n)
}

// OpenFd marks fd as live in the shell's open-fd registry.
func (e *ShellEnv) OpenFd(fd int) { e.openFds[fd] = struct{}{} }

// CloseFd removes fd from the registry.
func (e *ShellEnv) CloseFd(fd int) { delete(e.openFds, fd) }

// OpenFds returns the live descriptor set. New seeds it with 0, 1 and 2;
// CloseFd removes any descriptor it is given, those three included.
func (e *ShellEnv) OpenFds() map[int]struct{} { return e.openFds }

// ChangeDir sets OLDPWD to the prior PWD and chdirs to the canonicalized
// path, matching oxide's change_dir.
func (e *ShellEnv) ChangeDir(path string) error {
	oldPWD := e.envVars["PWD"]
	if err := os.Chdir(path); err != nil {
		return shellerr.Io("cd", err)
	}
	newPWD, err := os.Getwd()
	if err != nil {
		return shellerr.Io("cd", err)
	}
	e.Export("OLDPWD", oldPWD)
	e.Export("PWD", newPWD)
	return nil
}

// SourceFile reads path, stores it as LastInput, and hands it to the
// engine's run callback in this environment. A missing file surfaces as
// a distinguishable NotFound-class (127) error so that the `source`
// builtin and startup sourcing can special-case "command not found"
// messaging, matching oxide's source_file exit-127 carve-out; any other
// read failure is an Io error.
func (e *ShellEnv) SourceFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return shellerr.NotFound(path)
		}
		return shellerr.Io("source", err)
	}
	e.lastInput = string(data)
	return e.run(e, e.lastInput, path)
}

// WithFlags performs f with flags modified by added/removed, restoring
// the prior flag set on every return path including panics, matching
// oxide's scoped with_flags semantics.
func (e *ShellEnv) WithFlags(added, removed Flags, f func() error) error {
	saved := e.Flags
	e.Flags = (e.Flags | added) &^ removed
	defer func() { e.Flags = saved }()
	return f()
}

// Snapshot returns a deep copy of the mutable state, used by the
// clone-on-enter subshell strategy (spec.md 4.H / 9).
func (e *ShellEnv) Snapshot() *ShellEnv {
	cp := &ShellEnv{
		Flags:     e.Flags,
		envVars:   cloneMap(e.envVars),
		variables: cloneMap(e.variables),
		aliases:   cloneMap(e.aliases),
		functions: make(map[string]*syntax.FuncDecl, len(e.functions)),
		shopts:    cloneIntMap(e.shopts),
		params:    cloneMap(e.params),
		openFds:   make(map[int]struct{}, len(e.openFds)),
		lastInput: e.lastInput,
		lastExit:  e.lastExit,
		run:       e.run,
	}
	for k, v := range e.functions {
		cp.functions[k] = v
	}
	for k := range e.openFds {
		cp.openFds[k] = struct{}{}
	}
	return cp
}

// Restore copies snap's state back into e in place, so callers holding
// the original *ShellEnv pointer observe the restored state.
func (e *ShellEnv) Restore(snap *ShellEnv) {
	*e = *snap
}

// SnapshotParams returns a copy of the positional-parameter table alone,
// used around function calls: spec.md 4.B gives functions their own
// "$1".."$N" but leaves ordinary variables shared with the caller, so a
// full Snapshot/Restore (which would also undo variable writes) is too
// broad here.
func (e *ShellEnv) SnapshotParams() map[string]string {
	return cloneMap(e.params)
}

// RestoreParams replaces the positional-parameter table with a prior
// SnapshotParams result.
func (e *ShellEnv) RestoreParams(params map[string]string) {
	e.params = cloneMap(params)
}

func cloneMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneIntMap(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
