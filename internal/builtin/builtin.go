// Package builtin implements the builtin dispatcher (spec.md 4.F) and,
// in test.go, the test/[ recursive predicate evaluator (spec.md 4.G).
// It generalizes the teacher's internal/builtin/builtin.go (which only
// knew cd/pwd/echo/kill/ps) into the full POSIX-ish builtin surface,
// grounded in oxide's builtin.rs (original_source/src/builtin.rs) for
// cd/alias/source/pwd/export/echo semantics.
package builtin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gops "github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"

	"github.com/gosh-project/gosh/internal/execctx"
	"github.com/gosh-project/gosh/internal/jobs"
	"github.com/gosh-project/gosh/internal/shellenv"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// Names is the set of recognized builtin names: spec.md 4.F's list plus
// "." (another name for source) and "ps".
var Names = map[string]struct{}{
	"return": {}, "break": {}, "continue": {}, "exit": {}, "command": {},
	"pushd": {}, "popd": {}, "setopt": {}, "getopt": {}, "type": {},
	"string": {}, "int": {}, "bool": {}, "arr": {}, "float": {}, "dict": {}, "expr": {},
	"echo": {}, "jobs": {}, "unset": {}, "fg": {}, "bg": {}, "set": {},
	"builtin": {}, "test": {}, "[": {}, "shift": {}, "unalias": {}, "alias": {},
	"export": {}, "cd": {}, "readonly": {}, "declare": {}, "local": {},
	"trap": {}, "exec": {}, "source": {}, ".": {}, "wait": {}, "ps": {},
}

// IsBuiltin reports whether name is a recognized builtin.
func IsBuiltin(name string) bool {
	_, ok := Names[name]
	return ok
}

// Deps bundles the ambient collaborators builtins dispatch against.
// Script sourcing reaches the engine through Env's own SourceFile
// callback, so no walker hook is needed here.
type Deps struct {
	Env      *shellenv.ShellEnv
	Jobs     *jobs.Table
	DirStack *[]string
	Traps    map[string]string
}

// Execute dispatches name to its implementation. It returns the
// builtin's exit status and an error; a *shellerr.Control error signals
// return/break/continue and must be propagated by the engine rather
// than reported.
func Execute(name string, args []string, ctx *execctx.Ctx, d *Deps) (int, error) {
	out := ctx.Stdout.File()
	errOut := ctx.Stderr.File()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	switch name {
	case "cd":
		return cd(args, d.Env)
	case "pwd":
		return pwd(out, d.Env)
	case "echo":
		return echo(args, ctx, d)
	case "export":
		return export(args, d.Env, out)
	case "alias":
		return alias(args, d.Env, out)
	case "unalias":
		return unalias(args, d.Env, errOut)
	case "source", ".":
		return source(args, d, errOut)
	case "exit":
		return exit(args, d.Env)
	case "return":
		return ctrlReturn(args, d.Env)
	case "break":
		return ctrlBreak(args)
	case "continue":
		return ctrlContinue(args)
	case "set":
		return set(args, d.Env, out)
	case "unset":
		return unset(args, d.Env)
	case "shift":
		return shift(args, d.Env)
	case "declare", "local", "readonly":
		return declare(args, d.Env, name == "readonly")
	case "test", "[":
		toks := args
		if name == "[" {
			if len(toks) == 0 || toks[len(toks)-1] != "]" {
				return 2, shellerr.Builtinf("[", "missing closing ']'")
			}
			toks = toks[:len(toks)-1]
		}
		ok, err := RunTest(toks)
		if err != nil {
			return 2, err
		}
		if ok {
			return 0, nil
		}
		return 1, nil
	case "jobs":
		return jobsList(d.Jobs, out)
	case "fg", "bg":
		return fgBg(name, args, d.Jobs, errOut)
	case "wait":
		return wait(args, d.Jobs)
	case "command", "builtin":
		return 0, nil // dispatch bypass is handled by the engine before calling Execute
	case "type":
		return typeCmd(args, d.Env, out)
	case "setopt":
		return setopt(args, d.Env)
	case "getopt":
		return getopt(args, d.Env, out)
	case "pushd":
		return pushd(args, d.Env, d.DirStack, out)
	case "popd":
		return popd(d.Env, d.DirStack, out)
	case "trap":
		return trap(args, d.Traps)
	case "ps":
		return ps(out)
	case "exec":
		return 0, nil // replaced in-process by the engine before reaching Execute
	case "string", "int", "bool", "arr", "float", "dict":
		return typedVar(name, args, d.Env)
	case "expr":
		return exprEval(args, out)
	default:
		return 2, shellerr.Builtinf(name, "not implemented")
	}
}

func cd(args []string, env *shellenv.ShellEnv) (int, error) {
	var dir string
	switch {
	case len(args) == 0:
		dir = mustGetenv(env, "HOME")
	case args[0] == "-":
		dir = mustGetenv(env, "OLDPWD")
	case len(args) > 1:
		return 2, shellerr.Builtinf("cd", "too many arguments")
	default:
		dir = args[0]
	}
	if err := env.ChangeDir(dir); err != nil {
		return 1, err
	}
	return 0, nil
}

func mustGetenv(env *shellenv.ShellEnv, name string) string {
	if v, ok := env.GetVar(name); ok {
		return v
	}
	return "/"
}

func pwd(out *os.File, env *shellenv.ShellEnv) (int, error) {
	pwd, ok := env.GetVar("PWD")
	if !ok {
		return 1, shellerr.Builtinf("pwd", "PWD is unset")
	}
	fmt.Fprintln(out, pwd)
	return 0, nil
}

func export(args []string, env *shellenv.ShellEnv, out *os.File) (int, error) {
	if len(args) == 0 {
		for _, kv := range env.EnvPairs() {
			fmt.Fprintf(out, "export %s\n", kv)
		}
		return 0, nil
	}
	for _, a := range args {
		name, val, ok := strings.Cut(a, "=")
		if !ok {
			val, _ = env.GetVar(name)
		}
		env.Export(name, val)
	}
	return 0, nil
}

func alias(args []string, env *shellenv.ShellEnv, out *os.File) (int, error) {
	if len(args) == 0 {
		for _, name := range env.AliasNames() {
			v, _ := env.GetAlias(name)
			fmt.Fprintf(out, "%s=%s\n", name, v)
		}
		return 0, nil
	}
	code := 0
	for _, a := range args {
		if name, val, ok := strings.Cut(a, "="); ok {
			if err := env.SetAlias(name, val); err != nil {
				fmt.Fprintln(os.Stderr, err)
				code = 1
			}
			continue
		}
		if v, ok := env.GetAlias(a); ok {
			fmt.Fprintf(out, "%s=%s\n", a, v)
		}
		// unknown bare names are silently skipped per spec.md 4.F.
	}
	return code, nil
}

func unalias(args []string, env *shellenv.ShellEnv, errOut *os.File) (int, error) {
	code := 0
	for _, name := range args {
		if _, ok := env.RemoveAlias(name); !ok {
			fmt.Fprintf(errOut, "gosh: unalias: %s: not found\n", name)
			code = 1
		}
	}
	return code, nil
}

func source(args []string, d *Deps, errOut *os.File) (int, error) {
	if len(args) == 0 {
		return 2, shellerr.Builtinf("source", "missing file operand")
	}
	if err := d.Env.SourceFile(args[0]); err != nil {
		if ctrl, ok := err.(*shellerr.Control); ok {
			return ctrl.Code, ctrl
		}
		fmt.Fprintln(errOut, err)
		return shellerr.ExitCode(err), nil
	}
	return 0, nil
}

func exit(args []string, env *shellenv.ShellEnv) (int, error) {
	code := env.LastExit()
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			code = n
		}
	}
	return code, &shellerr.Control{Kind: shellerr.ControlExit, Code: code}
}

func ctrlReturn(args []string, env *shellenv.ShellEnv) (int, error) {
	if !env.InFunction() {
		return 2, shellerr.Builtinf("return", "can only `return' from a function or sourced script")
	}
	code := env.LastExit()
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			code = n
		}
	}
	return code, &shellerr.Control{Kind: shellerr.ControlReturn, Code: code}
}

func ctrlBreak(args []string) (int, error) {
	depth := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			depth = n
		}
	}
	return 0, &shellerr.Control{Kind: shellerr.ControlBreak, Depth: depth}
}

func ctrlContinue(args []string) (int, error) {
	depth := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			depth = n
		}
	}
	return 0, &shellerr.Control{Kind: shellerr.ControlContinue, Depth: depth}
}

func set(args []string, env *shellenv.ShellEnv, out *os.File) (int, error) {
	if len(args) == 0 {
		names := env.VarNames()
		sort.Strings(names)
		for _, name := range names {
			v, _ := env.GetVar(name)
			fmt.Fprintf(out, "%s=%s\n", name, v)
		}
		return 0, nil
	}
	for _, a := range args {
		if name, val, ok := strings.Cut(a, "="); ok {
			env.SetVar(name, val)
		}
	}
	return 0, nil
}

func unset(args []string, env *shellenv.ShellEnv) (int, error) {
	for _, name := range args {
		env.Export(name, "")
	}
	return 0, nil
}

func shift(args []string, env *shellenv.ShellEnv) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	vals := make([]string, 0)
	for i := 1; ; i++ {
		v, ok := env.GetParameter(strconv.Itoa(i))
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	env.ClearPosParameters()
	if n < len(vals) {
		for _, v := range vals[n:] {
			env.PushPositional(v)
		}
	}
	return 0, nil
}

func declare(args []string, env *shellenv.ShellEnv, readonly bool) (int, error) {
	for _, a := range args {
		if name, val, ok := strings.Cut(a, "="); ok {
			env.SetVar(name, val)
		} else if readonly {
			if v, ok := env.GetVar(a); ok {
				env.SetVar(a, v)
			}
		}
	}
	return 0, nil
}

func jobsList(jt *jobs.Table, out *os.File) (int, error) {
	for _, j := range jt.Jobs() {
		fmt.Fprintf(out, "[%d] %s\t(pgid %d)\n", j.ID, j.State, j.Pgid)
	}
	return 0, nil
}

func fgBg(name string, args []string, jt *jobs.Table, errOut *os.File) (int, error) {
	var id int
	if len(args) > 0 {
		id, _ = strconv.Atoi(strings.TrimPrefix(args[0], "%"))
	} else {
		js := jt.Jobs()
		if len(js) == 0 {
			fmt.Fprintln(errOut, "gosh: no current job")
			return 1, nil
		}
		id = js[len(js)-1].ID
	}
	j, ok := jt.ByID(id)
	if !ok {
		fmt.Fprintf(errOut, "gosh: %s: %d: no such job\n", name, id)
		return 1, nil
	}
	if name == "bg" {
		_ = unix.Kill(-j.Pgid, unix.SIGCONT)
		return 0, nil
	}
	if err := jt.HandleFg(j); err != nil {
		return 1, err
	}
	if j.State == jobs.Done {
		jt.Remove(j.Pgid)
	}
	return j.LastChildStatus(), nil
}

func wait(args []string, jt *jobs.Table) (int, error) {
	if len(args) == 0 {
		for _, j := range jt.Jobs() {
			_ = jt.HandleFg(j)
			if j.State == jobs.Done {
				jt.Remove(j.Pgid)
			}
		}
		return 0, nil
	}
	id, _ := strconv.Atoi(strings.TrimPrefix(args[0], "%"))
	if j, ok := jt.ByID(id); ok {
		if err := jt.HandleFg(j); err != nil {
			return 1, err
		}
		if j.State == jobs.Done {
			jt.Remove(j.Pgid)
		}
		return j.LastChildStatus(), nil
	}
	return 1, nil
}

func typeCmd(args []string, env *shellenv.ShellEnv, out *os.File) (int, error) {
	code := 0
	for _, name := range args {
		switch {
		case IsBuiltin(name):
			fmt.Fprintf(out, "%s is a shell builtin\n", name)
		default:
			if v, ok := env.GetAlias(name); ok {
				fmt.Fprintf(out, "%s is aliased to `%s'\n", name, v)
			} else if _, ok := env.GetFunction(name); ok {
				fmt.Fprintf(out, "%s is a function\n", name)
			} else if path, err := exec.LookPath(name); err == nil {
				fmt.Fprintf(out, "%s is %s\n", name, path)
			} else {
				fmt.Fprintf(out, "gosh: type: %s: not found\n", name)
				code = 1
			}
		}
	}
	return code, nil
}

func setopt(args []string, env *shellenv.ShellEnv) (int, error) {
	for _, a := range args {
		name, val, ok := strings.Cut(a, "=")
		n := 1
		if ok {
			n, _ = strconv.Atoi(val)
		}
		env.SetShopt(name, n)
	}
	return 0, nil
}

func getopt(args []string, env *shellenv.ShellEnv, out *os.File) (int, error) {
	if len(args) == 0 {
		for _, name := range env.ShoptNames() {
			fmt.Fprintf(out, "%s=%d\n", name, env.GetShopt(name))
		}
		return 0, nil
	}
	for _, name := range args {
		fmt.Fprintf(out, "%s=%d\n", name, env.GetShopt(name))
	}
	return 0, nil
}

func pushd(args []string, env *shellenv.ShellEnv, stack *[]string, out *os.File) (int, error) {
	if len(args) == 0 {
		return 2, shellerr.Builtinf("pushd", "missing directory operand")
	}
	cwd, _ := env.GetVar("PWD")
	*stack = append(*stack, cwd)
	if err := env.ChangeDir(args[0]); err != nil {
		*stack = (*stack)[:len(*stack)-1]
		return 1, err
	}
	printDirStack(*stack, env, out)
	return 0, nil
}

func popd(env *shellenv.ShellEnv, stack *[]string, out *os.File) (int, error) {
	if len(*stack) == 0 {
		return 1, shellerr.Builtinf("popd", "directory stack empty")
	}
	top := (*stack)[len(*stack)-1]
	*stack = (*stack)[:len(*stack)-1]
	if err := env.ChangeDir(top); err != nil {
		return 1, err
	}
	printDirStack(*stack, env, out)
	return 0, nil
}

func printDirStack(stack []string, env *shellenv.ShellEnv, out *os.File) {
	cwd, _ := env.GetVar("PWD")
	fmt.Fprint(out, cwd)
	for i := len(stack) - 1; i >= 0; i-- {
		fmt.Fprint(out, " "+stack[i])
	}
	fmt.Fprintln(out)
}

func trap(args []string, traps map[string]string) (int, error) {
	if len(args) == 0 {
		names := make([]string, 0, len(traps))
		for k := range traps {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, sig := range names {
			fmt.Printf("trap -- '%s' %s\n", traps[sig], sig)
		}
		return 0, nil
	}
	if len(args) < 2 {
		return 2, shellerr.Builtinf("trap", "usage: trap action signal...")
	}
	action := args[0]
	for _, sig := range args[1:] {
		traps[sig] = action
	}
	return 0, nil
}

func ps(out *os.File) (int, error) {
	self, err := os.Readlink("/proc/self/fd/0")
	if err != nil {
		return 1, shellerr.Io("ps", err)
	}
	ttyName := filepath.Base(self)

	procs, err := gops.Processes()
	if err != nil {
		return 1, shellerr.Io("ps", err)
	}

	fmt.Fprintln(out, "    PID TTY          TIME CMD")
	for _, p := range procs {
		link, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/0", p.Pid()))
		if err != nil || filepath.Base(link) != ttyName {
			continue
		}
		fmt.Fprintf(out, "%7d pts/%-8s 00:00:00 %s\n", p.Pid(), ttyName, p.Executable())
	}
	return 0, nil
}

func typedVar(kind string, args []string, env *shellenv.ShellEnv) (int, error) {
	if len(args) == 0 {
		return 2, shellerr.Builtinf(kind, "missing name")
	}
	name, val, ok := strings.Cut(args[0], "=")
	if !ok {
		env.SetVar(args[0], zeroValueFor(kind))
		return 0, nil
	}
	if !validForType(kind, val) {
		return 1, shellerr.Builtinf(kind, "%q is not a valid %s", val, kind)
	}
	env.SetVar(name, val)
	return 0, nil
}

func zeroValueFor(kind string) string {
	switch kind {
	case "int", "float":
		return "0"
	case "bool":
		return "false"
	case "arr":
		return ""
	default:
		return ""
	}
}

func validForType(kind, val string) bool {
	switch kind {
	case "int":
		_, err := strconv.Atoi(val)
		return err == nil
	case "float":
		_, err := strconv.ParseFloat(val, 64)
		return err == nil
	case "bool":
		_, err := strconv.ParseBool(val)
		return err == nil
	default:
		return true
	}
}

// exprEval implements a tiny integer-expression evaluator for the
// `expr` builtin: `a OP b` with OP in +,-,*,/,%.
func exprEval(args []string, out *os.File) (int, error) {
	if len(args) != 3 {
		return 2, shellerr.Builtinf("expr", "usage: expr A OP B")
	}
	a, err1 := strconv.Atoi(args[0])
	b, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return 2, shellerr.Builtinf("expr", "non-integer operand")
	}
	var result int
	switch args[1] {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "*":
		result = a * b
	case "/":
		if b == 0 {
			return 2, shellerr.Builtinf("expr", "division by zero")
		}
		result = a / b
	case "%":
		if b == 0 {
			return 2, shellerr.Builtinf("expr", "division by zero")
		}
		result = a % b
	default:
		return 2, shellerr.Builtinf("expr", "unknown operator %q", args[1])
	}
	fmt.Fprintln(out, result)
	if result == 0 {
		return 1, nil
	}
	return 0, nil
}

func echo(args []string, ctx *execctx.Ctx, d *Deps) (int, error) {
	flags, rest := parseEchoFlags(args)
	line := strings.Join(rest, " ")
	switch {
	case flags.superset:
		line = expandEscapesSuper(line)
	case flags.useEscape:
		line = expandEscapes(line)
	}
	if !flags.noNewline {
		line += "\n"
	}

	target := ctx.Stdout
	if flags.stderr {
		target = ctx.Stderr
	}

	// Per oxide's echo() (original_source/src/builtin.rs): write
	// in-process under NO_FORK (or when there is no job table). Otherwise
	// the write runs on a separate goroutine, standing in for POSIX
	// fork(2), which Go cannot perform mid-process; echo waits for it to
	// finish, and registers it with the job table, as an already-finished
	// job, only when the Background flag is set.
	if ctx.Flags().Has(execctx.NoFork) || d == nil || d.Jobs == nil {
		f := target.File()
		if f == nil {
			f = os.Stdout
		}
		fmt.Fprint(f, line)
		return 0, nil
	}

	done := make(chan struct{})
	go func() {
		f := target.File()
		if f == nil {
			f = os.Stdout
		}
		fmt.Fprint(f, line)
		close(done)
	}()
	pid := os.Getpid()
	j := &jobs.Job{Pgid: pid, State: jobs.Running, Children: []jobs.Child{{Pid: pid, Label: "echo"}}}
	<-done
	status := 0
	j.Children[0].Status = &status
	j.State = jobs.Done
	if ctx.Flags().Has(execctx.Background) {
		if err := d.Jobs.InsertJob(j, true); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

type echoFlags struct {
	useEscape bool
	superset  bool
	noNewline bool
	stderr    bool
}

// parseEchoFlags fully parses leading -[enrPE]+ flags (combinable,
// last -e/-E wins) before any argv accumulation begins: echo -en foo
// yields exactly one "foo", not a duplicated argument. An argument that
// looks like a flag cluster but contains an unknown letter is not a flag
// at all; it and everything after it are argv, and any letters seen
// earlier in the same cluster are discarded with it.
func parseEchoFlags(args []string) (echoFlags, []string) {
	var f echoFlags
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if len(a) < 2 || a[0] != '-' {
			break
		}
		cand := f
		valid := true
		for _, c := range a[1:] {
			switch c {
			case 'e':
				cand.useEscape = true
			case 'E':
				cand.useEscape = false
				cand.superset = false
			case 'n':
				cand.noNewline = true
			case 'r':
				cand.stderr = true
			case 'P':
				cand.useEscape = true
				cand.superset = true
			default:
				valid = false
			}
			if !valid {
				break
			}
		}
		if !valid {
			break
		}
		f = cand
	}
	return f, args[i:]
}

func expandEscapes(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n", `\t`, "\t", `\\`, `\`, `\a`, "\a", `\b`, "\b", `\r`, "\r",
	)
	return r.Replace(s)
}

// expandEscapesSuper is the -P superset: everything -e handles plus the
// vertical-tab, form-feed, and ESC escapes.
func expandEscapesSuper(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n", `\t`, "\t", `\\`, `\`, `\a`, "\a", `\b`, "\b", `\r`, "\r",
		`\v`, "\v", `\f`, "\f", `\e`, "\033", `\0`, "\000",
	)
	return r.Replace(s)
}

