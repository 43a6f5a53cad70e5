// Package engine walks the *syntax.File the grammar front-end (§2 of
// SPEC_FULL.md, mvdan.cc/sh/v3/syntax) produces, threading an execution
// context (internal/execctx) and a shell environment (internal/shellenv)
// through every node the way spec.md §2 describes: "the engine walks it,
// threading an execution context and a reference to the shell
// environment. Each node chooses a path: builtin, external command,
// pipeline, subshell, or control-flow construct." This is the Root tag
// from spec.md's Parsed-node model, generalized from the teacher's flat
// Shell.runPipeline/runPipe (internal/ebash/ebash.go) into a full
// tree-walking interpreter driven by a real grammar instead of a
// hand-rolled &&/||/| splitter.
package engine

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gosh-project/gosh/internal/builtin"
	"github.com/gosh-project/gosh/internal/execctx"
	"github.com/gosh-project/gosh/internal/expand"
	"github.com/gosh-project/gosh/internal/jobs"
	"github.com/gosh-project/gosh/internal/obslog"
	"github.com/gosh-project/gosh/internal/pipeline"
	"github.com/gosh-project/gosh/internal/redir"
	"github.com/gosh-project/gosh/internal/shellenv"
	"github.com/gosh-project/gosh/internal/shellerr"
	"github.com/gosh-project/gosh/internal/subshell"
)

// Engine is the walker: the shell environment it threads through every
// node, the job table, the directory stack for pushd/popd, and the trap
// table. One Engine exists per shell process; subshells operate on a
// Snapshot of Env rather than a second Engine.
type Engine struct {
	Env      *shellenv.ShellEnv
	Jobs     *jobs.Table
	DirStack []string
	Traps    map[string]string
	Logger   *obslog.Logger
}

// New constructs an Engine with a fresh ShellEnv bound to this Engine's
// own RunString as the SourceFile callback, closing the cycle spec.md §3
// describes between the environment and "Source/Execer" without an
// import cycle between the shellenv and engine packages.
func New(flags shellenv.Flags, ttyFd int, logger *obslog.Logger) *Engine {
	e := &Engine{
		Jobs:   jobs.New(ttyFd),
		Traps:  map[string]string{},
		Logger: logger,
	}
	e.Env = shellenv.New(flags, e.sourceRun)
	return e
}

func (e *Engine) sourceRun(env *shellenv.ShellEnv, src, name string) error {
	_, err := e.RunString(src, name)
	return err
}

// RunString parses src as a complete POSIX program and walks every
// top-level statement in order, matching spec.md §6's "-c <string>" and
// script entry points, and §4.B's SourceFile contract. The POSIX
// language variant keeps declaration builtins (export, local, readonly)
// as ordinary simple commands so they reach the builtin dispatcher
// instead of the grammar's bash-specific DeclClause node.
func (e *Engine) RunString(src, name string) (int, error) {
	e.Env.SetLastInput(src)
	f, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(src), name)
	if err != nil {
		return 2, shellerr.Parsef("%s: %v", name, err)
	}
	code, err := e.runStmts(f.Stmts, execctx.New())
	if ctrl, ok := err.(*shellerr.Control); ok && ctrl.Kind != shellerr.ControlExit {
		// A bare top-level break/continue (or a return that escaped a
		// function body unresolved) has no enclosing construct left to
		// unwind to at this point; report it instead of silently
		// discarding it, then keep going like any other recoverable error.
		e.report(ctrl)
		return code, nil
	}
	return code, err
}

func (e *Engine) expander() *expand.Expander {
	return &expand.Expander{
		Lookup:    e.Env.GetVar,
		CmdSubst:  e.runCmdSubst,
		ShellPid:  os.Getpid(),
		ShellPpid: os.Getppid(),
	}
}

// runCmdSubst backs expand.Expander.CmdSubst: it runs stmts with stdout
// captured through a pipe instead of the shell's own stdout, returning
// the captured bytes for the caller to splice into a word.
func (e *Engine) runCmdSubst(stmts []*syntax.Stmt) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", shellerr.Io("cmdsubst", err)
	}
	ctx := execctx.New()
	ctx.Stdout.Set(w)

	var captured strings.Builder
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				captured.Write(buf[:n])
			}
			if rerr != nil {
				break
			}
		}
		close(done)
	}()

	_, runErr := e.runStmts(stmts, ctx)
	_ = w.Close()
	<-done
	_ = r.Close()
	return captured.String(), runErr
}

// runStmts runs a statement list in order (spec.md's `;`/newline list
// semantics), reporting recoverable errors to stderr and continuing,
// matching spec.md §7's propagation policy. A *shellerr.Control is
// propagated to the caller unreported, since it is a control-flow
// escape, not a failure.
func (e *Engine) runStmts(stmts []*syntax.Stmt, ctx *execctx.Ctx) (int, error) {
	code := 0
	for _, st := range stmts {
		c, err := e.runStmt(st, ctx)
		code = c
		e.Env.SetLastExit(code)
		if err != nil {
			if isControlEscape(err) {
				return code, err
			}
			e.report(err)
		}
	}
	return code, nil
}

func isControlEscape(err error) bool {
	_, ok := err.(*shellerr.Control)
	return ok
}

// ExitRequested reports whether err is the `exit` builtin's propagated
// Control signal, and the code the process should terminate with. Callers
// (cmd/gosh's REPL and script runner) use this to distinguish a real
// `exit` from a stray top-level return/break/continue control error,
// which RunString otherwise reports like any other unresolved escape.
func ExitRequested(err error) (int, bool) {
	ctrl, ok := err.(*shellerr.Control)
	if !ok || ctrl.Kind != shellerr.ControlExit {
		return 0, false
	}
	return ctrl.Code, true
}

func (e *Engine) report(err error) {
	fmt.Fprintln(os.Stderr, err)
	if se, ok := err.(*shellerr.ShellError); ok && se.Kind == shellerr.KindInternal {
		if e.Logger != nil {
			e.Logger.Crash(err)
		}
		os.Exit(70)
	}
	if e.Logger != nil {
		e.Logger.Warn(err)
	}
}

// runStmt dispatches one statement to its execution path, applying
// Negated and Background per spec.md §3's Execution-context flags.
func (e *Engine) runStmt(st *syntax.Stmt, ctx *execctx.Ctx) (int, error) {
	if st.Background {
		bgCtx := *ctx
		bgCtx.AddFlags(execctx.Background)
		go func() {
			_, _ = e.runStmtDispatch(st, &bgCtx)
		}()
		return 0, nil
	}
	return e.runStmtDispatch(st, ctx)
}

// runStmtDispatch routes to the pipeline, and/or, or plain-command path
// and applies this statement's own negation ("!") to whichever of those
// produced the exit status.
func (e *Engine) runStmtDispatch(st *syntax.Stmt, ctx *execctx.Ctx) (int, error) {
	var code int
	var err error
	if bc, ok := st.Cmd.(*syntax.BinaryCmd); ok {
		switch bc.Op {
		case syntax.Pipe, syntax.PipeAll:
			code, err = e.runPipelineStmt(st, ctx)
		case syntax.AndStmt, syntax.OrStmt:
			code, err = e.runAndOr(st, bc, ctx)
		default:
			code, err = e.runStmtSync(st, ctx)
		}
	} else {
		code, err = e.runStmtSync(st, ctx)
	}
	if err != nil && isControlEscape(err) {
		return code, err
	}
	if st.Negated {
		if code == 0 {
			code = 1
		} else {
			code = 0
		}
	}
	return code, err
}

func (e *Engine) runAndOr(st *syntax.Stmt, bc *syntax.BinaryCmd, ctx *execctx.Ctx) (int, error) {
	code, err := e.runStmt(bc.X, ctx)
	if err != nil && isControlEscape(err) {
		return code, err
	}
	if bc.Op == syntax.AndStmt && code != 0 {
		return code, nil
	}
	if bc.Op == syntax.OrStmt && code == 0 {
		return code, nil
	}
	return e.runStmt(bc.Y, ctx)
}

// runStmtSync resolves this statement's own redirections into a derived
// context, then dispatches its command.
func (e *Engine) runStmtSync(st *syntax.Stmt, ctx *execctx.Ctx) (int, error) {
	x := e.expander()

	stageCtx := ctx
	if len(st.Redirs) > 0 {
		files, cleanup, err := openRedirFiles(st.Redirs, x, ctx)
		if err != nil {
			return 1, err
		}
		defer cleanup()
		c := &execctx.Ctx{Stdin: ctx.Stdin, Stdout: ctx.Stdout, Stderr: ctx.Stderr}
		c.SetFlags(ctx.Flags())
		if f, ok := files[0]; ok {
			c.Stdin = execctx.NewIOSlot(f)
		}
		if f, ok := files[1]; ok {
			c.Stdout = execctx.NewIOSlot(f)
		}
		if f, ok := files[2]; ok {
			c.Stderr = execctx.NewIOSlot(f)
		}
		// The record form of the same redirections rides along in the
		// pending list for the one consumer that must mutate the shell's
		// live descriptor table instead of a child's: `exec` without a
		// command.
		recs, err := redirRecords(st.Redirs, x)
		if err != nil {
			return 1, err
		}
		for _, rec := range recs {
			c.PushRedir(rec)
		}
		stageCtx = c
	}

	if st.Cmd == nil {
		return 0, nil
	}

	return e.runCommand(st.Cmd, stageCtx)
}

// runCommand dispatches on the parsed node's dynamic type, spec.md's
// stand-in for a tagged "Root" node: Command, Pipeline (handled one
// level up), Subshell, If, Loop, Case, FuncDef, and the bare CallExpr
// simple-command path.
func (e *Engine) runCommand(cmd syntax.Command, ctx *execctx.Ctx) (int, error) {
	switch c := cmd.(type) {
	case *syntax.CallExpr:
		return e.runCallExpr(c, ctx)
	case *syntax.Block:
		return e.runStmts(c.Stmts, ctx)
	case *syntax.Subshell:
		return e.runSubshell(c, ctx)
	case *syntax.IfClause:
		return e.runIf(c, ctx)
	case *syntax.WhileClause:
		return e.runLoop(c.Cond, c.Do, c.Until, ctx)
	case *syntax.ForClause:
		return e.runFor(c, ctx)
	case *syntax.CaseClause:
		return e.runCase(c, ctx)
	case *syntax.FuncDecl:
		if err := e.Env.SetFunction(c.Name.Value, c); err != nil {
			return 1, err
		}
		return 0, nil
	default:
		return 2, shellerr.Parsef("unsupported construct %T", cmd)
	}
}

// runIf walks the if/elif/else chain, which the grammar represents as a
// linked list: each elif is the Else field's nested IfClause, and a
// final plain else is an IfClause with no Cond.
func (e *Engine) runIf(c *syntax.IfClause, ctx *execctx.Ctx) (int, error) {
	if len(c.Cond) == 0 {
		return e.runStmts(c.Then, ctx)
	}
	code, err := e.runStmts(c.Cond, ctx)
	if err != nil {
		return code, err
	}
	if code == 0 {
		return e.runStmts(c.Then, ctx)
	}
	if c.Else != nil {
		return e.runIf(c.Else, ctx)
	}
	return 0, nil
}

func (e *Engine) runLoop(cond, body []*syntax.Stmt, until bool, ctx *execctx.Ctx) (int, error) {
	code := 0
	for {
		condCode, err := e.runStmts(cond, ctx)
		if err != nil {
			return condCode, err
		}
		stop := condCode != 0
		if until {
			stop = condCode == 0
		}
		if stop {
			break
		}
		c, err := e.runStmts(body, ctx)
		code = c
		if err != nil {
			if ctrl, ok := err.(*shellerr.Control); ok && (ctrl.Kind == shellerr.ControlBreak || ctrl.Kind == shellerr.ControlContinue) {
				if ctrl.Depth > 1 {
					return code, &shellerr.Control{Kind: ctrl.Kind, Code: ctrl.Code, Depth: ctrl.Depth - 1}
				}
				if ctrl.Kind == shellerr.ControlBreak {
					return code, nil
				}
				continue
			}
			return code, err
		}
	}
	return code, nil
}

func (e *Engine) runFor(c *syntax.ForClause, ctx *execctx.Ctx) (int, error) {
	wordIter, ok := c.Loop.(*syntax.WordIter)
	if !ok {
		return 2, shellerr.Parsef("arithmetic for-loops are not supported")
	}
	x := e.expander()

	var values []string
	if len(wordIter.Items) == 0 {
		for i := 1; ; i++ {
			v, ok := e.Env.GetParameter(strconv.Itoa(i))
			if !ok {
				break
			}
			values = append(values, v)
		}
	} else {
		for _, w := range wordIter.Items {
			v, err := x.Word(w)
			if err != nil {
				return 1, err
			}
			values = append(values, v)
		}
	}

	code := 0
	for _, v := range values {
		e.Env.SetVar(wordIter.Name.Value, v)
		c2, err := e.runStmts(c.Do, ctx)
		code = c2
		if err != nil {
			if ctrl, ok := err.(*shellerr.Control); ok && (ctrl.Kind == shellerr.ControlBreak || ctrl.Kind == shellerr.ControlContinue) {
				if ctrl.Depth > 1 {
					return code, &shellerr.Control{Kind: ctrl.Kind, Code: ctrl.Code, Depth: ctrl.Depth - 1}
				}
				if ctrl.Kind == shellerr.ControlBreak {
					return code, nil
				}
				continue
			}
			return code, err
		}
	}
	return code, nil
}

func (e *Engine) runCase(c *syntax.CaseClause, ctx *execctx.Ctx) (int, error) {
	x := e.expander()
	subject, err := x.Word(c.Word)
	if err != nil {
		return 1, err
	}
	for _, item := range c.Items {
		for _, pat := range item.Patterns {
			p, err := x.Word(pat)
			if err != nil {
				return 1, err
			}
			if matched, _ := matchGlob(p, subject); matched {
				return e.runStmts(item.Stmts, ctx)
			}
		}
	}
	return 0, nil
}

// runCallExpr is the simple-command path: apply assignments, expand
// argv, apply alias expansion (one level deep), then dispatch to a
// function call, a builtin, or an external command.
func (e *Engine) runCallExpr(c *syntax.CallExpr, ctx *execctx.Ctx) (int, error) {
	x := e.expander()

	for _, a := range c.Assigns {
		var val string
		if a.Value != nil {
			v, err := x.Word(a.Value)
			if err != nil {
				return 1, err
			}
			val = v
		}
		e.Env.SetVar(a.Name.Value, val)
	}

	argv := make([]string, 0, len(c.Args))
	for _, w := range c.Args {
		fields, err := x.Fields(w)
		if err != nil {
			return 1, err
		}
		argv = append(argv, fields...)
	}
	if len(argv) == 0 {
		return 0, nil
	}

	if v, ok := e.Env.GetAlias(argv[0]); ok {
		expanded := strings.Fields(v)
		argv = append(expanded, argv[1:]...)
		if len(argv) == 0 {
			return 0, nil
		}
	}

	name := argv[0]
	args := argv[1:]

	if name == "command" || name == "builtin" {
		if len(args) == 0 {
			return 0, nil
		}
		return e.dispatchBuiltinOrExternal(args[0], args[1:], ctx)
	}

	if name == "exec" {
		return e.runExec(args, ctx)
	}

	if fn, ok := e.Env.GetFunction(name); ok {
		return e.callFunction(fn, args, ctx)
	}

	return e.dispatchBuiltinOrExternal(name, args, ctx)
}

func (e *Engine) dispatchBuiltinOrExternal(name string, args []string, ctx *execctx.Ctx) (int, error) {
	if builtin.IsBuiltin(name) {
		deps := &builtin.Deps{
			Env:      e.Env,
			Jobs:     e.Jobs,
			DirStack: &e.DirStack,
			Traps:    e.Traps,
		}
		return builtin.Execute(name, args, ctx, deps)
	}
	return e.runExternal(name, args, ctx)
}

func (e *Engine) runExternal(name string, args []string, ctx *execctx.Ctx) (int, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return 127, shellerr.NotFound(name)
	}
	spec := &pipeline.ExternalSpec{
		Argv: append([]string{path}, args...),
		Env:  e.Env.EnvPairs(),
	}
	stdio := pipeline.StdIO{In: ctx.Stdin.File(), Out: ctx.Stdout.File(), Err: ctx.Stderr.File()}
	res, err := pipeline.Run([]pipeline.Stage{{Label: name, External: spec}}, e.Jobs, stdio, ctx.Flags().Has(execctx.Background))
	if err != nil {
		return 1, err
	}
	return res.ExitCode, nil
}

func (e *Engine) callFunction(fn *syntax.FuncDecl, args []string, ctx *execctx.Ctx) (int, error) {
	snapParams := e.Env.SnapshotParams()
	e.Env.ClearPosParameters()
	for _, a := range args {
		e.Env.PushPositional(a)
	}
	var code int
	err := e.Env.WithFlags(shellenv.InFunc, 0, func() error {
		var runErr error
		code, runErr = e.runStmt(fn.Body, ctx)
		return runErr
	})
	e.Env.RestoreParams(snapParams)
	if ctrl, ok := err.(*shellerr.Control); ok && ctrl.Kind == shellerr.ControlReturn {
		return ctrl.Code, nil
	}
	return code, err
}

// runExec implements the `exec` builtin. With no command it drains the
// context's pending redirection records into a redir.Set and activates
// it against the shell's own descriptor table with no revert, so every
// later command inherits the rewiring. With a command it replaces the
// shell image outright via execve(2); on success nothing after this
// call runs.
func (e *Engine) runExec(args []string, ctx *execctx.Ctx) (int, error) {
	if len(args) == 0 {
		recs := ctx.Redirs()
		if len(recs) == 0 {
			return 0, nil
		}
		set := redir.New(recs)
		if err := set.Activate(); err != nil {
			return 1, err
		}
		for _, rec := range recs {
			if rec.Close {
				e.Env.CloseFd(rec.SourceFd)
			} else {
				e.Env.OpenFd(rec.SourceFd)
			}
		}
		return 0, nil
	}
	path, err := exec.LookPath(args[0])
	if err != nil {
		return 127, shellerr.NotFound(args[0])
	}
	if f := ctx.Stdin.File(); f != nil {
		_ = unix.Dup2(int(f.Fd()), 0)
	}
	if f := ctx.Stdout.File(); f != nil {
		_ = unix.Dup2(int(f.Fd()), 1)
	}
	if f := ctx.Stderr.File(); f != nil {
		_ = unix.Dup2(int(f.Fd()), 2)
	}
	if err := unix.Exec(path, append([]string{path}, args[1:]...), e.Env.EnvPairs()); err != nil {
		return 126, shellerr.NotExecutable(args[0], err)
	}
	return 0, nil
}

func (e *Engine) runSubshell(sub *syntax.Subshell, ctx *execctx.Ctx) (int, error) {
	return subshell.RunInternal(e.Env, func(env *shellenv.ShellEnv) (int, error) {
		return e.runStmts(sub.Stmts, ctx)
	})
}
