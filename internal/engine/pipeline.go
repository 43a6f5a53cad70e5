package engine

import (
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/gosh-project/gosh/internal/builtin"
	"github.com/gosh-project/gosh/internal/execctx"
	"github.com/gosh-project/gosh/internal/pipeline"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// flattenPipeline unwraps mvdan's left-nested BinaryCmd{Pipe} chain
// ("a|b|c" parses as BinaryCmd{Pipe, X: BinaryCmd{Pipe, a, b}, Y: c})
// into an ordered stage list.
func flattenPipeline(st *syntax.Stmt) []*syntax.Stmt {
	bc, ok := st.Cmd.(*syntax.BinaryCmd)
	if !ok || (bc.Op != syntax.Pipe && bc.Op != syntax.PipeAll) {
		return []*syntax.Stmt{st}
	}
	return append(flattenPipeline(bc.X), bc.Y)
}

// runPipelineStmt builds a pipeline.Stage per flattened stage and hands
// the whole thing to pipeline.Run, matching spec.md 4.H: every stage
// forks, none execve in place. A stage that resolves to a builtin or
// shell function runs as an in-process goroutine stage instead of an
// external process, since builtins have no executable on disk to fork.
func (e *Engine) runPipelineStmt(st *syntax.Stmt, ctx *execctx.Ctx) (int, error) {
	stmts := flattenPipeline(st)
	stages := make([]pipeline.Stage, 0, len(stmts))
	var cleanups []func()
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()

	for _, s := range stmts {
		stage, cleanup, err := e.buildStage(s, ctx)
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		if err != nil {
			return 1, err
		}
		stages = append(stages, stage)
	}

	background := ctx.Flags().Has(execctx.Background)
	stdio := pipeline.StdIO{In: ctx.Stdin.File(), Out: ctx.Stdout.File(), Err: ctx.Stderr.File()}
	res, err := pipeline.Run(stages, e.Jobs, stdio, background)
	if err != nil {
		return 1, err
	}
	return res.ExitCode, nil
}

// buildStage resolves one pipeline element's command and own
// redirections into a pipeline.Stage. Its opened redirect files (if
// any) are handed straight to the Stage's override fields; pipeline.Run
// wires them into the stage's process or goroutine but does not close
// them, so runPipelineStmt calls the returned cleanup func, which closes
// them, once pipeline.Run has returned.
func (e *Engine) buildStage(s *syntax.Stmt, ctx *execctx.Ctx) (pipeline.Stage, func(), error) {
	x := e.expander()

	files, cleanup, err := openRedirFiles(s.Redirs, x, ctx)
	if err != nil {
		return pipeline.Stage{}, nil, err
	}

	call, ok := s.Cmd.(*syntax.CallExpr)
	if !ok {
		label := "compound"
		return pipeline.Stage{
			Label:  label,
			Stdin:  files[0],
			Stdout: files[1],
			Stderr: files[2],
			Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
				stageCtx := ctx.StageCtx(execctx.NewIOSlot(stdin), execctx.NewIOSlot(stdout), execctx.NewIOSlot(stderr))
				code, runErr := e.runCommand(s.Cmd, stageCtx)
				if runErr != nil && isControlEscape(runErr) {
					return code, nil
				}
				return code, runErr
			},
		}, cleanup, nil
	}

	for _, a := range call.Assigns {
		var val string
		if a.Value != nil {
			v, aerr := x.Word(a.Value)
			if aerr != nil {
				return pipeline.Stage{}, cleanup, aerr
			}
			val = v
		}
		e.Env.SetVar(a.Name.Value, val)
	}

	argv := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		fields, err := x.Fields(w)
		if err != nil {
			return pipeline.Stage{}, cleanup, err
		}
		argv = append(argv, fields...)
	}
	if len(argv) == 0 {
		return pipeline.Stage{
			Label:   "",
			Stderr:  files[2],
			Builtin: func(stdin, stdout, stderr *os.File) (int, error) { return 0, nil },
		}, cleanup, nil
	}

	if v, ok := e.Env.GetAlias(argv[0]); ok {
		argv = append(strings.Fields(v), argv[1:]...)
	}
	name := argv[0]
	args := argv[1:]

	if fn, ok := e.Env.GetFunction(name); ok {
		return pipeline.Stage{
			Label:  name,
			Stdin:  files[0],
			Stdout: files[1],
			Stderr: files[2],
			Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
				stageCtx := ctx.StageCtx(execctx.NewIOSlot(stdin), execctx.NewIOSlot(stdout), execctx.NewIOSlot(stderr))
				return e.callFunction(fn, args, stageCtx)
			},
		}, cleanup, nil
	}

	if builtin.IsBuiltin(name) {
		deps := &builtin.Deps{
			Env:      e.Env,
			Jobs:     e.Jobs,
			DirStack: &e.DirStack,
			Traps:    e.Traps,
		}
		return pipeline.Stage{
			Label:  name,
			Stdin:  files[0],
			Stdout: files[1],
			Stderr: files[2],
			Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
				stageCtx := ctx.StageCtx(execctx.NewIOSlot(stdin), execctx.NewIOSlot(stdout), execctx.NewIOSlot(stderr))
				stageCtx.AddFlags(execctx.InBuiltin)
				return builtin.Execute(name, args, stageCtx, deps)
			},
		}, cleanup, nil
	}

	path, lookErr := exec.LookPath(name)
	if lookErr != nil {
		return pipeline.Stage{}, cleanup, shellerr.NotFound(name)
	}
	spec := &pipeline.ExternalSpec{
		Argv:   append([]string{path}, args...),
		Env:    e.Env.EnvPairs(),
		Stdin:  files[0],
		Stdout: files[1],
		Stderr: files[2],
	}
	return pipeline.Stage{Label: name, External: spec}, cleanup, nil
}
