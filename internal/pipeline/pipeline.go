// Package pipeline implements the pipeline half of component H: forking
// children, wiring pipes between them, assigning a shared pgid, and
// waiting for completion. It generalizes the teacher's Shell.runPipe
// (internal/ebash/ebash.go), replacing its flat []*exec.Cmd bookkeeping
// with explicit job-table registration, and closes the "execve without
// fork on the final stage" hazard flagged in SPEC_FULL.md 7 by always
// starting every external stage, including the last, via os/exec (which
// performs fork+exec as one atomic step — there is no in-place "replace
// this process" path anywhere in this package). Builtin stages run on
// goroutines inside the shell process.
package pipeline

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/gosh-project/gosh/internal/jobs"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// ExternalSpec describes one external-command pipeline stage. Stdin/
// Stdout/Stderr are optional overrides: when set (typically because the
// command carries its own redirection), they take priority over the
// pipe plumbing Run would otherwise wire up for that slot.
type ExternalSpec struct {
	Argv   []string
	Env    []string
	Dir    string
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// BuiltinFunc runs one in-process pipeline stage against the given
// stdin/stdout/stderr files, returning its exit status.
type BuiltinFunc func(stdin, stdout, stderr *os.File) (int, error)

// Stage is one pipeline element: exactly one of External or Builtin is set.
// Stdin/Stdout/Stderr override the stage's streams for both kinds (e.g. a
// builtin stage with its own "< file" redirect); External.Stdin/Stdout
// additionally exist so external specs built without a Stage wrapper
// still carry their own overrides.
type Stage struct {
	Label    string
	External *ExternalSpec
	Builtin  BuiltinFunc
	Stdin    *os.File
	Stdout   *os.File
	Stderr   *os.File
}

// Result carries the pipeline's overall exit status, matching spec.md
// 4.H's "no pipefail" rule: $? becomes the last stage's exit status.
type Result struct {
	ExitCode int
}

// StdIO carries the streams the pipeline's outermost ends inherit: the
// first stage's stdin, the last stage's stdout, and every stage's
// stderr. Nil fields fall back to the process's own streams.
type StdIO struct {
	In, Out, Err *os.File
}

func (s StdIO) in() *os.File {
	if s.In != nil {
		return s.In
	}
	return os.Stdin
}

func (s StdIO) out() *os.File {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

func (s StdIO) err() *os.File {
	if s.Err != nil {
		return s.Err
	}
	return os.Stderr
}

// Run wires stages together with pipes, starts every stage, closes the
// parent's copies of the internal pipe ends, and waits for completion.
// background controls whether the job table blocks (foreground) or
// reports the job id and returns immediately.
func Run(stages []Stage, jt *jobs.Table, stdio StdIO, background bool) (*Result, error) {
	n := len(stages)
	if n == 0 {
		return &Result{ExitCode: 0}, nil
	}

	readEnds := make([]*os.File, n)
	writeEnds := make([]*os.File, n)
	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(readEnds, writeEnds)
			return nil, shellerr.Io("pipeline", err)
		}
		readEnds[i+1] = r
		writeEnds[i] = w
	}

	cmds := make([]*exec.Cmd, n)
	builtinDone := make([]chan int, n)
	var pgid int

	for i, stage := range stages {
		stdin := stdio.in()
		if readEnds[i] != nil {
			stdin = readEnds[i]
		}
		stdout := stdio.out()
		if writeEnds[i] != nil {
			stdout = writeEnds[i]
		}
		if stage.Stdin != nil {
			stdin = stage.Stdin
		}
		if stage.Stdout != nil {
			stdout = stage.Stdout
		}

		if stage.External != nil {
			if stage.External.Stdin != nil {
				stdin = stage.External.Stdin
			}
			if stage.External.Stdout != nil {
				stdout = stage.External.Stdout
			}
			stderr := stdio.err()
			if stage.Stderr != nil {
				stderr = stage.Stderr
			}
			if stage.External.Stderr != nil {
				stderr = stage.External.Stderr
			}
			cmd := exec.Command(stage.External.Argv[0], stage.External.Argv[1:]...)
			cmd.Env = stage.External.Env
			cmd.Dir = stage.External.Dir
			cmd.Stdin = stdin
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
			if err := cmd.Start(); err != nil {
				closeAll(readEnds, writeEnds)
				return nil, shellerr.NotFound(stage.External.Argv[0])
			}
			if pgid == 0 {
				pgid = cmd.Process.Pid
			}
			cmds[i] = cmd
			// Parent no longer needs its copy of either pipe end once
			// the child owning it has been forked, matching the
			// teacher's closeDescriptors call after each stage in
			// runPipe.
			if readEnds[i] != nil {
				_ = readEnds[i].Close()
			}
			if writeEnds[i] != nil {
				_ = writeEnds[i].Close()
			}
			readEnds[i], writeEnds[i] = nil, nil
		} else {
			done := make(chan int, 1)
			builtinDone[i] = done
			bi, bo := stdin, stdout
			be := stdio.err()
			if stage.Stderr != nil {
				be = stage.Stderr
			}
			// A builtin stage runs in this process, so the "parent's
			// copy" of its pipe ends IS the stage's copy: they must stay
			// open until the stage finishes, then close so neighbors see
			// EOF. Override files are the caller's to close.
			pr, pw := readEnds[i], writeEnds[i]
			readEnds[i], writeEnds[i] = nil, nil
			fn := stage.Builtin
			go func() {
				code, _ := fn(bi, bo, be)
				if pw != nil {
					_ = pw.Close()
				}
				if pr != nil {
					_ = pr.Close()
				}
				done <- code
			}()
		}
	}

	lastCode := 0
	var children []jobs.Child
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		children = append(children, jobs.Child{Pid: cmd.Process.Pid, Label: stages[i].Label})
	}

	if len(children) > 0 {
		j := &jobs.Job{Pgid: pgid, State: jobs.Running, Children: children}
		if err := jt.InsertJob(j, background); err != nil {
			return nil, err
		}
		lastCode = j.LastChildStatus()
	}

	// A background pipeline's builtin stages keep running in their
	// goroutines; only a foreground pipeline blocks on them here.
	if !background {
		for i := n - 1; i >= 0; i-- {
			if builtinDone[i] != nil {
				code := <-builtinDone[i]
				if i == n-1 {
					lastCode = code
				}
			}
		}
	}

	return &Result{ExitCode: lastCode}, nil
}

func closeAll(readEnds, writeEnds []*os.File) {
	for _, f := range readEnds {
		if f != nil {
			_ = f.Close()
		}
	}
	for _, f := range writeEnds {
		if f != nil {
			_ = f.Close()
		}
	}
}
