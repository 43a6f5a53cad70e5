// Package jobs implements the job table: a registry of running jobs
// keyed by pgid with foreground/background states and waitpid
// integration, generalizing oxide's JobBuilder/ChildProc/handle_fg
// (original_source/src/execute/subshell.rs calls into this shape) and
// the teacher's interruptHandler signal-forwarding pattern
// (internal/ebash/ebash.go) into an explicit, testable table instead of
// an ad hoc []*exec.Cmd slice.
package jobs

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// State is one job's lifecycle stage.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Done"
	}
}

// Child is one process record within a job.
type Child struct {
	Pid    int
	Label  string
	Status *int // nil until the child has exited
}

// Job is a pgid-keyed group of children sharing process-group identity.
type Job struct {
	ID       int
	Pgid     int
	State    State
	Children []Child
}

// LastChildStatus returns the exit status of the job's final recorded
// child, used to set $?.
func (j *Job) LastChildStatus() int {
	if len(j.Children) == 0 {
		return 0
	}
	last := j.Children[len(j.Children)-1]
	if last.Status == nil {
		return 0
	}
	return *last.Status
}

// Table is the process-wide job registry. All methods are safe for
// concurrent use because SIGINT forwarding happens from a signal-reading
// goroutine while the main loop may be foregrounding a job.
type Table struct {
	mu        sync.Mutex
	jobs      map[int]*Job
	nextID    int
	shellPgid int
	ttyFd     int
}

// New returns an empty job table bound to the controlling terminal on
// ttyFd (typically os.Stdin.Fd()).
func New(ttyFd int) *Table {
	return &Table{
		jobs:      map[int]*Job{},
		nextID:    1,
		shellPgid: unix.Getpgrp(),
		ttyFd:     ttyFd,
	}
}

// InsertJob assigns the next free job id. If bg, it prints "[id] pgid"
// to stderr and returns immediately; otherwise it blocks via HandleFg
// until the job terminates or stops, matching spec.md 4.E. A foreground
// job that ran to completion is dropped from the table on the way out,
// so `jobs` lists only backgrounded and stopped work, not every command
// the shell has ever run; a job the user stopped (Ctrl-Z) stays
// registered for fg/bg to find.
func (t *Table) InsertJob(j *Job, bg bool) error {
	t.mu.Lock()
	j.ID = t.nextID
	t.nextID++
	t.jobs[j.Pgid] = j
	t.mu.Unlock()

	if bg {
		fmt.Fprintf(os.Stderr, "[%d] %d\n", j.ID, j.Pgid)
		return nil
	}
	err := t.HandleFg(j)
	if j.State == Done {
		t.Remove(j.Pgid)
	}
	return err
}

// HandleFg gives the terminal to the job's pgid, waits (WUNTRACED) until
// every child is terminal, then reclaims the terminal for the shell, per
// spec.md 4.E. The shell's signal mask is not touched.
func (t *Table) HandleFg(j *Job) error {
	if t.ttyFd >= 0 {
		if err := unix.IoctlSetPointerInt(t.ttyFd, unix.TIOCSPGRP, j.Pgid); err != nil {
			// Non-interactive or non-tty stdin: foregrounding is a no-op.
			_ = err
		}
	}

	for _, child := range j.Children {
		var ws unix.WaitStatus
		_, err := unix.Wait4(child.Pid, &ws, unix.WUNTRACED, nil)
		if err != nil {
			continue
		}
		t.recordStatus(j, child.Pid, statusFromWaitStatus(ws), ws.Stopped())
	}

	if t.ttyFd >= 0 {
		_ = unix.IoctlSetPointerInt(t.ttyFd, unix.TIOCSPGRP, t.shellPgid)
	}

	t.mu.Lock()
	allDone := true
	for i := range j.Children {
		if j.Children[i].Status == nil {
			allDone = false
		}
	}
	if allDone {
		j.State = Done
	}
	t.mu.Unlock()

	return nil
}

func statusFromWaitStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return 0
	}
}

func (t *Table) recordStatus(j *Job, pid, status int, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range j.Children {
		if j.Children[i].Pid == pid {
			s := status
			j.Children[i].Status = &s
			break
		}
	}
	if stopped {
		j.State = Stopped
	}
}

// Reap performs a nonblocking poll for completed children across every
// job, transitioning states and reaping in pid order on ties, matching
// spec.md 4.E's tie-break rule.
func (t *Table) Reap() {
	t.mu.Lock()
	var pgids []int
	for pgid := range t.jobs {
		pgids = append(pgids, pgid)
	}
	sort.Ints(pgids)
	t.mu.Unlock()

	for _, pgid := range pgids {
		t.mu.Lock()
		j, ok := t.jobs[pgid]
		t.mu.Unlock()
		if !ok {
			continue
		}
		pids := make([]int, 0, len(j.Children))
		for _, c := range j.Children {
			if c.Status == nil {
				pids = append(pids, c.Pid)
			}
		}
		sort.Ints(pids)
		for _, pid := range pids {
			var ws unix.WaitStatus
			got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			if err != nil || got == 0 {
				continue
			}
			t.recordStatus(j, pid, statusFromWaitStatus(ws), ws.Stopped())
		}

		t.mu.Lock()
		allDone := true
		for i := range j.Children {
			if j.Children[i].Status == nil {
				allDone = false
			}
		}
		if allDone {
			j.State = Done
		}
		t.mu.Unlock()
	}
}

// Jobs returns a snapshot of all jobs, sorted by job id, for the `jobs` builtin.
func (t *Table) Jobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ByID returns the job with the given id, if present.
func (t *Table) ByID(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// SignalForeground forwards sig to every currently-running job's pgid,
// generalizing the teacher's interruptHandler (internal/ebash/ebash.go)
// from a flat []*exec.Cmd loop into a pgid-wide kill.
func (t *Table) SignalForeground(sig unix.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.State == Running {
			_ = unix.Kill(-j.Pgid, sig)
		}
	}
}

// HangupBackground sends SIGHUP to every job still running at shell
// exit, matching spec.md 5's "Background jobs... receive a SIGHUP on
// shell exit".
func (t *Table) HangupBackground() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.State != Done {
			_ = unix.Kill(-j.Pgid, unix.SIGHUP)
		}
	}
}

// Remove discards a completed job from the table.
func (t *Table) Remove(pgid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, pgid)
}
