// Package execctx implements the transient per-command execution
// context: pending redirections, the flag bitset (NO_FORK, BACKGROUND,
// IN_PIPE, IN_BUILTIN), and the three IO slots a pipeline stage may
// share with its neighbors.
package execctx

import (
	"os"
	"sync"

	"github.com/gosh-project/gosh/internal/redir"
)

// Flags is the per-command bitset from spec.md 3's Execution context.
type Flags uint32

const (
	NoFork Flags = 1 << iota
	Background
	InPipe
	InBuiltin
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// IOSlot holds a shareable, mutex-protected *os.File: "shared" means a
// parent pipeline stage owns it and this context may only Dup/Dup2 off
// it, never close it outright.
type IOSlot struct {
	mu   sync.Mutex
	file *os.File
}

// NewIOSlot wraps f (which may be nil, meaning "inherit the shell's own
// descriptor") in a shareable cell.
func NewIOSlot(f *os.File) *IOSlot { return &IOSlot{file: f} }

// File returns the wrapped *os.File under the slot's lock.
func (s *IOSlot) File() *os.File {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

// Set replaces the wrapped file under the slot's lock.
func (s *IOSlot) Set(f *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = f
}

// Ctx is the scratch state threaded through one command's execution.
// A fresh Ctx is created per top-level command and inherited by move
// into pipeline stages, which may additionally gain InPipe and piped
// stdin/stdout slots.
type Ctx struct {
	pending []redir.Record
	flags   Flags
	Stdin   *IOSlot
	Stdout  *IOSlot
	Stderr  *IOSlot
}

// New returns a fresh per-command context inheriting the process's own
// standard streams.
func New() *Ctx {
	return &Ctx{
		Stdin:  NewIOSlot(os.Stdin),
		Stdout: NewIOSlot(os.Stdout),
		Stderr: NewIOSlot(os.Stderr),
	}
}

// PushRedir appends one record to the pending redirection list.
func (c *Ctx) PushRedir(r redir.Record) { c.pending = append(c.pending, r) }

// Redirs returns the pending redirections and clears the list, matching
// spec.md 4.D's one-shot drain semantics.
func (c *Ctx) Redirs() []redir.Record {
	r := c.pending
	c.pending = nil
	return r
}

// Flags returns the current flag bitset.
func (c *Ctx) Flags() Flags { return c.flags }

// SetFlags replaces the flag bitset.
func (c *Ctx) SetFlags(f Flags) { c.flags = f }

// AddFlags ORs bits into the flag bitset.
func (c *Ctx) AddFlags(f Flags) { c.flags |= f }

// StageCtx derives a pipeline-stage context: flags gain InPipe, the IO
// slots are whatever the pipeline executor wired up for this stage, and
// pending redirections are NOT inherited (each stage carries its own
// node's redirections).
func (c *Ctx) StageCtx(stdin, stdout, stderr *IOSlot) *Ctx {
	return &Ctx{
		flags:  c.flags | InPipe,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}
}
