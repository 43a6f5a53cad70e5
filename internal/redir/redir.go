// Package redir implements the redirection record and redirection set:
// a tagged union of redirection targets (spec.md 9's "Tagged union for
// redirection targets") applied and reverted atomically around one
// command, generalizing the teacher's inline os.Create/os.Open calls in
// internal/parser/parser.go into a reusable, revertible transaction.
package redir

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gosh-project/gosh/internal/fdio"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// Mode names the redirection's effect on the source descriptor.
type Mode int

const (
	ModeRead Mode = iota
	ModeWriteTrunc
	ModeAppend
	ModeReadWrite
	ModeDupIn
	ModeDupOut
	ModeClose
	ModeHereString
)

// Record is one redirection spec: a tuple of source fd, target, mode,
// matching spec.md 3's "Redirection record (C)".
type Record struct {
	SourceFd int
	Path     string // used when Mode is one of the file modes
	DupFd    int    // used when Mode is ModeDupIn/ModeDupOut
	HereStr  string // used when Mode is ModeHereString
	Close    bool   // "close fd N" form
	Mode     Mode
}

// activation tracks one applied record so Set.Revert can undo it.
type activation struct {
	sourceFd int
	saved    *fdio.Handle // nil if the source fd was previously unopened
	opened   *fdio.Handle // the descriptor acquired during activate, for close_all
}

// Set is an ordered sequence of redirection records plus the stash of
// saved descriptors needed to undo them.
type Set struct {
	records []Record
	applied []activation
}

// New builds a Set from records in textual order.
func New(records []Record) *Set {
	return &Set{records: records}
}

// Empty reports whether the set has no records to apply.
func (s *Set) Empty() bool { return len(s.records) == 0 }

// Activate applies every record in textual order per spec.md 4.C:
// save the current descriptor at source-fd, open/resolve the target,
// dup2 it onto source-fd (or close source-fd for the Close form). If
// any step fails, already-saved originals are restored before
// returning, leaving the FD table exactly as it was pre-call.
func (s *Set) Activate() error {
	for _, rec := range s.records {
		act := activation{sourceFd: rec.SourceFd}

		if saved, err := fdio.New(rec.SourceFd); err == nil {
			if dup, derr := saved.Dup(); derr == nil {
				act.saved = dup
			}
		}

		if rec.Close {
			_ = unix.Close(rec.SourceFd)
			s.applied = append(s.applied, act)
			continue
		}

		target, err := s.resolveTarget(rec)
		if err != nil {
			s.revertApplied()
			return err
		}
		if target != nil {
			act.opened = target
			if derr := target.Dup2(rec.SourceFd); derr != nil {
				_ = target.Close()
				s.revertApplied()
				return shellerr.Io("redir", derr)
			}
		}

		s.applied = append(s.applied, act)
	}
	return nil
}

func (s *Set) resolveTarget(rec Record) (*fdio.Handle, error) {
	switch rec.Mode {
	case ModeRead:
		h, err := fdio.Open(rec.Path, unix.O_RDONLY, 0)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		return h, nil
	case ModeWriteTrunc:
		h, err := fdio.Open(rec.Path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		return h, nil
	case ModeAppend:
		h, err := fdio.Open(rec.Path, unix.O_WRONLY|unix.O_CREAT|unix.O_APPEND, 0644)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		return h, nil
	case ModeReadWrite:
		h, err := fdio.Open(rec.Path, unix.O_RDWR|unix.O_CREAT, 0644)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		return h, nil
	case ModeDupIn, ModeDupOut:
		h, err := fdio.New(rec.DupFd)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		return h, nil
	case ModeHereString:
		h, err := fdio.NewMemfd("herestring", false)
		if err != nil {
			return nil, shellerr.Io("redir", err)
		}
		if _, werr := h.Write([]byte(rec.HereStr)); werr != nil {
			_ = h.Close()
			return nil, shellerr.Io("redir", werr)
		}
		if _, serr := unix.Seek(h.Fd(), 0, 0); serr != nil {
			_ = h.Close()
			return nil, shellerr.Io("redir", serr)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("redir: unknown mode %v", rec.Mode)
	}
}

// CloseAll closes every descriptor acquired during Activate, leaving the
// saved originals untouched.
func (s *Set) CloseAll() error {
	var first error
	for _, act := range s.applied {
		if act.opened != nil {
			if err := act.opened.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Revert restores saved descriptors with Dup2 and closes the saves,
// undoing every applied record in reverse order.
func (s *Set) Revert() error {
	var first error
	for i := len(s.applied) - 1; i >= 0; i-- {
		act := s.applied[i]
		if act.saved != nil {
			if err := act.saved.Dup2(act.sourceFd); err != nil && first == nil {
				first = err
			}
			_ = act.saved.Close()
		} else {
			_ = unix.Close(act.sourceFd)
		}
	}
	s.applied = nil
	return first
}

func (s *Set) revertApplied() {
	_ = s.Revert()
}
