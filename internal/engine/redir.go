package engine

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gosh-project/gosh/internal/execctx"
	"github.com/gosh-project/gosh/internal/expand"
	"github.com/gosh-project/gosh/internal/fdio"
	"github.com/gosh-project/gosh/internal/redir"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// redirRecords converts a statement's *syntax.Redirect list into
// redir.Record values, resolving each word through x first. The records
// feed the execution context's pending list, which the `exec` builtin
// drains into a redir.Set when asked to rewire the shell's own
// descriptor table permanently. Here-documents (Hdoc, DashHdoc) are not
// implemented; encountering one is an Expansion-class error rather than
// a silent skip.
func redirRecords(redirs []*syntax.Redirect, x *expand.Expander) ([]redir.Record, error) {
	records := make([]redir.Record, 0, len(redirs))
	for _, r := range redirs {
		rec := redir.Record{SourceFd: defaultFd(r)}
		if r.N != nil {
			if n, err := strconv.Atoi(r.N.Value); err == nil {
				rec.SourceFd = n
			}
		}

		switch r.Op {
		case syntax.RdrIn:
			rec.Mode = redir.ModeRead
		case syntax.RdrOut:
			rec.Mode = redir.ModeWriteTrunc
		case syntax.AppOut:
			rec.Mode = redir.ModeAppend
		case syntax.RdrInOut:
			rec.Mode = redir.ModeReadWrite
		case syntax.ClbOut:
			rec.Mode = redir.ModeWriteTrunc
		case syntax.DplIn, syntax.DplOut:
			word, err := x.Word(r.Word)
			if err != nil {
				return nil, err
			}
			if word == "-" {
				rec.Mode = redir.ModeClose
				rec.Close = true
				break
			}
			n, err := strconv.Atoi(word)
			if err != nil {
				return nil, shellerr.Expansionf("redirect: %q is not a file descriptor", word)
			}
			rec.DupFd = n
			if r.Op == syntax.DplIn {
				rec.Mode = redir.ModeDupIn
			} else {
				rec.Mode = redir.ModeDupOut
			}
		case syntax.WordHdoc:
			s, err := x.Word(r.Word)
			if err != nil {
				return nil, err
			}
			rec.Mode = redir.ModeHereString
			rec.HereStr = s + "\n"
			records = append(records, rec)
			continue
		case syntax.Hdoc, syntax.DashHdoc:
			return nil, shellerr.Expansionf("redirect: here-documents are not supported")
		default:
			return nil, shellerr.Expansionf("redirect: unsupported operator")
		}

		if rec.Mode != redir.ModeClose && rec.Mode != redir.ModeDupIn && rec.Mode != redir.ModeDupOut {
			path, err := x.Word(r.Word)
			if err != nil {
				return nil, err
			}
			rec.Path = path
		}
		records = append(records, rec)
	}
	return records, nil
}

func defaultFd(r *syntax.Redirect) int {
	switch r.Op {
	case syntax.RdrIn, syntax.DplIn:
		return 0
	default:
		return 1
	}
}

// openRedirFiles resolves a command or pipeline stage's redirections into
// plain *os.File overrides for fds 0/1/2, backed by fdio's owning handles
// for the open/memfd work itself. Unlike redirRecords (which feeds the
// `exec` builtin's permanent dup2-onto-the-live-table path), this is the
// wiring used for ordinary per-command and per-pipeline-stage
// redirection: each external command already gets an independent OS-level
// fd table from fork+exec, so there is no live descriptor to dup2 onto,
// and handing os/exec a plain *os.File does the activate step for it.
func openRedirFiles(redirs []*syntax.Redirect, x *expand.Expander, ctx *execctx.Ctx) (map[int]*os.File, func(), error) {
	out := map[int]*os.File{}
	var handles []*fdio.Handle
	cleanup := func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}

	current := func(fd int) *os.File {
		if f, ok := out[fd]; ok {
			return f
		}
		switch fd {
		case 0:
			return ctx.Stdin.File()
		case 1:
			return ctx.Stdout.File()
		case 2:
			return ctx.Stderr.File()
		}
		return nil
	}

	for _, r := range redirs {
		fdNum := defaultFd(r)
		if r.N != nil {
			if n, err := strconv.Atoi(r.N.Value); err == nil {
				fdNum = n
			}
		}

		switch r.Op {
		case syntax.RdrIn:
			path, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			h, err := fdio.Open(path, unix.O_RDONLY, 0)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Io("redir", err)
			}
			handles = append(handles, h)
			out[fdNum] = os.NewFile(uintptr(h.Fd()), path)
		case syntax.RdrOut, syntax.ClbOut:
			path, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			h, err := fdio.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Io("redir", err)
			}
			handles = append(handles, h)
			out[fdNum] = os.NewFile(uintptr(h.Fd()), path)
		case syntax.AppOut:
			path, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			h, err := fdio.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_APPEND, 0644)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Io("redir", err)
			}
			handles = append(handles, h)
			out[fdNum] = os.NewFile(uintptr(h.Fd()), path)
		case syntax.RdrInOut:
			path, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			h, err := fdio.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Io("redir", err)
			}
			handles = append(handles, h)
			out[fdNum] = os.NewFile(uintptr(h.Fd()), path)
		case syntax.DplIn, syntax.DplOut:
			word, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			if word == "-" {
				out[fdNum] = nil
				continue
			}
			n, err := strconv.Atoi(word)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Expansionf("redirect: %q is not a file descriptor", word)
			}
			out[fdNum] = current(n)
		case syntax.WordHdoc:
			s, err := x.Word(r.Word)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			h, err := fdio.NewMemfd("herestring", false)
			if err != nil {
				cleanup()
				return nil, nil, shellerr.Io("redir", err)
			}
			if _, werr := h.Write([]byte(s + "\n")); werr != nil {
				_ = h.Close()
				cleanup()
				return nil, nil, shellerr.Io("redir", werr)
			}
			if _, serr := unix.Seek(h.Fd(), 0, 0); serr != nil {
				_ = h.Close()
				cleanup()
				return nil, nil, shellerr.Io("redir", serr)
			}
			handles = append(handles, h)
			out[fdNum] = os.NewFile(uintptr(h.Fd()), "herestring")
		case syntax.Hdoc, syntax.DashHdoc:
			cleanup()
			return nil, nil, shellerr.Expansionf("redirect: here-documents are not supported")
		default:
			cleanup()
			return nil, nil, shellerr.Expansionf("redirect: unsupported operator")
		}
	}
	return out, cleanup, nil
}
