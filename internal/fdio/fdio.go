// Package fdio implements the owning file-descriptor handle used
// throughout the engine: a single-owner wrapper around one kernel
// descriptor with dup/dup2/close discipline and memfd creation for
// subshell scripts and here-strings.
package fdio

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Handle owns exactly one kernel descriptor at a time. The zero value is
// not usable; construct with New, Open, or NewMemfd.
type Handle struct {
	fd     int
	name   string
	closed bool
}

// ErrAlreadyClosed is returned by every operation performed on a Handle
// after Close has already run once.
var ErrAlreadyClosed = fmt.Errorf("fdio: already closed")

// ErrBadFd is returned by New when asked to adopt a negative descriptor.
var ErrBadFd = fmt.Errorf("fdio: bad file descriptor")

// New takes ownership of an already-open descriptor.
func New(fd int) (*Handle, error) {
	if fd < 0 {
		return nil, ErrBadFd
	}
	return &Handle{fd: fd, name: fmt.Sprintf("fd%d", fd)}, nil
}

// Open opens a filesystem path with the given flags and mode, taking
// ownership of the resulting descriptor.
func Open(path string, flags int, mode uint32) (*Handle, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return nil, fmt.Errorf("fdio: open %s: %w", path, err)
	}
	return &Handle{fd: fd, name: path}, nil
}

// NewMemfd creates an anonymous, RAM-backed file with the given advisory
// name. When cloexec is true the descriptor is marked close-on-exec;
// subshell scripts that need to survive into a child's execve pass
// cloexec=false and rely on /proc/self/fd/<n> instead.
func NewMemfd(name string, cloexec bool) (*Handle, error) {
	var flags int
	if cloexec {
		flags = unix.MFD_CLOEXEC
	}
	fd, err := unix.MemfdCreate(name, flags)
	if err != nil {
		return nil, fmt.Errorf("fdio: memfd_create %s: %w", name, err)
	}
	return &Handle{fd: fd, name: name}, nil
}

// Fd returns the underlying kernel descriptor number. Valid only while
// the handle is open.
func (h *Handle) Fd() int { return h.fd }

// Path returns the /proc/self/fd path for this handle, usable to exec a
// memfd-backed script without touching disk.
func (h *Handle) Path() string {
	return fmt.Sprintf("/proc/self/fd/%d", h.fd)
}

// Dup produces a new independent owner of a duplicate descriptor.
func (h *Handle) Dup() (*Handle, error) {
	if h.closed {
		return nil, ErrAlreadyClosed
	}
	nfd, err := unix.Dup(h.fd)
	if err != nil {
		return nil, fmt.Errorf("fdio: dup: %w", err)
	}
	return &Handle{fd: nfd, name: h.name}, nil
}

// Dup2 atomically replaces target with this handle's descriptor, closing
// whatever target previously pointed at.
func (h *Handle) Dup2(target int) error {
	if h.closed {
		return ErrAlreadyClosed
	}
	if err := unix.Dup2(h.fd, target); err != nil {
		return fmt.Errorf("fdio: dup2 -> %d: %w", target, err)
	}
	return nil
}

// Write performs a full write, retrying on short writes, and fails with
// an Io-class error on any underlying failure.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, ErrAlreadyClosed
	}
	total := 0
	for total < len(p) {
		n, err := unix.Write(h.fd, p[total:])
		if err != nil {
			return total, fmt.Errorf("fdio: write: %w", err)
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
		total += n
	}
	return total, nil
}

// Read reads the handle to EOF and returns the accumulated bytes.
func (h *Handle) Read() ([]byte, error) {
	if h.closed {
		return nil, ErrAlreadyClosed
	}
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := unix.Read(h.fd, chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return buf, fmt.Errorf("fdio: read: %w", err)
		}
		if n == 0 {
			return buf, nil
		}
	}
}

// Close is idempotent: the first call releases the kernel descriptor;
// every subsequent call returns ErrAlreadyClosed and performs no syscall.
func (h *Handle) Close() error {
	if h.closed {
		return ErrAlreadyClosed
	}
	h.closed = true
	if err := unix.Close(h.fd); err != nil {
		return fmt.Errorf("fdio: close: %w", err)
	}
	return nil
}

// Closed reports whether Close has already run.
func (h *Handle) Closed() bool { return h.closed }
