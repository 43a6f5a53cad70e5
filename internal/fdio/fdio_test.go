package fdio

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNegativeFd(t *testing.T) {
	_, err := New(-1)
	require.ErrorIs(t, err, ErrBadFd)
}

func TestOpenWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")

	w, err := Open(path, unix.O_WRONLY|unix.O_CREAT, 0644)
	require.NoError(t, err)
	n, err := w.Write([]byte("payload"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, w.Close())

	r, err := Open(path, unix.O_RDONLY, 0)
	require.NoError(t, err)
	data, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
	require.NoError(t, r.Close())
}

func TestCloseIsIdempotentButObservable(t *testing.T) {
	h, err := NewMemfd("close-test", false)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.True(t, h.Closed())

	require.ErrorIs(t, h.Close(), ErrAlreadyClosed)
	_, err = h.Write([]byte("x"))
	require.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = h.Read()
	require.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = h.Dup()
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.ErrorIs(t, h.Dup2(50), ErrAlreadyClosed)
}

func TestDupProducesIndependentOwner(t *testing.T) {
	h, err := NewMemfd("dup-test", false)
	require.NoError(t, err)

	dup, err := h.Dup()
	require.NoError(t, err)
	require.NotEqual(t, h.Fd(), dup.Fd())

	// Closing the original leaves the duplicate usable.
	require.NoError(t, h.Close())
	_, err = dup.Write([]byte("still open"))
	require.NoError(t, err)
	require.NoError(t, dup.Close())
}

func TestMemfdVisibleThroughProcPath(t *testing.T) {
	h, err := NewMemfd("proc-test", false)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write([]byte("via proc"))
	require.NoError(t, err)

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	require.Equal(t, "via proc", string(data))
}

func TestDup2ReplacesTarget(t *testing.T) {
	h, err := NewMemfd("dup2-test", false)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Write([]byte("hi"))
	require.NoError(t, err)

	spare, err := unix.Dup(h.Fd())
	require.NoError(t, err)
	require.NoError(t, h.Dup2(spare))

	data, err := os.ReadFile("/proc/self/fd/" + strconv.Itoa(spare))
	require.NoError(t, err)
	require.Equal(t, "hi", string(data))
	require.NoError(t, unix.Close(spare))
}

