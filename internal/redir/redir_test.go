package redir

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/require"
)

// The tests below redirect a high descriptor number rather than 0/1/2 so
// a failing run cannot wedge the test process's own stdio.
const testFd = 157

func fdIsOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func TestActivateWritesThroughAndRevertRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	require.False(t, fdIsOpen(testFd))

	set := New([]Record{{SourceFd: testFd, Path: path, Mode: ModeWriteTrunc}})
	require.NoError(t, set.Activate())
	require.True(t, fdIsOpen(testFd))

	_, err := unix.Write(testFd, []byte("through the set\n"))
	require.NoError(t, err)

	require.NoError(t, set.CloseAll())
	require.NoError(t, set.Revert())

	// testFd had no prior occupant, so revert closes it outright.
	require.False(t, fdIsOpen(testFd))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "through the set\n", string(data))
}

func TestActivateRevertRestoresPriorOccupant(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")

	f, err := os.OpenFile(first, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, unix.Dup2(int(f.Fd()), testFd))

	set := New([]Record{{SourceFd: testFd, Path: second, Mode: ModeWriteTrunc}})
	require.NoError(t, set.Activate())
	_, err = unix.Write(testFd, []byte("redirected"))
	require.NoError(t, err)

	require.NoError(t, set.CloseAll())
	require.NoError(t, set.Revert())

	// After revert, testFd points back at the first file.
	_, err = unix.Write(testFd, []byte("restored"))
	require.NoError(t, err)
	require.NoError(t, unix.Close(testFd))

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, "redirected", string(data))
	data, err = os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, "restored", string(data))
}

func TestActivateFailureLeavesTableUntouched(t *testing.T) {
	require.False(t, fdIsOpen(testFd))

	set := New([]Record{
		{SourceFd: testFd, Path: filepath.Join(t.TempDir(), "ok"), Mode: ModeWriteTrunc},
		{SourceFd: testFd + 1, Path: "/definitely/not/a/real/dir/x", Mode: ModeRead},
	})
	require.Error(t, set.Activate())

	require.False(t, fdIsOpen(testFd))
	require.False(t, fdIsOpen(testFd+1))
}

func TestHereStringRecord(t *testing.T) {
	set := New([]Record{{SourceFd: testFd, Mode: ModeHereString, HereStr: "words in\n"}})
	require.NoError(t, set.Activate())

	buf := make([]byte, 64)
	n, err := unix.Read(testFd, buf)
	require.NoError(t, err)
	require.Equal(t, "words in\n", string(buf[:n]))

	require.NoError(t, set.CloseAll())
	require.NoError(t, set.Revert())
	require.False(t, fdIsOpen(testFd))
}

func TestCloseRecord(t *testing.T) {
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, unix.Dup2(int(f.Fd()), testFd))
	require.True(t, fdIsOpen(testFd))

	set := New([]Record{{SourceFd: testFd, Mode: ModeClose, Close: true}})
	require.NoError(t, set.Activate())
	require.False(t, fdIsOpen(testFd))

	// Revert restores the saved descriptor.
	require.NoError(t, set.Revert())
	require.True(t, fdIsOpen(testFd))
	require.NoError(t, unix.Close(testFd))
}

func TestEmptySet(t *testing.T) {
	set := New(nil)
	require.True(t, set.Empty())
	require.NoError(t, set.Activate())
	require.NoError(t, set.Revert())
}
