package jobs

import (
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertJobAssignsSequentialIDs(t *testing.T) {
	jt := New(-1)

	j1 := &Job{Pgid: 111111, State: Running}
	j2 := &Job{Pgid: 222222, State: Running}
	require.NoError(t, jt.InsertJob(j1, true))
	require.NoError(t, jt.InsertJob(j2, true))

	require.Equal(t, 1, j1.ID)
	require.Equal(t, 2, j2.ID)

	got, ok := jt.ByID(2)
	require.True(t, ok)
	require.Equal(t, j2, got)

	_, ok = jt.ByID(99)
	require.False(t, ok)
}

func TestJobsSnapshotSortedByID(t *testing.T) {
	jt := New(-1)
	require.NoError(t, jt.InsertJob(&Job{Pgid: 333333}, true))
	require.NoError(t, jt.InsertJob(&Job{Pgid: 111111}, true))
	require.NoError(t, jt.InsertJob(&Job{Pgid: 222222}, true))

	js := jt.Jobs()
	require.Len(t, js, 3)
	for i, j := range js {
		require.Equal(t, i+1, j.ID)
	}

	jt.Remove(111111)
	require.Len(t, jt.Jobs(), 2)
}

func TestLastChildStatus(t *testing.T) {
	j := &Job{}
	require.Equal(t, 0, j.LastChildStatus())

	status := 3
	j.Children = []Child{{Pid: 1, Status: nil}, {Pid: 2, Status: &status}}
	require.Equal(t, 3, j.LastChildStatus())

	j.Children[1].Status = nil
	require.Equal(t, 0, j.LastChildStatus())
}

// startChild forks a real process in its own process group, the way the
// pipeline executor does, so HandleFg/Reap have something to wait on.
func startChild(t *testing.T, argv ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	return cmd
}

func TestHandleFgWaitsChildrenToDone(t *testing.T) {
	jt := New(-1)
	cmd := startChild(t, "true")

	j := &Job{
		Pgid:     cmd.Process.Pid,
		State:    Running,
		Children: []Child{{Pid: cmd.Process.Pid, Label: "true"}},
	}
	require.NoError(t, jt.InsertJob(j, false))

	require.Equal(t, Done, j.State)
	require.Equal(t, 0, j.LastChildStatus())
	require.Empty(t, jt.Jobs(), "a completed foreground job does not linger in the table")
}

func TestHandleFgRecordsNonzeroStatus(t *testing.T) {
	jt := New(-1)
	cmd := startChild(t, "false")

	j := &Job{
		Pgid:     cmd.Process.Pid,
		State:    Running,
		Children: []Child{{Pid: cmd.Process.Pid, Label: "false"}},
	}
	require.NoError(t, jt.InsertJob(j, false))

	require.Equal(t, Done, j.State)
	require.Equal(t, 1, j.LastChildStatus())
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "Running", Running.String())
	require.Equal(t, "Stopped", Stopped.String())
	require.Equal(t, "Done", Done.String())
}
