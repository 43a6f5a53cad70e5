package execctx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosh-project/gosh/internal/redir"
)

func TestRedirsDrainsPendingList(t *testing.T) {
	c := New()
	c.PushRedir(redir.Record{SourceFd: 1, Path: "a", Mode: redir.ModeWriteTrunc})
	c.PushRedir(redir.Record{SourceFd: 2, Path: "b", Mode: redir.ModeAppend})

	recs := c.Redirs()
	require.Len(t, recs, 2)
	require.Equal(t, "a", recs[0].Path)
	require.Empty(t, c.Redirs(), "Redirs clears the pending list")
}

func TestFlagBitset(t *testing.T) {
	c := New()
	require.False(t, c.Flags().Has(Background))

	c.AddFlags(Background | InPipe)
	require.True(t, c.Flags().Has(Background))
	require.True(t, c.Flags().Has(InPipe))
	require.False(t, c.Flags().Has(NoFork))

	c.SetFlags(NoFork)
	require.True(t, c.Flags().Has(NoFork))
	require.False(t, c.Flags().Has(Background))
}

func TestNewInheritsProcessStreams(t *testing.T) {
	c := New()
	require.Equal(t, os.Stdin, c.Stdin.File())
	require.Equal(t, os.Stdout, c.Stdout.File())
	require.Equal(t, os.Stderr, c.Stderr.File())
}

func TestStageCtxGainsInPipeAndDropsPending(t *testing.T) {
	c := New()
	c.AddFlags(Background)
	c.PushRedir(redir.Record{SourceFd: 1})

	stage := c.StageCtx(NewIOSlot(nil), NewIOSlot(nil), c.Stderr)
	require.True(t, stage.Flags().Has(InPipe))
	require.True(t, stage.Flags().Has(Background), "stage inherits the parent's flags")
	require.Empty(t, stage.Redirs(), "pending redirections stay with the parent")
	require.Len(t, c.Redirs(), 1)
}

func TestIOSlotSetAndNilSafety(t *testing.T) {
	var nilSlot *IOSlot
	require.Nil(t, nilSlot.File())

	s := NewIOSlot(nil)
	require.Nil(t, s.File())
	s.Set(os.Stdout)
	require.Equal(t, os.Stdout, s.File())
}
