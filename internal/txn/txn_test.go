package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
	"github.com/skepa-db/skepadb/internal/wal"
)

func TestBeginCommitCycle(t *testing.T) {
	m := NewManager()
	tx, err := m.Begin()
	require.NoError(t, err)
	require.Equal(t, Active, tx.State)

	cur, ok := m.Current()
	require.True(t, ok)
	require.Same(t, tx, cur)

	require.NoError(t, m.Commit())
	_, ok = m.Current()
	require.False(t, ok)
}

func TestBeginTwiceFails(t *testing.T) {
	m := NewManager()
	_, err := m.Begin()
	require.NoError(t, err)

	_, err = m.Begin()
	require.True(t, dberr.Is(err, dberr.KindTxnAlreadyOpen))
}

func TestCommitWithoutBeginFails(t *testing.T) {
	m := NewManager()
	err := m.Commit()
	require.True(t, dberr.Is(err, dberr.KindTxnNotOpen))
}

func TestAutoBeginReportsImplicitVsExplicit(t *testing.T) {
	m := NewManager()

	tx, shouldAutoCommit, err := m.AutoBegin()
	require.NoError(t, err)
	require.True(t, shouldAutoCommit)
	require.Equal(t, Active, tx.State)
	require.NoError(t, m.Commit())

	_, err = m.Begin()
	require.NoError(t, err)
	_, shouldAutoCommit, err = m.AutoBegin()
	require.NoError(t, err)
	require.False(t, shouldAutoCommit)
}

func TestRollbackRequiresActiveTxn(t *testing.T) {
	m := NewManager()
	err := m.Rollback()
	require.True(t, dberr.Is(err, dberr.KindTxnNotOpen))
}

func TestUndoRecordingAndTruncate(t *testing.T) {
	tx := &Txn{State: Active}
	tx.RecordInsert("users", 1)
	tx.RecordUpdate("users", 2, value.Row{value.Int(5)})
	tx.RecordDelete("users", 3, value.Row{value.Int(6)})
	require.Len(t, tx.UndoRecords(), 3)

	mark := 1
	tx.TruncateUndo(mark)
	require.Len(t, tx.UndoRecords(), 1)
	require.Equal(t, UndoInsertedRow, tx.UndoRecords()[0].Kind)
}

func TestFrameBufferingAndTruncate(t *testing.T) {
	tx := &Txn{State: Active}
	tx.BufferFrame(wal.Frame{Kind: wal.KindBegin})
	tx.BufferFrame(wal.Frame{Kind: wal.KindInsert})
	require.Len(t, tx.Frames(), 2)

	tx.TruncateFrames(1)
	require.Len(t, tx.Frames(), 1)
	require.Equal(t, wal.KindBegin, tx.Frames()[0].Kind)
}

func TestFailForceAbortClearsTxn(t *testing.T) {
	m := NewManager()
	_, err := m.Begin()
	require.NoError(t, err)

	m.Fail(true)
	_, ok := m.Current()
	require.False(t, ok)
}

func TestFailWithoutForceAbortKeepsTxnActive(t *testing.T) {
	m := NewManager()
	tx, err := m.Begin()
	require.NoError(t, err)

	m.Fail(false)
	cur, ok := m.Current()
	require.True(t, ok)
	require.Same(t, tx, cur)
}
