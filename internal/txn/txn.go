// Package txn implements the transaction manager: a single
// active transaction per process, an in-memory undo set, and the buffer
// of not-yet-flushed WAL frames a commit or rollback consumes. Modeled
// on DaemonDB's storage_engine/transaction_manager for the state-machine
// shape (Idle/Active/Committing/Aborting) and tuannm99/novasql's package
// layout for naming.
package txn

import (
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
	"github.com/skepa-db/skepadb/internal/wal"
)

// State is the transaction life-cycle state.
type State uint8

const (
	Idle State = iota
	Active
	Committing
	Aborting
)

// UndoKind tags an undo record's shape.
type UndoKind uint8

const (
	UndoInsertedRow UndoKind = iota + 1
	UndoUpdatedRow
	UndoDeletedRow
)

// Undo is one reversible effect of a statement executed inside the
// current transaction.
type Undo struct {
	Kind    UndoKind
	Table   string
	RowID   uint64
	PrevRow value.Row // Updated/Deleted: the row as it was before
}

// Txn is the single in-flight transaction.
type Txn struct {
	ID    uint64
	State State

	undo   []Undo
	frames []wal.Frame
}

// RecordInsert appends an undo record for a freshly inserted row.
func (t *Txn) RecordInsert(table string, rowID uint64) {
	t.undo = append(t.undo, Undo{Kind: UndoInsertedRow, Table: table, RowID: rowID})
}

// RecordUpdate appends an undo record capturing the pre-update row.
func (t *Txn) RecordUpdate(table string, rowID uint64, prev value.Row) {
	t.undo = append(t.undo, Undo{Kind: UndoUpdatedRow, Table: table, RowID: rowID, PrevRow: prev})
}

// RecordDelete appends an undo record capturing the pre-delete row.
func (t *Txn) RecordDelete(table string, rowID uint64, prev value.Row) {
	t.undo = append(t.undo, Undo{Kind: UndoDeletedRow, Table: table, RowID: rowID, PrevRow: prev})
}

// UndoRecords returns the accumulated undo log, most-recent-last.
func (t *Txn) UndoRecords() []Undo { return t.undo }

// TruncateUndo drops every undo record from index n onward, used when
// unwinding just the most recent statement's effects.
func (t *Txn) TruncateUndo(n int) { t.undo = t.undo[:n] }

// BufferFrame appends a WAL frame the commit path will flush in order.
func (t *Txn) BufferFrame(f wal.Frame) { t.frames = append(t.frames, f) }

// Frames returns the buffered, not-yet-written WAL frames.
func (t *Txn) Frames() []wal.Frame { return t.frames }

// TruncateFrames drops every buffered frame from index n onward.
func (t *Txn) TruncateFrames(n int) { t.frames = t.frames[:n] }

// Manager owns the single active transaction slot.
type Manager struct {
	nextID uint64
	cur    *Txn
}

func NewManager() *Manager { return &Manager{} }

// Current returns the active transaction, if one is open.
func (m *Manager) Current() (*Txn, bool) {
	if m.cur == nil || m.cur.State != Active {
		return nil, false
	}
	return m.cur, true
}

// Begin opens an explicit transaction. Fails TxnAlreadyOpen if one is
// already active.
func (m *Manager) Begin() (*Txn, error) {
	if m.cur != nil && m.cur.State == Active {
		return nil, dberr.New(dberr.KindTxnAlreadyOpen, "a transaction is already open")
	}
	m.nextID++
	m.cur = &Txn{ID: m.nextID, State: Active}
	return m.cur, nil
}

// AutoBegin opens an implicit single-statement transaction for a
// statement issued outside begin...commit.
// The returned bool is true when the caller must auto-commit (or
// auto-rollback, on error) immediately after executing the statement.
func (m *Manager) AutoBegin() (*Txn, bool, error) {
	if m.cur != nil && m.cur.State == Active {
		return m.cur, false, nil
	}
	t, err := m.Begin()
	return t, true, err
}

// Commit transitions Active -> Committing -> Idle. Callers are expected
// to have already appended and flushed the transaction's WAL frames
// before calling this; Commit only retires the slot.
func (m *Manager) Commit() error {
	if m.cur == nil || m.cur.State != Active {
		return dberr.New(dberr.KindTxnNotOpen, "no transaction is open")
	}
	m.cur.State = Committing
	m.cur.State = Idle
	m.cur = nil
	return nil
}

// Abort transitions Active -> Aborting -> Idle, forced when a WAL
// append or commit fsync fails.
func (m *Manager) Abort() {
	if m.cur == nil {
		return
	}
	m.cur.State = Aborting
	m.cur.State = Idle
	m.cur = nil
}

// Rollback discards the active transaction's buffered state. Callers
// apply undo records to heap/index state before calling this.
func (m *Manager) Rollback() error {
	if m.cur == nil || m.cur.State != Active {
		return dberr.New(dberr.KindTxnNotOpen, "no transaction is open")
	}
	m.cur.State = Aborting
	m.cur.State = Idle
	m.cur = nil
	return nil
}

// Fail handles a statement that just failed inside an active
// transaction. It does not unwind the statement's effects (callers apply
// its undo records themselves); it leaves the transaction Active for
// further statements unless forceAbort is set (IoError during WAL
// append/commit), in which case the whole transaction is aborted.
func (m *Manager) Fail(forceAbort bool) {
	if forceAbort {
		m.Abort()
	}
}
