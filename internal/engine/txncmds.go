package engine

import (
	"github.com/skepa-db/skepadb/internal/constraint"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/txn"
	"github.com/skepa-db/skepadb/internal/value"
	"github.com/skepa-db/skepadb/internal/wal"
)

// Execute is the single entry point the surface calls with one parsed
// statement.
func (e *Engine) Execute(stmt any) (*Result, error) {
	switch s := stmt.(type) {
	case Begin:
		return e.execBegin()
	case Commit:
		return e.execCommit()
	case Rollback:
		return e.execRollback()

	case CreateTable:
		return e.withDDL(func() (*Result, error) { return e.execCreateTable(s) })
	case AlterTable:
		return e.withDDL(func() (*Result, error) { return e.execAlterTable(s) })
	case CreateIndex:
		return e.withDDL(func() (*Result, error) { return e.execCreateIndex(s) })
	case DropIndex:
		return e.withDDL(func() (*Result, error) { return e.execDropIndex(s) })

	case Insert:
		return e.withStatementTxn(func(tx *txn.Txn, ce *constraint.Engine) (*Result, error) {
			return e.execInsert(ce, s)
		})
	case Update:
		return e.withStatementTxn(func(tx *txn.Txn, ce *constraint.Engine) (*Result, error) {
			return e.execUpdate(ce, s)
		})
	case Delete:
		return e.withStatementTxn(func(tx *txn.Txn, ce *constraint.Engine) (*Result, error) {
			return e.execDelete(ce, s)
		})
	case Select:
		return e.withStatementTxn(func(tx *txn.Txn, ce *constraint.Engine) (*Result, error) {
			return e.execSelect(s)
		})

	default:
		return nil, dberr.Newf(dberr.KindInternal, "unsupported statement type %T", stmt)
	}
}

// withDDL rejects schema changes while a transaction is open and
// otherwise runs fn.
func (e *Engine) withDDL(fn func() (*Result, error)) (*Result, error) {
	if _, active := e.txm.Current(); active {
		return nil, dberr.New(dberr.KindDdlInTxn, "cannot run DDL while a transaction is open")
	}
	return fn()
}

// withStatementTxn auto-opens a one-statement transaction when none is
// active, runs fn, then auto-commits on success or unwinds
// just this statement's effects on failure, leaving any explicit
// transaction Active for the caller to commit or roll back.
func (e *Engine) withStatementTxn(fn func(tx *txn.Txn, ce *constraint.Engine) (*Result, error)) (*Result, error) {
	tx, autoCommit, err := e.txm.AutoBegin()
	if err != nil {
		return nil, err
	}

	undoMark := len(tx.UndoRecords())
	frameMark := len(tx.Frames())

	rec := &txRecorder{e: e, tx: tx}
	ce := constraint.New(e, rec)

	res, err := fn(tx, ce)
	if err != nil {
		e.unwindSince(tx, undoMark, frameMark)
		if autoCommit || dberr.Is(err, dberr.KindIoError) {
			e.txm.Abort()
		}
		return nil, err
	}

	if autoCommit {
		if cerr := e.commitTx(tx); cerr != nil {
			return nil, cerr
		}
	}
	return res, nil
}

// txRecorder adapts the constraint engine's mutation callbacks into
// undo records and buffered WAL frames for the current transaction.
type txRecorder struct {
	e  *Engine
	tx *txn.Txn
}

func (r *txRecorder) tableID(table string) uint64 {
	schema, _ := r.e.cat.Get(table)
	if schema == nil {
		return 0
	}
	return schema.TableID
}

func (r *txRecorder) OnInsert(table string, rowID uint64, newRow value.Row) {
	r.tx.RecordInsert(table, rowID)
	r.tx.BufferFrame(wal.Frame{
		TxID: r.tx.ID, Kind: wal.KindInsert,
		TableID: r.tableID(table), RowID: rowID,
		NewRow: value.EncodeRow(newRow),
	})
}

func (r *txRecorder) OnUpdate(table string, rowID uint64, oldRow, newRow value.Row) {
	r.tx.RecordUpdate(table, rowID, oldRow)
	r.tx.BufferFrame(wal.Frame{
		TxID: r.tx.ID, Kind: wal.KindUpdate,
		TableID: r.tableID(table), RowID: rowID,
		NewRow: value.EncodeRow(newRow), OldRow: value.EncodeRow(oldRow),
	})
}

func (r *txRecorder) OnDelete(table string, rowID uint64, oldRow value.Row) {
	r.tx.RecordDelete(table, rowID, oldRow)
	r.tx.BufferFrame(wal.Frame{
		TxID: r.tx.ID, Kind: wal.KindDelete,
		TableID: r.tableID(table), RowID: rowID,
		OldRow: value.EncodeRow(oldRow),
	})
}

// execBegin opens an explicit transaction.
func (e *Engine) execBegin() (*Result, error) {
	if _, err := e.txm.Begin(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// execCommit flushes the active transaction's buffered frames and a
// Commit frame, fsyncs, then retires the transaction slot.
func (e *Engine) execCommit() (*Result, error) {
	tx, ok := e.txm.Current()
	if !ok {
		return nil, dberr.New(dberr.KindTxnNotOpen, "no transaction is open")
	}
	if err := e.commitTx(tx); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Engine) commitTx(tx *txn.Txn) error {
	for _, f := range tx.Frames() {
		if _, err := e.wal.Append(f); err != nil {
			e.txm.Abort()
			return dberr.Wrap(dberr.KindIoError, err)
		}
	}
	if _, err := e.wal.Append(wal.Frame{TxID: tx.ID, Kind: wal.KindCommit}); err != nil {
		e.txm.Abort()
		return dberr.Wrap(dberr.KindIoError, err)
	}
	if err := e.wal.Flush(); err != nil {
		e.txm.Abort()
		return dberr.Wrap(dberr.KindIoError, err)
	}
	return e.txm.Commit()
}

// execRollback applies every undo record in reverse and discards the
// buffered frames without touching the WAL.
func (e *Engine) execRollback() (*Result, error) {
	tx, ok := e.txm.Current()
	if !ok {
		return nil, dberr.New(dberr.KindTxnNotOpen, "no transaction is open")
	}
	e.unwindSince(tx, 0, 0)
	if err := e.txm.Rollback(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// unwindSince reverts every undo record recorded at or after undoMark,
// most-recent-first, then truncates the transaction's undo and frame
// buffers back to their marks.
func (e *Engine) unwindSince(tx *txn.Txn, undoMark, frameMark int) {
	records := tx.UndoRecords()
	for i := len(records) - 1; i >= undoMark; i-- {
		e.applyUndo(records[i])
	}
	tx.TruncateUndo(undoMark)
	tx.TruncateFrames(frameMark)
}

func (e *Engine) applyUndo(u txn.Undo) {
	schema, ok := e.cat.Get(u.Table)
	if !ok {
		return
	}
	ts, ok := e.tables[u.Table]
	if !ok {
		return
	}

	switch u.Kind {
	case txn.UndoInsertedRow:
		if row, ok := ts.heap.Get(u.RowID); ok {
			e.indexRemoveAllReplay(u.Table, schema, ts, u.RowID, row)
		}
		_ = ts.heap.Delete(u.RowID)
	case txn.UndoUpdatedRow:
		if cur, ok := ts.heap.Get(u.RowID); ok {
			e.indexRemoveAllReplay(u.Table, schema, ts, u.RowID, cur)
		}
		_ = ts.heap.Update(u.RowID, u.PrevRow)
		e.indexInsertAllReplay(u.Table, schema, ts, u.RowID, u.PrevRow)
	case txn.UndoDeletedRow:
		_ = ts.heap.InsertWithID(u.RowID, u.PrevRow)
		e.indexInsertAllReplay(u.Table, schema, ts, u.RowID, u.PrevRow)
	}
}
