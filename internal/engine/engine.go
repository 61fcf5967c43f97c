package engine

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/constraint"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/heap"
	"github.com/skepa-db/skepadb/internal/index"
	"github.com/skepa-db/skepadb/internal/pager"
	"github.com/skepa-db/skepadb/internal/txn"
	"github.com/skepa-db/skepadb/internal/value"
	"github.com/skepa-db/skepadb/internal/wal"
)

// tableState is the live, open storage for one table: its heap file and
// every index declared over it, keyed by index_id.
type tableState struct {
	heap    *heap.Table
	indexes map[uint64]*index.Index
}

// Engine is the single explicit value owning catalog, heap/index state,
// the WAL handle, and the transaction slot. It is not safe for
// concurrent use from more than one goroutine at a time — this database
// is single-writer by design.
type Engine struct {
	layout pager.Layout
	log    *slog.Logger

	cat    *catalog.Catalog
	wal    *wal.Manager
	txm    *txn.Manager
	tables map[string]*tableState

	lockFile *os.File
}

// Open opens (creating if necessary) the database directory at root,
// replaying the WAL to reconstruct heap/index state to the last
// committed transaction.
func Open(root string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	layout := pager.NewLayout(root)
	if err := layout.EnsureDirs(); err != nil {
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}

	lockFile, err := acquireLock(layout.LockPath())
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(layout.CatalogPath())
	if err != nil {
		_ = releaseLock(lockFile)
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}

	e := &Engine{
		layout:   layout,
		log:      logger,
		cat:      cat,
		txm:      txn.NewManager(),
		tables:   make(map[string]*tableState),
		lockFile: lockFile,
	}

	for _, schema := range cat.Tables {
		ts, err := e.openTableState(schema)
		if err != nil {
			_ = releaseLock(lockFile)
			return nil, err
		}
		e.tables[schema.Name] = ts
	}

	w, err := wal.Open(layout.WalPath())
	if err != nil {
		_ = releaseLock(lockFile)
		return nil, dberr.Wrap(dberr.KindWalCorrupt, err)
	}
	e.wal = w

	if err := e.replay(); err != nil {
		_ = releaseLock(lockFile)
		return nil, err
	}

	e.log.Info("engine opened", "root", root, "tables", len(e.tables))
	return e, nil
}

func (e *Engine) openTableState(schema *catalog.TableSchema) (*tableState, error) {
	h, err := heap.Open(e.layout, schema.TableID, len(schema.Columns))
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}
	ts := &tableState{heap: h, indexes: make(map[uint64]*index.Index)}
	for _, m := range schema.Indexes {
		idx, err := index.Open(m, e.layout.IndexPath(schema.TableID, m.IndexID))
		if err != nil {
			return nil, dberr.Wrap(dberr.KindIoError, err)
		}
		ts.indexes[m.IndexID] = idx
	}
	return ts, nil
}

// Close releases the directory lock and the WAL handle. It does not
// checkpoint: anything since the last Checkpoint lives only in memory
// and the WAL, both reconstructed by the next Open's replay.
func (e *Engine) Close() error {
	if err := e.wal.Close(); err != nil {
		return err
	}
	for _, ts := range e.tables {
		if err := ts.heap.Close(); err != nil {
			return err
		}
	}
	return releaseLock(e.lockFile)
}

// replay reconstructs heap/index state from the WAL: a
// transaction's effects are applied only if its Commit frame is
// present; trailing Abort or missing Commit discards it.
func (e *Engine) replay() error {
	frames, err := e.wal.ReadAll()
	if err != nil {
		return dberr.Wrap(dberr.KindWalCorrupt, err)
	}

	byTx := make(map[uint64][]wal.Frame)
	committed := make(map[uint64]bool)
	order := make([]uint64, 0)

	for _, f := range frames {
		switch f.Kind {
		case wal.KindCatalogChange:
			var cat catalog.Catalog
			if err := json.Unmarshal(f.CatalogSnapshot, &cat); err != nil {
				return dberr.Wrap(dberr.KindWalCorrupt, err)
			}
			cat.OnLoad()
			if err := e.replaceCatalogFromReplay(&cat); err != nil {
				return err
			}
			continue
		case wal.KindCheckpoint:
			continue
		}
		if _, seen := byTx[f.TxID]; !seen {
			order = append(order, f.TxID)
		}
		byTx[f.TxID] = append(byTx[f.TxID], f)
		if f.Kind == wal.KindCommit {
			committed[f.TxID] = true
		}
		if f.Kind == wal.KindAbort {
			committed[f.TxID] = false
		}
	}

	for _, txID := range order {
		if !committed[txID] {
			continue
		}
		for _, f := range byTx[txID] {
			if err := e.applyReplayFrame(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceCatalogFromReplay installs a catalog snapshot seen mid-log
// during replay, opening heap/index state for any table not yet known.
func (e *Engine) replaceCatalogFromReplay(cat *catalog.Catalog) error {
	e.cat = cat
	for name, schema := range cat.Tables {
		if _, ok := e.tables[name]; ok {
			continue
		}
		ts, err := e.openTableState(schema)
		if err != nil {
			return err
		}
		e.tables[name] = ts
	}
	for name := range e.tables {
		if _, ok := cat.Tables[name]; !ok {
			delete(e.tables, name)
		}
	}
	return nil
}

func (e *Engine) applyReplayFrame(f wal.Frame) error {
	tableName := e.tableNameByID(f.TableID)
	if tableName == "" {
		return nil // table since dropped; nothing to replay onto
	}
	ts, ok := e.tables[tableName]
	if !ok {
		return nil
	}
	schema, _ := e.cat.Get(tableName)

	switch f.Kind {
	case wal.KindInsert:
		row, err := value.DecodeRow(f.NewRow, len(schema.Columns))
		if err != nil {
			return dberr.Wrap(dberr.KindCodecError, err)
		}
		if err := ts.heap.InsertWithID(f.RowID, row); err != nil {
			return dberr.Wrap(dberr.KindIoError, err)
		}
		e.indexInsertAllReplay(tableName, schema, ts, f.RowID, row)
	case wal.KindUpdate:
		oldRow, err := value.DecodeRow(f.OldRow, len(schema.Columns))
		if err != nil {
			return dberr.Wrap(dberr.KindCodecError, err)
		}
		newRow, err := value.DecodeRow(f.NewRow, len(schema.Columns))
		if err != nil {
			return dberr.Wrap(dberr.KindCodecError, err)
		}
		if err := ts.heap.Update(f.RowID, newRow); err != nil {
			return dberr.Wrap(dberr.KindIoError, err)
		}
		e.indexRemoveAllReplay(tableName, schema, ts, f.RowID, oldRow)
		e.indexInsertAllReplay(tableName, schema, ts, f.RowID, newRow)
	case wal.KindDelete:
		oldRow, err := value.DecodeRow(f.OldRow, len(schema.Columns))
		if err != nil {
			return dberr.Wrap(dberr.KindCodecError, err)
		}
		if err := ts.heap.Delete(f.RowID); err != nil {
			return dberr.Wrap(dberr.KindIoError, err)
		}
		e.indexRemoveAllReplay(tableName, schema, ts, f.RowID, oldRow)
	}
	return nil
}

func (e *Engine) tableNameByID(id uint64) string {
	for name, s := range e.cat.Tables {
		if s.TableID == id {
			return name
		}
	}
	return ""
}

func (e *Engine) indexInsertAllReplay(table string, schema *catalog.TableSchema, ts *tableState, rowID uint64, row value.Row) {
	for _, m := range schema.Indexes {
		idxs, err := schema.ColIndexes(m.Cols)
		if err != nil {
			continue
		}
		if ix, ok := ts.indexes[m.IndexID]; ok {
			_ = ix.Insert(row.Project(idxs), rowID)
		}
	}
}

func (e *Engine) indexRemoveAllReplay(table string, schema *catalog.TableSchema, ts *tableState, rowID uint64, row value.Row) {
	for _, m := range schema.Indexes {
		idxs, err := schema.ColIndexes(m.Cols)
		if err != nil {
			continue
		}
		if ix, ok := ts.indexes[m.IndexID]; ok {
			ix.Remove(row.Project(idxs), rowID)
		}
	}
}

// --- constraint.World ---

func (e *Engine) Schema(table string) (*catalog.TableSchema, bool) { return e.cat.Get(table) }

func (e *Engine) Heap(table string) (constraint.HeapStore, bool) {
	ts, ok := e.tables[table]
	if !ok {
		return nil, false
	}
	return ts.heap, true
}

func (e *Engine) Index(table string, indexID uint64) (constraint.IndexStore, bool) {
	ts, ok := e.tables[table]
	if !ok {
		return nil, false
	}
	ix, ok := ts.indexes[indexID]
	return ix, ok
}

func (e *Engine) IncomingFKs(table string) []catalog.IncomingFK { return e.cat.IncomingFKs(table) }

// persistCatalogChange logs a CatalogChange WAL frame then rewrites the
// catalog snapshot atomically.
func (e *Engine) persistCatalogChange() error {
	data, err := json.Marshal(e.cat)
	if err != nil {
		return dberr.Wrap(dberr.KindCodecError, err)
	}
	if _, err := e.wal.Append(wal.Frame{Kind: wal.KindCatalogChange, CatalogSnapshot: data}); err != nil {
		return dberr.Wrap(dberr.KindIoError, err)
	}
	if err := e.wal.Flush(); err != nil {
		return dberr.Wrap(dberr.KindIoError, err)
	}
	if err := e.cat.Save(e.layout.CatalogPath()); err != nil {
		return dberr.Wrap(dberr.KindIoError, err)
	}
	return nil
}

// Checkpoint persists a fresh catalog+heap+index snapshot and truncates
// the WAL. It refuses to run while a transaction is open: Compact would
// otherwise bake that transaction's uncommitted heap/index effects into
// the on-disk snapshot right as the WAL record of them is discarded,
// making them unrecoverable as uncommitted and undiscardable on a later
// crash.
func (e *Engine) Checkpoint() error {
	if _, active := e.txm.Current(); active {
		return dberr.New(dberr.KindCheckpointInTxn, "cannot checkpoint while a transaction is open")
	}
	if err := e.cat.Save(e.layout.CatalogPath()); err != nil {
		return dberr.Wrap(dberr.KindIoError, err)
	}
	var lastLSN uint64
	for _, ts := range e.tables {
		if err := ts.heap.Compact(); err != nil {
			return dberr.Wrap(dberr.KindIoError, err)
		}
		for _, ix := range ts.indexes {
			if err := ix.Save(); err != nil {
				return dberr.Wrap(dberr.KindIoError, err)
			}
		}
	}
	if err := e.wal.Checkpoint(lastLSN); err != nil {
		return dberr.Wrap(dberr.KindIoError, err)
	}
	return nil
}

// TableNames returns every known table, sorted, for `.schema` and help
// output.
func (e *Engine) TableNames() []string {
	names := make([]string, 0, len(e.cat.Tables))
	for n := range e.cat.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TableSchema exposes a table's schema for `.schema` output.
func (e *Engine) TableSchema(name string) (*catalog.TableSchema, bool) { return e.cat.Get(name) }
