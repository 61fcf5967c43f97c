// Package heap implements the row store keyed by internal row_id: an
// in-memory row_id -> current-row map, backed by a heap file that holds
// a snapshot as of the last Checkpoint. Ordinary mutations only touch
// the in-memory map; the WAL is the durability source of truth for
// anything more recent than the last snapshot, replayed onto that map
// on every Open. Matches tuannm99/novasql's scan-reconstructs-latest-
// state heap (internal/heap), adapted from slotted pages to a flat
// snapshot-plus-tombstone format.
package heap

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/skepa-db/skepadb/internal/bx"
	"github.com/skepa-db/skepadb/internal/pager"
	"github.com/skepa-db/skepadb/internal/value"
)

// Table is one table's heap file plus its reconstructed in-memory state.
type Table struct {
	mu sync.RWMutex

	tableID uint64
	arity   int
	heapFP  string
	idsFP   string

	f *os.File

	nextRowID uint64
	live      map[uint64]value.Row
}

// Open loads (or creates) the heap file for tableID and replays it to
// build the in-memory row map.
func Open(layout pager.Layout, tableID uint64, arity int) (*Table, error) {
	if err := os.MkdirAll(layout.TablesDir(), 0o755); err != nil {
		return nil, err
	}
	heapFP := layout.HeapPath(tableID)
	idsFP := layout.IdsPath(tableID)

	f, err := os.OpenFile(heapFP, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	t := &Table{
		tableID: tableID,
		arity:   arity,
		heapFP:  heapFP,
		idsFP:   idsFP,
		f:       f,
		live:    make(map[uint64]value.Row),
	}
	if err := t.reload(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if id, ok, err := readIDs(idsFP); err != nil {
		_ = f.Close()
		return nil, err
	} else if ok && id > t.nextRowID {
		t.nextRowID = id
	}
	return t, nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// reload reads the on-disk heap file into the row_id -> latest payload
// map, discarding tombstoned rows. The file only ever holds the state as
// of the last Compact: ordinary mutations are staged in t.live and never
// touch disk directly, so what reload sees here is always a trustworthy
// checkpoint baseline, never a partially-committed transaction's effects.
func (t *Table) reload() error {
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	live := make(map[uint64]value.Row)
	var maxID uint64

	hdr := make([]byte, 12) // len(4) + row_id(8)
	for {
		_, err := io.ReadFull(t.f, hdr)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// torn tail write from an unclean shutdown; the WAL is
			// authoritative, so stop here rather than fail open.
			break
		}
		if err != nil {
			return err
		}

		payloadLen := bx.U32(hdr[0:4])
		rowID := bx.U64(hdr[4:12])
		if rowID > maxID {
			maxID = rowID
		}

		if payloadLen == 0 {
			delete(live, rowID)
			continue
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(t.f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}
		row, err := value.DecodeRow(payload, t.arity)
		if err != nil {
			return fmt.Errorf("heap: table %d row %d: %w", t.tableID, rowID, err)
		}
		live[rowID] = row
	}

	t.live = live
	if maxID > t.nextRowID {
		t.nextRowID = maxID
	}
	return nil
}

// Insert assigns a fresh row_id and stages the row in memory. It does
// not touch the heap file: the WAL is the durability source of truth
// for a statement that has not yet committed, and this table's on-disk
// file is only ever rewritten by Compact.
func (t *Table) Insert(row value.Row) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextRowID++
	rowID := t.nextRowID
	if err := writeIDs(t.idsFP, t.nextRowID); err != nil {
		return 0, err
	}
	t.live[rowID] = row.Clone()
	return rowID, nil
}

// InsertWithID is used by WAL replay, which already knows the row_id the
// original insert was assigned. It places the row in t.live only (the
// heap file is untouched, since replay runs against every committed
// frame on every Open); when rowID is above the current high-water mark
// it advances the mark and persists it to the ids file, so row_ids are
// never handed out again.
func (t *Table) InsertWithID(rowID uint64, row value.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rowID > t.nextRowID {
		t.nextRowID = rowID
		if err := writeIDs(t.idsFP, t.nextRowID); err != nil {
			return err
		}
	}
	t.live[rowID] = row.Clone()
	return nil
}

// Update replaces rowID's in-memory row. It does not touch the heap
// file; see Insert.
func (t *Table) Update(rowID uint64, newRow value.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live[rowID] = newRow.Clone()
	return nil
}

// Delete removes rowID from the in-memory live set. It does not touch
// the heap file; see Insert.
func (t *Table) Delete(rowID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.live, rowID)
	return nil
}

// Get answers a single row_id lookup from the in-memory reconstruction.
func (t *Table) Get(rowID uint64) (value.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.live[rowID]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Scan yields every live row in ascending row_id order.
func (t *Table) Scan(fn func(rowID uint64, row value.Row) error) error {
	t.mu.RLock()
	ids := make([]uint64, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]value.Row, len(ids))
	for i, id := range ids {
		rows[i] = t.live[id].Clone()
	}
	t.mu.RUnlock()

	for i, id := range ids {
		if err := fn(id, rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of live rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// Compact rewrites the heap file containing only live rows, used during
// checkpoint.
func (t *Table) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf []byte
	for _, id := range ids {
		payload := value.EncodeRow(t.live[id])
		entry := make([]byte, 12+len(payload))
		bx.PutU32(entry[0:4], uint32(len(payload)))
		bx.PutU64(entry[4:12], id)
		copy(entry[12:], payload)
		buf = append(buf, entry...)
	}

	if err := pager.WriteAtomic(t.heapFP, buf, 0o644); err != nil {
		return err
	}

	if err := t.f.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(t.heapFP, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	t.f = f
	return writeIDs(t.idsFP, t.nextRowID)
}

func readIDs(path string) (uint64, bool, error) {
	data, err := pager.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(data) < 8 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint64(data), true, nil
}

func writeIDs(path string, id uint64) error {
	var b [8]byte
	bx.PutU64(b[:], id)
	return pager.WriteAtomic(path, b[:], 0o644)
}
