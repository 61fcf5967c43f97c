// Package index implements the index manager: ordered
// mappings from a NULL-free key tuple to a set of row_ids, backed by
// github.com/tobshub/go-sortedmap (the sorted multi-map the pack's
// tobsdb/tobsdb repo uses for its row store), persisted as a flat
// snapshot file under indexes/<table_id>/<index_id>.idx.
package index

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"sync"

	sortedmap "github.com/tobshub/go-sortedmap"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/pager"
	"github.com/skepa-db/skepadb/internal/value"
)

// Entry is one distinct key's row_id set.
type Entry struct {
	Key    []byte   `json:"key"`
	RowIDs []uint64 `json:"row_ids"`
}

func lessEntry(a, b Entry) bool { return bytes.Compare(a.Key, b.Key) < 0 }

// Index is one persisted index over a table.
type Index struct {
	mu   sync.RWMutex
	Meta catalog.IndexMeta
	path string

	sm *sortedmap.SortedMap[string, Entry]
}

// New builds an empty index.
func New(meta catalog.IndexMeta, path string) *Index {
	return &Index{
		Meta: meta,
		path: path,
		sm:   sortedmap.New[string, Entry](0, lessEntry),
	}
}

// Open loads an index snapshot from path, or returns an empty index if
// the file does not exist yet (index just created, no rows yet).
func Open(meta catalog.IndexMeta, path string) (*Index, error) {
	idx := New(meta, path)

	data, err := pager.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		idx.sm.Insert(string(e.Key), e)
	}
	return idx, nil
}

// Save rewrites the index snapshot atomically.
func (x *Index) Save() error {
	x.mu.RLock()
	entries := make([]Entry, 0, x.sm.Len())
	ch, err := x.sm.IterCh()
	if err != nil {
		x.mu.RUnlock()
		return err
	}
	for rec := range ch.Records() {
		entries = append(entries, rec.Val)
	}
	ch.Close()
	x.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return pager.WriteAtomic(x.path, data, 0o644)
}

// encodeKey serializes a NULL-free key tuple for use as the sorted-map's
// comparison key.
func encodeKey(key value.Row) []byte {
	return value.EncodeRow(key)
}

// Insert associates key with rowID. Rows with any NULL in key are
// skipped entirely — the caller need not special-case this.
func (x *Index) Insert(key value.Row, rowID uint64) error {
	if key.HasNull() {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	k := encodeKey(key)
	ks := string(k)

	if e, ok := x.sm.Get(ks); ok {
		if x.Meta.Kind == catalog.IndexPrimaryKey || x.Meta.Kind == catalog.IndexUnique {
			for _, id := range e.RowIDs {
				if id != rowID {
					return dberr.New(dberr.KindUniqueViolation, "unique constraint violated")
				}
			}
			return nil
		}
		for _, id := range e.RowIDs {
			if id == rowID {
				return nil
			}
		}
		e.RowIDs = append(e.RowIDs, rowID)
		x.sm.Replace(ks, e)
		return nil
	}

	x.sm.Insert(ks, Entry{Key: k, RowIDs: []uint64{rowID}})
	return nil
}

// Remove drops the (key, rowID) association. No-op if absent, so
// NULL-skipped rows delete cleanly.
func (x *Index) Remove(key value.Row, rowID uint64) {
	if key.HasNull() {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	ks := string(encodeKey(key))
	e, ok := x.sm.Get(ks)
	if !ok {
		return
	}
	out := e.RowIDs[:0]
	for _, id := range e.RowIDs {
		if id != rowID {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		x.sm.Delete(ks)
		return
	}
	e.RowIDs = out
	x.sm.Replace(ks, e)
}

// LookupEq returns the row_ids associated with an exact key match.
func (x *Index) LookupEq(key value.Row) ([]uint64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.sm.Get(string(encodeKey(key)))
	if !ok {
		return nil, false
	}
	out := make([]uint64, len(e.RowIDs))
	copy(out, e.RowIDs)
	return out, true
}

// Len reports the number of distinct keys currently indexed.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.sm.Len()
}

// Layout resolves the path for a table's index directory; kept alongside
// Index so callers don't need to import pager just for this one join.
func Layout(l pager.Layout, tableID uint64) string { return l.TableIndexDir(tableID) }
