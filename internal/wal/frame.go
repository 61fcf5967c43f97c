package wal

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/skepa-db/skepadb/internal/bx"
)

// Kind tags a WAL frame's body shape.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindInsert
	KindUpdate
	KindDelete
	KindCatalogChange
	KindCommit
	KindAbort
	KindCheckpoint
)

const (
	magic   uint32 = 0x4B504553 // "SEPK" (skepa) little-endian on disk
	version uint16 = 1
)

var (
	ErrBadMagic   = errors.New("wal: bad file header magic")
	ErrBadVersion = errors.New("wal: incompatible wal version")
	ErrBadCRC     = errors.New("wal: frame checksum mismatch")
	ErrTruncated  = errors.New("wal: truncated frame")
)

// Frame is one durable WAL record: [lsn][tx_id][kind][body][crc32]
//. Only the fields relevant to Kind are populated.
type Frame struct {
	LSN  uint64
	TxID uint64
	Kind Kind

	TableID uint64 // Insert/Update/Delete
	RowID   uint64 // Insert/Update/Delete

	NewRow []byte // Insert: row_bytes; Update: new_row_bytes
	OldRow []byte // Update/Delete: old_row_bytes

	CatalogSnapshot []byte // CatalogChange

	UpToLSN uint64 // Checkpoint
}

// encodeBody serializes the kind-specific body (everything between the
// kind byte and the trailing crc32).
func (f Frame) encodeBody() []byte {
	switch f.Kind {
	case KindBegin, KindCommit, KindAbort:
		return nil
	case KindInsert:
		return encodeTableRowID(f.TableID, f.RowID, f.NewRow)
	case KindUpdate:
		b := encodeTableRowID(f.TableID, f.RowID, nil)
		b = appendLenPrefixed(b, f.NewRow)
		b = appendLenPrefixed(b, f.OldRow)
		return b
	case KindDelete:
		return encodeTableRowID(f.TableID, f.RowID, f.OldRow)
	case KindCatalogChange:
		return appendLenPrefixed(nil, f.CatalogSnapshot)
	case KindCheckpoint:
		var b [8]byte
		bx.PutU64(b[:], f.UpToLSN)
		return b[:]
	default:
		panic(fmt.Sprintf("wal: unknown frame kind %d", f.Kind))
	}
}

func encodeTableRowID(tableID, rowID uint64, trailing []byte) []byte {
	b := make([]byte, 16, 16+4+len(trailing))
	bx.PutU64(b[0:8], tableID)
	bx.PutU64(b[8:16], rowID)
	if trailing != nil {
		b = appendLenPrefixed(b, trailing)
	}
	return b
}

func appendLenPrefixed(b, payload []byte) []byte {
	var lb [4]byte
	bx.PutU32(lb[:], uint32(len(payload)))
	b = append(b, lb[:]...)
	b = append(b, payload...)
	return b
}

// encode serializes the full frame, ready to append to the log file.
func (f Frame) encode() []byte {
	body := f.encodeBody()
	// lsn(8) tx_id(8) kind(1) body crc32(4)
	head := make([]byte, 17, 17+len(body)+4)
	bx.PutU64(head[0:8], f.LSN)
	bx.PutU64(head[8:16], f.TxID)
	head[16] = byte(f.Kind)
	payload := append(head, body...)

	crc := crc32.ChecksumIEEE(payload)
	var crcB [4]byte
	bx.PutU32(crcB[:], crc)
	return append(payload, crcB[:]...)
}

// decodeFrame parses one frame body already split from its crc suffix;
// crc has already been verified by the caller.
func decodeFrame(payload []byte) (Frame, error) {
	if len(payload) < 17 {
		return Frame{}, ErrTruncated
	}
	f := Frame{
		LSN:  bx.U64(payload[0:8]),
		TxID: bx.U64(payload[8:16]),
		Kind: Kind(payload[16]),
	}
	body := payload[17:]

	switch f.Kind {
	case KindBegin, KindCommit, KindAbort:
		return f, nil
	case KindInsert:
		tableID, rowID, rest, err := readTableRowID(body)
		if err != nil {
			return Frame{}, err
		}
		f.TableID, f.RowID = tableID, rowID
		row, _, err := readLenPrefixed(rest)
		if err != nil {
			return Frame{}, err
		}
		f.NewRow = row
		return f, nil
	case KindUpdate:
		if len(body) < 16 {
			return Frame{}, ErrTruncated
		}
		f.TableID = bx.U64(body[0:8])
		f.RowID = bx.U64(body[8:16])
		rest := body[16:]
		newRow, rest, err := readLenPrefixed(rest)
		if err != nil {
			return Frame{}, err
		}
		oldRow, _, err := readLenPrefixed(rest)
		if err != nil {
			return Frame{}, err
		}
		f.NewRow, f.OldRow = newRow, oldRow
		return f, nil
	case KindDelete:
		tableID, rowID, rest, err := readTableRowID(body)
		if err != nil {
			return Frame{}, err
		}
		f.TableID, f.RowID = tableID, rowID
		row, _, err := readLenPrefixed(rest)
		if err != nil {
			return Frame{}, err
		}
		f.OldRow = row
		return f, nil
	case KindCatalogChange:
		snap, _, err := readLenPrefixed(body)
		if err != nil {
			return Frame{}, err
		}
		f.CatalogSnapshot = snap
		return f, nil
	case KindCheckpoint:
		if len(body) < 8 {
			return Frame{}, ErrTruncated
		}
		f.UpToLSN = bx.U64(body[0:8])
		return f, nil
	default:
		return Frame{}, fmt.Errorf("wal: unknown frame kind %d", f.Kind)
	}
}

func readTableRowID(b []byte) (tableID, rowID uint64, rest []byte, err error) {
	if len(b) < 16 {
		return 0, 0, nil, ErrTruncated
	}
	return bx.U64(b[0:8]), bx.U64(b[8:16]), b[16:], nil
}

func readLenPrefixed(b []byte) (payload, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrTruncated
	}
	n := int(bx.U32(b[0:4]))
	if len(b) < 4+n {
		return nil, nil, ErrTruncated
	}
	return b[4 : 4+n], b[4+n:], nil
}
