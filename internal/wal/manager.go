// Package wal implements the durable, ordered write-ahead log: frame
// encoding with checksums, append, fsync-on-commit, and crash-tolerant
// replay. Modeled on tuannm99/novasql's page-image WAL
// (internal/wal/manager.go) but reworked from whole-page redo records to
// a mutation-frame format.
package wal

import (
	"bufio"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/skepa-db/skepadb/internal/bx"
)

// Manager owns the append-only log file and the next LSN to assign.
type Manager struct {
	mu   sync.Mutex
	f    *os.File
	path string
	lsn  uint64
}

// Open creates the WAL file (writing the magic/version header) if it does
// not exist, or validates the header of an existing one. Incompatible
// versions refuse to open.
func Open(path string) (*Manager, error) {
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	m := &Manager{f: f, path: path}
	if !existed {
		if err := m.writeHeader(); err != nil {
			_ = f.Close()
			return nil, err
		}
		return m, nil
	}
	if err := m.checkHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := m.initLastLSN(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) writeHeader() error {
	var hdr [6]byte
	bx.PutU32(hdr[0:4], magic)
	bx.PutU16(hdr[4:6], version)
	if _, err := m.f.WriteAt(hdr[:], 0); err != nil {
		return err
	}
	return m.f.Sync()
}

func (m *Manager) checkHeader() error {
	var hdr [6]byte
	if _, err := m.f.ReadAt(hdr[:], 0); err != nil {
		if err == io.EOF {
			return m.writeHeader()
		}
		return err
	}
	if bx.U32(hdr[0:4]) != magic {
		return ErrBadMagic
	}
	if bx.U16(hdr[4:6]) != version {
		return ErrBadVersion
	}
	return nil
}

// Close releases the file handle.
func (m *Manager) Close() error {
	if m == nil || m.f == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.f.Close()
	m.f = nil
	return err
}

// Append writes frame at the tail of the log (not fsynced — callers batch
// a transaction's frames and Flush once after the terminal Commit/Abort).
// The frame's LSN is assigned here and returned.
func (m *Manager) Append(f Frame) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.f.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	m.lsn++
	f.LSN = m.lsn

	if _, err := m.f.Write(f.encode()); err != nil {
		return 0, err
	}
	return f.LSN, nil
}

// Flush fsyncs the log tail. Commit durability rests entirely on this
// call happening after the Commit frame is written.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Sync()
}

// ReadAll replays frames from just after the file header, stopping
// cleanly at EOF, a bad CRC, or a truncated tail.
func (m *Manager) ReadAll() ([]Frame, error) {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil
		}
		return nil, err
	}

	var frames []Frame
	for {
		fr, err := readOneFrame(r)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF || err == ErrTruncated || err == ErrBadCRC {
				return frames, nil
			}
			return frames, err
		}
		frames = append(frames, fr)
	}
}

// readOneFrame reads "[lsn(8) tx_id(8) kind(1) body...][crc32(4)]" with
// no outer length prefix: frame bodies are self-describing per Kind, so
// we decode incrementally and only know where the frame ends once the
// body's internal length fields have all been consumed — then read the
// trailing crc32 and verify it against everything read so far.
func readOneFrame(r *bufio.Reader) (Frame, error) {
	head, err := readN(r, 17)
	if err != nil {
		return Frame{}, err
	}
	kind := Kind(head[16])

	body, err := readFrameBody(r, kind)
	if err != nil {
		return Frame{}, err
	}

	crcB, err := readN(r, 4)
	if err != nil {
		return Frame{}, err
	}
	wantCRC := bx.U32(crcB)

	payload := append(append([]byte{}, head...), body...)
	gotCRC := crc32.ChecksumIEEE(payload)
	if gotCRC != wantCRC {
		return Frame{}, ErrBadCRC
	}

	return decodeFrame(payload)
}

// readFrameBody reads exactly the bytes belonging to one frame's body,
// given its kind, by parsing length-prefixed sub-fields as it goes.
func readFrameBody(r *bufio.Reader, kind Kind) ([]byte, error) {
	switch kind {
	case KindBegin, KindCommit, KindAbort:
		return nil, nil
	case KindInsert:
		fixed, err := readN(r, 16)
		if err != nil {
			return nil, err
		}
		lenPrefixed, err := readLenPrefixedField(r)
		if err != nil {
			return nil, err
		}
		return append(fixed, lenPrefixed...), nil
	case KindUpdate:
		fixed, err := readN(r, 16)
		if err != nil {
			return nil, err
		}
		f1, err := readLenPrefixedField(r)
		if err != nil {
			return nil, err
		}
		f2, err := readLenPrefixedField(r)
		if err != nil {
			return nil, err
		}
		out := append(fixed, f1...)
		return append(out, f2...), nil
	case KindDelete:
		fixed, err := readN(r, 16)
		if err != nil {
			return nil, err
		}
		lenPrefixed, err := readLenPrefixedField(r)
		if err != nil {
			return nil, err
		}
		return append(fixed, lenPrefixed...), nil
	case KindCatalogChange:
		return readLenPrefixedField(r)
	case KindCheckpoint:
		return readN(r, 8)
	default:
		return nil, ErrTruncated
	}
}

// readLenPrefixedField reads a u32 length then that many bytes, returning
// both the length prefix and the payload concatenated (so the caller can
// re-assemble the exact on-disk body for CRC verification).
func readLenPrefixedField(r *bufio.Reader) ([]byte, error) {
	lb, err := readN(r, 4)
	if err != nil {
		return nil, err
	}
	n := int(bx.U32(lb))
	payload, err := readN(r, n)
	if err != nil {
		return nil, err
	}
	return append(lb, payload...), nil
}

func readN(r *bufio.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// initLastLSN scans the log once at Open to resume LSN assignment after a
// clean restart (replay itself is driven separately by the engine).
func (m *Manager) initLastLSN() error {
	frames, err := m.ReadAll()
	if err != nil {
		return err
	}
	var last uint64
	for _, f := range frames {
		if f.LSN > last {
			last = f.LSN
		}
	}
	m.lsn = last
	return nil
}

// Checkpoint discards all frames preceding the current tail: the engine
// has just persisted a fresh catalog+heap+index snapshot reflecting every
// committed effect up to upToLSN, so the log can restart empty. The LSN
// counter keeps advancing monotonically across the truncation.
func (m *Manager) Checkpoint(upToLSN uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.f.Truncate(0); err != nil {
		return err
	}
	if err := m.writeHeader(); err != nil {
		return err
	}
	if _, err := m.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	m.lsn++
	cp := Frame{LSN: m.lsn, Kind: KindCheckpoint, UpToLSN: upToLSN}
	if _, err := m.f.Write(cp.encode()); err != nil {
		return err
	}
	return m.f.Sync()
}
