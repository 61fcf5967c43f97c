package value

import (
	"errors"
	"fmt"

	"github.com/skepa-db/skepadb/internal/bx"
)

// ErrCodecTruncated and ErrCodecArity back dberr.KindCodecError at the
// call site; kept as sentinels here so this package stays independent of
// dberr (mirrors tuannm99/novasql's per-package sentinel-error convention).
var (
	ErrCodecTruncated = errors.New("value: truncated row bytes")
	ErrCodecArity     = errors.New("value: row arity mismatch")
)

// EncodeRow serializes a row as: [n: u16][tag[0]..tag[n-1]][payload...]
//. Int payload is LE i64; Text payload is u32 length + UTF-8
// bytes.
func EncodeRow(row Row) []byte {
	n := len(row)
	out := make([]byte, 2, 2+n+8)
	bx.PutU16(out[0:2], uint16(n))

	for _, v := range row {
		out = append(out, byte(v.tag))
	}

	for _, v := range row {
		switch v.tag {
		case TagNull:
			// no payload
		case TagInt:
			var b [8]byte
			bx.PutU64(b[:], uint64(v.i))
			out = append(out, b[:]...)
		case TagText:
			var lb [4]byte
			bx.PutU32(lb[:], uint32(len(v.s)))
			out = append(out, lb[:]...)
			out = append(out, v.s...)
		}
	}
	return out
}

// DecodeRow parses bytes produced by EncodeRow, checking the decoded
// arity against wantArity (the table schema's column count). Truncated
// input or an arity mismatch both fail with a codec error.
func DecodeRow(b []byte, wantArity int) (Row, error) {
	if len(b) < 2 {
		return nil, ErrCodecTruncated
	}
	n := int(bx.U16(b[0:2]))
	if wantArity >= 0 && n != wantArity {
		return nil, fmt.Errorf("%w: got %d want %d", ErrCodecArity, n, wantArity)
	}

	off := 2
	if len(b) < off+n {
		return nil, ErrCodecTruncated
	}
	tags := make([]Tag, n)
	for i := 0; i < n; i++ {
		tags[i] = Tag(b[off+i])
	}
	off += n

	row := make(Row, n)
	for i, tg := range tags {
		switch tg {
		case TagNull:
			row[i] = Null()
		case TagInt:
			if len(b) < off+8 {
				return nil, ErrCodecTruncated
			}
			row[i] = Int(int64(bx.U64(b[off : off+8])))
			off += 8
		case TagText:
			if len(b) < off+4 {
				return nil, ErrCodecTruncated
			}
			strLen := int(bx.U32(b[off : off+4]))
			off += 4
			if len(b) < off+strLen {
				return nil, ErrCodecTruncated
			}
			row[i] = Text(string(b[off : off+strLen]))
			off += strLen
		default:
			return nil, fmt.Errorf("%w: unknown tag %d", ErrCodecArity, tg)
		}
	}
	return row, nil
}
