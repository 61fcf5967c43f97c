package bx

import "testing"

func TestRoundTrip(t *testing.T) {
	{
		b := make([]byte, 2)
		PutU16(b, 0xABCD)
		if got := U16(b); got != 0xABCD {
			t.Fatalf("U16: got %x", got)
		}
	}
	{
		b := make([]byte, 4)
		PutU32(b, 0xDEADBEEF)
		if got := U32(b); got != 0xDEADBEEF {
			t.Fatalf("U32: got %x", got)
		}
	}
	{
		b := make([]byte, 8)
		PutU64(b, 0x0102030405060708)
		if got := U64(b); got != 0x0102030405060708 {
			t.Fatalf("U64: got %x", got)
		}
	}
}

func TestLittleEndianByteOrder(t *testing.T) {
	b := make([]byte, 4)
	PutU32(b, 1)
	if b[0] != 1 || b[1] != 0 || b[2] != 0 || b[3] != 0 {
		t.Fatalf("expected little-endian byte 0 set, got %v", b)
	}
}
