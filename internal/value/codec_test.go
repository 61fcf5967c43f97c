package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rows := []Row{
		{Int(42), Text("hello"), Null()},
		{Null(), Null()},
		{Text("")},
		{},
	}
	for _, r := range rows {
		data := EncodeRow(r)
		got, err := DecodeRow(data, len(r))
		require.NoError(t, err)
		require.Equal(t, len(r), len(got))
		for i := range r {
			require.True(t, Equal(r[i], got[i]))
		}
	}
}

func TestDecodeRowTruncated(t *testing.T) {
	data := EncodeRow(Row{Int(1), Text("abc")})
	_, err := DecodeRow(data[:len(data)-2], 2)
	require.ErrorIs(t, err, ErrCodecTruncated)
}

func TestDecodeRowArityMismatch(t *testing.T) {
	data := EncodeRow(Row{Int(1), Text("abc")})
	_, err := DecodeRow(data, 3)
	require.ErrorIs(t, err, ErrCodecArity)
}
