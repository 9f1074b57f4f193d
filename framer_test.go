package pglink

import (
	"testing"

	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrameStream(t *testing.T) []byte {
	t.Helper()

	buf := (&pgproto3.ParseComplete{}).Encode(nil)
	buf = (&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
		{Name: []byte("a"), DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1},
	}}).Encode(buf)
	buf = (&pgproto3.DataRow{Values: [][]byte{[]byte("1")}}).Encode(buf)
	buf = (&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}).Encode(buf)
	buf = (&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(buf)
	return buf
}

func feedAll(t *testing.T, f *framer, chunks [][]byte) []frame {
	t.Helper()

	var frames []frame
	for _, chunk := range chunks {
		// feed takes ownership; simulate distinct reads
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		got, err := f.feed(buf)
		require.NoError(t, err)
		frames = append(frames, got...)
	}
	return frames
}

func TestFramerSingleChunk(t *testing.T) {
	var f framer
	frames := feedAll(t, &f, [][]byte{testFrameStream(t)})

	require.Len(t, frames, 5)
	assert.EqualValues(t, '1', frames[0].typ)
	assert.EqualValues(t, 'T', frames[1].typ)
	assert.EqualValues(t, 'D', frames[2].typ)
	assert.EqualValues(t, 'C', frames[3].typ)
	assert.EqualValues(t, 'Z', frames[4].typ)
	assert.Nil(t, f.tail)
}

func TestFramerAnySplitYieldsSameFrames(t *testing.T) {
	stream := testFrameStream(t)

	var want []frame
	{
		var f framer
		want = feedAll(t, &f, [][]byte{stream})
	}

	for split := 1; split < len(stream); split++ {
		var f framer
		got := feedAll(t, &f, [][]byte{stream[:split], stream[split:]})

		require.Len(t, got, len(want), "split at %d", split)
		for i := range want {
			assert.Equal(t, want[i].typ, got[i].typ, "split at %d frame %d", split, i)
			assert.Equal(t, want[i].body, got[i].body, "split at %d frame %d", split, i)
		}
	}
}

func TestFramerByteAtATime(t *testing.T) {
	stream := testFrameStream(t)

	var f framer
	chunks := make([][]byte, 0, len(stream))
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	frames := feedAll(t, &f, chunks)

	require.Len(t, frames, 5)
	assert.EqualValues(t, 'Z', frames[4].typ)
	assert.Nil(t, f.tail)
}

func TestFramerRetainsPartialFrame(t *testing.T) {
	stream := testFrameStream(t)

	var f framer
	frames, err := f.feed(append([]byte(nil), stream[:3]...))
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Len(t, f.tail, 3)

	frames, err = f.feed(append([]byte(nil), stream[3:]...))
	require.NoError(t, err)
	assert.Len(t, frames, 5)
	assert.Nil(t, f.tail)
}

func TestFramerRejectsInvalidLength(t *testing.T) {
	var f framer
	// Declared length below the minimum of 4.
	_, err := f.feed([]byte{'Z', 0, 0, 0, 1})
	require.Error(t, err)
	assert.IsType(t, ProtocolError(""), err)
}
