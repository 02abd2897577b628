package archive

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipkit/internal/testutil"
)

// buildSmallArchive writes a two-entry archive and returns its bytes.
func buildSmallArchive(t *testing.T) []byte {
	t.Helper()
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	e := NewEntry("one.txt", time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC))
	require.NoError(t, a.WriteEntryBytes(e, []byte("first entry")))
	e = NewEntry("two.bin", time.Date(2021, 6, 7, 8, 9, 12, 0, time.UTC))
	e.Method = Deflate
	require.NoError(t, a.WriteEntryBytes(e, bytes.Repeat([]byte{7}, 512)))
	require.NoError(t, a.Close())
	return mem.Bytes()
}

func TestPrependedBytes(t *testing.T) {
	original := buildSmallArchive(t)

	for _, prefix := range [][]byte{
		[]byte("x"),
		[]byte("some prepended garbage that is not zip data"),
		bytes.Repeat([]byte{0}, 4096),
	} {
		prepended := append(append([]byte(nil), prefix...), original...)

		r := reopen(t, prepended)
		assert.Equal(t, []string{"one.txt", "two.bin"}, r.Names())

		data, err := r.ReadFile("one.txt")
		require.NoError(t, err)
		assert.Equal(t, "first entry", string(data))

		data, err = r.ReadFile("two.bin")
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{7}, 512), data)

		bad, err := r.Test()
		require.NoError(t, err)
		assert.Empty(t, bad)
	}
}

func TestNotAZip(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty stream":     nil,
		"too short":        []byte("PK"),
		"no signature":     bytes.Repeat([]byte("plain text "), 100),
		"comment mismatch": append([]byte("PK\x05\x06"), make([]byte, 18+5)...),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := OpenReader(bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrNotZip)
		})
	}
}

func TestFindDirectoryEnd(t *testing.T) {
	t.Run("locates the record past a trailing comment", func(t *testing.T) {
		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{})
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("x", []byte("data")))
		a.SetComment([]byte("trailing comment with embedded PK\x01\x02 fragment"))
		require.NoError(t, a.Close())

		rec, err := findDirectoryEnd(bytes.NewReader(mem.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), rec.entriesTotal)
		assert.Contains(t, string(rec.comment), "trailing comment")
	})

	t.Run("reads the zip64 record when the locator points at it", func(t *testing.T) {
		// Synthetic trailer: zip64 end record, locator, then a classic
		// record with saturated fields.
		var buf bytes.Buffer
		rec64 := make([]byte, directory64EndLen)
		b := writeBuf(rec64)
		b.uint32(directory64EndSignature)
		b.uint64(directory64EndLen - 12)
		b.uint16(zipVersion45)
		b.uint16(zipVersion45)
		b.uint32(0)
		b.uint32(0)
		b.uint64(5) // entries on this disk
		b.uint64(5) // entries total
		b.uint64(0) // directory size
		b.uint64(0) // directory offset
		buf.Write(rec64)

		loc := make([]byte, directory64LocLen)
		b = writeBuf(loc)
		b.uint32(directory64LocSignature)
		b.uint32(0)
		b.uint64(0) // zip64 record sits at the start of this stream
		b.uint32(1)
		buf.Write(loc)

		end := make([]byte, directoryEndLen)
		b = writeBuf(end)
		b.uint32(directoryEndSignature)
		b.uint16(0)
		b.uint16(0)
		b.uint16(uint16max)
		b.uint16(uint16max)
		b.uint32(uint32max)
		b.uint32(uint32max)
		b.uint16(0)
		buf.Write(end)

		rec, err := findDirectoryEnd(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.True(t, rec.zip64)
		assert.Equal(t, uint64(5), rec.entriesTotal)
		assert.Equal(t, uint64(0), rec.size)
		assert.Equal(t, uint64(0), rec.offset)
	})

	t.Run("rejects multi-disk archives", func(t *testing.T) {
		var buf bytes.Buffer
		loc := make([]byte, directory64LocLen)
		b := writeBuf(loc)
		b.uint32(directory64LocSignature)
		b.uint32(0)
		b.uint64(0)
		b.uint32(2) // two disks
		buf.Write(loc)

		end := make([]byte, directoryEndLen)
		b = writeBuf(end)
		b.uint32(directoryEndSignature)
		buf.Write(end)

		_, err := findDirectoryEnd(bytes.NewReader(buf.Bytes()))
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestZip64Promotion(t *testing.T) {
	t.Run("full loop through writer and scanner", func(t *testing.T) {
		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{AllowZip64: true})
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("big.bin", []byte("tiny stand-in payload")))

		// Force the directory record past the classic limits; only the
		// trailer encoding is under test, not the payload.
		e := a.entries[0]
		e.UncompressedSize = 1 << 31
		e.CompressedSize = 1 << 31
		require.NoError(t, a.Close())

		r := reopen(t, mem.Bytes())
		require.Len(t, r.Entries(), 1)
		got := r.Entries()[0]
		assert.Equal(t, uint64(1<<31), got.UncompressedSize, "sentinel must be replaced by the zip64 extra value")
		assert.Equal(t, uint64(1<<31), got.CompressedSize)
		assert.GreaterOrEqual(t, got.ExtractVersion, uint16(zipVersion45))
	})

	t.Run("corrupt central directory magic is rejected", func(t *testing.T) {
		data := buildSmallArchive(t)

		// Damage the signature of the first central directory record.
		rec, err := findDirectoryEnd(bytes.NewReader(data))
		require.NoError(t, err)
		data[rec.offset+3] ^= 0xff

		_, err = OpenReader(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}
