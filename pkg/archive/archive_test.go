package archive

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipkit/internal/testutil"
)

func reopen(t *testing.T, data []byte) *Archive {
	t.Helper()
	a, err := OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	return a
}

func TestEmptyArchive(t *testing.T) {
	t.Run("write mode close emits exactly the end record", func(t *testing.T) {
		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{})
		require.NoError(t, err)
		require.NoError(t, a.Close())

		want := []byte{
			0x50, 0x4b, 0x05, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}
		assert.Equal(t, want, mem.Bytes())
	})

	t.Run("empty archive reads back with no entries", func(t *testing.T) {
		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{})
		require.NoError(t, err)
		require.NoError(t, a.Close())

		r := reopen(t, mem.Bytes())
		assert.Empty(t, r.Entries())
		assert.Empty(t, r.Comment())
	})
}

func TestStoredEntry(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("a.txt", []byte("hello")))
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	require.Len(t, r.Entries(), 1)
	e := r.Entries()[0]
	assert.Equal(t, "a.txt", e.Name)
	assert.Equal(t, Store, e.Method)
	assert.Equal(t, uint64(5), e.UncompressedSize)
	assert.Equal(t, uint64(5), e.CompressedSize)
	assert.Equal(t, uint32(0x3610A686), e.CRC32)

	data, err := r.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestDeflatedEntry(t *testing.T) {
	content := bytes.Repeat([]byte{0x41}, 1024)

	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{Method: Deflate})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("b.bin", content))
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	require.Len(t, r.Entries(), 1)
	e := r.Entries()[0]
	assert.Equal(t, Deflate, e.Method)
	assert.Equal(t, uint64(1024), e.UncompressedSize)
	assert.Less(t, e.CompressedSize, uint64(1024))
	assert.Equal(t, uint32(0xb737fb1a), e.CRC32)

	data, err := r.ReadFile("b.bin")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	bad, err := r.Test()
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestRoundTrip(t *testing.T) {
	inputs := []struct {
		name   string
		data   []byte
		method uint16
	}{
		{"readme.txt", []byte("plain text contents\n"), Store},
		{"data/blob.bin", bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 300), Deflate},
		{"empty", nil, Store},
		{"compressible.log", bytes.Repeat([]byte("log line\n"), 128), Deflate},
	}

	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	for _, in := range inputs {
		e := NewEntry(in.name, time.Date(2022, 8, 15, 9, 0, 0, 0, time.UTC))
		e.Method = in.method
		require.NoError(t, a.WriteEntryBytes(e, in.data))
	}
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	require.Len(t, r.Entries(), len(inputs))
	for i, in := range inputs {
		e := r.Entries()[i]
		assert.Equal(t, in.name, e.Name, "directory order must match write order")
		assert.Equal(t, crc32.ChecksumIEEE(in.data), e.CRC32)

		data, err := r.ReadFile(in.name)
		require.NoError(t, err)
		if len(in.data) == 0 {
			assert.Empty(t, data)
		} else {
			assert.Equal(t, in.data, data)
		}
	}

	bad, err := r.Test()
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestAppendMode(t *testing.T) {
	t.Run("appends to a file that is not yet a zip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notyet.zip")
		require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

		a, err := Open(path, ModeAppend)
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("c", nil))
		require.NoError(t, a.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("not a zip")), "original prefix must survive")

		r, err := Open(path, ModeRead)
		require.NoError(t, err)
		defer func() {
			_ = r.Close()
		}()
		assert.Equal(t, []string{"c"}, r.Names())

		content, err := r.ReadFile("c")
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	t.Run("appends to an existing archive, overwriting its trailer", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "grow.zip")

		a, err := Open(path, ModeWrite)
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("first.txt", []byte("one")))
		require.NoError(t, a.Close())

		a, err = Open(path, ModeAppend)
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("second.txt", []byte("two")))
		require.NoError(t, a.Close())

		r, err := Open(path, ModeRead)
		require.NoError(t, err)
		defer func() {
			_ = r.Close()
		}()
		assert.Equal(t, []string{"first.txt", "second.txt"}, r.Names())
		for name, want := range map[string]string{"first.txt": "one", "second.txt": "two"} {
			data, err := r.ReadFile(name)
			require.NoError(t, err)
			assert.Equal(t, want, string(data))
		}
	})

	t.Run("close without writes leaves the archive untouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "idle.zip")

		a, err := Open(path, ModeWrite)
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("x", []byte("data")))
		require.NoError(t, a.Close())

		before, err := os.ReadFile(path)
		require.NoError(t, err)

		a, err = Open(path, ModeAppend)
		require.NoError(t, err)
		require.NoError(t, a.Close())

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestCloseIdempotent(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("x", []byte("payload")))

	require.NoError(t, a.Close())
	first := append([]byte(nil), mem.Bytes()...)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, first, mem.Bytes(), "repeated close must not write again")
}

func TestWriteAfterClose(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	err = a.WriteBytes("late", []byte("data"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArchiveComment(t *testing.T) {
	t.Run("round-trips through close and reopen", func(t *testing.T) {
		comment := []byte("backup of 2022-08-15, PK fragments are fine: PK\x01\x02")

		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{})
		require.NoError(t, err)
		require.NoError(t, a.WriteBytes("x", []byte("data")))
		a.SetComment(comment)
		require.NoError(t, a.Close())

		r := reopen(t, mem.Bytes())
		assert.Equal(t, comment, r.Comment())
		assert.Equal(t, []string{"x"}, r.Names())
	})

	t.Run("directory is identical with and without a comment", func(t *testing.T) {
		build := func(comment []byte) *Archive {
			mem := testutil.NewMemFile(nil)
			a, err := NewArchive(mem, ModeWrite, Options{})
			require.NoError(t, err)
			e := NewEntry("stable.txt", time.Date(2022, 1, 2, 3, 4, 6, 0, time.UTC))
			require.NoError(t, a.WriteEntryBytes(e, []byte("stable")))
			a.SetComment(comment)
			require.NoError(t, a.Close())
			return reopen(t, mem.Bytes())
		}

		plain := build(nil)
		commented := build(bytes.Repeat([]byte("comment "), 1000))

		require.Len(t, commented.Entries(), len(plain.Entries()))
		assert.Equal(t, plain.Entries()[0].Name, commented.Entries()[0].Name)
		assert.Equal(t, plain.Entries()[0].CRC32, commented.Entries()[0].CRC32)
		assert.Equal(t, plain.Entries()[0].HeaderOffset, commented.Entries()[0].HeaderOffset)
	})

	t.Run("overlong comment is truncated at close", func(t *testing.T) {
		mem := testutil.NewMemFile(nil)
		a, err := NewArchive(mem, ModeWrite, Options{})
		require.NoError(t, err)
		a.SetComment(bytes.Repeat([]byte{'c'}, maxCommentLen+100))
		require.NoError(t, a.Close())

		r := reopen(t, mem.Bytes())
		assert.Len(t, r.Comment(), maxCommentLen)
	})
}

func TestDuplicateNames(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("dup.txt", []byte("old")))
	require.NoError(t, a.WriteBytes("dup.txt", []byte("new")))
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	assert.Equal(t, []string{"dup.txt", "dup.txt"}, r.Names(), "both entries stay in the directory")

	data, err := r.ReadFile("dup.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data), "lookup returns the last-inserted entry")
}

func TestEntryLookup(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("present", []byte("x")))
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	_, err = r.Entry("present")
	assert.NoError(t, err)
	_, err = r.Entry("absent")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ReadFile("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsZipfile(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "real.zip")
	a, err := Open(zipPath, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("x", []byte("data")))
	require.NoError(t, a.Close())
	assert.True(t, IsZipfile(zipPath))

	textPath := filepath.Join(dir, "plain.txt")
	testutil.CreateFile(t, textPath, "just some text, long enough to scan")
	assert.False(t, IsZipfile(textPath))

	assert.False(t, IsZipfile(filepath.Join(dir, "missing.zip")))
}

func TestUnsupportedOptions(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	_, err := NewArchive(mem, ModeWrite, Options{Method: 9})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = NewArchive(mem, Mode(42), Options{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUTF8Names(t *testing.T) {
	mem := testutil.NewMemFile(nil)
	a, err := NewArchive(mem, ModeWrite, Options{})
	require.NoError(t, err)
	require.NoError(t, a.WriteBytes("notes/日本語.txt", []byte("konnichiwa")))
	require.NoError(t, a.WriteBytes("plain.txt", []byte("ascii")))
	require.NoError(t, a.Close())

	r := reopen(t, mem.Bytes())
	utf8Entry, err := r.Entry("notes/日本語.txt")
	require.NoError(t, err)
	assert.NotZero(t, utf8Entry.Flags&0x800, "non-ASCII name must carry the UTF-8 flag")

	plainEntry, err := r.Entry("plain.txt")
	require.NoError(t, err)
	assert.Zero(t, plainEntry.Flags&0x800, "ASCII name must not carry the UTF-8 flag")

	data, err := r.ReadFile("notes/日本語.txt")
	require.NoError(t, err)
	assert.Equal(t, "konnichiwa", string(data))
}
