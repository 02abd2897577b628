package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// directoryEnd holds the normalized trailer of an archive: the classic
// end-of-central-directory record, overridden by the ZIP64
// end-of-central-directory when one is present.
type directoryEnd struct {
	diskNumber      uint32
	diskStart       uint32
	entriesThisDisk uint64
	entriesTotal    uint64
	size            uint64 // central directory size in bytes
	offset          uint64 // declared central directory offset
	comment         []byte
	location        int64 // absolute position of the classic record
	zip64           bool
}

var directoryEndSigBytes = []byte("PK\x05\x06")

// findDirectoryEnd locates the end-of-central-directory record by
// scanning backward from the end of the stream, past an arbitrary
// trailing comment of up to 64 KiB.
func findDirectoryEnd(r io.ReadSeeker) (*directoryEnd, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	// Common case first: no comment, so the record is the last 22
	// bytes of the stream.
	if size >= directoryEndLen {
		var tail [directoryEndLen]byte
		if _, err := r.Seek(size-directoryEndLen, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, tail[:]); err != nil {
			return nil, err
		}
		if bytes.Equal(tail[:4], directoryEndSigBytes) && tail[20] == 0 && tail[21] == 0 {
			rec := parseDirectoryEnd(tail[:], size-directoryEndLen)
			return readDirectory64End(r, rec)
		}
	}

	// Otherwise the comment is the last item in the stream; search the
	// final window for the last occurrence of the signature and verify
	// the declared comment length accounts for every byte after the
	// record.
	windowSize := min(size, directoryEndSearchLen)
	if windowSize < directoryEndLen {
		return nil, fmt.Errorf("%w: stream shorter than an end-of-central-directory record", ErrNotZip)
	}
	window := make([]byte, windowSize)
	if _, err := r.Seek(size-windowSize, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, window); err != nil {
		return nil, err
	}

	idx := bytes.LastIndex(window, directoryEndSigBytes)
	if idx < 0 || idx+directoryEndLen > len(window) {
		return nil, fmt.Errorf("%w: end-of-central-directory signature not found", ErrNotZip)
	}
	rec := parseDirectoryEnd(window[idx:idx+directoryEndLen], size-windowSize+int64(idx))
	comment := window[idx+directoryEndLen:]
	cb := readBuf(window[idx+20 : idx+22])
	declared := int(cb.uint16())
	if declared != len(comment) {
		return nil, fmt.Errorf("%w: comment length %d does not match trailing %d bytes", ErrNotZip, declared, len(comment))
	}
	rec.comment = append([]byte(nil), comment...)
	return readDirectory64End(r, rec)
}

// parseDirectoryEnd unpacks the fixed 22-byte record located at
// position location.
func parseDirectoryEnd(data []byte, location int64) *directoryEnd {
	b := readBuf(data[4:]) // skip signature
	rec := &directoryEnd{location: location}
	rec.diskNumber = uint32(b.uint16())
	rec.diskStart = uint32(b.uint16())
	rec.entriesThisDisk = uint64(b.uint16())
	rec.entriesTotal = uint64(b.uint16())
	rec.size = uint64(b.uint32())
	rec.offset = uint64(b.uint32())
	return rec
}

// readDirectory64End checks for a ZIP64 end-of-central-directory
// locator immediately before the classic record and, when present and
// single-disk, overrides the classic fields with the 64-bit record's.
func readDirectory64End(r io.ReadSeeker, rec *directoryEnd) (*directoryEnd, error) {
	locOffset := rec.location - directory64LocLen
	if locOffset < 0 {
		return rec, nil
	}
	var loc [directory64LocLen]byte
	if _, err := r.Seek(locOffset, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, loc[:]); err != nil {
		return nil, err
	}
	b := readBuf(loc[:])
	if b.uint32() != directory64LocSignature {
		return rec, nil
	}
	diskStart := b.uint32()
	recOffset := b.uint64()
	totalDisks := b.uint32()
	if diskStart != 0 || totalDisks != 1 {
		return nil, fmt.Errorf("%w: archives spanning multiple disks", ErrUnsupported)
	}

	// Prefer the locator's declared offset; an archive with bytes
	// prepended invalidates it, in which case the 64-bit record sits
	// immediately before the locator.
	data, err := readRecordAt(r, int64(recOffset), directory64EndLen)
	if err != nil || !bytes.Equal(data[:4], []byte("PK\x06\x06")) {
		data, err = readRecordAt(r, locOffset-directory64EndLen, directory64EndLen)
		if err != nil || !bytes.Equal(data[:4], []byte("PK\x06\x06")) {
			return rec, nil
		}
	}

	b = readBuf(data[4:])
	b.uint64() // record size: assume no extensible data sector
	b.uint16() // create version
	b.uint16() // extract version
	rec.diskNumber = b.uint32()
	rec.diskStart = b.uint32()
	rec.entriesThisDisk = b.uint64()
	rec.entriesTotal = b.uint64()
	rec.size = b.uint64()
	rec.offset = b.uint64()
	rec.zip64 = true
	return rec, nil
}

// readRecordAt reads n bytes at offset, tolerating offsets outside the
// stream by reporting an error rather than panicking.
func readRecordAt(r io.ReadSeeker, offset int64, n int) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: record offset before start of stream", ErrCorrupt)
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// directory is the parsed archive catalog.
type directory struct {
	entries []*Entry
	comment []byte
	// start is the absolute position of the first central directory
	// record, where an appending writer resumes.
	start int64
}

// parseDirectory scans the stream for the trailer records and parses
// every central directory record into an Entry. Archives that have
// been prepended with arbitrary bytes are handled transparently: the
// difference between the trailer's actual position and its declared
// one shifts every header offset.
func parseDirectory(r io.ReadSeeker) (*directory, error) {
	rec, err := findDirectoryEnd(r)
	if err != nil {
		return nil, err
	}
	if rec.diskNumber != 0 || rec.diskStart != 0 {
		return nil, fmt.Errorf("%w: archives spanning multiple disks", ErrUnsupported)
	}

	concat := rec.location - int64(rec.size) - int64(rec.offset)
	if rec.zip64 {
		concat -= directory64EndLen + directory64LocLen
	}

	dir := &directory{
		comment: rec.comment,
		start:   int64(rec.offset) + concat,
	}

	if _, err := r.Seek(dir.start, io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, rec.size)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated central directory", ErrCorrupt)
		}
		return nil, err
	}

	b := readBuf(data)
	for len(b) > 0 {
		entry, err := parseDirectoryRecord(&b)
		if err != nil {
			return nil, err
		}
		entry.HeaderOffset = uint64(int64(entry.HeaderOffset) + concat)
		dir.entries = append(dir.entries, entry)
	}
	return dir, nil
}

// parseDirectoryRecord consumes one central directory record from b,
// including its variable-length name, extra and comment fields, and
// applies the ZIP64 extra-field promotion.
func parseDirectoryRecord(b *readBuf) (*Entry, error) {
	if len(*b) < directoryHeaderLen {
		return nil, fmt.Errorf("%w: truncated central directory record", ErrCorrupt)
	}
	if b.uint32() != directoryHeaderSignature {
		return nil, fmt.Errorf("%w: bad magic number for central directory", ErrCorrupt)
	}

	entry := &Entry{}
	madeBy := b.uint16()
	entry.CreateVersion = madeBy & 0xff
	entry.CreateSystem = madeBy >> 8
	entry.ExtractVersion = b.uint16()
	entry.Flags = b.uint16()
	entry.Method = b.uint16()
	dosTime := b.uint16()
	dosDate := b.uint16()
	entry.CRC32 = b.uint32()
	entry.CompressedSize = uint64(b.uint32())
	entry.UncompressedSize = uint64(b.uint32())
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	entry.DiskStart = b.uint16()
	entry.InternalAttr = b.uint16()
	entry.ExternalAttr = b.uint32()
	entry.HeaderOffset = uint64(b.uint32())

	if len(*b) < nameLen+extraLen+commentLen {
		return nil, fmt.Errorf("%w: central directory record overruns directory", ErrCorrupt)
	}
	entry.RawName = append([]byte(nil), b.sub(nameLen)...)
	entry.Extra = append([]byte(nil), b.sub(extraLen)...)
	entry.Comment = append([]byte(nil), b.sub(commentLen)...)

	entry.Name = decodeStoredName(entry.RawName, entry.Flags)
	entry.Modified = msDosToTime(dosDate, dosTime)
	entry.rawTime = dosTime

	if err := entry.decodeExtra(); err != nil {
		return nil, err
	}
	return entry, nil
}

// decodeStoredName converts stored name bytes to the normalized entry
// name: UTF-8 when the flag says so, code page 437 otherwise, trimmed
// at the first NUL byte.
func decodeStoredName(raw []byte, flags uint16) string {
	var name string
	if flags&flagUTF8 != 0 {
		name = string(raw)
	} else {
		name = decodeCP437(raw)
	}
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return name
}
