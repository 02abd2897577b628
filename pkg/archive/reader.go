package archive

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"zipkit/pkg/zipcrypto"
)

// readAheadLimit caps how many compressed bytes are pulled from the
// stream per refill of the raw buffer.
const readAheadLimit = 64 * 1024

// Open returns a streaming reader for the named entry, using the
// archive's default password if the entry is encrypted.
func (a *Archive) Open(name string) (*EntryReader, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	return a.openEntry(e, a.password)
}

// OpenWithPassword is Open with an explicit password for this entry.
func (a *Archive) OpenWithPassword(name string, password []byte) (*EntryReader, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	return a.openEntry(e, password)
}

// OpenEntry returns a streaming reader for an entry obtained from
// Entries or Entry.
func (a *Archive) OpenEntry(e *Entry) (*EntryReader, error) {
	return a.openEntry(e, a.password)
}

func (a *Archive) openEntry(e *Entry, password []byte) (*EntryReader, error) {
	if a.closed {
		return nil, ErrClosed
	}
	switch e.Method {
	case Store, Deflate:
	default:
		return nil, fmt.Errorf("%w: compression method %d", ErrUnsupported, e.Method)
	}

	// When the archive owns its backing file, each reader gets its own
	// handle so that directory reads and other entry readers do not
	// disturb this one's position.
	var stream io.ReadSeeker = a.stream
	var owned *os.File
	if a.path != "" {
		f, err := os.Open(a.path)
		if err != nil {
			return nil, err
		}
		stream, owned = f, f
	}
	er, err := a.newEntryReader(e, password, stream, owned)
	if err != nil && owned != nil {
		_ = owned.Close()
	}
	return er, err
}

func (a *Archive) newEntryReader(e *Entry, password []byte, stream io.ReadSeeker, owned *os.File) (*EntryReader, error) {
	if _, err := stream.Seek(int64(e.HeaderOffset), io.SeekStart); err != nil {
		return nil, err
	}

	var header [fileHeaderLen]byte
	if _, err := io.ReadFull(stream, header[:]); err != nil {
		return nil, err
	}
	b := readBuf(header[:])
	if b.uint32() != fileHeaderSignature {
		return nil, fmt.Errorf("%w: bad magic number for file header", ErrCorrupt)
	}
	b = readBuf(header[26:])
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	nameAndExtra := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(stream, nameAndExtra); err != nil {
		return nil, err
	}
	if !bytes.Equal(nameAndExtra[:nameLen], e.RawName) {
		return nil, fmt.Errorf("%w: file name in directory %q and header %q differ",
			ErrCorrupt, e.RawName, nameAndExtra[:nameLen])
	}

	remaining := e.CompressedSize
	var decrypter *zipcrypto.Decrypter
	if e.isEncrypted() {
		if len(password) == 0 {
			return nil, fmt.Errorf("%w: entry %q is encrypted, password required", ErrInvalidArgument, e.Name)
		}
		// The first twelve payload bytes are the password check
		// header: eleven random bytes, then a check byte derived from
		// the CRC, or from the raw time word when the real CRC trails
		// the payload in a data descriptor.
		var checkHeader [zipcrypto.HeaderSize]byte
		if _, err := io.ReadFull(stream, checkHeader[:]); err != nil {
			return nil, err
		}
		check := byte(e.CRC32 >> 24)
		if e.hasDataDescriptor() {
			check = byte(e.rawTime >> 8)
		}
		decrypter = zipcrypto.NewDecrypter(password)
		if !decrypter.DecryptHeader(checkHeader[:], check) {
			return nil, fmt.Errorf("%w: %q", ErrBadPassword, e.Name)
		}
		remaining -= zipcrypto.HeaderSize
	}

	er := &EntryReader{
		archive: a,
		entry:   e,
		crc:     crc32.NewIEEE(),
		owned:   owned,
	}
	er.src = &rawSource{
		er:        er,
		stream:    stream,
		remaining: remaining,
		decrypter: decrypter,
	}
	if e.Method == Deflate {
		er.dec = flate.NewReader(er.src)
	}
	return er, nil
}

// EntryReader streams the decoded contents of one entry. It verifies
// the checksum against the directory once the payload is exhausted.
type EntryReader struct {
	archive *Archive
	entry   *Entry
	src     *rawSource
	dec     io.ReadCloser // inflater for Deflate entries, nil for Store
	crc     hash.Hash32
	owned   *os.File // separately opened handle, released on Close
	err     error    // sticky
	closed  bool
}

// Read pulls up to len(p) decoded bytes. It returns io.EOF after the
// final byte, once the running checksum has matched the directory.
func (er *EntryReader) Read(p []byte) (int, error) {
	if er.closed || er.archive.closed {
		return 0, ErrClosed
	}
	if er.err != nil {
		return 0, er.err
	}

	var n int
	var err error
	if er.dec != nil {
		n, err = er.dec.Read(p)
	} else {
		n, err = er.src.Read(p)
	}
	er.crc.Write(p[:n])

	if err == io.EOF {
		if sum := er.crc.Sum32(); sum != er.entry.CRC32 {
			err = fmt.Errorf("%w: checksum mismatch for %q (got %08x, directory says %08x)",
				ErrCorrupt, er.entry.Name, sum, er.entry.CRC32)
		}
	}
	if err != nil {
		er.err = err
	}
	return n, err
}

// Close releases the reader's file handle, if it holds one. The
// archive itself stays open.
func (er *EntryReader) Close() error {
	if er.closed {
		return nil
	}
	er.closed = true
	if er.dec != nil {
		_ = er.dec.Close()
	}
	if er.owned != nil {
		return er.owned.Close()
	}
	return nil
}

// Name returns the entry name this reader was opened for.
func (er *EntryReader) Name() string {
	return er.entry.Name
}

// rawSource serves the still-compressed payload bytes: it refills a
// raw buffer from the stream in bounded chunks, decrypting as it goes,
// and hands bytes onward to the inflater or directly to the caller.
type rawSource struct {
	er        *EntryReader
	stream    io.Reader
	remaining uint64 // compressed bytes not yet pulled from the stream
	decrypter *zipcrypto.Decrypter
	raw       []byte // fetched, decrypted, not yet consumed
	buf       []byte // backing storage for raw
}

func (s *rawSource) Read(p []byte) (int, error) {
	if s.er.archive.closed {
		return 0, ErrClosed
	}
	if len(s.raw) == 0 {
		if s.remaining == 0 {
			return 0, io.EOF
		}
		if err := s.refill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.raw)
	s.raw = s.raw[n:]
	return n, nil
}

func (s *rawSource) refill() error {
	if s.buf == nil {
		s.buf = make([]byte, readAheadLimit)
	}
	want := min(s.remaining, readAheadLimit)
	n, err := s.stream.Read(s.buf[:want])
	if n == 0 {
		if err == nil || err == io.EOF {
			return fmt.Errorf("%w: payload truncated", ErrCorrupt)
		}
		return err
	}
	s.remaining -= uint64(n)
	if s.decrypter != nil {
		s.decrypter.Decrypt(s.buf[:n])
	}
	s.raw = s.buf[:n]
	return nil
}
