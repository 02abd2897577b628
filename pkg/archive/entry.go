package archive

import (
	"fmt"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"
)

// Entry describes one archive member. Reader entries are created
// during directory parse and should be treated as read-only; writer
// entries are created by a write call and are frozen once the payload
// has been written and the sizes finalized.
type Entry struct {
	// Name is the path within the archive. It always uses forward
	// slashes, never starts with one, and is truncated at the first
	// NUL byte if the stored name contained one. A trailing slash
	// marks a directory entry.
	Name string

	// RawName holds the name bytes exactly as stored in the central
	// directory, before NUL trimming and character decoding. The local
	// header name is verified against these bytes when the entry is
	// opened.
	RawName []byte

	// Modified is the modification timestamp. The container stores it
	// in MS-DOS format: two-second granularity, years from 1980.
	Modified time.Time

	// Method is the compression method. Only Store and Deflate can be
	// written; other values may appear on read but cannot be opened.
	Method uint16

	// Flags is the general purpose bit flag word. Bit 0 marks an
	// encrypted payload, bit 3 a trailing data descriptor, bit 11 a
	// UTF-8 encoded name.
	Flags uint16

	// CRC32 is the checksum of the uncompressed content.
	CRC32 uint32

	// CompressedSize and UncompressedSize are byte counts. After
	// directory parse they always hold genuine values: 32-bit sentinel
	// values have been replaced from the ZIP64 extra block.
	CompressedSize   uint64
	UncompressedSize uint64

	// HeaderOffset is the absolute position of this entry's local
	// header within the archive stream, already adjusted for any bytes
	// prepended before the archive proper.
	HeaderOffset uint64

	// Extra holds the opaque extra-field bytes as stored.
	Extra []byte

	// Comment is the per-entry comment.
	Comment []byte

	CreateVersion  uint16 // version-made-by, low byte
	CreateSystem   uint16 // version-made-by, high byte (host system)
	ExtractVersion uint16
	InternalAttr   uint16
	ExternalAttr   uint32
	DiskStart      uint16 // always 0 in supported archives

	// rawTime is the MS-DOS time word as stored. The password check
	// byte for entries with a data descriptor derives from it.
	rawTime uint16
}

// NewEntry returns an Entry for name with the standard defaults for a
// freshly written member. The name is truncated at the first NUL byte
// and backslashes are replaced with forward slashes on every platform.
func NewEntry(name string, modified time.Time) *Entry {
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "\\", "/")

	createSystem := uint16(createSystemUnix)
	if runtime.GOOS == "windows" {
		createSystem = createSystemFAT
	}

	return &Entry{
		Name:           name,
		Modified:       modified,
		Method:         Store,
		CreateVersion:  zipVersion20,
		CreateSystem:   createSystem,
		ExtractVersion: zipVersion20,
	}
}

// IsDir reports whether the entry names a directory: the name ends
// with a forward slash.
func (e *Entry) IsDir() bool {
	return len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
}

// isEncrypted reports whether the payload uses traditional encryption.
func (e *Entry) isEncrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// hasDataDescriptor reports whether sizes and CRC trail the payload.
func (e *Entry) hasDataDescriptor() bool {
	return e.Flags&flagDataDescriptor != 0
}

// encodeName returns the stored name bytes and the flags to write. An
// ASCII-clean name is stored as-is with no flag; anything else is
// stored as UTF-8 with the UTF-8 flag bit set.
func (e *Entry) encodeName() ([]byte, uint16) {
	for i := 0; i < len(e.Name); i++ {
		if e.Name[i] >= utf8.RuneSelf {
			return []byte(e.Name), e.Flags | flagUTF8
		}
	}
	return []byte(e.Name), e.Flags
}

// timeToMsDos converts t to the MS-DOS date and time words. The
// resolution is two seconds.
func timeToMsDos(t time.Time) (date, dosTime uint16) {
	date = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, dosTime
}

// msDosToTime converts the stored MS-DOS date and time words to a
// time.Time in UTC.
func msDosToTime(date, dosTime uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f)*2,
		0,
		time.UTC,
	)
}

// decodeExtra walks the extra-field blocks and applies the ZIP64
// extended information block: 64-bit values replace, in order, each of
// uncompressed size, compressed size and header offset whose current
// value is the 32-bit sentinel. Unknown blocks are preserved in
// e.Extra but otherwise ignored.
func (e *Entry) decodeExtra() error {
	b := readBuf(e.Extra)
	for len(b) >= 4 {
		tag := b.uint16()
		size := int(b.uint16())
		if size > len(b) {
			break
		}
		data := b.sub(size)
		if tag != zip64ExtraID {
			continue
		}

		switch size {
		case 0, 8, 16, 24:
		default:
			return fmt.Errorf("%w: zip64 extra block has length %d", ErrCorrupt, size)
		}

		need := func() (uint64, error) {
			if len(data) < 8 {
				return 0, fmt.Errorf("%w: zip64 extra block exhausted", ErrCorrupt)
			}
			return data.uint64(), nil
		}

		if e.UncompressedSize == uint32max || e.UncompressedSize == ^uint64(0) {
			v, err := need()
			if err != nil {
				return err
			}
			e.UncompressedSize = v
		}
		if e.CompressedSize == uint32max {
			v, err := need()
			if err != nil {
				return err
			}
			e.CompressedSize = v
		}
		if e.HeaderOffset == uint32max {
			v, err := need()
			if err != nil {
				return err
			}
			e.HeaderOffset = v
		}
	}
	return nil
}

// localHeader serializes the local file header for the entry's current
// CRC and sizes, including the name and extra fields. Sizes beyond the
// classic limit move into a ZIP64 extra block appended for this header
// only, with sentinels in the 32-bit fields.
func (e *Entry) localHeader() ([]byte, error) {
	name, flags := e.encodeName()
	if len(name) > uint16max {
		return nil, fmt.Errorf("%w: name longer than %d bytes", ErrInvalidArgument, uint16max)
	}
	e.RawName = name

	crc, compressed, uncompressed := e.CRC32, e.CompressedSize, e.UncompressedSize
	if e.hasDataDescriptor() {
		// Real values follow the payload in the data descriptor.
		crc, compressed, uncompressed = 0, 0, 0
	}

	extra := e.Extra
	if uncompressed > zip64Limit || compressed > zip64Limit {
		var zb [20]byte
		z := writeBuf(zb[:])
		z.uint16(zip64ExtraID)
		z.uint16(16)
		z.uint64(uncompressed)
		z.uint64(compressed)
		extra = append(append([]byte(nil), extra...), zb[:]...)
		uncompressed = uint32max
		compressed = uint32max
		if e.ExtractVersion < zipVersion45 {
			e.ExtractVersion = zipVersion45
		}
		if e.CreateVersion < zipVersion45 {
			e.CreateVersion = zipVersion45
		}
	}
	if len(extra) > uint16max {
		return nil, fmt.Errorf("%w: extra field longer than %d bytes", ErrInvalidArgument, uint16max)
	}

	date, dosTime := timeToMsDos(e.Modified)
	e.rawTime = dosTime

	buf := make([]byte, fileHeaderLen, fileHeaderLen+len(name)+len(extra))
	b := writeBuf(buf)
	b.uint32(fileHeaderSignature)
	b.uint16(e.ExtractVersion)
	b.uint16(flags)
	b.uint16(e.Method)
	b.uint16(dosTime)
	b.uint16(date)
	b.uint32(crc)
	b.uint32(clampUint32(compressed))
	b.uint32(clampUint32(uncompressed))
	b.uint16(uint16(len(name)))
	b.uint16(uint16(len(extra)))

	buf = append(buf, name...)
	buf = append(buf, extra...)
	return buf, nil
}

// clampUint32 saturates v to the 32-bit sentinel. Oversized values
// only appear here when the genuine value lives in a ZIP64 structure.
func clampUint32(v uint64) uint32 {
	if v > uint32max {
		return uint32max
	}
	return uint32(v)
}

// dataDescriptor serializes the post-payload record carrying CRC and
// sizes. The CRC field is an unsigned 32-bit value in both this and
// the header path.
func (e *Entry) dataDescriptor() []byte {
	var buf [16]byte
	b := writeBuf(buf[:])
	b.uint32(dataDescriptorSignature)
	b.uint32(e.CRC32)
	b.uint32(clampUint32(e.CompressedSize))
	b.uint32(clampUint32(e.UncompressedSize))
	return buf[:]
}
