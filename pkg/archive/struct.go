// Package archive reads and writes PKZIP container archives.
//
// It locates and parses the archive's central directory, streams
// member payloads with stored and deflate-compressed content, decrypts
// traditional PKZIP-encrypted payloads, and serializes new archives
// byte-compatible with the format specification including the ZIP64
// large-file extension.
package archive

import "encoding/binary"

// Compression methods.
const (
	// Store is the identity method: payload bytes are written as-is.
	Store uint16 = 0
	// Deflate compresses payloads as raw DEFLATE streams.
	Deflate uint16 = 8
)

// Record signatures and fixed lengths, little-endian on the wire.
const (
	fileHeaderSignature      = 0x04034b50 // "PK\x03\x04"
	directoryHeaderSignature = 0x02014b50 // "PK\x01\x02"
	directoryEndSignature    = 0x06054b50 // "PK\x05\x06"
	directory64LocSignature  = 0x07064b50 // "PK\x06\x07"
	directory64EndSignature  = 0x06064b50 // "PK\x06\x06"
	dataDescriptorSignature  = 0x08074b50

	fileHeaderLen      = 30 // + name + extra
	directoryHeaderLen = 46 // + name + extra + comment
	directoryEndLen    = 22 // + comment
	directory64LocLen  = 20
	directory64EndLen  = 56

	// The EOCD search window: a full 64 KiB comment plus the record.
	directoryEndSearchLen = directoryEndLen + 0xffff
)

// Version numbers.
const (
	zipVersion20 = 20 // 2.0
	zipVersion45 = 45 // 4.5, reads and writes ZIP64 archives
)

// Host systems for the high byte of "version made by".
const (
	createSystemFAT  = 0
	createSystemUnix = 3
)

// General purpose flag bits.
const (
	flagEncrypted      = 0x1   // payload uses traditional encryption
	flagDataDescriptor = 0x8   // sizes and CRC follow the payload
	flagUTF8           = 0x800 // name and comment are UTF-8
)

// Limits for classic (non-ZIP64) fields.
const (
	uint16max = (1 << 16) - 1
	uint32max = (1 << 32) - 1

	// zip64Limit is the per-entry threshold beyond which sizes and
	// offsets are promoted to the ZIP64 extra block.
	zip64Limit = (1 << 31) - 1

	// fileCountLimit is the entry count at and above which the trailer
	// needs the ZIP64 end-of-central-directory records.
	fileCountLimit = 1 << 16

	// maxCommentLen bounds the archive comment; longer comments are
	// truncated at close.
	maxCommentLen = (1 << 16) - 1
)

// zip64ExtraID tags the ZIP64 extended information extra block.
const zip64ExtraID = 0x0001

// readBuf consumes fixed little-endian fields from a byte slice,
// advancing past each field as it is read.
type readBuf []byte

func (b *readBuf) uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) sub(n int) readBuf {
	v := (*b)[:n]
	*b = (*b)[n:]
	return v
}

// writeBuf is the emitting counterpart of readBuf.
type writeBuf []byte

func (b *writeBuf) uint8(v uint8) {
	(*b)[0] = v
	*b = (*b)[1:]
}

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) uint64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}
