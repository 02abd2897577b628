package archive

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// writeChunk is the unit in which file payloads are streamed into the
// archive.
const writeChunk = 8 * 1024

// WriteFile appends the contents of the file at srcPath under name,
// compressed with the archive's default method. An empty name uses
// srcPath itself. Directories are added as directory entries with no
// payload.
func (a *Archive) WriteFile(srcPath, name string) error {
	return a.writeFile(srcPath, name, a.method)
}

// WriteFileMethod is WriteFile with an explicit compression method for
// this entry.
func (a *Archive) WriteFileMethod(srcPath, name string, method uint16) error {
	return a.writeFile(srcPath, name, method)
}

func (a *Archive) writeFile(srcPath, name string, method uint16) error {
	if a.closed {
		return ErrClosed
	}
	fi, err := os.Stat(srcPath)
	if err != nil {
		return err
	}
	isDir := fi.IsDir()

	if name == "" {
		name = srcPath
	}
	arcname := normalizeArchiveName(name)
	if isDir && !strings.HasSuffix(arcname, "/") {
		arcname += "/"
	}

	e := NewEntry(arcname, fi.ModTime())
	e.SetMode(fi.Mode())
	e.Method = method
	if isDir {
		// A directory entry carries no payload; Store keeps its
		// declared sizes truly zero.
		e.Method = Store
	}
	e.UncompressedSize = uint64(fi.Size())

	pos, err := a.tell()
	if err != nil {
		return err
	}
	e.HeaderOffset = uint64(pos)

	if err := a.ensureWritable(e); err != nil {
		return err
	}
	a.didModify = true

	if isDir {
		e.UncompressedSize, e.CompressedSize, e.CRC32 = 0, 0, 0
		header, err := e.localHeader()
		if err != nil {
			return err
		}
		if _, err := a.stream.Write(header); err != nil {
			return err
		}
		a.addEntry(e)
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = src.Close()
	}()

	// The local header goes out with zero CRC and sizes; the real
	// values are patched in once the payload has been streamed.
	e.CRC32, e.CompressedSize, e.UncompressedSize = 0, 0, 0
	header, err := e.localHeader()
	if err != nil {
		return err
	}
	if _, err := a.stream.Write(header); err != nil {
		return err
	}

	crc, fileSize, compSize, err := a.streamPayload(src, e.Method)
	if err != nil {
		return err
	}
	e.CRC32, e.CompressedSize, e.UncompressedSize = crc, compSize, fileSize

	if err := a.patchLocalHeader(e); err != nil {
		return err
	}
	a.addEntry(e)
	return nil
}

// streamPayload copies src into the archive in fixed-size chunks,
// updating the running checksum over the raw bytes and pushing them
// through the deflate encoder when asked for.
func (a *Archive) streamPayload(src io.Reader, method uint16) (crc uint32, fileSize, compSize uint64, err error) {
	cw := &countWriter{w: a.stream}
	var out io.Writer = cw
	var fw *flate.Writer
	if method == Deflate {
		fw, err = flate.NewWriter(cw, flate.DefaultCompression)
		if err != nil {
			return 0, 0, 0, err
		}
		out = fw
	}

	buf := make([]byte, writeChunk)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			fileSize += uint64(n)
			crc = crc32.Update(crc, crc32.IEEETable, buf[:n])
			if _, werr := out.Write(buf[:n]); werr != nil {
				return 0, 0, 0, werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, 0, rerr
		}
	}
	if fw != nil {
		if err := fw.Close(); err != nil {
			return 0, 0, 0, err
		}
	}
	return crc, fileSize, uint64(cw.count), nil
}

// patchLocalHeader seeks back over the emitted local header and
// overwrites the CRC and size fields with the finalized values, then
// restores the stream position.
func (a *Archive) patchLocalHeader(e *Entry) error {
	end, err := a.tell()
	if err != nil {
		return err
	}
	if _, err := a.stream.Seek(int64(e.HeaderOffset)+14, io.SeekStart); err != nil {
		return err
	}
	var patch [12]byte
	b := writeBuf(patch[:])
	b.uint32(e.CRC32)
	b.uint32(clampUint32(e.CompressedSize))
	b.uint32(clampUint32(e.UncompressedSize))
	if _, err := a.stream.Write(patch[:]); err != nil {
		return err
	}
	_, err = a.stream.Seek(end, io.SeekStart)
	return err
}

// WriteBytes appends an in-memory payload under name with the
// archive's default method and the current time.
func (a *Archive) WriteBytes(name string, data []byte) error {
	e := NewEntry(name, time.Now())
	e.Method = a.method
	e.ExternalAttr = 0o600 << 16
	return a.WriteEntryBytes(e, data)
}

// WriteEntryBytes appends an in-memory payload described by a
// caller-built entry. Because the payload is known in advance, the
// local header is emitted with the correct CRC and sizes from the
// start, unless the entry's flags ask for a data descriptor: then the
// header carries zeros and the descriptor written after the payload
// carries the real values.
func (a *Archive) WriteEntryBytes(e *Entry, data []byte) error {
	if a.closed {
		return ErrClosed
	}
	e.UncompressedSize = uint64(len(data))
	pos, err := a.tell()
	if err != nil {
		return err
	}
	e.HeaderOffset = uint64(pos)

	if err := a.ensureWritable(e); err != nil {
		return err
	}
	a.didModify = true

	e.CRC32 = crc32.ChecksumIEEE(data)
	payload := data
	if e.Method == Deflate {
		var compressed bytes.Buffer
		fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
		if err := fw.Close(); err != nil {
			return err
		}
		payload = compressed.Bytes()
	}
	e.CompressedSize = uint64(len(payload))

	header, err := e.localHeader()
	if err != nil {
		return err
	}
	if _, err := a.stream.Write(header); err != nil {
		return err
	}
	if _, err := a.stream.Write(payload); err != nil {
		return err
	}
	if e.hasDataDescriptor() {
		if _, err := a.stream.Write(e.dataDescriptor()); err != nil {
			return err
		}
	}
	a.addEntry(e)
	return nil
}

// ensureWritable validates an entry about to be written: mode, method,
// timestamp range and, without ZIP64 permitted, the classic size
// limits. A duplicate name is tolerated; the earlier entries stay in
// the directory and the lookup index moves to the newcomer.
func (a *Archive) ensureWritable(e *Entry) error {
	if a.closed {
		return ErrClosed
	}
	if _, ok := a.byName[e.Name]; ok {
		slog.Debug("duplicate name in archive", "name", e.Name)
	}
	if a.mode != ModeWrite && a.mode != ModeAppend {
		return fmt.Errorf("%w: writing requires write or append mode", ErrInvalidArgument)
	}
	switch e.Method {
	case Store, Deflate:
	default:
		return fmt.Errorf("%w: compression method %d", ErrUnsupported, e.Method)
	}
	if e.isEncrypted() {
		return fmt.Errorf("%w: writing encrypted entries", ErrUnsupported)
	}
	if e.Modified.Year() < 1980 {
		return fmt.Errorf("%w: modification year %d predates the MS-DOS epoch", ErrInvalidArgument, e.Modified.Year())
	}
	if !a.allowZip64 {
		if e.UncompressedSize > zip64Limit {
			return fmt.Errorf("%w: file size %d", ErrTooLarge, e.UncompressedSize)
		}
		if e.HeaderOffset > zip64Limit {
			return fmt.Errorf("%w: archive size %d", ErrTooLarge, e.HeaderOffset)
		}
	}
	return nil
}

func (a *Archive) addEntry(e *Entry) {
	a.entries = append(a.entries, e)
	a.byName[e.Name] = e
}

func (a *Archive) tell() (int64, error) {
	return a.stream.Seek(0, io.SeekCurrent)
}

// normalizeArchiveName converts a caller-supplied path to an archive
// member name: the drive prefix goes, native separators become forward
// slashes, redundant segments collapse, and leading slashes are
// stripped so the name is always relative.
func normalizeArchiveName(name string) string {
	name = name[len(filepath.VolumeName(name)):]
	name = path.Clean(filepath.ToSlash(name))
	return strings.TrimLeft(name, "/")
}

// writeTrailers emits the central directory and trailing records: one
// directory record per entry, the ZIP64 end-of-central-directory pair
// when the directory outgrows the classic fields, and the classic
// end record with the archive comment.
func (a *Archive) writeTrailers() error {
	pos1, err := a.tell()
	if err != nil {
		return err
	}

	cw := &countWriter{w: a.stream}
	for _, e := range a.entries {
		if err := writeDirectoryRecord(cw, e); err != nil {
			return err
		}
	}
	pos2 := pos1 + cw.count

	count := uint64(len(a.entries))
	size := uint64(cw.count)
	offset := uint64(pos1)

	if count >= fileCountLimit || size > uint32max || offset > uint32max {
		var buf [directory64EndLen + directory64LocLen]byte
		b := writeBuf(buf[:])

		b.uint32(directory64EndSignature)
		b.uint64(directory64EndLen - 12) // size of the record below this field
		b.uint16(zipVersion45)
		b.uint16(zipVersion45)
		b.uint32(0) // this disk
		b.uint32(0) // directory start disk
		b.uint64(count)
		b.uint64(count)
		b.uint64(size)
		b.uint64(offset)

		b.uint32(directory64LocSignature)
		b.uint32(0) // directory start disk
		b.uint64(uint64(pos2))
		b.uint32(1) // total disks

		if _, err := a.stream.Write(buf[:]); err != nil {
			return err
		}

		// Saturate the classic fields so readers know to use the
		// 64-bit record instead.
		count = min(count, uint16max)
		size = min(size, uint32max)
		offset = min(offset, uint32max)
	}

	comment := a.comment
	if len(comment) > maxCommentLen {
		slog.Debug("archive comment too long; truncating", "limit", maxCommentLen)
		comment = comment[:maxCommentLen]
	}

	var end [directoryEndLen]byte
	b := writeBuf(end[:])
	b.uint32(directoryEndSignature)
	b.uint16(0) // this disk
	b.uint16(0) // directory start disk
	b.uint16(uint16(count))
	b.uint16(uint16(count))
	b.uint32(uint32(size))
	b.uint32(uint32(offset))
	b.uint16(uint16(len(comment)))
	if _, err := a.stream.Write(end[:]); err != nil {
		return err
	}
	_, err = a.stream.Write(comment)
	return err
}

// writeDirectoryRecord emits one central directory record. Values
// beyond the per-entry limit move into a ZIP64 extra block prepended
// to the entry's stored extra field, carrying the 64-bit values in the
// order their sentinels appear, and only those. The two sizes move
// together: when either exceeds the limit, both become sentinels. The
// header offset moves on its own.
func writeDirectoryRecord(w io.Writer, e *Entry) error {
	date, dosTime := timeToMsDos(e.Modified)

	var counts []uint64
	fileSize := e.UncompressedSize
	compSize := e.CompressedSize
	headerOffset := e.HeaderOffset
	if fileSize > zip64Limit || compSize > zip64Limit {
		counts = append(counts, fileSize, compSize)
		fileSize, compSize = uint32max, uint32max
	}
	if headerOffset > zip64Limit {
		counts = append(counts, headerOffset)
		headerOffset = uint32max
	}

	extra := e.Extra
	extractVersion := e.ExtractVersion
	createVersion := e.CreateVersion
	if len(counts) > 0 {
		block := make([]byte, 4+8*len(counts))
		zb := writeBuf(block)
		zb.uint16(zip64ExtraID)
		zb.uint16(uint16(8 * len(counts)))
		for _, c := range counts {
			zb.uint64(c)
		}
		extra = append(block, e.Extra...)
		if extractVersion < zipVersion45 {
			extractVersion = zipVersion45
		}
		if createVersion < zipVersion45 {
			createVersion = zipVersion45
		}
	}

	name, flags := e.encodeName()
	if len(name) > uint16max || len(extra) > uint16max || len(e.Comment) > uint16max {
		return fmt.Errorf("%w: directory record fields for %q exceed 16-bit lengths", ErrInvalidArgument, e.Name)
	}

	buf := make([]byte, directoryHeaderLen, directoryHeaderLen+len(name)+len(extra)+len(e.Comment))
	b := writeBuf(buf)
	b.uint32(directoryHeaderSignature)
	b.uint16(createVersion&0xff | e.CreateSystem<<8)
	b.uint16(extractVersion)
	b.uint16(flags)
	b.uint16(e.Method)
	b.uint16(dosTime)
	b.uint16(date)
	b.uint32(e.CRC32)
	b.uint32(uint32(compSize))
	b.uint32(uint32(fileSize))
	b.uint16(uint16(len(name)))
	b.uint16(uint16(len(extra)))
	b.uint16(uint16(len(e.Comment)))
	b.uint16(0) // disk number start
	b.uint16(e.InternalAttr)
	b.uint32(e.ExternalAttr)
	b.uint32(uint32(headerOffset))

	buf = append(buf, name...)
	buf = append(buf, extra...)
	buf = append(buf, e.Comment...)
	_, err := w.Write(buf)
	return err
}

// countWriter counts the bytes passed through to the underlying
// writer.
type countWriter struct {
	w     io.Writer
	count int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}
