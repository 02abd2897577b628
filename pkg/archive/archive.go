package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Mode selects what an archive handle may do with its stream.
type Mode int

const (
	// ModeRead parses the existing directory; the stream is read-only.
	ModeRead Mode = iota
	// ModeWrite starts a fresh archive at position zero.
	ModeWrite
	// ModeAppend reads the existing directory and positions the stream
	// so that newly written entries overwrite the old trailer, which is
	// re-emitted at close. A stream that is not yet a zip archive is
	// appended to as if writing.
	ModeAppend
)

// Stream is the byte stream an archive operates on. Reading and
// appending require seekability; writing requires seeking back to
// patch headers.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Options configures an archive handle.
type Options struct {
	// Method is the default compression method for written entries.
	// The zero value is Store.
	Method uint16

	// AllowZip64 permits writes that need ZIP64 extensions. Without
	// it, a write whose file size or header offset exceeds 2^31-1
	// fails with ErrTooLarge.
	AllowZip64 bool
}

// Archive is a handle on one zip archive, unifying reading, writing
// and appending behind a single lifecycle. It is not safe for
// concurrent use; callers must serialize access.
type Archive struct {
	stream Stream
	file   *os.File // owned backing file, nil when the caller provided the stream
	path   string   // backing file path when opened by path

	mode       Mode
	method     uint16
	allowZip64 bool

	entries []*Entry
	byName  map[string]*Entry
	comment []byte

	password  []byte
	didModify bool
	startDir  int64 // position of the central directory start
	closed    bool
}

// Open opens the archive at path with default options: Store
// compression and no ZIP64 on write.
func Open(path string, mode Mode) (*Archive, error) {
	return OpenWith(path, mode, Options{})
}

// OpenWith opens the archive at path. In ModeAppend a file that does
// not exist yet is created; a file that is not a zip archive is
// appended to from its current end.
func OpenWith(path string, mode Mode, opts Options) (*Archive, error) {
	if err := checkOptions(mode, opts); err != nil {
		return nil, err
	}

	var f *os.File
	var err error
	switch mode {
	case ModeRead:
		f, err = os.Open(path)
	case ModeWrite:
		f, err = os.Create(path)
	case ModeAppend:
		f, err = os.OpenFile(path, os.O_RDWR, 0o644)
		if errors.Is(err, fs.ErrNotExist) {
			f, err = os.Create(path)
		}
	}
	if err != nil {
		return nil, err
	}

	a := &Archive{
		stream:     f,
		file:       f,
		path:       path,
		mode:       mode,
		method:     opts.Method,
		allowZip64: opts.AllowZip64,
		byName:     make(map[string]*Entry),
	}
	if err := a.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return a, nil
}

// NewArchive opens an archive over a caller-provided stream. The
// stream is not closed when the archive is closed; releasing it stays
// with the caller.
func NewArchive(stream Stream, mode Mode, opts Options) (*Archive, error) {
	if err := checkOptions(mode, opts); err != nil {
		return nil, err
	}
	a := &Archive{
		stream:     stream,
		mode:       mode,
		method:     opts.Method,
		allowZip64: opts.AllowZip64,
		byName:     make(map[string]*Entry),
	}
	if err := a.init(); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenReader opens a read-only archive over a caller-provided stream.
func OpenReader(r io.ReadSeeker) (*Archive, error) {
	return NewArchive(readOnlyStream{r}, ModeRead, Options{})
}

func checkOptions(mode Mode, opts Options) error {
	switch mode {
	case ModeRead, ModeWrite, ModeAppend:
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidArgument, mode)
	}
	switch opts.Method {
	case Store, Deflate:
	default:
		return fmt.Errorf("%w: compression method %d", ErrUnsupported, opts.Method)
	}
	return nil
}

// init performs the per-mode setup on a freshly constructed handle.
func (a *Archive) init() error {
	switch a.mode {
	case ModeRead:
		return a.loadDirectory()
	case ModeWrite:
		_, err := a.stream.Seek(0, io.SeekStart)
		return err
	case ModeAppend:
		err := a.loadDirectory()
		switch {
		case err == nil:
			// Seek to the central directory start so it is overwritten
			// when close rewrites the trailer.
			_, err = a.stream.Seek(a.startDir, io.SeekStart)
			return err
		case errors.Is(err, ErrNotZip):
			// Not yet a zip archive: append from the end.
			_, err = a.stream.Seek(0, io.SeekEnd)
			return err
		default:
			return err
		}
	}
	return nil
}

// loadDirectory scans the stream and populates the entry list, the
// name index and the archive comment.
func (a *Archive) loadDirectory() error {
	dir, err := parseDirectory(a.stream)
	if err != nil {
		return err
	}
	a.entries = dir.entries
	a.comment = dir.comment
	a.startDir = dir.start
	for _, e := range a.entries {
		a.byName[e.Name] = e
	}
	return nil
}

// Entries returns the archive directory in insertion order. Names may
// repeat; all entries are retained.
func (a *Archive) Entries() []*Entry {
	return a.entries
}

// Names returns the entry names in directory order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// Entry returns the entry for name. When the directory holds several
// entries with the same name, the last one wins.
func (a *Archive) Entry(name string) (*Entry, error) {
	e, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Comment returns the archive comment.
func (a *Archive) Comment() []byte {
	return a.comment
}

// SetComment sets the archive comment written at close. Comments
// longer than 65535 bytes are truncated then.
func (a *Archive) SetComment(comment []byte) {
	a.comment = comment
}

// SetPassword sets the default password used when opening encrypted
// entries.
func (a *Archive) SetPassword(password []byte) {
	a.password = password
}

// ReadFile reads the full decoded contents of the named entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	er, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = er.Close()
	}()
	return io.ReadAll(er)
}

// Test reads every entry to completion and verifies its checksum. It
// returns the name of the first entry whose CRC does not match the
// directory, or the empty string when every entry passes. Errors other
// than corruption, such as a missing password, propagate.
func (a *Archive) Test() (string, error) {
	buf := make([]byte, 1<<20)
	for _, e := range a.entries {
		er, err := a.OpenEntry(e)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				return e.Name, nil
			}
			return "", err
		}
		for {
			_, err = er.Read(buf)
			if err != nil {
				break
			}
		}
		_ = er.Close()
		if !errors.Is(err, io.EOF) {
			if errors.Is(err, ErrCorrupt) {
				return e.Name, nil
			}
			return "", err
		}
	}
	return "", nil
}

// Close writes the trailer records (always in write mode, in append
// mode only if entries were added) and releases the backing file if
// the archive opened it. Closing an
// already-closed archive has no effect. An unclosed writer leaves a
// corrupt archive: nothing flushes the directory implicitly.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	// Write mode always emits the trailer, so even an empty archive is
	// a valid zip file; append mode leaves an untouched archive alone.
	var trailerErr error
	if a.mode == ModeWrite || (a.mode == ModeAppend && a.didModify) {
		trailerErr = a.writeTrailers()
	}

	if a.file != nil {
		closeErr := a.file.Close()
		if trailerErr == nil {
			trailerErr = closeErr
		}
	}
	return trailerErr
}

// IsZipfile reports whether the file at path carries a readable
// end-of-central-directory record.
func IsZipfile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = findDirectoryEnd(f)
	return err == nil
}

// readOnlyStream adapts a ReadSeeker to Stream for read-mode archives.
type readOnlyStream struct {
	io.ReadSeeker
}

func (readOnlyStream) Write([]byte) (int, error) {
	return 0, fmt.Errorf("%w: stream is read-only", ErrInvalidArgument)
}
