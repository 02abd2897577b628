package archive

import "errors"

// Error taxonomy for archive operations. Callers discriminate with
// errors.Is. Errors detected by this package wrap one of these
// sentinels; errors from the underlying stream and the file system,
// from the deflate codec, and from the safepath package propagate
// unchanged.
var (
	// ErrNotZip indicates the end-of-central-directory record could
	// not be located: the stream is not a zip archive.
	ErrNotZip = errors.New("archive: not a zip file")

	// ErrCorrupt indicates a structural inconsistency: a bad signature
	// mid-stream, a malformed extra block, a central versus local name
	// mismatch, or a checksum that does not match the directory.
	ErrCorrupt = errors.New("archive: corrupt zip structure")

	// ErrUnsupported indicates a valid archive using a feature this
	// package does not handle, such as a multi-disk layout or an
	// unknown compression method.
	ErrUnsupported = errors.New("archive: unsupported zip feature")

	// ErrBadPassword indicates the decrypted password check header did
	// not match the expected check byte.
	ErrBadPassword = errors.New("archive: bad password")

	// ErrTooLarge indicates a write whose file size or header offset
	// exceeds 2^31-1 on an archive opened without ZIP64 permitted.
	ErrTooLarge = errors.New("archive: size would require ZIP64 extensions")

	// ErrClosed indicates an operation on an archive whose underlying
	// stream has been closed.
	ErrClosed = errors.New("archive: archive is closed")

	// ErrInvalidArgument indicates a caller error: an unknown mode, a
	// modification year before 1980, a missing password for an
	// encrypted entry.
	ErrInvalidArgument = errors.New("archive: invalid argument")

	// ErrNotFound indicates a name lookup that matched no entry.
	ErrNotFound = errors.New("archive: entry not found")
)
