package archive

import "io/fs"

// Unix file type bits carried in the high half of ExternalAttrs. The
// format specification never mentions them, but every archiver agrees
// on these values.
const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

// Mode returns the permission and mode bits for the entry, interpreted
// according to the system that created it.
func (e *Entry) Mode() fs.FileMode {
	var mode fs.FileMode
	switch e.CreateSystem {
	case createSystemUnix:
		mode = unixModeToFileMode(e.ExternalAttr >> 16)
	case createSystemFAT:
		mode = msdosModeToFileMode(e.ExternalAttr)
	}
	if e.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// SetMode stores the permission and mode bits, marking the entry as
// Unix-created. The MS-DOS attribute bits are set as well for readers
// that only look there.
func (e *Entry) SetMode(mode fs.FileMode) {
	e.CreateSystem = createSystemUnix
	e.ExternalAttr = fileModeToUnixMode(mode) << 16
	if mode&fs.ModeDir != 0 {
		e.ExternalAttr |= msdosDir
	}
	if mode&0o200 == 0 {
		e.ExternalAttr |= msdosReadOnly
	}
}

func msdosModeToFileMode(m uint32) fs.FileMode {
	var mode fs.FileMode
	if m&msdosDir != 0 {
		mode = fs.ModeDir | 0o777
	} else {
		mode = 0o666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0o222
	}
	return mode
}

func fileModeToUnixMode(mode fs.FileMode) uint32 {
	var m uint32
	switch mode & fs.ModeType {
	default:
		m = sIFREG
	case fs.ModeDir:
		m = sIFDIR
	case fs.ModeSymlink:
		m = sIFLNK
	case fs.ModeNamedPipe:
		m = sIFIFO
	case fs.ModeSocket:
		m = sIFSOCK
	case fs.ModeDevice:
		m = sIFBLK
	case fs.ModeDevice | fs.ModeCharDevice:
		m = sIFCHR
	}
	if mode&fs.ModeSetuid != 0 {
		m |= sISUID
	}
	if mode&fs.ModeSetgid != 0 {
		m |= sISGID
	}
	if mode&fs.ModeSticky != 0 {
		m |= sISVTX
	}
	return m | uint32(mode&0o777)
}

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= fs.ModeDevice
	case sIFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFIFO:
		mode |= fs.ModeNamedPipe
	case sIFLNK:
		mode |= fs.ModeSymlink
	case sIFSOCK:
		mode |= fs.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
