package archive

import (
	"bytes"
	"io"
)

// lineChunk is how many bytes a line read pulls from the underlying
// reader at a time.
const lineChunk = 100

// LineReader iterates the lines of an entry's decoded byte stream. In
// the default mode only "\n" separates lines. In universal mode
// "\r\n", "\r" and "\n" all separate; a "\r\n" pair split across two
// pulls is still treated as one separator. Every returned line ends
// with "\n" except possibly a final incomplete line.
type LineReader struct {
	r         io.Reader
	universal bool
	buf       []byte // decoded bytes not yet returned as lines
	// lastDiscardCR records that the previous line's separator was a
	// lone "\r"; a "\n" then leading the buffer is the other half of a
	// split pair and is dropped.
	lastDiscardCR bool
	srcDone       bool
}

// NewLineReader wraps r, typically an EntryReader, for line iteration.
func NewLineReader(r io.Reader, universal bool) *LineReader {
	return &LineReader{r: r, universal: universal}
}

// findNewline locates the earliest line separator in the buffer,
// returning its index and length, or (-1, 0) when none is present.
func (l *LineReader) findNewline() (int, int) {
	if len(l.buf) == 0 {
		return -1, 0
	}
	if l.lastDiscardCR {
		if l.buf[0] == '\n' {
			l.buf = l.buf[1:]
		}
		l.lastDiscardCR = false
	}

	if !l.universal {
		if nl := bytes.IndexByte(l.buf, '\n'); nl >= 0 {
			return nl, 1
		}
		return -1, 0
	}

	for i, c := range l.buf {
		switch c {
		case '\n':
			return i, 1
		case '\r':
			if i+1 < len(l.buf) && l.buf[i+1] == '\n' {
				return i, 2
			}
			// A "\r" at the buffer's end may be half of a pair whose
			// "\n" arrives on the next pull; the discard bookkeeping
			// in ReadLine covers that.
			return i, 1
		}
	}
	return -1, 0
}

// ReadLine returns the next line. The final line of an entry that does
// not end in a separator is returned as-is, without an appended "\n";
// after the last line, ReadLine returns io.EOF.
func (l *LineReader) ReadLine() ([]byte, error) {
	nl, nllen := l.findNewline()
	for nl < 0 && !l.srcDone {
		chunk := make([]byte, lineChunk)
		n, err := l.r.Read(chunk)
		l.buf = append(l.buf, chunk[:n]...)
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			l.srcDone = true
		}
		nl, nllen = l.findNewline()
	}

	if nl < 0 {
		// Out of bytes: return whatever remains as the final,
		// incomplete line.
		if len(l.buf) == 0 {
			return nil, io.EOF
		}
		line := l.buf
		l.buf = nil
		return line, nil
	}

	line := append(append([]byte(nil), l.buf[:nl]...), '\n')
	l.lastDiscardCR = l.universal && nllen == 1 && l.buf[nl] == '\r' && nl+nllen == len(l.buf)
	l.buf = l.buf[nl+nllen:]
	return line, nil
}

// ReadLines returns all remaining lines.
func (l *LineReader) ReadLines() ([][]byte, error) {
	var lines [][]byte
	for {
		line, err := l.ReadLine()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}
