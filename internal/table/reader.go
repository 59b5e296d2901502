package table

// reader.go provides the io.Reader wrappers applied to every CSV before
// parsing:
//
//   - skipBOM: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - utf8Validator: fails the read with ErrEncoding on invalid UTF-8
//
// Use wrapForLoad to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrEncoding is returned (wrapped) when a file is not valid UTF-8.
var ErrEncoding = errors.New("encoding error: file is not valid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after the BOM, if there is one.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Validator passes bytes through unchanged but checks them for valid
// UTF-8, carrying an incomplete trailing sequence over to the next read.
type utf8Validator struct {
	reader io.Reader

	// Trailing bytes of the previous read that may start a multi-byte rune
	pending []byte

	// Bytes validated so far, for error positions
	offset int64
}

func newUTF8Validator(r io.Reader) *utf8Validator {
	return &utf8Validator{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (v *utf8Validator) Read(p []byte) (int, error) {
	n, err := v.reader.Read(p)
	if n == 0 {
		if err == io.EOF && len(v.pending) > 0 {
			return 0, fmt.Errorf("%w (truncated sequence at byte %d)", ErrEncoding, v.offset)
		}
		return 0, err
	}

	buf := make([]byte, 0, len(v.pending)+n)
	buf = append(buf, v.pending...)
	buf = append(buf, p[:n]...)

	keep := 0
	if err != io.EOF {
		keep = incompleteTrailingBytes(buf)
	}
	check := buf[:len(buf)-keep]
	if !isAllASCII(check) && !utf8.Valid(check) {
		return 0, fmt.Errorf("%w (invalid sequence near byte %d)", ErrEncoding, v.offset+firstInvalid(check))
	}

	v.offset += int64(len(check))
	v.pending = append(v.pending[:0], buf[len(buf)-keep:]...)
	return n, err
}

// isAllASCII is the fast path: most CSV data is plain ASCII.
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// firstInvalid returns the offset of the first invalid rune in data.
func firstInvalid(data []byte) int64 {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return int64(i)
		}
		i += size
	}
	return int64(len(data))
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte (10xxxxxx) ends the scan
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// wrapForLoad strips the BOM first, then validates what remains.
func wrapForLoad(r io.Reader) io.Reader {
	return newUTF8Validator(skipBOM(r))
}
