package streamparser

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// LineFramer splits a fragmented byte stream into newline-delimited records.
// Read boundaries never need to line up with record or rune boundaries: the
// trailing partial line, including any incomplete UTF-8 sequence, is held
// until the next chunk completes it.
type LineFramer struct {
	// pending holds the bytes of the unterminated trailing line.
	pending []byte
	// scanned is how much of pending is known to hold no newline.
	scanned int
}

// Feed appends a chunk and returns every record it completes, in order.
// Only the new chunk is searched, so a long line fed in small pieces costs
// linear time.
func (f *LineFramer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.pending = append(f.pending, chunk...)

	var lines []string
	start := 0
	from := f.scanned
	for {
		// '\n' never occurs inside a multi-byte UTF-8 sequence, so splitting
		// on raw bytes keeps straddling runes intact in the pending tail.
		idx := bytes.IndexByte(f.pending[from:], '\n')
		if idx < 0 {
			break
		}
		end := from + idx
		lines = append(lines, decodeUTF8(f.pending[start:end]))
		start = end + 1
		from = start
	}
	if lines != nil {
		f.pending = append([]byte(nil), f.pending[start:]...)
	}
	f.scanned = len(f.pending)
	return lines
}

// Pending returns the decoded partial line currently held back.
func (f *LineFramer) Pending() string {
	return decodeUTF8(f.pending)
}

// Close ends the stream. A non-empty partial line is incomplete and is
// discarded; it is returned only so callers can report it.
func (f *LineFramer) Close() (dropped string) {
	dropped = decodeUTF8(f.pending)
	f.pending = nil
	f.scanned = 0
	return dropped
}

// SplitLines splits a complete payload in one shot. Unlike the streaming
// framer it keeps a final record that lacks a trailing newline.
func SplitLines(data []byte) []string {
	return strings.Split(decodeUTF8(data), "\n")
}

// decodeUTF8 converts bytes to a string, replacing each invalid byte with
// U+FFFD.
func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var builder strings.Builder
	builder.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			builder.WriteRune(utf8.RuneError)
		} else {
			builder.Write(data[:size])
		}
		data = data[size:]
	}
	return builder.String()
}
