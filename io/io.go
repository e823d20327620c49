package io

import (
	"bufio"
	"errors"
)

var (
	ErrLineTooLong   = errors.New("smtp: line too long")
	ErrBadLineEnding = errors.New("smtp: line not terminated by CRLF")
)

// ReadLine reads a single SMTP line with strict CRLF and length enforcement.
// The returned string has the CRLF stripped.
func ReadLine(reader *bufio.Reader, max int) (string, error) {
	// FAST PATH: Try to read the full line in one go (zero-copy view).
	line, err := reader.ReadSlice('\n')
	if err == nil {
		return validateAndConvert(line, max)
	}

	// If it's not ErrBufferFull, it's a read error (EOF, etc).
	if err != bufio.ErrBufferFull {
		return "", err
	}

	// SLOW PATH: The line is larger than the bufio buffer.
	// We must accumulate chunks.
	var buf []byte

	// Copy the first chunk immediately because the next ReadSlice will overwrite it.
	buf = append(buf, line...)

	for {
		line, err = reader.ReadSlice('\n')

		if len(buf)+len(line) > max {
			// Drain the rest of the line so the next read starts fresh
			drainLine(reader)
			return "", ErrLineTooLong
		}

		buf = append(buf, line...)

		if err == nil {
			break
		}

		if err != bufio.ErrBufferFull {
			return "", err
		}
	}

	return validateAndConvert(buf, max)
}

// validateAndConvert checks length, CRLF, and converts to string.
func validateAndConvert(b []byte, max int) (string, error) {
	if len(b) > max {
		// No need to drain here; if we have the whole line in 'b',
		// we have already read it from the wire.
		return "", ErrLineTooLong
	}

	// Check CRLF (Strict SMTP requirement)
	// We know b ends in '\n' because ReadSlice returned nil error.
	if len(b) < 2 || b[len(b)-2] != '\r' {
		return "", ErrBadLineEnding
	}

	return string(b[:len(b)-2]), nil
}

// drainLine discards the rest of the current line to recover protocol synchronization.
func drainLine(reader *bufio.Reader) {
	for {
		_, err := reader.ReadSlice('\n')
		if err == nil {
			return // Found the newline
		}
		if err != bufio.ErrBufferFull {
			return // EOF or other error, stop draining
		}
	}
}

// DotStuff escapes a body line for DATA transmission: a line starting with
// '.' gets an extra leading dot (RFC 5321 section 4.5.2).
func DotStuff(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		stuffed := make([]byte, 0, len(line)+1)
		stuffed = append(stuffed, '.')
		stuffed = append(stuffed, line...)
		return stuffed
	}
	return line
}

// DotUnstuff reverses DotStuff: a line starting with '.' loses one leading dot.
// The caller must have already recognized and removed the bare "." terminator.
func DotUnstuff(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		return line[1:]
	}
	return line
}
