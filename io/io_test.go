package io

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"simple", "HELO example.com\r\n", "HELO example.com", nil},
		{"empty line", "\r\n", "", nil},
		{"bare lf", "HELO example.com\n", "", ErrBadLineEnding},
		{"too long", strings.Repeat("a", 600) + "\r\n", "", ErrLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := bufio.NewReader(strings.NewReader(tt.input))
			got, err := ReadLine(reader, 512)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadLine() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReadLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLineLargerThanBuffer(t *testing.T) {
	// Force the slow path with a tiny bufio buffer.
	line := strings.Repeat("x", 100)
	reader := bufio.NewReaderSize(strings.NewReader(line+"\r\n"), 16)

	got, err := ReadLine(reader, 512)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if got != line {
		t.Errorf("ReadLine() = %q, want %q", got, line)
	}
}

func TestReadLineDrainsOverlongLine(t *testing.T) {
	input := strings.Repeat("a", 600) + "\r\nQUIT\r\n"
	reader := bufio.NewReaderSize(strings.NewReader(input), 64)

	if _, err := ReadLine(reader, 512); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("ReadLine() error = %v, want ErrLineTooLong", err)
	}

	// The next read must start at the following line.
	got, err := ReadLine(reader, 512)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if got != "QUIT" {
		t.Errorf("ReadLine() = %q, want %q", got, "QUIT")
	}
}

func TestDotStuffRoundTrip(t *testing.T) {
	lines := [][]byte{
		[]byte("plain line"),
		[]byte(".leading dot"),
		[]byte("..two dots"),
		[]byte("...three dots"),
		[]byte("."),
		[]byte(""),
		[]byte(". with trailing text"),
	}

	for _, line := range lines {
		stuffed := DotStuff(line)
		if len(line) > 0 && line[0] == '.' {
			if len(stuffed) != len(line)+1 || stuffed[0] != '.' || stuffed[1] != '.' {
				t.Errorf("DotStuff(%q) = %q, want doubled leading dot", line, stuffed)
			}
		}

		got := DotUnstuff(stuffed)
		if !bytes.Equal(got, line) {
			t.Errorf("round trip of %q = %q", line, got)
		}
	}
}
