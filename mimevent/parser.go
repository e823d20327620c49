package mimevent

import (
	"bytes"
	"errors"
	"mime"
	"strings"
)

const (
	// DefaultMaxDepth bounds the multipart nesting level.
	DefaultMaxDepth = 8
	// DefaultMaxHeaderLen bounds a single logical (unfolded) header line.
	DefaultMaxHeaderLen = 8 * 1024
)

var (
	ErrUnterminatedBoundary = errors.New("mimevent: multipart boundary never closed")
	ErrNestingTooDeep       = errors.New("mimevent: multipart nesting too deep")
	ErrHeaderTooLong        = errors.New("mimevent: header field too long")
	ErrParserClosed         = errors.New("mimevent: parser already closed")
)

type parseState int

const (
	stateHeader parseState = iota
	statePreamble
	stateBody
)

// Parser is a one-shot incremental MIME decoder. Construct a fresh Parser per
// message, call Feed for each chunk of (already dot-unstuffed) body bytes,
// then Close once at end of stream. Events are returned in order; any error
// is sticky and ends the parse.
type Parser struct {
	maxDepth     int
	maxHeaderLen int

	state parseState
	// partial line carried between Feed calls
	buf []byte
	// logical header line being unfolded
	pending []byte
	// active multipart boundaries, innermost last
	boundaries []string
	// boundary declared by the header block currently being parsed
	nextBoundary string
	closed       bool
	err          error
}

// NewParser creates a Parser with the default nesting and header bounds.
func NewParser() *Parser {
	return NewParserWithLimits(DefaultMaxDepth, DefaultMaxHeaderLen)
}

// NewParserWithLimits creates a Parser with explicit bounds.
func NewParserWithLimits(maxDepth, maxHeaderLen int) *Parser {
	return &Parser{maxDepth: maxDepth, maxHeaderLen: maxHeaderLen}
}

// Feed consumes the next chunk of body bytes and returns the events completed
// by it. Chunk boundaries are arbitrary; lines split across chunks are
// reassembled internally.
func (p *Parser) Feed(data []byte) ([]Event, error) {
	if p.closed {
		return nil, ErrParserClosed
	}
	if p.err != nil {
		return nil, p.err
	}

	p.buf = append(p.buf, data...)

	var events []Event
	for {
		nl := bytes.IndexByte(p.buf, '\n')
		if nl < 0 {
			break
		}
		line := p.buf[:nl+1]
		if err := p.line(line, &events); err != nil {
			p.err = err
			p.buf = nil
			return events, err
		}
		p.buf = p.buf[nl+1:]
	}
	return events, nil
}

// Close signals end of stream. It flushes any partial trailing line, verifies
// every multipart boundary was closed, and emits the final EndOfMessage.
func (p *Parser) Close() ([]Event, error) {
	if p.closed {
		return nil, ErrParserClosed
	}
	p.closed = true
	if p.err != nil {
		return nil, p.err
	}

	var events []Event
	if len(p.buf) > 0 {
		if err := p.line(p.buf, &events); err != nil {
			p.err = err
			return events, err
		}
		p.buf = nil
	}
	if p.state == stateHeader {
		p.flushHeader(&events)
	}

	if len(p.boundaries) > 0 {
		p.err = ErrUnterminatedBoundary
		return events, p.err
	}

	events = append(events, EndOfMessage{})
	return events, nil
}

// line processes one raw line. A trailing CRLF or LF is present except for
// the partial line flushed at Close.
func (p *Parser) line(raw []byte, events *[]Event) error {
	trimmed := trimLineEnding(raw)

	switch p.state {
	case stateHeader:
		return p.headerLine(trimmed, events)

	case statePreamble:
		inner := p.boundaries[len(p.boundaries)-1]
		switch boundaryKind(trimmed, inner) {
		case boundaryOpen:
			*events = append(*events, PartBoundaryStart{})
			p.state = stateHeader
		case boundaryClose:
			// Degenerate multipart with no parts.
			p.boundaries = p.boundaries[:len(p.boundaries)-1]
			p.state = stateBody
		default:
			// Preamble lines are structural filler; no event.
		}
		return nil

	case stateBody:
		if len(p.boundaries) > 0 {
			inner := p.boundaries[len(p.boundaries)-1]
			switch boundaryKind(trimmed, inner) {
			case boundaryOpen:
				*events = append(*events, PartBoundaryEnd{}, PartBoundaryStart{})
				p.state = stateHeader
				return nil
			case boundaryClose:
				*events = append(*events, PartBoundaryEnd{})
				p.boundaries = p.boundaries[:len(p.boundaries)-1]
				return nil
			}
		}
		chunk := make([]byte, len(raw))
		copy(chunk, raw)
		*events = append(*events, BodyChunk{Data: chunk})
		return nil
	}
	return nil
}

func (p *Parser) headerLine(trimmed []byte, events *[]Event) error {
	if len(trimmed) == 0 {
		// End of header block.
		p.flushHeader(events)
		if p.nextBoundary != "" {
			if len(p.boundaries) >= p.maxDepth {
				return ErrNestingTooDeep
			}
			p.boundaries = append(p.boundaries, p.nextBoundary)
			p.nextBoundary = ""
			p.state = statePreamble
		} else {
			p.state = stateBody
		}
		return nil
	}

	if trimmed[0] == ' ' || trimmed[0] == '\t' {
		// Folded continuation of the previous field (RFC 5322). A
		// continuation with no field to continue is malformed and dropped,
		// same as a header line without a colon.
		if p.pending != nil {
			p.pending = append(p.pending, ' ')
			p.pending = append(p.pending, trimWSP(trimmed)...)
		}
	} else {
		p.flushHeader(events)
		p.pending = append(p.pending, trimmed...)
	}

	if len(p.pending) > p.maxHeaderLen {
		return ErrHeaderTooLong
	}
	return nil
}

// flushHeader emits the pending logical header line, if any, as a
// HeaderField and records a multipart boundary declared by it.
func (p *Parser) flushHeader(events *[]Event) {
	if p.pending == nil {
		return
	}
	line := string(p.pending)
	p.pending = nil

	name, value, found := strings.Cut(line, ":")
	if !found {
		// Malformed header line, skip it.
		return
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	*events = append(*events, HeaderField{Name: name, Value: value})

	if strings.EqualFold(name, "Content-Type") {
		mediatype, params, err := mime.ParseMediaType(value)
		if err == nil && strings.HasPrefix(mediatype, "multipart/") {
			if b := params["boundary"]; b != "" {
				p.nextBoundary = b
			}
		}
	}
}

type boundaryMatch int

const (
	boundaryNone boundaryMatch = iota
	boundaryOpen
	boundaryClose
)

// boundaryKind classifies a line against the innermost active boundary.
// Trailing whitespace after the delimiter is tolerated (RFC 2046).
func boundaryKind(line []byte, boundary string) boundaryMatch {
	if len(line) < 2 || line[0] != '-' || line[1] != '-' {
		return boundaryNone
	}
	rest := line[2:]
	if len(rest) < len(boundary) || string(rest[:len(boundary)]) != boundary {
		return boundaryNone
	}
	tail := rest[len(boundary):]
	closing := false
	if len(tail) >= 2 && tail[0] == '-' && tail[1] == '-' {
		closing = true
		tail = tail[2:]
	}
	if len(trimWSP(tail)) != 0 {
		return boundaryNone
	}
	if closing {
		return boundaryClose
	}
	return boundaryOpen
}

func trimLineEnding(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line
}

func trimWSP(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
