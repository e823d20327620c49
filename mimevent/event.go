// Package mimevent decodes a message body into a stream of structural MIME
// events without buffering the whole message. The parser is incremental and
// chunk-boundary agnostic: feed it bytes as they arrive and collect events.
package mimevent

// Event is one structural unit of a decoded message. The concrete types are
// HeaderField, PartBoundaryStart, PartBoundaryEnd, BodyChunk and EndOfMessage.
type Event interface {
	mimeEvent()
}

// HeaderField is one logical header field, with RFC 5322 folding already
// joined into a single value.
type HeaderField struct {
	Name  string
	Value string
}

// PartBoundaryStart marks the start of a multipart part. The part's header
// fields follow.
type PartBoundaryStart struct{}

// PartBoundaryEnd marks the end of a multipart part.
type PartBoundaryEnd struct{}

// BodyChunk carries body bytes between boundaries, in arrival order. Chunks
// concatenated in order reproduce the body bytes exactly.
type BodyChunk struct {
	Data []byte
}

// EndOfMessage is the final event of a message, emitted exactly once by Close.
type EndOfMessage struct{}

func (HeaderField) mimeEvent()       {}
func (PartBoundaryStart) mimeEvent() {}
func (PartBoundaryEnd) mimeEvent()   {}
func (BodyChunk) mimeEvent()         {}
func (EndOfMessage) mimeEvent()      {}
