package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tinylib/msgp/msgp"

	"github.com/synqronlabs/plume"
	"github.com/synqronlabs/plume/mimevent"
	"github.com/synqronlabs/plume/utils"
)

// Journal records every message losslessly as MessagePack: the envelope
// followed by the full event sequence. One file per message under dir.
type Journal struct {
	Dir string
}

// NewJournal creates a journal rooted at dir.
func NewJournal(dir string) *Journal {
	return &Journal{Dir: dir}
}

// Entry is the per-message state of a Journal: the encoded record built up
// event by event.
type Entry struct {
	id  string
	buf []byte
}

const (
	recHeader    = "header"
	recPartStart = "part-start"
	recPartEnd   = "part-end"
	recChunk     = "chunk"
	recEnd       = "end"
)

func (j *Journal) Begin(env *plume.Envelope) (Entry, error) {
	if err := os.MkdirAll(j.Dir, 0o750); err != nil {
		return Entry{}, err
	}

	e := Entry{id: utils.GenerateID()}
	remote := ""
	if env.Remote != nil {
		remote = env.Remote.String()
	}

	e.buf = msgp.AppendMapHeader(e.buf, 5)
	e.buf = msgp.AppendString(e.buf, "remote")
	e.buf = msgp.AppendString(e.buf, remote)
	e.buf = msgp.AppendString(e.buf, "helo")
	e.buf = msgp.AppendString(e.buf, env.Helo)
	e.buf = msgp.AppendString(e.buf, "from")
	e.buf = msgp.AppendString(e.buf, env.From)
	e.buf = msgp.AppendString(e.buf, "to")
	e.buf = msgp.AppendArrayHeader(e.buf, uint32(len(env.To)))
	for _, to := range env.To {
		e.buf = msgp.AppendString(e.buf, to)
	}
	e.buf = msgp.AppendString(e.buf, "eightbit")
	e.buf = msgp.AppendBool(e.buf, env.EightBit)
	return e, nil
}

func (j *Journal) Consume(e *Entry, ev mimevent.Event) error {
	switch ev := ev.(type) {
	case mimevent.HeaderField:
		e.buf = msgp.AppendArrayHeader(e.buf, 3)
		e.buf = msgp.AppendString(e.buf, recHeader)
		e.buf = msgp.AppendString(e.buf, ev.Name)
		e.buf = msgp.AppendString(e.buf, ev.Value)
	case mimevent.PartBoundaryStart:
		e.buf = msgp.AppendArrayHeader(e.buf, 1)
		e.buf = msgp.AppendString(e.buf, recPartStart)
	case mimevent.PartBoundaryEnd:
		e.buf = msgp.AppendArrayHeader(e.buf, 1)
		e.buf = msgp.AppendString(e.buf, recPartEnd)
	case mimevent.BodyChunk:
		e.buf = msgp.AppendArrayHeader(e.buf, 2)
		e.buf = msgp.AppendString(e.buf, recChunk)
		e.buf = msgp.AppendBytes(e.buf, ev.Data)
	case mimevent.EndOfMessage:
		e.buf = msgp.AppendArrayHeader(e.buf, 1)
		e.buf = msgp.AppendString(e.buf, recEnd)
	}
	return nil
}

func (j *Journal) Finish(e Entry) (plume.Response, error) {
	if e.id == "" {
		return plume.Response{}, fmt.Errorf("store: journal entry was never begun")
	}
	path := filepath.Join(j.Dir, e.id+".msgpack")
	if err := os.WriteFile(path, e.buf, 0o640); err != nil {
		return plume.Response{}, err
	}
	return plume.ResponseOK("Ok: journaled as " + e.id), nil
}

// Record is one decoded journal file.
type Record struct {
	Remote   string
	Helo     string
	From     string
	To       []string
	EightBit bool
	Events   []mimevent.Event
}

// DecodeRecord decodes a journal file produced by Journal.
func DecodeRecord(data []byte) (*Record, error) {
	rec := &Record{}

	fields, rest, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("store: bad journal envelope: %w", err)
	}
	for i := uint32(0); i < fields; i++ {
		var key string
		key, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, err
		}
		switch key {
		case "remote":
			rec.Remote, rest, err = msgp.ReadStringBytes(rest)
		case "helo":
			rec.Helo, rest, err = msgp.ReadStringBytes(rest)
		case "from":
			rec.From, rest, err = msgp.ReadStringBytes(rest)
		case "to":
			var n uint32
			n, rest, err = msgp.ReadArrayHeaderBytes(rest)
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				var to string
				to, rest, err = msgp.ReadStringBytes(rest)
				if err != nil {
					return nil, err
				}
				rec.To = append(rec.To, to)
			}
		case "eightbit":
			rec.EightBit, rest, err = msgp.ReadBoolBytes(rest)
		default:
			rest, err = msgp.Skip(rest)
		}
		if err != nil {
			return nil, err
		}
	}

	for len(rest) > 0 {
		var n uint32
		n, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("store: bad journal record: %w", err)
		}
		var kind string
		kind, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, err
		}
		switch kind {
		case recHeader:
			var name, value string
			name, rest, err = msgp.ReadStringBytes(rest)
			if err != nil {
				return nil, err
			}
			value, rest, err = msgp.ReadStringBytes(rest)
			if err != nil {
				return nil, err
			}
			rec.Events = append(rec.Events, mimevent.HeaderField{Name: name, Value: value})
		case recPartStart:
			rec.Events = append(rec.Events, mimevent.PartBoundaryStart{})
		case recPartEnd:
			rec.Events = append(rec.Events, mimevent.PartBoundaryEnd{})
		case recChunk:
			var data []byte
			data, rest, err = msgp.ReadBytesBytes(rest, nil)
			if err != nil {
				return nil, err
			}
			rec.Events = append(rec.Events, mimevent.BodyChunk{Data: data})
		case recEnd:
			rec.Events = append(rec.Events, mimevent.EndOfMessage{})
		default:
			return nil, fmt.Errorf("store: unknown journal record %q (arity %d)", kind, n)
		}
	}
	return rec, nil
}
