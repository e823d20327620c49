// Package store provides ready-made data pipelines: a maildir-style message
// store and a lossless MessagePack event journal.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/synqronlabs/plume"
	"github.com/synqronlabs/plume/mimevent"
	"github.com/synqronlabs/plume/utils"
)

// MailStore writes each accepted message under dir using the maildir
// tmp/new convention: the message is streamed to tmp/<id> and renamed into
// new/<id> at Finish, so readers never observe a partial file. A session
// dropped mid-message leaves its tmp file behind; sweeping stale tmp files
// is the operator's recovery point.
//
// The stored rendition is flattened: header fields are written unfolded,
// boundary transitions separate the blocks, body bytes are written as
// received. The Journal keeps the lossless event record.
type MailStore struct {
	Dir string
	// Hostname is stamped into the Received header.
	Hostname string
}

// NewMailStore creates a store rooted at dir.
func NewMailStore(dir, hostname string) *MailStore {
	return &MailStore{Dir: dir, Hostname: hostname}
}

// File is the per-message state of a MailStore.
type File struct {
	id      string
	tmpPath string
	f       *os.File
	w       *bufio.Writer
	// set after a header block so the first body chunk gets its separator
	inHeader bool
}

func (s *MailStore) Begin(env *plume.Envelope) (File, error) {
	if err := os.MkdirAll(filepath.Join(s.Dir, "tmp"), 0o750); err != nil {
		return File{}, err
	}
	if err := os.MkdirAll(filepath.Join(s.Dir, "new"), 0o750); err != nil {
		return File{}, err
	}

	id := utils.GenerateID()
	tmpPath := filepath.Join(s.Dir, "tmp", id)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return File{}, err
	}

	state := File{id: id, tmpPath: tmpPath, f: f, w: bufio.NewWriter(f), inHeader: true}

	fmt.Fprintf(state.w, "Return-Path: <%s>\r\n", env.From)
	remote := "unknown"
	if env.Remote != nil {
		remote = env.Remote.String()
	}
	fmt.Fprintf(state.w, "Received: from %s (%s) by %s; %s\r\n",
		env.Helo, remote, s.Hostname, time.Now().UTC().Format(time.RFC1123Z))
	return state, nil
}

func (s *MailStore) Consume(state *File, ev mimevent.Event) error {
	switch ev := ev.(type) {
	case mimevent.HeaderField:
		state.inHeader = true
		if _, err := fmt.Fprintf(state.w, "%s: %s\r\n", ev.Name, ev.Value); err != nil {
			return err
		}
	case mimevent.PartBoundaryStart:
		state.inHeader = true
		if _, err := state.w.WriteString("\r\n"); err != nil {
			return err
		}
	case mimevent.PartBoundaryEnd:
		if _, err := state.w.WriteString("\r\n"); err != nil {
			return err
		}
	case mimevent.BodyChunk:
		if state.inHeader {
			state.inHeader = false
			if _, err := state.w.WriteString("\r\n"); err != nil {
				return err
			}
		}
		if _, err := state.w.Write(ev.Data); err != nil {
			return err
		}
	case mimevent.EndOfMessage:
		// Finish commits; nothing to write.
	}
	return nil
}

func (s *MailStore) Finish(state File) (plume.Response, error) {
	if state.f == nil {
		return plume.Response{}, fmt.Errorf("store: message was never begun")
	}

	if err := state.w.Flush(); err != nil {
		state.discard()
		return plume.Response{}, err
	}
	if err := state.f.Close(); err != nil {
		state.discard()
		return plume.Response{}, err
	}

	newPath := filepath.Join(s.Dir, "new", state.id)
	if err := os.Rename(state.tmpPath, newPath); err != nil {
		state.discard()
		return plume.Response{}, err
	}
	return plume.ResponseOK("Ok: queued as " + state.id), nil
}

func (state *File) discard() {
	if state.f != nil {
		_ = state.f.Close()
	}
	_ = os.Remove(state.tmpPath)
}
