package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/synqronlabs/plume/mimevent"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	env := testEnvelope()
	state, err := j.Begin(env)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	events := []mimevent.Event{
		mimevent.HeaderField{Name: "Content-Type", Value: "multipart/mixed; boundary=\"b\""},
		mimevent.PartBoundaryStart{},
		mimevent.HeaderField{Name: "Subject", Value: "hi"},
		mimevent.BodyChunk{Data: []byte("body\r\n")},
		mimevent.PartBoundaryEnd{},
		mimevent.EndOfMessage{},
	}
	for _, ev := range events {
		if err := j.Consume(&state, ev); err != nil {
			t.Fatalf("Consume(%#v) error = %v", ev, err)
		}
	}
	resp, err := j.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !resp.IsSuccess() {
		t.Fatalf("Finish() = %+v, want success", resp)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading journal dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d journal files, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}

	if rec.Remote != "203.0.113.9" || rec.Helo != "client.example.com" || rec.From != "x@x" {
		t.Errorf("decoded envelope = %+v", rec)
	}
	if !reflect.DeepEqual(rec.To, []string{"y@y"}) {
		t.Errorf("decoded recipients = %v, want [y@y]", rec.To)
	}
	if !reflect.DeepEqual(rec.Events, events) {
		t.Errorf("decoded events = %#v, want %#v", rec.Events, events)
	}
}

func TestJournalFinishWithoutBegin(t *testing.T) {
	j := NewJournal(t.TempDir())
	if _, err := j.Finish(Entry{}); err == nil {
		t.Errorf("Finish() on zero state should fail")
	}
}
