package plume

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantCmd  Command
		wantArgs string
		wantErr  bool
	}{
		{"HELO example.com", CmdHelo, "example.com", false},
		{"ehlo example.com", CmdEhlo, "example.com", false},
		{"MAIL FROM:<x@x>", CmdMail, "FROM:<x@x>", false},
		{"rcpt TO:<y@y>", CmdRcpt, "TO:<y@y>", false},
		{"DATA", CmdData, "", false},
		{"QUIT", CmdQuit, "", false},
		{"StartTLS", CmdStartTLS, "", false},
		{"NOOP   ", CmdNoop, "", false},
		{"FROB", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, args, err := parseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if cmd != tt.wantCmd || args != tt.wantArgs {
				t.Errorf("parseCommand(%q) = %q, %q; want %q, %q", tt.line, cmd, args, tt.wantCmd, tt.wantArgs)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantAddr   string
		wantParams map[string]string
		wantErr    bool
	}{
		{"plain", "<x@x>", "x@x", nil, false},
		{"null sender", "<>", "", nil, false},
		{"with params", "<x@x> SIZE=100 BODY=8BITMIME", "x@x", map[string]string{"SIZE": "100", "BODY": "8BITMIME"}, false},
		{"lowercase param keys", "<x@x> size=5", "x@x", map[string]string{"SIZE": "5"}, false},
		{"duplicate param", "<x@x> SIZE=1 SIZE=2", "", nil, true},
		{"no brackets", "x@x", "", nil, true},
		{"reversed brackets", ">x@x<", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, params, err := parsePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if addr != tt.wantAddr {
				t.Errorf("parsePath(%q) address = %q, want %q", tt.input, addr, tt.wantAddr)
			}
			if !reflect.DeepEqual(params, tt.wantParams) {
				t.Errorf("parsePath(%q) params = %v, want %v", tt.input, params, tt.wantParams)
			}
		})
	}
}

func TestCutKeyword(t *testing.T) {
	tests := []struct {
		args    string
		keyword string
		want    string
		ok      bool
	}{
		{"FROM:<x@x>", "FROM:", "<x@x>", true},
		{"from:<x@x>", "FROM:", "<x@x>", true},
		{"TO: <y@y>", "TO:", "<y@y>", true},
		{"FROM <x@x>", "FROM:", "", false},
		{"", "FROM:", "", false},
	}

	for _, tt := range tests {
		got, ok := cutKeyword(tt.args, tt.keyword)
		if got != tt.want || ok != tt.ok {
			t.Errorf("cutKeyword(%q, %q) = %q, %v; want %q, %v", tt.args, tt.keyword, got, ok, tt.want, tt.ok)
		}
	}
}
