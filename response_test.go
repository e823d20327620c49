package plume

import (
	"errors"
	"testing"
)

func TestResponseClassification(t *testing.T) {
	tests := []struct {
		name      string
		resp      Response
		success   bool
		errorish  bool
		transient bool
		permanent bool
	}{
		{"ok", ResponseOK("Ok"), true, false, false, false},
		{"greeting", ResponseServiceReady("mail.test", "ready"), true, false, false, false},
		{"start data", Response{Code: CodeStartMailInput}, false, false, false, false},
		{"internal", ResponseInternalError(), false, true, true, false},
		{"bad sequence", ResponseBadSequence("nope"), false, true, false, true},
		{"transaction failed", ResponseTransactionFailed("nope"), false, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.IsSuccess(); got != tt.success {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.success)
			}
			if got := tt.resp.IsError(); got != tt.errorish {
				t.Errorf("IsError() = %v, want %v", got, tt.errorish)
			}
			if got := tt.resp.IsTransientError(); got != tt.transient {
				t.Errorf("IsTransientError() = %v, want %v", got, tt.transient)
			}
			if got := tt.resp.IsPermanentError(); got != tt.permanent {
				t.Errorf("IsPermanentError() = %v, want %v", got, tt.permanent)
			}
		})
	}
}

func TestResponseString(t *testing.T) {
	tests := []struct {
		resp Response
		want string
	}{
		{ResponseOK("Ok"), "250 Ok"},
		{ResponseBadSequence("Send MAIL first"), "503 5.5.1 Send MAIL first"},
		{ResponseInternalError(), "451 4.3.0 Internal error"},
	}

	for _, tt := range tests {
		if got := tt.resp.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResponseForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Response
	}{
		{
			name: "failure response passes through",
			err:  Fail(ResponseTransactionFailed("rejected")),
			want: ResponseTransactionFailed("rejected"),
		},
		{
			name: "success-classified error is replaced",
			err:  Fail(ResponseOK("looks fine")),
			want: ResponseInternalError(),
		},
		{
			name: "plain error maps to internal error",
			err:  errors.New("disk on fire"),
			want: ResponseInternalError(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := responseForError(tt.err); got != tt.want {
				t.Errorf("responseForError() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
