package plume

import "net"

// Phase is the protocol stage of a session. Transitions are validated by the
// session engine; commands arriving out of order get a fixed 503 reply and do
// not change phase.
type Phase int

const (
	// PhaseConnected is the state before a successful HELO/EHLO, and again
	// after a STARTTLS upgrade.
	PhaseConnected Phase = iota
	// PhaseGreeted follows a successful HELO/EHLO, and again after a
	// completed or reset transaction.
	PhaseGreeted
	// PhaseMail follows a successful MAIL FROM.
	PhaseMail
	// PhaseRcpt follows at least one successful RCPT TO.
	PhaseRcpt
	// PhaseData is active while the message body is being streamed.
	PhaseData
	// PhaseQuit is terminal.
	PhaseQuit
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseGreeted:
		return "greeted"
	case PhaseMail:
		return "mail"
	case PhaseRcpt:
		return "rcpt"
	case PhaseData:
		return "data"
	case PhaseQuit:
		return "quit"
	}
	return "unknown"
}

// Envelope is the sender and recipients of one mail transaction, distinct
// from the message headers. Recipients keep RCPT arrival order. It is mutated
// only by the session engine and cleared on MAIL, RSET, HELO/EHLO, STARTTLS
// and after a completed transaction.
type Envelope struct {
	// Remote is the client IP, or nil when the transport cannot expose one.
	Remote net.IP
	// Helo is the domain the client announced.
	Helo string
	// From is the reverse-path, empty for the null sender.
	From string
	// To is the ordered recipient list.
	To []string
	// EightBit is set when MAIL declared BODY=8BITMIME.
	EightBit bool
}

func (e *Envelope) reset() {
	e.From = ""
	e.To = nil
	e.EightBit = false
}
