package plume

import "net"

// Handler is the full per-connection capability set: one check per envelope
// command plus the data pipeline for the message body. Handlers are bound
// statically, like pipelines; a concurrent server gets a fresh logical copy
// per connection from its factory, so cross-connection shared state is the
// implementor's explicit choice.
type Handler[S any] interface {
	Pipeline[S]

	// Helo validates a HELO/EHLO greeting.
	Helo(remote net.IP, domain string) Response
	// Mail validates a MAIL FROM reverse-path. from is empty for the null
	// sender.
	Mail(remote net.IP, helo, from string) Response
	// Rcpt validates one RCPT TO forward-path.
	Rcpt(to string) Response
}

// AcceptAll provides accepting defaults for the envelope checks. Embed it to
// implement only the checks a handler cares about.
type AcceptAll struct{}

func (AcceptAll) Helo(remote net.IP, domain string) Response {
	return ResponseOK("Ok")
}

func (AcceptAll) Mail(remote net.IP, helo, from string) Response {
	return ResponseOK("Ok")
}

func (AcceptAll) Rcpt(to string) Response {
	return ResponseOK("Ok")
}
