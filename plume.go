// Plume is an embeddable SMTP server library for Go with event-driven
// message parsing.
//
// # Handlers and pipelines
//
// An application plugs in a Handler: envelope checks for HELO, MAIL and
// RCPT plus a Pipeline that consumes the message body as structural MIME
// events. Handler and pipeline types are bound statically through generics,
// so there is no indirect dispatch on the data path:
//
//	type logMail struct{ plume.AcceptAll }
//
//	func (logMail) Begin(env *plume.Envelope) (int, error) { return 0, nil }
//
//	func (logMail) Consume(n *int, ev mimevent.Event) error {
//	    if h, ok := ev.(mimevent.HeaderField); ok {
//	        log.Printf("header %s: %s", h.Name, h.Value)
//	    }
//	    *n++
//	    return nil
//	}
//
//	func (logMail) Finish(n int) (plume.Response, error) {
//	    return plume.ResponseOK("Ok"), nil
//	}
//
// # Server
//
// A concurrent server builds one handler per connection from a factory:
//
//	server, err := plume.NewServer[int](plume.ServerConfig{
//	    Addr:     ":2525",
//	    Hostname: "mail.example.com",
//	}, func() logMail { return logMail{} })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.ListenAndServe(); err != plume.ErrServerClosed {
//	    log.Fatal(err)
//	}
//
// A single session can also be driven directly over any stream, including
// stdin/stdout for inetd-style invocation:
//
//	session := plume.NewSession[int](plume.Stdio{}, logMail{}, plume.SessionConfig{
//	    Hostname: "mail.example.com",
//	    RemoteIP: net.ParseIP("203.0.113.9"),
//	})
//	err := session.Serve()
//
// # Fan-out
//
// Tee2 and Tee3 run several pipelines over the same message with a
// symmetric begin/finish lifecycle per component:
//
//	handler := struct {
//	    plume.AcceptAll
//	    plume.Tee2[store.File, store.Entry, *store.MailStore, *store.Journal]
//	}{Tee2: plume.Tee2[store.File, store.Entry, *store.MailStore, *store.Journal]{
//	    First:  mailStore,
//	    Second: journal,
//	}}
//
// # Extensions
//
// EHLO advertises 8BITMIME always and STARTTLS when a TLS configuration is
// set. Authentication, chunking and delivery are out of scope; plume
// sequences the protocol and hands the message to the application.
package plume
