package plume

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	plumeio "github.com/synqronlabs/plume/io"
	"github.com/synqronlabs/plume/mimevent"
	"github.com/synqronlabs/plume/utils"
)

const (
	defaultMaxCommandLine = 2048
	defaultMaxDataLine    = 1002 // RFC 5321 text line limit, including CRLF
	defaultMaxRecipients  = 100
)

// SessionConfig carries the per-session knobs. The zero value is usable.
type SessionConfig struct {
	// Hostname is announced in the greeting and EHLO reply. Defaults to
	// "localhost".
	Hostname string
	// RemoteIP overrides the peer address for transports that cannot expose
	// one (pipes). When the stream is a *NetStream its own address wins.
	RemoteIP net.IP
	// TLSConfig enables STARTTLS when the stream supports upgrade.
	TLSConfig *tls.Config
	// MaxCommandLine bounds a command line in bytes, CRLF included.
	MaxCommandLine int
	// MaxMessageSize bounds the message body in bytes. Zero means unbounded.
	MaxMessageSize int64
	// MaxRecipients bounds RCPT commands per transaction.
	MaxRecipients int
	// ReadTimeout is the per-command deadline, applied when the stream
	// supports deadlines. Zero disables it.
	ReadTimeout time.Duration
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Session drives the SMTP state machine for one connection: it validates
// phase ordering, calls the handler, streams DATA through a fresh MIME
// parser per message into the handler's pipeline, and writes wire replies.
// A Session is strictly sequential and used by one goroutine.
type Session[S any, H Handler[S]] struct {
	handler H
	stream  Stream
	cfg     SessionConfig

	reader *bufio.Reader
	writer *bufio.Writer
	log    *slog.Logger

	id        string
	phase     Phase
	env       Envelope
	tlsActive bool
}

// NewSession creates a session over stream. The type parameter S is supplied
// by the caller; H is inferred from the handler argument.
func NewSession[S any, H Handler[S]](stream Stream, handler H, cfg SessionConfig) *Session[S, H] {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxCommandLine == 0 {
		cfg.MaxCommandLine = defaultMaxCommandLine
	}
	if cfg.MaxRecipients == 0 {
		cfg.MaxRecipients = defaultMaxRecipients
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session[S, H]{
		handler: handler,
		stream:  stream,
		cfg:     cfg,
		reader:  bufio.NewReader(stream),
		writer:  bufio.NewWriter(stream),
		id:      utils.GenerateID(),
		phase:   PhaseConnected,
	}
	s.env.Remote = s.remoteIP()
	s.log = cfg.Logger.With(slog.String("session", s.id))
	return s
}

func (s *Session[S, H]) remoteIP() net.IP {
	if ns, ok := s.stream.(*NetStream); ok {
		if ip := ns.RemoteIP(); ip != nil {
			return ip
		}
	}
	return s.cfg.RemoteIP
}

// Serve runs the session to completion: greeting, command loop, QUIT or
// transport failure. The returned error is nil for a clean QUIT or client
// disconnect between commands.
func (s *Session[S, H]) Serve() error {
	sessionsActive.Inc()
	defer sessionsActive.Dec()

	if err := s.reply(ResponseServiceReady(s.cfg.Hostname, "ESMTP service ready")); err != nil {
		return err
	}

	for s.phase != PhaseQuit {
		line, err := s.readCommand()
		if err != nil {
			switch err {
			case plumeio.ErrLineTooLong:
				if err := s.reply(Response{Code: CodeCommandUnrecognized, EnhancedCode: "5.5.2", Message: "Line too long"}); err != nil {
					return err
				}
				continue
			case plumeio.ErrBadLineEnding:
				if err := s.reply(ResponseSyntaxError("Lines must end with CRLF")); err != nil {
					return err
				}
				continue
			}
			// Transport failure or disconnect.
			return ignoreEOF(err)
		}

		if err := s.handleCommand(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session[S, H]) readCommand() (string, error) {
	s.setReadDeadline()
	return plumeio.ReadLine(s.reader, s.cfg.MaxCommandLine)
}

func (s *Session[S, H]) setReadDeadline() {
	if s.cfg.ReadTimeout == 0 {
		return
	}
	if ds, ok := s.stream.(deadlineStream); ok {
		_ = ds.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

func (s *Session[S, H]) handleCommand(line string) error {
	cmd, args, err := parseCommand(line)
	if err != nil {
		return s.reply(Response{Code: CodeCommandUnrecognized, EnhancedCode: "5.5.1", Message: "Unrecognized command"})
	}
	commandsTotal.WithLabelValues(string(cmd)).Inc()
	s.log.Debug("command", slog.String("verb", string(cmd)), slog.String("phase", s.phase.String()))

	switch cmd {
	case CmdHelo:
		return s.handleHelo(args, false)
	case CmdEhlo:
		return s.handleHelo(args, true)
	case CmdMail:
		return s.handleMail(args)
	case CmdRcpt:
		return s.handleRcpt(args)
	case CmdData:
		return s.handleData()
	case CmdRset:
		s.env.reset()
		if s.phase != PhaseConnected {
			s.phase = PhaseGreeted
		}
		return s.reply(ResponseOK("Ok"))
	case CmdNoop:
		return s.reply(ResponseOK("Ok"))
	case CmdVrfy:
		return s.reply(Response{Code: CodeCannotVRFY, EnhancedCode: "2.5.2", Message: "Cannot verify user"})
	case CmdQuit:
		s.phase = PhaseQuit
		return s.reply(ResponseServiceClosing(s.cfg.Hostname))
	case CmdStartTLS:
		return s.handleStartTLS()
	}
	return s.reply(ResponseCommandNotImplemented(string(cmd)))
}

func (s *Session[S, H]) handleHelo(domain string, esmtp bool) error {
	if domain == "" {
		return s.reply(ResponseSyntaxError("Domain required"))
	}
	if resp := s.handler.Helo(s.env.Remote, domain); resp.IsError() {
		return s.reply(resp)
	}

	// A new greeting discards any transaction in progress.
	s.env.reset()
	s.env.Helo = domain
	s.phase = PhaseGreeted

	if !esmtp {
		return s.reply(ResponseOK(s.cfg.Hostname))
	}
	lines := []string{fmt.Sprintf("%s greets %s", s.cfg.Hostname, domain), "8BITMIME"}
	if s.startTLSAvailable() {
		lines = append(lines, "STARTTLS")
	}
	return s.replyLines(CodeOK, lines)
}

func (s *Session[S, H]) handleMail(args string) error {
	if s.phase == PhaseConnected {
		return s.reply(ResponseBadSequence("Send HELO first"))
	}
	if s.phase != PhaseGreeted {
		return s.reply(ResponseBadSequence("Transaction already in progress"))
	}

	rest, ok := cutKeyword(args, "FROM:")
	if !ok {
		return s.reply(ResponseSyntaxError("Syntax: MAIL FROM:<address>"))
	}
	from, params, err := parsePath(rest)
	if err != nil {
		return s.reply(ResponseSyntaxError("Bad reverse-path"))
	}

	eightBit := false
	for key, value := range params {
		switch key {
		case "SIZE":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return s.reply(ResponseSyntaxError("Bad SIZE parameter"))
			}
			if s.cfg.MaxMessageSize > 0 && size > s.cfg.MaxMessageSize {
				return s.reply(ResponseExceededStorage("Message exceeds maximum size"))
			}
		case "BODY":
			switch strings.ToUpper(value) {
			case "7BIT":
			case "8BITMIME":
				eightBit = true
			default:
				return s.reply(ResponseSyntaxError("Bad BODY parameter"))
			}
		}
		// Unknown parameters are ignored.
	}

	if resp := s.handler.Mail(s.env.Remote, s.env.Helo, from); resp.IsError() {
		return s.reply(resp)
	}
	s.env.reset()
	s.env.From = from
	s.env.EightBit = eightBit
	s.phase = PhaseMail
	return s.reply(ResponseOK("Ok"))
}

func (s *Session[S, H]) handleRcpt(args string) error {
	if s.phase != PhaseMail && s.phase != PhaseRcpt {
		return s.reply(ResponseBadSequence("Send MAIL first"))
	}

	rest, ok := cutKeyword(args, "TO:")
	if !ok {
		return s.reply(ResponseSyntaxError("Syntax: RCPT TO:<address>"))
	}
	to, _, err := parsePath(rest)
	if err != nil || to == "" {
		return s.reply(ResponseSyntaxError("Bad forward-path"))
	}
	if len(s.env.To) >= s.cfg.MaxRecipients {
		return s.reply(Response{Code: CodeInsufficientStorage, EnhancedCode: "4.5.3", Message: "Too many recipients"})
	}

	if resp := s.handler.Rcpt(to); resp.IsError() {
		return s.reply(resp)
	}
	s.env.To = append(s.env.To, to)
	s.phase = PhaseRcpt
	return s.reply(ResponseOK("Ok"))
}

func (s *Session[S, H]) startTLSAvailable() bool {
	if s.cfg.TLSConfig == nil || s.tlsActive {
		return false
	}
	_, ok := s.stream.(StartTLSStream)
	return ok
}

func (s *Session[S, H]) handleStartTLS() error {
	if s.tlsActive {
		return s.reply(ResponseBadSequence("TLS already active"))
	}
	upgrader, ok := s.stream.(StartTLSStream)
	if !ok || s.cfg.TLSConfig == nil {
		return s.reply(ResponseCommandNotImplemented("STARTTLS"))
	}
	if err := s.reply(ResponseServiceReady(s.cfg.Hostname, "Ready to start TLS")); err != nil {
		return err
	}

	upgraded, err := upgrader.StartTLS(s.cfg.TLSConfig)
	if err != nil {
		s.log.Warn("tls handshake failed", slog.Any("err", err))
		return err
	}

	// Nothing issued before the upgrade is trusted afterwards: the greeting
	// and any transaction state are discarded.
	s.stream = upgraded
	s.reader = bufio.NewReader(upgraded)
	s.writer = bufio.NewWriter(upgraded)
	s.tlsActive = true
	s.env = Envelope{Remote: s.remoteIP()}
	s.phase = PhaseConnected
	return nil
}

func (s *Session[S, H]) handleData() error {
	if s.phase != PhaseRcpt {
		return s.reply(ResponseBadSequence("Send RCPT first"))
	}

	state, err := s.handler.Begin(&s.env)
	if err != nil {
		return s.reply(responseForError(err))
	}

	if err := s.reply(Response{Code: CodeStartMailInput, Message: "Start mail input; end with <CRLF>.<CRLF>"}); err != nil {
		// The pipeline began but the client is gone; same contract as any
		// transport failure mid-data.
		return err
	}
	s.phase = PhaseData

	resp, err := s.receiveData(state)
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		messagesAccepted.Inc()
		s.log.Info("message accepted",
			slog.String("from", s.env.From),
			slog.Int("recipients", len(s.env.To)))
	} else {
		messagesRejected.Inc()
	}

	s.env.reset()
	s.phase = PhaseGreeted
	return s.reply(resp)
}

// receiveData streams body lines into a fresh parser and the pipeline. The
// first parse or consume failure is recorded, the remaining input is drained
// to the terminator, and Finish is still called so every Begin gets its
// matching Finish. A transport failure aborts without Finish.
func (s *Session[S, H]) receiveData(state S) (Response, error) {
	parser := mimevent.NewParser()
	var failResp *Response
	var size int64

	fail := func(resp Response) {
		if failResp == nil {
			failResp = &resp
		}
	}

	for {
		s.setReadDeadline()
		line, err := plumeio.ReadLine(s.reader, defaultMaxDataLine)
		if err != nil {
			switch err {
			case plumeio.ErrLineTooLong:
				fail(Response{Code: CodeCommandUnrecognized, EnhancedCode: "5.5.2", Message: "Line too long"})
				continue
			case plumeio.ErrBadLineEnding:
				fail(ResponseSyntaxError("Lines must end with CRLF"))
				continue
			}
			return Response{}, err
		}
		if line == "." {
			break
		}

		raw := plumeio.DotUnstuff([]byte(line))
		size += int64(len(raw)) + 2
		if s.cfg.MaxMessageSize > 0 && size > s.cfg.MaxMessageSize {
			fail(ResponseExceededStorage("Message exceeds maximum size"))
		}
		if failResp != nil {
			continue
		}

		events, perr := parser.Feed(append(raw, '\r', '\n'))
		s.consumeEvents(&state, events, fail)
		if perr != nil {
			fail(parseFailure(perr))
		}
	}

	if failResp == nil {
		events, perr := parser.Close()
		s.consumeEvents(&state, events, fail)
		if perr != nil {
			fail(parseFailure(perr))
		}
	}

	resp := finishPipeline[S](s.handler, state)
	if failResp != nil {
		return *failResp, nil
	}
	return resp, nil
}

func (s *Session[S, H]) consumeEvents(state *S, events []mimevent.Event, fail func(Response)) {
	for _, ev := range events {
		if err := s.handler.Consume(state, ev); err != nil {
			fail(responseForError(err))
		}
	}
}

// parseFailure maps a structural parse error to the permanent-failure reply
// reported at the data terminator.
func parseFailure(err error) Response {
	return ResponseTransactionFailed("Malformed message: " + err.Error())
}

func (s *Session[S, H]) reply(resp Response) error {
	if _, err := s.writer.WriteString(resp.String()); err != nil {
		return err
	}
	if _, err := s.writer.WriteString("\r\n"); err != nil {
		return err
	}
	return s.writer.Flush()
}

// replyLines writes a multi-line reply using the code-hyphen continuation
// convention.
func (s *Session[S, H]) replyLines(code SMTPCode, lines []string) error {
	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if _, err := fmt.Fprintf(s.writer, "%d%s%s\r\n", code, sep, line); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
