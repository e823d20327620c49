package plume

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a canonical SMTP verb.
type Command string

const (
	CmdHelo     Command = "HELO"
	CmdEhlo     Command = "EHLO"
	CmdMail     Command = "MAIL"
	CmdRcpt     Command = "RCPT"
	CmdData     Command = "DATA"
	CmdRset     Command = "RSET"
	CmdVrfy     Command = "VRFY"
	CmdNoop     Command = "NOOP"
	CmdQuit     Command = "QUIT"
	CmdStartTLS Command = "STARTTLS"
)

// parseCommand splits a command line into verb and arguments.
func parseCommand(line string) (cmd Command, args string, err error) {
	before, after, found := strings.Cut(line, " ")

	if !found {
		// Case: "QUIT", "NOOP", "RSET" (No arguments)
		err, cmd := canonicalizeVerb(before)
		return cmd, "", err
	}

	// Case: "MAIL FROM:...", "RCPT TO:..."
	// We trim the args, but we canonicalize the verb without allocation.
	err, cmd = canonicalizeVerb(before)
	return cmd, strings.TrimSpace(after), err
}

func canonicalizeVerb(verb string) (error, Command) {
	switch len(verb) {
	case 4:
		if strings.EqualFold(verb, "HELO") {
			return nil, CmdHelo
		}
		if strings.EqualFold(verb, "EHLO") {
			return nil, CmdEhlo
		}
		if strings.EqualFold(verb, "MAIL") {
			return nil, CmdMail
		}
		if strings.EqualFold(verb, "RCPT") {
			return nil, CmdRcpt
		}
		if strings.EqualFold(verb, "DATA") {
			return nil, CmdData
		}
		if strings.EqualFold(verb, "RSET") {
			return nil, CmdRset
		}
		if strings.EqualFold(verb, "VRFY") {
			return nil, CmdVrfy
		}
		if strings.EqualFold(verb, "NOOP") {
			return nil, CmdNoop
		}
		if strings.EqualFold(verb, "QUIT") {
			return nil, CmdQuit
		}
	case 8:
		if strings.EqualFold(verb, "STARTTLS") {
			return nil, CmdStartTLS
		}
	}
	return fmt.Errorf("unknown command: %s", verb), ""
}

// parsePath parses the address path of a MAIL or RCPT argument after the
// FROM:/TO: keyword, with optional ESMTP parameters. Per RFC 3461 section
// 4.5, duplicate parameters are rejected.
func parsePath(s string) (address string, params map[string]string, err error) {
	// Find the angle-bracketed address
	start := strings.IndexByte(s, '<')
	end := strings.IndexByte(s, '>')

	if start == -1 || end == -1 || end < start {
		return "", nil, errors.New("missing angle brackets")
	}

	address = s[start+1 : end]
	paramStr := strings.TrimSpace(s[end+1:])

	// Parse parameters - lazy allocate map only when needed
	if paramStr != "" {
		params = make(map[string]string)
		for _, param := range strings.Fields(paramStr) {
			var key, value string
			if before, after, found := strings.Cut(param, "="); found {
				key = strings.ToUpper(before)
				value = after
			} else {
				key = strings.ToUpper(param)
				value = ""
			}
			if _, exists := params[key]; exists {
				return "", nil, fmt.Errorf("duplicate parameter: %s", key)
			}
			params[key] = value
		}
	}

	return address, params, nil
}

// cutKeyword strips a leading case-insensitive "KEYWORD:" prefix such as
// FROM: or TO: from a MAIL/RCPT argument.
func cutKeyword(args, keyword string) (string, bool) {
	if len(args) < len(keyword) || !strings.EqualFold(args[:len(keyword)], keyword) {
		return "", false
	}
	return strings.TrimSpace(args[len(keyword):]), true
}
