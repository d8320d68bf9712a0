// Package ircmsg parses and serializes IRC protocol lines.
//
// It is a pure codec: no I/O, no shared state. See RFC 1459/2812 section
// 2.3.1 for the grammar this implements a pragmatic subset of.
package ircmsg

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxLineLength is the maximum protocol message length, including the
// trailing CRLF.
const MaxLineLength = 512

// MaxParams is the maximum number of parameters a message may carry.
const MaxParams = 15

// Sentinel errors. Wrap with errors.Wrap for call-site context; compare
// with errors.Is against these.
var (
	// ErrMalformedLine covers violations of the grammar that aren't one of
	// the more specific errors below: bad CRLF, empty parameters outside
	// the trailing position.
	ErrMalformedLine = errors.New("ircmsg: malformed line")

	// ErrLineTooLong is returned when a line (including CRLF) exceeds
	// MaxLineLength.
	ErrLineTooLong = errors.New("ircmsg: line exceeds maximum length")

	// ErrEmptyCommand is returned when no command is present.
	ErrEmptyCommand = errors.New("ircmsg: command is empty")

	// ErrPrefixHasSpace is returned when a prefix contains whitespace.
	ErrPrefixHasSpace = errors.New("ircmsg: prefix contains whitespace")

	// ErrTooManyParams is returned when a message has more than MaxParams
	// parameters.
	ErrTooManyParams = errors.New("ircmsg: too many parameters")
)

// Message holds one parsed (or to-be-serialized) protocol line.
type Message struct {
	// Prefix is the optional source of the message (nick!user@host, or a
	// server name). Empty if the message carried no prefix.
	Prefix string

	// Command is the IRC verb: either alphabetic (JOIN, PRIVMSG, ...) or a
	// three digit numeric reply (001, 433, ...). Always upper-cased.
	Command string

	// Params holds up to MaxParams parameters. Only the last parameter may
	// contain spaces (the "trailing" parameter, introduced with ':' on the
	// wire).
	Params []string
}

func (m Message) String() string {
	s, err := m.Encode()
	if err != nil {
		return "<" + m.Command + ": " + err.Error() + ">"
	}
	return strings.TrimRight(s, "\r\n")
}

// SourceNick extracts the nickname portion of Prefix. It returns "" if
// Prefix has no '!' (e.g. it's a bare server name, or blank).
func (m Message) SourceNick() string {
	idx := strings.IndexByte(m.Prefix, '!')
	if idx == -1 {
		return ""
	}
	return m.Prefix[:idx]
}

// IsNumeric reports whether Command is a three digit numeric reply.
func (m Message) IsNumeric() bool {
	return isNumeric(m.Command)
}

// IsNumericCommand reports whether command is a three digit numeric
// reply, without requiring a Message.
func IsNumericCommand(command string) bool {
	return isNumeric(command)
}

func isNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, r := range command {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
