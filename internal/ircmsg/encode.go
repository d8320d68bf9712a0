package ircmsg

import (
	"strings"

	"github.com/pkg/errors"
)

// Encode serializes m into a raw protocol line, including the trailing
// CRLF. It does not enforce command-specific semantics (arity, etc.) —
// that's the caller's job.
func (m Message) Encode() (string, error) {
	if m.Command == "" {
		return "", ErrEmptyCommand
	}
	if len(m.Params) > MaxParams {
		return "", ErrTooManyParams
	}

	var b strings.Builder

	if m.Prefix != "" {
		if strings.ContainsAny(m.Prefix, " \t") {
			return "", ErrPrefixHasSpace
		}
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)

	for i, param := range m.Params {
		isLast := i == len(m.Params)-1
		needsColon := param == "" || strings.ContainsRune(param, ' ') || strings.HasPrefix(param, ":")

		if needsColon && !isLast {
			return "", errors.Wrapf(ErrMalformedLine,
				"parameter %d needs ':' prefix but is not last", i)
		}

		b.WriteByte(' ')
		if needsColon {
			b.WriteByte(':')
		}
		b.WriteString(param)
	}

	b.WriteString("\r\n")

	if b.Len() > MaxLineLength {
		return "", ErrLineTooLong
	}

	return b.String(), nil
}
