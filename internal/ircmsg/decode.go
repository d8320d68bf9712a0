package ircmsg

import (
	"strings"

	"github.com/pkg/errors"
)

// ParseMessage parses a single protocol line. line must already include
// the trailing CRLF.
//
// Grammar (subset of RFC 1459/2812 section 2.3.1):
//
//	message = [ ':' prefix SPACE ] command [ params ] crlf
//	prefix   = servername / ( nickname [ [ '!' user ] '@' host ] )
//	command  = 1*letter / 3digit
//	params   = *14( SPACE middle ) [ SPACE ':' trailing ]
func ParseMessage(line string) (Message, error) {
	if len(line) > MaxLineLength {
		return Message{}, ErrLineTooLong
	}

	if !strings.HasSuffix(line, "\r\n") {
		return Message{}, errors.Wrap(ErrMalformedLine, "missing CRLF terminator")
	}

	body := line[:len(line)-2]
	if body == "" {
		return Message{}, errors.Wrap(ErrMalformedLine, "empty line")
	}

	var msg Message
	rest := body

	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp == -1 {
			return Message{}, errors.Wrap(ErrMalformedLine, "prefix with no command")
		}
		prefix := rest[1:sp]
		if prefix == "" {
			return Message{}, errors.Wrap(ErrMalformedLine, "empty prefix")
		}
		if strings.ContainsAny(prefix, " \t") {
			return Message{}, ErrPrefixHasSpace
		}
		msg.Prefix = prefix
		rest = strings.TrimPrefix(rest[sp:], " ")
	}

	command, rest, err := splitCommand(rest)
	if err != nil {
		return Message{}, err
	}
	if command == "" {
		return Message{}, ErrEmptyCommand
	}
	msg.Command = strings.ToUpper(command)

	params, err := splitParams(rest)
	if err != nil {
		return Message{}, err
	}
	if len(params) > MaxParams {
		return Message{}, ErrTooManyParams
	}
	msg.Params = params

	return msg, nil
}

// splitCommand reads the leading run of letters/digits as the command and
// returns the remainder of the line (without a leading space).
func splitCommand(rest string) (string, string, error) {
	i := 0
	for i < len(rest) {
		c := rest[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !isDigit {
			break
		}
		i++
	}

	command := rest[:i]
	remainder := rest[i:]

	if remainder == "" {
		return command, "", nil
	}
	if remainder[0] != ' ' {
		return "", "", errors.Wrapf(ErrMalformedLine, "unexpected character after command: %q", remainder[0])
	}

	return command, strings.TrimPrefix(remainder, " "), nil
}

// splitParams parses the parameter list. rest is positioned just after the
// command and its single separating space (or is empty).
func splitParams(rest string) ([]string, error) {
	var params []string

	for rest != "" {
		if strings.HasPrefix(rest, ":") {
			params = append(params, rest[1:])
			return params, nil
		}

		sp := strings.IndexByte(rest, ' ')
		if sp == -1 {
			if rest == "" {
				return params, nil
			}
			params = append(params, rest)
			return params, nil
		}

		param := rest[:sp]
		if param == "" {
			return nil, errors.Wrap(ErrMalformedLine, "empty middle parameter")
		}
		params = append(params, param)
		rest = strings.TrimPrefix(rest[sp:], " ")
	}

	return params, nil
}
