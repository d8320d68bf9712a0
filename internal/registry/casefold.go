package registry

import "strings"

// Nicknames are restricted to ASCII alphanumerics plus -_[]\^{}|, which
// sidesteps the open question of how to case-fold non-ASCII nicknames
// (spec §9).
const validNickExtra = "-_[]\\^{}|"

// foldByte implements RFC 1459 "strict-rfc1459"-style case folding: the
// four characters {|}~ are the lower-case counterparts of [\]^, in
// addition to standard ASCII case folding.
func foldByte(b byte) byte {
	switch b {
	case '{':
		return '['
	case '}':
		return ']'
	case '|':
		return '\\'
	case '~':
		return '^'
	}
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// CaseFold returns the canonical representation of a nickname or channel
// name used as a map key throughout the registry.
func CaseFold(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = foldByte(s[i])
	}
	return string(out)
}

// EqualFold reports whether a and b are the same nickname/channel name
// under IRC case folding.
func EqualFold(a, b string) bool {
	return CaseFold(a) == CaseFold(b)
}

// IsValidNick reports whether n is an acceptable nickname: 1..maxLen
// characters, first character a letter or one of validNickExtra,
// remaining characters letters, digits, or one of validNickExtra.
func IsValidNick(n string, maxLen int) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}
	for i := 0; i < len(n); i++ {
		c := n[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		isExtra := strings.IndexByte(validNickExtra, c) != -1
		if i == 0 {
			if !isLetter && !isExtra {
				return false
			}
			continue
		}
		if !isLetter && !isDigit && !isExtra {
			return false
		}
	}
	return true
}

// IsValidChannel reports whether c is an acceptable channel name: starts
// with # or &, 2..maxLen characters, no spaces, commas, BEL, CR, LF or
// NUL.
func IsValidChannel(c string, maxLen int) bool {
	if len(c) < 2 || len(c) > maxLen {
		return false
	}
	if c[0] != '#' && c[0] != '&' {
		return false
	}
	return !strings.ContainsAny(c, " ,\x07\r\n\x00")
}
