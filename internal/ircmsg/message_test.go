package ircmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageBasic(t *testing.T) {
	m, err := ParseMessage("NICK alice\r\n")
	require.NoError(t, err)
	assert.Equal(t, "", m.Prefix)
	assert.Equal(t, "NICK", m.Command)
	assert.Equal(t, []string{"alice"}, m.Params)
}

func TestParseMessageWithPrefixAndTrailing(t *testing.T) {
	m, err := ParseMessage(":alice!alice@host PRIVMSG #room :hello there\r\n")
	require.NoError(t, err)
	assert.Equal(t, "alice!alice@host", m.Prefix)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"#room", "hello there"}, m.Params)
	assert.Equal(t, "alice", m.SourceNick())
}

func TestParseMessageNumericCommand(t *testing.T) {
	m, err := ParseMessage(":irc.example.org 001 alice :Welcome\r\n")
	require.NoError(t, err)
	assert.True(t, m.IsNumeric())
	assert.Equal(t, "001", m.Command)
}

func TestParseMessageEmptyTrailing(t *testing.T) {
	m, err := ParseMessage("TOPIC #room :\r\n")
	require.NoError(t, err)
	require.Len(t, m.Params, 2)
	assert.Equal(t, "", m.Params[1])
}

func TestParseMessageRejectsMissingCRLF(t *testing.T) {
	_, err := ParseMessage("NICK alice")
	require.Error(t, err)
}

func TestParseMessageRejectsEmptyCommand(t *testing.T) {
	_, err := ParseMessage(" \r\n")
	require.Error(t, err)
}

func TestParseMessageRejectsOversizeLine(t *testing.T) {
	long := "PRIVMSG #room :" + string(make([]byte, 600)) + "\r\n"
	_, err := ParseMessage(long)
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestParseMessageRejectsTooManyParams(t *testing.T) {
	params := ""
	for i := 0; i < 16; i++ {
		params += "a "
	}
	_, err := ParseMessage("CMD " + params + "\r\n")
	require.Error(t, err)
}

func TestEncodeAddsTrailingColonForSpacedParam(t *testing.T) {
	m := Message{Command: "PRIVMSG", Params: []string{"#room", "hi there"}}
	out, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #room :hi there\r\n", out)
}

func TestEncodeRejectsMiddleParamThatNeedsColon(t *testing.T) {
	m := Message{Command: "X", Params: []string{"has space", "ok"}}
	_, err := m.Encode()
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"NICK alice\r\n",
		"USER alice 0 * :Alice A\r\n",
		":alice!alice@host JOIN #room\r\n",
		":irc.example.org 353 alice = #room :@alice bob\r\n",
		"PING irc.example.org\r\n",
	}

	for _, line := range cases {
		m, err := ParseMessage(line)
		require.NoError(t, err, line)
		out, err := m.Encode()
		require.NoError(t, err, line)
		assert.Equal(t, line, out)
	}
}

func TestEncodeRejectsTooManyParams(t *testing.T) {
	params := make([]string, MaxParams+1)
	for i := range params {
		params[i] = "a"
	}
	_, err := Message{Command: "X", Params: params}.Encode()
	require.ErrorIs(t, err, ErrTooManyParams)
}
