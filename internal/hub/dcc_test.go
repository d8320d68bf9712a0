package hub

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDCCSendOfferReadsFieldsInOrder(t *testing.T) {
	offer, ok := parseDCCSendOffer("\x01DCC SEND f.bin 2130706433 5000 1048576\x01")
	require.True(t, ok)
	require.Equal(t, "f.bin", offer.filename)
	require.Equal(t, "2130706433", offer.address)
	require.Equal(t, 5000, offer.port)
	require.Equal(t, int64(1048576), offer.size)
}

func TestParseDCCSendOfferRejectsMissingSize(t *testing.T) {
	_, ok := parseDCCSendOffer("\x01DCC SEND f.bin 2130706433 5000\x01")
	require.False(t, ok)
}

func TestRelayedFileTransferDeliversEveryChunkInOrder(t *testing.T) {
	ts := startTestServer(t)
	alice := ts.connect(t)
	alice.register("alice")
	bob := ts.connect(t)
	bob.register("bob")

	alice.send("PRIVMSG bob :\x01DCC SEND f.bin 0 0 10\x01")
	offerLine := bob.expectCommand("DCC SEND")
	token := lastField(offerLine)

	bob.send("PRIVMSG alice :\x01DCC ACCEPT " + token + "\x01")
	alice.expectCommand("DCC ACCEPT")

	chunk1 := base64.StdEncoding.EncodeToString([]byte("hello "))
	chunk2 := base64.StdEncoding.EncodeToString([]byte("world"))
	alice.send("PRIVMSG bob :\x01DCC CHUNK " + token + " 0 " + chunk1 + "\x01")
	alice.send("PRIVMSG bob :\x01DCC CHUNK " + token + " 1 " + chunk2 + "\x01")
	alice.send("PRIVMSG bob :\x01DCC DONE " + token + "\x01")

	first := bob.expectCommand("DCC CHUNK")
	second := bob.expectCommand("DCC CHUNK")
	require.Equal(t, "hello ", decodeChunkPayload(t, first))
	require.Equal(t, "world", decodeChunkPayload(t, second))

	bob.expectCommand("complete")
	alice.expectCommand("complete")
}

func TestDCCDeclineNotifiesSender(t *testing.T) {
	ts := startTestServer(t)
	alice := ts.connect(t)
	alice.register("alice")
	bob := ts.connect(t)
	bob.register("bob")

	alice.send("PRIVMSG bob :\x01DCC SEND f.bin 0 0 10\x01")
	offerLine := bob.expectCommand("DCC SEND")
	token := lastField(offerLine)

	bob.send("PRIVMSG alice :\x01DCC DECLINE " + token + "\x01")
	alice.expectCommand("DCC DECLINE")
}

// lastField returns the last whitespace-separated field of an IRC line,
// trimmed of the trailing CTCP delimiter and CRLF.
func lastField(line string) string {
	line = strings.TrimRight(line, "\x01\r\n")
	fields := strings.Fields(line)
	return fields[len(fields)-1]
}

// decodeChunkPayload extracts and base64-decodes the data field of a
// "DCC CHUNK <token> <seq> <data>" CTCP PRIVMSG line.
func decodeChunkPayload(t *testing.T, line string) string {
	t.Helper()
	line = strings.TrimRight(line, "\r\n")
	idx := strings.Index(line, "\x01DCC CHUNK ")
	require.GreaterOrEqual(t, idx, 0)
	inner := strings.TrimSuffix(line[idx+1:], "\x01")
	fields := strings.Fields(inner)
	require.Len(t, fields, 4)
	data, err := base64.StdEncoding.DecodeString(fields[3])
	require.NoError(t, err)
	return string(data)
}
