package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelBanListCanBeSetListedAndCleared(t *testing.T) {
	ts := startTestServer(t)
	op := ts.connect(t)
	op.register("op")
	op.send("JOIN #banned")
	op.expectCommand("JOIN")

	op.send("MODE #banned +b troll!*@*")
	op.expectCommand("MODE")

	op.send("MODE #banned b")
	line := op.expectCommand(ReplyBanList)
	require.Contains(t, line, "troll!*@*")
	op.expectCommand(ReplyEndOfBanList)

	other := ts.connect(t)
	other.send("NICK troll")
	other.send("USER troll 0 * :Troll")
	other.expectCommand(ReplyWelcome)
	other.send("JOIN #banned")
	other.expectCommand(ErrBannedFromChan)

	op.send("MODE #banned -b troll!*@*")
	op.expectCommand("MODE")

	other.send("JOIN #banned")
	other.expectCommand("JOIN")
}

func TestModeratedChannelBlocksUnvoicedMembers(t *testing.T) {
	ts := startTestServer(t)
	op := ts.connect(t)
	op.register("op")
	op.send("JOIN #mod")
	op.expectCommand("JOIN")
	op.send("MODE #mod +m")
	op.expectCommand("MODE")

	quiet := ts.connect(t)
	quiet.register("quiet")
	quiet.send("JOIN #mod")
	quiet.expectCommand("JOIN")
	op.expectCommand("JOIN")

	quiet.send("PRIVMSG #mod :can anyone hear me")
	quiet.expectCommand(ErrCannotSendToChan)

	op.send("MODE #mod +v quiet")
	op.expectCommand("MODE")

	quiet.send("PRIVMSG #mod :now I can talk")
	line := op.expectCommand("PRIVMSG")
	require.Contains(t, line, "now I can talk")
}

func TestOperatorKillDisconnectsTarget(t *testing.T) {
	ts := startTestServer(t)
	admin := ts.newOperator(t, "admin", "hunter2")

	victim := ts.connect(t)
	victim.register("victim")

	admin.send("KILL victim :abusing the test suite")
	victim.expectCommand("ERROR")
}
