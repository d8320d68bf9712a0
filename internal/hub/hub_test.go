package hub

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/corvidnet/fedircd/internal/config"
	"github.com/corvidnet/fedircd/internal/metrics"
	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/store"
	"github.com/corvidnet/fedircd/internal/transfer"
)

// testServer harnesses a real Hub behind a loopback listener, in the
// spirit of the teacher's harnessCatbox/Client test helpers but
// in-process rather than spawning a subprocess.
type testServer struct {
	hub *Hub
	ln  net.Listener
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServerWithIdle(t, 120)
}

func startTestServerWithIdle(t *testing.T, idleTimeoutSeconds int) *testServer {
	t.Helper()
	cfg := &config.Config{
		ServerName:         "hub.test",
		Role:               config.RoleMain,
		IdleTimeoutSeconds: idleTimeoutSeconds,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
	}
	reg := registry.New(cfg.MaxNickLength, cfg.MaxChannelsPerUser)
	m := metrics.New(prometheus.NewRegistry())
	tr := transfer.New(4096, 60*time.Second, m, logrus.NewEntry(logrus.New()))
	h := New(cfg, reg, store.NewFileStore(), m, tr, logrus.NewEntry(logrus.New()))
	require.NoError(t, h.SeedAdmins(nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = h.Serve(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
		h.Shutdown()
	})

	return &testServer{hub: h, ln: ln}
}

// testClient is a minimal hand-rolled IRC client for driving a
// testServer: write raw lines, read raw lines with a deadline.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (ts *testServer) connect(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", ts.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *testClient) readLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

// expectCommand reads lines until one contains want, failing the test
// after a bounded number of attempts rather than hanging forever.
func (c *testClient) expectCommand(want string) string {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		line := c.readLine()
		if containsWord(line, want) {
			return line
		}
	}
	c.t.Fatalf("never saw command %q", want)
	return ""
}

func containsWord(line, word string) bool {
	for i := 0; i+len(word) <= len(line); i++ {
		if line[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func (c *testClient) register(nick string) {
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick + " Real Name")
	c.expectCommand(ReplyWelcome)
}

// newOperator registers nick, seeds it as an admin credential, and OPERs
// it up, returning a client ready to issue operator-only commands.
func (ts *testServer) newOperator(t *testing.T, nick, password string) *testClient {
	t.Helper()
	require.NoError(t, ts.hub.SeedAdmins([]store.AdminCredential{{Nickname: nick, Password: password}}))
	c := ts.connect(t)
	c.register(nick)
	c.send("OPER " + nick + " " + password)
	c.expectCommand(ReplyYoureOper)
	return c
}

func TestClientRegistrationReceivesWelcomeBurst(t *testing.T) {
	ts := startTestServer(t)
	c := ts.connect(t)
	c.register("alice")
}

func TestDuplicateNickIsRejected(t *testing.T) {
	ts := startTestServer(t)
	first := ts.connect(t)
	first.register("bob")

	second := ts.connect(t)
	second.send("NICK bob")
	second.send("USER bob 0 * :Bob Two")
	second.expectCommand(ErrNicknameInUse)
}

func TestJoinAndPrivmsgDeliversToChannelMember(t *testing.T) {
	ts := startTestServer(t)
	alice := ts.connect(t)
	alice.register("alice")
	bob := ts.connect(t)
	bob.register("bob")

	alice.send("JOIN #general")
	alice.expectCommand("JOIN")
	bob.send("JOIN #general")
	bob.expectCommand("JOIN")
	// alice also observes bob's join as a channel member.
	alice.expectCommand("JOIN")

	bob.send("PRIVMSG #general :hello there")
	line := alice.expectCommand("PRIVMSG")
	require.Contains(t, line, "hello there")
}

func TestNumericRepliesAddressCurrentNickAfterRename(t *testing.T) {
	ts := startTestServer(t)
	c := ts.connect(t)
	c.register("oldnick")

	c.send("NICK newnick")
	c.expectCommand("NICK")

	c.send("WHOIS newnick")
	line := c.expectCommand(ReplyWhoisUser)
	require.Contains(t, line, " newnick ")
	require.NotContains(t, line, " 311 oldnick ")
}

func TestIdleSessionReceivesPing(t *testing.T) {
	ts := startTestServerWithIdle(t, 1)
	c := ts.connect(t)
	c.register("carol")

	c.expectCommand("PING")
}
