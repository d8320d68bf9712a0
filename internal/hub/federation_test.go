package hub

import (
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

// buildHub constructs a Hub and starts it serving on a loopback
// listener, returning both so a test can connect clients and/or dial
// out to other hubs.
func buildHub(t *testing.T, cfg *config.Config) (*Hub, net.Listener) {
	t.Helper()
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
	return h, ln
}

// eventually polls cond until it returns true or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestServerLinkBurstsExistingUsersAndPropagatesJoins(t *testing.T) {
	hub2, ln2 := buildHub(t, &config.Config{
		ServerName:         "leaf.test",
		Role:               config.RoleSecondary,
		MainServerName:     "hub.test",
		IdleTimeoutSeconds: 120,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
	})
	hub1, ln1 := buildHub(t, &config.Config{
		ServerName:         "hub.test",
		Role:               config.RoleMain,
		IdleTimeoutSeconds: 120,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
		Links:              []config.LinkConfig{{Name: "leaf.test", Address: ln2.Addr().String()}},
	})

	alice := (&testServer{hub: hub1, ln: ln1}).connect(t)
	alice.register("alice")

	hub1.ConnectToNeighbor("leaf.test", ln2.Addr().String(), "")

	eventually(t, func() bool {
		return hub1.reg.ServerLink("leaf.test") != nil
	}, "hub1 sees leaf.test link")
	eventually(t, func() bool {
		return hub2.reg.User("alice") != nil
	}, "leaf learns about alice via burst")

	alice.send("JOIN #federated")
	alice.expectCommand("JOIN")

	eventually(t, func() bool {
		ch := hub2.reg.Channel("#federated")
		return ch != nil && len(ch.Members) == 1
	}, "leaf learns about the channel join")
}

func TestOperatorSquitTearsDownLink(t *testing.T) {
	hub2, ln2 := buildHub(t, &config.Config{
		ServerName:         "leaf2.test",
		Role:               config.RoleSecondary,
		MainServerName:     "hub2.test",
		IdleTimeoutSeconds: 120,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
	})
	hub1, ln1 := buildHub(t, &config.Config{
		ServerName:         "hub2.test",
		Role:               config.RoleMain,
		IdleTimeoutSeconds: 120,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
		Links:              []config.LinkConfig{{Name: "leaf2.test", Address: ln2.Addr().String()}},
	})

	admin := (&testServer{hub: hub1, ln: ln1}).newOperator(t, "admin", "hunter2")

	hub1.ConnectToNeighbor("leaf2.test", ln2.Addr().String(), "")
	eventually(t, func() bool {
		return hub1.reg.ServerLink("leaf2.test") != nil
	}, "hub1 sees leaf2.test link")

	admin.send("SQUIT leaf2.test :manual test teardown")

	eventually(t, func() bool {
		return hub1.reg.ServerLink("leaf2.test") == nil
	}, "hub1 forgets leaf2.test after SQUIT")
}
