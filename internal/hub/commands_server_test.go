package hub

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/corvidnet/fedircd/internal/config"
	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/metrics"
	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/store"
	"github.com/corvidnet/fedircd/internal/transfer"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := &config.Config{
		ServerName:         "hub.test",
		Role:               config.RoleMain,
		IdleTimeoutSeconds: 120,
		MaxChannelsPerUser: 10,
		MaxNickLength:      30,
	}
	reg := registry.New(cfg.MaxNickLength, cfg.MaxChannelsPerUser)
	m := metrics.New(prometheus.NewRegistry())
	tr := transfer.New(4096, 60*time.Second, m, logrus.NewEntry(logrus.New()))
	return New(cfg, reg, store.NewFileStore(), m, tr, logrus.NewEntry(logrus.New()))
}

// TestUIDCollisionExactTieBreaksLexicographicallyByUID exercises the
// default: branch of uidCommand on an exact NickTS tie, where both
// claimants register the identical nickname and the only remaining
// distinguishing identity is each side's UID.
func TestUIDCollisionExactTieBreaksLexicographicallyByUID(t *testing.T) {
	h := newTestHub(t)

	_, _, err := h.reg.RegisterRemoteUser("shared", "user", "Real Name", "host", "serverA", "AAA000001", 1000)
	require.NoError(t, err)
	h.uidToNick["AAA000001"] = registry.CaseFold("shared")

	s := &Session{preServerName: "serverB"}
	h.uidCommand(s, ircmsg.Message{
		Command: "UID",
		Params:  []string{"shared", "1", "1000", "+", "user", "host", "0.0.0.0", "ZZZ000001", "Real Name"},
	})

	// "AAA000001" sorts before "ZZZ000001", so the existing registration
	// wins and the incoming UID is the one killed.
	u := h.reg.User("shared")
	require.NotNil(t, u)
	require.Equal(t, "AAA000001", u.UID)
}

func TestUIDCollisionExactTieTheIncomingLowerUIDWins(t *testing.T) {
	h := newTestHub(t)

	_, _, err := h.reg.RegisterRemoteUser("shared", "user", "Real Name", "host", "serverA", "ZZZ000001", 1000)
	require.NoError(t, err)
	h.uidToNick["ZZZ000001"] = registry.CaseFold("shared")

	s := &Session{preServerName: "serverB"}
	h.uidCommand(s, ircmsg.Message{
		Command: "UID",
		Params:  []string{"shared", "1", "1000", "+", "user", "host", "0.0.0.0", "AAA000001", "Real Name"},
	})

	u := h.reg.User("shared")
	require.NotNil(t, u)
	require.Equal(t, "AAA000001", u.UID)
}
