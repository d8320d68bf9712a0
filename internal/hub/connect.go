package hub

import (
	"net"
	"time"

	"github.com/corvidnet/fedircd/internal/config"
)

// connectTimeout bounds how long an outbound link attempt waits before
// giving up, matching the teacher's Config.DeadTime use in
// LocalUser.connectCommand.
const connectTimeout = 10 * time.Second

// ConnectToNeighbor dials address and starts the TS6 handshake from our
// side. It runs the dial in its own goroutine so a slow or unreachable
// neighbor never blocks the event loop, and hands the established
// connection back to the event loop as an outbound link.
func (h *Hub) ConnectToNeighbor(name, address, password string) {
	h.log.WithFields(map[string]interface{}{"server": name, "address": address}).Info("hub: connecting to neighbor")
	go func() {
		rawConn, err := net.DialTimeout("tcp", address, connectTimeout)
		if err != nil {
			h.log.WithError(err).WithField("server", name).Warn("hub: outbound connect failed")
			return
		}
		h.pushEvent(event{kind: eventOutboundConn, rawConn: rawConn, outboundPass: password})
	}()
}

// ConnectConfiguredLinks dials every statically configured neighbor at
// startup: the main server for a secondary node, plus every entry in
// the links table. Connections that fail are logged and left for a
// later operator CONNECT or for the peer to dial in instead.
func (h *Hub) ConnectConfiguredLinks() {
	if h.cfg.Role == config.RoleSecondary {
		h.ConnectToNeighbor(h.cfg.MainServerName, h.cfg.MainServerAddress, "")
	}
	for _, link := range h.links {
		h.ConnectToNeighbor(link.Name, link.Address, link.Password)
	}
}
