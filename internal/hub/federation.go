package hub

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
)

// registerServerLink finishes the handshake, grounded on the teacher's
// LocalClient.registerServer: record the neighbor, burst our state to
// it, and announce it to every other neighbor.
func (h *Hub) registerServerLink(s *Session) {
	canon := registry.CaseFold(s.preServerName)
	s.serverName = canon
	s.phase = phaseRegisteredServer
	s.bursting = true
	h.localServers[canon] = s

	h.reg.AddServerLink(&registry.ServerLink{
		Name:      s.preServerName,
		Direction: linkDirectionFor(s),
		Origin:    registry.OriginConfig,
		Local:     true,
		Via:       s.preServerName,
	})

	h.log.WithField("server", s.preServerName).Info("hub: server link established")

	h.sendBurst(s)
	s.maybeQueueMessage(ircmsg.Message{Command: "PING", Params: []string{h.mySID()}})

	for name, other := range h.localServers {
		if name == canon {
			continue
		}
		other.maybeQueueMessage(ircmsg.Message{
			Prefix:  h.mySID(),
			Command: "SID",
			Params:  []string{s.preServerName, "2", s.preServerSID, s.preServerDesc},
		})
	}
}

func linkDirectionFor(s *Session) registry.LinkDirection {
	if s.sentSERVER {
		return registry.LinkParent
	}
	return registry.LinkChild
}

// sendBurst sends our state to a newly linked neighbor: every known
// server, every known user, and the membership of every channel that
// Registry.List returns, grounded on the teacher's LocalServer.sendBurst.
// Channels with +s or +p set are not in that list and are not bursted.
func (h *Hub) sendBurst(s *Session) {
	for _, link := range h.reg.ServerLinks() {
		if registry.EqualFold(link.Name, s.preServerName) {
			continue
		}
		s.maybeQueueMessage(ircmsg.Message{
			Prefix:  h.mySID(),
			Command: "SID",
			Params:  []string{link.Name, "2", "000", ""},
		})
	}

	for _, u := range h.reg.Who("") {
		s.maybeQueueMessage(ircmsg.Message{
			Prefix:  h.mySID(),
			Command: "UID",
			Params: []string{
				u.Nick, "1", strconv.FormatInt(u.NickTS, 10), u.ModesString(),
				u.Username, u.Host, "0.0.0.0", u.UID, u.RealName,
			},
		})
	}

	for _, ch := range h.reg.List("") {
		members := ch.NamesList()
		if len(members) == 0 {
			continue
		}
		params := []string{"0", ch.Name, "+nt"}
		params = append(params, members...)
		s.maybeQueueMessage(ircmsg.Message{Prefix: h.mySID(), Command: "SJOIN", Params: params})
	}
}

// forwardUIDToNeighbors announces a freshly registered local user to
// every directly connected server except the one named skip (the
// neighbor we heard it from, if any, to avoid loops).
func (h *Hub) forwardUIDToNeighbors(u *registry.User, skip string) {
	for name, s := range h.localServers {
		if name == registry.CaseFold(skip) {
			continue
		}
		s.maybeQueueMessage(ircmsg.Message{
			Prefix:  h.mySID(),
			Command: "UID",
			Params: []string{
				u.Nick, "1", strconv.FormatInt(u.NickTS, 10), u.ModesString(),
				u.Username, u.Host, "0.0.0.0", u.UID, u.RealName,
			},
		})
		h.metrics.ReplicationEvents.WithLabelValues("uid").Inc()
	}
}

// forwardToNeighborsExcept fans m out to every directly connected
// server except skip, implementing the loop-free tree fan-out from
// spec.md §4.4 rule 4 ("never echo a message back to the neighbor it
// arrived from").
func (h *Hub) forwardToNeighborsExcept(m ircmsg.Message, skip string) {
	skipCanon := registry.CaseFold(skip)
	for name, s := range h.localServers {
		if name == skipCanon {
			continue
		}
		s.maybeQueueMessage(m)
		h.metrics.ReplicationEvents.WithLabelValues(m.Command).Inc()
	}
}

// noticeLocalOpers sends a server NOTICE to every local user with +s or
// +w set, grounded on the teacher's LocalServer.noticeOpers: KILL and
// SQUIT are loud administrative actions operators watching the network
// expect to be told about.
func (h *Hub) noticeLocalOpers(text string) {
	msg := ircmsg.Message{Prefix: h.cfg.ServerName, Command: "NOTICE", Params: []string{"*", text}}
	for nick, s := range h.localUsers {
		u := h.reg.User(nick)
		if u == nil {
			continue
		}
		if u.HasMode(registry.ModeServerNotices) || u.HasMode(registry.ModeWallops) {
			s.maybeQueueMessage(msg)
		}
	}
}

// disconnect tears a session down: ERROR, close the write channel, and
// registry cleanup appropriate to whatever phase the session was in.
func (h *Hub) disconnect(s *Session, reason string) {
	if s.closeOnce {
		return
	}
	s.closeOnce = true

	s.maybeQueueMessage(ircmsg.Message{Command: "ERROR", Params: []string{reason}})
	close(s.writeChan)

	switch s.phase {
	case phaseRegisteredUser:
		h.quitUser(s, reason)
	case phaseRegisteredServer:
		h.squit(s, reason)
	}
}

func (h *Hub) quitUser(s *Session, reason string) {
	delete(h.localUsers, s.nick)
	u := h.reg.User(s.nick)
	diff, err := h.reg.DropUser(s.nick)
	if err != nil {
		return
	}
	h.metrics.LocalSessions.Dec()

	if u == nil {
		return
	}
	quitMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "QUIT", Params: []string{reason}}
	h.broadcastToChannels(diff.AffectedChannels, quitMsg, s.nick)
	h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "QUIT", Params: []string{reason}}, "")
}

// squit handles loss of a directly connected neighbor: every user whose
// owning server is that neighbor (or anything behind it) quits with a
// synthetic netsplit message, grounded on the teacher's
// LocalServer.serverSplitCleanUp.
func (h *Hub) squit(s *Session, reason string) {
	if _, exists := h.localServers[s.serverName]; !exists {
		return
	}
	delete(h.localServers, s.serverName)
	h.reg.RemoveServerLink(s.preServerName)

	lost := h.reg.UsersOnServer(s.preServerName)
	splitMsg := fmt.Sprintf("Netsplit %s %s", h.cfg.ServerName, s.preServerName)

	for _, u := range lost {
		diff, err := h.reg.DropUser(u.Nick)
		if err != nil {
			continue
		}
		h.broadcastToChannels(diff.AffectedChannels, ircmsg.Message{
			Prefix:  u.NickUhost(),
			Command: "QUIT",
			Params:  []string{splitMsg},
		}, "")
	}

	h.forwardToNeighborsExcept(ircmsg.Message{
		Prefix:  h.mySID(),
		Command: "SQUIT",
		Params:  []string{s.preServerName, reason},
	}, s.serverName)

	h.log.WithFields(logrus.Fields{"server": s.preServerName, "reason": reason}).Warn("hub: server link lost")
}

// broadcastToChannels delivers m to every local member of each named
// channel, skipping the session whose canonical nick is skip (so a user
// acting on their own behalf doesn't receive an echo of their own
// action unless the caller wants that).
func (h *Hub) broadcastToChannels(channels []string, m ircmsg.Message, skip string) {
	skipCanon := registry.CaseFold(skip)
	seen := make(map[string]struct{})
	for _, chanName := range channels {
		ch := h.reg.Channel(chanName)
		if ch == nil {
			continue
		}
		for memberCanon := range ch.Members {
			if memberCanon == skipCanon {
				continue
			}
			if _, already := seen[memberCanon]; already {
				continue
			}
			seen[memberCanon] = struct{}{}
			if local, ok := h.localUsers[memberCanon]; ok {
				local.maybeQueueMessage(m)
			}
		}
	}
}
