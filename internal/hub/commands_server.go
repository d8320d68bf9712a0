package hub

import (
	"strconv"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
)

// dispatchServerCommand routes one command arriving from a directly
// connected neighbor server, grounded on the teacher's
// LocalServer.handleMessage dispatch table.
func (h *Hub) dispatchServerCommand(s *Session, m ircmsg.Message) {
	switch m.Command {
	case "PING":
		h.serverPingCommand(s, m)
	case "PONG":
		h.serverPongCommand(s, m)
	case "UID":
		h.uidCommand(s, m)
	case "SID":
		h.sidCommand(s, m)
	case "SJOIN":
		h.sjoinCommand(s, m)
	case "SQUIT":
		h.remoteSquitCommand(s, m)
	case "QUIT":
		h.remoteQuitCommand(s, m)
	case "NICK":
		h.remoteNickCommand(s, m)
	case "JOIN":
		h.remoteJoinCommand(s, m)
	case "PART":
		h.remotePartCommand(s, m)
	case "PRIVMSG", "NOTICE":
		h.remotePrivmsgCommand(s, m)
	case "TOPIC":
		h.remoteTopicCommand(s, m)
	case "KICK":
		h.remoteKickCommand(s, m)
	case "MODE":
		h.remoteModeCommand(s, m)
	case "ERROR":
		h.squit(s, "Received ERROR")
	default:
		// Unknown server commands are logged and dropped rather than
		// killing the link; a future protocol extension shouldn't be
		// fatal to interop.
		h.log.WithField("command", m.Command).Debug("hub: ignoring unknown server command")
	}
}

func (h *Hub) serverPingCommand(s *Session, m ircmsg.Message) {
	s.gotPING = true
	s.maybeQueueMessage(ircmsg.Message{Command: "PONG", Params: []string{h.mySID(), s.preServerSID}})
	h.maybeEndBurst(s)
}

func (h *Hub) serverPongCommand(s *Session, _ ircmsg.Message) {
	s.gotPONG = true
	h.maybeEndBurst(s)
}

// maybeEndBurst flips a neighbor out of bursting state once both sides
// have exchanged PING/PONG, grounded on the teacher's
// LocalServer.pingCommand/pongCommand burst-end detection.
func (h *Hub) maybeEndBurst(s *Session) {
	if s.bursting && s.gotPING && s.gotPONG {
		s.bursting = false
		h.log.WithField("server", s.preServerName).Info("hub: burst complete")
	}
}

// uidCommand registers a remote user, resolving nick collisions per
// spec.md §7: the earlier registration (lower NickTS) wins; on an exact
// NickTS tie the collision is broken deterministically by lexicographic
// order rather than killing both sides, since the colliding nicknames
// are by definition identical and the only remaining distinguishing
// identity is each side's UID.
func (h *Hub) uidCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 9 {
		return
	}
	nick := m.Params[0]
	nickTS, err := strconv.ParseInt(m.Params[2], 10, 64)
	if err != nil {
		return
	}
	username, hostname, uid, realName := m.Params[4], m.Params[5], m.Params[7], m.Params[8]

	if existing := h.reg.User(nick); existing != nil {
		switch {
		case existing.NickTS < nickTS:
			// Ours is older; reject the incoming UID by telling the
			// origin to kill it.
			h.forwardToNeighborsExcept(ircmsg.Message{
				Prefix: h.mySID(), Command: "KILL", Params: []string{uid, "Nick collision"},
			}, "")
			return
		case existing.NickTS > nickTS:
			// Theirs is older; drop ours locally and let the new one win.
			h.reg.DropUser(existing.Nick)
			if local, ok := h.localUsers[registry.CaseFold(existing.Nick)]; ok {
				h.disconnect(local, "Nick collision")
			}
		default:
			// Exact tie: lexicographically lower UID wins, the other loses.
			if existing.UID < uid {
				h.forwardToNeighborsExcept(ircmsg.Message{
					Prefix: h.mySID(), Command: "KILL", Params: []string{uid, "Nick collision"},
				}, "")
				return
			}
			h.reg.DropUser(existing.Nick)
			if local, ok := h.localUsers[registry.CaseFold(existing.Nick)]; ok {
				h.disconnect(local, "Nick collision")
			}
		}
	}

	_, _, err = h.reg.RegisterRemoteUser(nick, username, realName, hostname, s.preServerName, uid, nickTS)
	if err != nil {
		return
	}
	h.uidToNick[uid] = registry.CaseFold(nick)

	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) sidCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 3 {
		return
	}
	h.reg.AddServerLink(&registry.ServerLink{
		Name:   m.Params[0],
		Origin: registry.OriginDiscovered,
		Local:  false,
		Via:    s.preServerName,
	})
	h.forwardToNeighborsExcept(m, s.serverName)
}

// sjoinCommand applies a remote channel burst/join: "<TS> <channel>
// <modes> <uid...>".
func (h *Hub) sjoinCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 3 {
		return
	}
	chanName := m.Params[1]
	for _, uid := range m.Params[3:] {
		uid = stripMemberPrefix(uid)
		nick, ok := h.uidToNick[uid]
		if !ok {
			continue
		}
		u := h.reg.User(nick)
		if u == nil {
			continue
		}
		diff, err := h.reg.JoinChannel(u.Nick, chanName, "")
		if err != nil {
			continue
		}
		h.broadcastToChannels([]string{diff.Channel}, ircmsg.Message{
			Prefix: u.NickUhost(), Command: "JOIN", Params: []string{diff.Channel},
		}, "")
	}
	h.forwardToNeighborsExcept(m, s.serverName)
}

func stripMemberPrefix(uid string) string {
	for len(uid) > 0 && (uid[0] == '@' || uid[0] == '+') {
		uid = uid[1:]
	}
	return uid
}

func (h *Hub) remoteSquitCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	lost := h.reg.UsersOnServer(m.Params[0])
	for _, u := range lost {
		diff, err := h.reg.DropUser(u.Nick)
		if err != nil {
			continue
		}
		h.broadcastToChannels(diff.AffectedChannels, ircmsg.Message{
			Prefix: u.NickUhost(), Command: "QUIT", Params: []string{"Netsplit " + m.Params[0] + " " + s.preServerName},
		}, "")
	}
	h.reg.RemoveServerLink(m.Params[0])
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteQuitCommand(s *Session, m ircmsg.Message) {
	uid := m.Prefix
	nick, ok := h.uidToNick[uid]
	if !ok {
		return
	}
	u := h.reg.User(nick)
	reason := "Remote quit"
	if len(m.Params) > 0 {
		reason = m.Params[0]
	}
	diff, err := h.reg.DropUser(nick)
	delete(h.uidToNick, uid)
	if err != nil || u == nil {
		return
	}
	h.broadcastToChannels(diff.AffectedChannels, ircmsg.Message{
		Prefix: u.NickUhost(), Command: "QUIT", Params: []string{reason},
	}, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteNickCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	oldNick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	newNick := m.Params[0]
	diff, err := h.reg.RenameUser(oldNick, newNick)
	if err != nil {
		return
	}
	h.uidToNick[m.Prefix] = registry.CaseFold(newNick)
	h.broadcastToChannels(diff.AffectedChannels, ircmsg.Message{
		Prefix: oldNick, Command: "NICK", Params: []string{newNick},
	}, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteJoinCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	nick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	diff, err := h.reg.JoinChannel(nick, m.Params[0], "")
	if err != nil {
		return
	}
	u := h.reg.User(nick)
	if u == nil {
		return
	}
	h.broadcastToChannels([]string{diff.Channel}, ircmsg.Message{
		Prefix: u.NickUhost(), Command: "JOIN", Params: []string{diff.Channel},
	}, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remotePartCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	nick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	u := h.reg.User(nick)
	if u == nil {
		return
	}
	reason := nick
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}
	h.broadcastToChannels([]string{m.Params[0]}, ircmsg.Message{
		Prefix: u.NickUhost(), Command: "PART", Params: []string{m.Params[0], reason},
	}, "")
	_, _ = h.reg.PartChannel(nick, m.Params[0])
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remotePrivmsgCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	nick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	u := h.reg.User(nick)
	if u == nil {
		return
	}
	target := m.Params[0]
	out := ircmsg.Message{Prefix: u.NickUhost(), Command: m.Command, Params: m.Params}

	if len(target) > 0 && (target[0] == '#' || target[0] == '&') {
		h.broadcastToChannels([]string{target}, out, "")
	} else if local, ok := h.localUsers[registry.CaseFold(target)]; ok {
		local.maybeQueueMessage(out)
	}
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteTopicCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	nick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	diff, err := h.reg.SetTopic(nick, m.Params[0], m.Params[1])
	if err != nil {
		return
	}
	u := h.reg.User(nick)
	if u == nil {
		return
	}
	h.broadcastToChannels([]string{diff.Channel}, ircmsg.Message{
		Prefix: u.NickUhost(), Command: "TOPIC", Params: []string{diff.Channel, diff.Topic},
	}, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteKickCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	nick, ok := h.uidToNick[m.Prefix]
	if !ok {
		return
	}
	diff, err := h.reg.KickUser(nick, m.Params[1], m.Params[0])
	if err != nil {
		return
	}
	reason := nick
	if len(m.Params) > 2 {
		reason = m.Params[2]
	}
	h.broadcastToChannels([]string{diff.Channel}, ircmsg.Message{
		Prefix: nick, Command: "KICK", Params: []string{diff.Channel, diff.Nick, reason},
	}, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}

func (h *Hub) remoteModeCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	target := m.Params[0]
	if len(target) == 0 || (target[0] != '#' && target[0] != '&') {
		h.forwardToNeighborsExcept(m, s.serverName)
		return
	}
	h.broadcastToChannels([]string{target}, m, "")
	h.forwardToNeighborsExcept(m, s.serverName)
}
