package hub

import (
	"fmt"
	"strings"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
)

// dispatchUserCommand routes one command from a registered local user.
func (h *Hub) dispatchUserCommand(s *Session, m ircmsg.Message) {
	switch m.Command {
	case "NICK":
		h.nickCommand(s, m)
	case "JOIN":
		h.joinCommand(s, m)
	case "PART":
		h.partCommand(s, m)
	case "TOPIC":
		h.topicCommand(s, m)
	case "NAMES":
		h.namesCommand(s, m)
	case "LIST":
		h.listCommand(s, m)
	case "INVITE":
		h.inviteCommand(s, m)
	case "KICK":
		h.kickCommand(s, m)
	case "MODE":
		h.modeCommand(s, m)
	case "PRIVMSG", "NOTICE":
		h.privmsgCommand(s, m)
	case "WHO":
		h.whoCommand(s, m)
	case "WHOIS":
		h.whoisCommand(s, m)
	case "AWAY":
		h.awayCommand(s, m)
	case "PING":
		s.maybeQueueMessage(ircmsg.Message{Command: "PONG", Params: []string{h.cfg.ServerName}})
	case "PONG":
		// Nothing to do; lastActivity was already bumped by dispatch.
	case "OPER":
		h.operCommand(s, m)
	case "CONNECT":
		h.connectCommand(s, m)
	case "KILL":
		h.killCommand(s, m)
	case "SQUIT":
		h.squitCommand(s, m)
	case "QUIT":
		reason := "Client quit"
		if len(m.Params) > 0 {
			reason = m.Params[0]
		}
		h.disconnect(s, reason)
	default:
		s.messageFromServer(ErrUnknownCommand, []string{m.Command, "Unknown command"})
	}
}

func (h *Hub) requireParams(s *Session, m ircmsg.Message, n int) bool {
	if len(m.Params) < n {
		s.messageFromServer(ErrNeedMoreParams, []string{m.Command, "Not enough parameters"})
		return false
	}
	return true
}

func (h *Hub) nickCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	newNick := m.Params[0]
	if !registry.IsValidNick(newNick, h.cfg.MaxNickLength) {
		s.messageFromServer(ErrErroneousNick, []string{newNick, "Erroneous nickname"})
		return
	}

	u := h.reg.User(s.nick)
	if u == nil {
		return
	}

	diff, err := h.reg.RenameUser(u.Nick, newNick)
	if err != nil {
		s.messageFromServer(ErrNicknameInUse, []string{newNick, "Nickname is already in use"})
		return
	}

	nickMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "NICK", Params: []string{newNick}}
	s.maybeQueueMessage(nickMsg)
	h.broadcastToChannels(diff.AffectedChannels, nickMsg, s.nick)

	delete(h.localUsers, s.nick)
	s.nick = registry.CaseFold(newNick)
	h.localUsers[s.nick] = s

	h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "NICK", Params: []string{newNick}}, "")
}

func (h *Hub) joinCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}

	channels := strings.Split(m.Params[0], ",")
	keys := []string{""}
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	for i, chanName := range channels {
		if !registry.IsValidChannel(chanName, 50) {
			s.messageFromServer(ErrNoSuchChannel, []string{chanName, "No such channel"})
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		diff, err := h.reg.JoinChannel(u.Nick, chanName, key)
		if err != nil {
			h.replyChannelError(s, chanName, err)
			continue
		}

		joinMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "JOIN", Params: []string{diff.Channel}}
		h.broadcastToChannels([]string{diff.Channel}, joinMsg, "")

		h.sendTopicAndNames(s, diff.Channel)
		h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "JOIN", Params: []string{diff.Channel}}, "")
	}
}

func (h *Hub) sendTopicAndNames(s *Session, chanName string) {
	ch := h.reg.Channel(chanName)
	if ch == nil {
		return
	}
	if ch.Topic != "" {
		s.messageFromServer(ReplyTopic, []string{ch.Name, ch.Topic})
	} else {
		s.messageFromServer(ReplyNoTopic, []string{ch.Name, "No topic is set"})
	}
	names, _ := h.reg.Names(chanName)
	s.messageFromServer(ReplyNameReply, append([]string{"=", ch.Name}, strings.Join(names, " ")))
	s.messageFromServer(ReplyEndOfNames, []string{ch.Name, "End of NAMES list"})
}

func (h *Hub) partCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}
	reason := u.Nick
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}

	for _, chanName := range strings.Split(m.Params[0], ",") {
		partMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "PART", Params: []string{chanName, reason}}
		h.broadcastToChannels([]string{chanName}, partMsg, "")
		s.maybeQueueMessage(partMsg)

		_, err := h.reg.PartChannel(u.Nick, chanName)
		if err != nil {
			h.replyChannelError(s, chanName, err)
			continue
		}
		h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "PART", Params: []string{chanName, reason}}, "")
	}
}

func (h *Hub) topicCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}

	if len(m.Params) == 1 {
		ch := h.reg.Channel(m.Params[0])
		if ch == nil {
			s.messageFromServer(ErrNoSuchChannel, []string{m.Params[0], "No such channel"})
			return
		}
		if ch.Topic == "" {
			s.messageFromServer(ReplyNoTopic, []string{ch.Name, "No topic is set"})
		} else {
			s.messageFromServer(ReplyTopic, []string{ch.Name, ch.Topic})
		}
		return
	}

	diff, err := h.reg.SetTopic(u.Nick, m.Params[0], m.Params[1])
	if err != nil {
		h.replyChannelError(s, m.Params[0], err)
		return
	}
	topicMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "TOPIC", Params: []string{diff.Channel, diff.Topic}}
	h.broadcastToChannels([]string{diff.Channel}, topicMsg, "")
	s.maybeQueueMessage(topicMsg)
	h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "TOPIC", Params: []string{diff.Channel, diff.Topic}}, "")
}

func (h *Hub) namesCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	h.sendTopicAndNames(s, m.Params[0])
}

func (h *Hub) listCommand(s *Session, m ircmsg.Message) {
	mask := ""
	if len(m.Params) > 0 {
		mask = m.Params[0]
	}
	for _, ch := range h.reg.List(mask) {
		s.messageFromServer("322", []string{ch.Name, itoa(len(ch.Members)), ch.Topic})
	}
	s.messageFromServer("323", []string{"End of LIST"})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (h *Hub) inviteCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 2) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}
	target, chanName := m.Params[0], m.Params[1]
	if err := h.reg.Invite(u.Nick, target, chanName); err != nil {
		h.replyChannelError(s, chanName, err)
		return
	}
	s.messageFromServer(ReplyInviting, []string{target, chanName})
	if targetSession, ok := h.localUsers[registry.CaseFold(target)]; ok {
		targetSession.maybeQueueMessage(ircmsg.Message{
			Prefix:  u.NickUhost(),
			Command: "INVITE",
			Params:  []string{target, chanName},
		})
	}
}

func (h *Hub) kickCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 2) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}
	reason := u.Nick
	if len(m.Params) > 2 {
		reason = m.Params[2]
	}

	diff, err := h.reg.KickUser(u.Nick, m.Params[1], m.Params[0])
	if err != nil {
		h.replyChannelError(s, m.Params[0], err)
		return
	}

	kickMsg := ircmsg.Message{Prefix: u.NickUhost(), Command: "KICK", Params: []string{diff.Channel, diff.Nick, reason}}
	h.broadcastToChannels([]string{diff.Channel}, kickMsg, "")
	s.maybeQueueMessage(kickMsg)
	if kicked, ok := h.localUsers[registry.CaseFold(diff.Nick)]; ok {
		kicked.maybeQueueMessage(kickMsg)
	}
	h.forwardToNeighborsExcept(ircmsg.Message{Prefix: u.UID, Command: "KICK", Params: []string{diff.Channel, diff.Nick, reason}}, "")
}

func (h *Hub) awayCommand(s *Session, m ircmsg.Message) {
	message := ""
	if len(m.Params) > 0 {
		message = m.Params[0]
	}
	_ = h.reg.SetAway(s.nick, message)
	if message == "" {
		s.messageFromServer(ReplyUnaway, []string{"You are no longer marked as being away"})
	} else {
		s.messageFromServer(ReplyNowAway, []string{"You have been marked as being away"})
	}
}

func (h *Hub) whoCommand(s *Session, m ircmsg.Message) {
	mask := ""
	if len(m.Params) > 0 {
		mask = m.Params[0]
	}
	for _, u := range h.reg.Who(mask) {
		s.messageFromServer(ReplyWhoReply, []string{
			"*", u.Username, u.Host, u.Server, u.Nick, "H", "0 " + u.RealName,
		})
	}
	s.messageFromServer(ReplyEndOfWho, []string{mask, "End of WHO list"})
}

func (h *Hub) whoisCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	u, err := h.reg.Whois(m.Params[0])
	if err != nil {
		s.messageFromServer(ErrNoSuchNick, []string{m.Params[0], "No such nick"})
		return
	}
	s.messageFromServer(ReplyWhoisUser, []string{u.Nick, u.Username, u.Host, "*", u.RealName})
	s.messageFromServer(ReplyWhoisServer, []string{u.Nick, u.Server, "fedircd"})
	if u.Away != "" {
		s.messageFromServer(ReplyAway, []string{u.Nick, u.Away})
	}
	if u.IsOperator() {
		s.messageFromServer(ReplyWhoisOperator, []string{u.Nick, "is a network operator"})
	}
	s.messageFromServer(ReplyEndOfWhois, []string{u.Nick, "End of WHOIS list"})
}

func (h *Hub) operCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 2) {
		return
	}
	if !h.verifyOperCredential(m.Params[0], m.Params[1]) {
		s.messageFromServer(ErrPasswordMismatch, []string{"Password incorrect"})
		return
	}
	diff, err := h.reg.SetUserMode(s.nick, []registry.UserModeChange{{Add: true, Mode: registry.ModeOperator}})
	if err != nil {
		return
	}
	s.messageFromServer(ReplyYoureOper, []string{"You are now a network operator"})
	_ = diff
}

// connectCommand lets a network operator bring up a configured link by
// hand, grounded on the teacher's LocalUser.connectCommand.
func (h *Hub) connectCommand(s *Session, m ircmsg.Message) {
	u := h.reg.User(s.nick)
	if u == nil || !u.IsOperator() {
		s.messageFromServer(ErrNoPrivileges, []string{"Permission denied: you're not a network operator"})
		return
	}
	if !h.requireParams(s, m, 1) {
		return
	}
	name := m.Params[0]
	if registry.EqualFold(name, h.cfg.MainServerName) {
		h.ConnectToNeighbor(h.cfg.MainServerName, h.cfg.MainServerAddress, "")
		return
	}
	link, known := h.links[registry.CaseFold(name)]
	if !known {
		s.messageFromServer(ErrNoSuchServer, []string{name, "No such server"})
		return
	}
	if _, already := h.localServers[registry.CaseFold(name)]; already {
		s.messageFromServer("NOTICE", []string{"I am already linked to " + name})
		return
	}
	h.ConnectToNeighbor(link.Name, link.Address, link.Password)
}

// killCommand lets a network operator force a local or remote user off
// the network, grounded on the teacher's LocalUser.killCommand.
func (h *Hub) killCommand(s *Session, m ircmsg.Message) {
	actor := h.reg.User(s.nick)
	if actor == nil || !actor.IsOperator() {
		s.messageFromServer(ErrNoPrivileges, []string{"Permission denied: you're not a network operator"})
		return
	}
	if !h.requireParams(s, m, 1) {
		return
	}
	target := m.Params[0]
	reason := "Killed"
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}

	victim := h.reg.User(target)
	if victim == nil {
		s.messageFromServer(ErrNoSuchNick, []string{target, "No such nick"})
		return
	}

	h.noticeLocalOpers(fmt.Sprintf("%s killed %s (%s)", actor.Nick, victim.Nick, reason))

	if local, ok := h.localUsers[registry.CaseFold(victim.Nick)]; ok {
		h.disconnect(local, "Killed by "+actor.Nick+": "+reason)
		return
	}

	diff, err := h.reg.DropUser(victim.Nick)
	if err != nil {
		return
	}
	h.broadcastToChannels(diff.AffectedChannels, ircmsg.Message{
		Prefix: victim.NickUhost(), Command: "QUIT", Params: []string{"Killed by " + actor.Nick + ": " + reason},
	}, "")
	h.forwardToNeighborsExcept(ircmsg.Message{
		Prefix: h.mySID(), Command: "KILL", Params: []string{victim.UID, reason},
	}, "")
}

// squitCommand lets a network operator tear down a directly connected
// server link by hand, grounded on the teacher's LocalUser.squitCommand.
func (h *Hub) squitCommand(s *Session, m ircmsg.Message) {
	actor := h.reg.User(s.nick)
	if actor == nil || !actor.IsOperator() {
		s.messageFromServer(ErrNoPrivileges, []string{"Permission denied: you're not a network operator"})
		return
	}
	if !h.requireParams(s, m, 1) {
		return
	}
	name := m.Params[0]
	reason := "Server split"
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}

	neighbor, ok := h.localServers[registry.CaseFold(name)]
	if !ok {
		s.messageFromServer(ErrNoSuchServer, []string{name, "No such server"})
		return
	}
	h.noticeLocalOpers(fmt.Sprintf("%s SQUIT %s (%s)", actor.Nick, name, reason))
	h.disconnect(neighbor, reason)
}

// privmsgCommand routes a message to a user or channel, and recognizes
// the CTCP DCC SEND offer that kicks off a file transfer (spec.md §4.1
// "PRIVMSG carrying a CTCP DCC SEND payload... triggers C5").
func (h *Hub) privmsgCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 2) {
		return
	}
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}
	target, text := m.Params[0], m.Params[1]

	if offer, ok := parseDCCSendOffer(text); ok {
		h.handleDCCSendOffer(s, u, target, offer)
		return
	}
	if cmd, args, ok := parseDCCControl(text); ok {
		switch cmd {
		case "ACCEPT":
			h.handleDCCAccept(s, u, args)
		case "DECLINE":
			h.handleDCCDecline(s, u, args)
		case "CHUNK":
			h.handleDCCChunk(u, args)
		case "DONE":
			h.handleDCCDone(u, args)
		}
		return
	}

	out := ircmsg.Message{Prefix: u.NickUhost(), Command: m.Command, Params: []string{target, text}}

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch := h.reg.Channel(target)
		if ch == nil {
			s.messageFromServer(ErrCannotSendToChan, []string{target, "No such channel"})
			return
		}
		member, isMember := ch.Members[s.nick]
		if ch.HasMode(registry.ModeNoExternal) && !isMember {
			s.messageFromServer(ErrCannotSendToChan, []string{target, "Cannot send to channel"})
			return
		}
		if ch.HasMode(registry.ModeModerated) {
			if !isMember || (!member.HasRole(registry.RoleOperator) && !member.HasRole(registry.RoleVoice)) {
				s.messageFromServer(ErrCannotSendToChan, []string{target, "Cannot send to channel"})
				return
			}
		}
		h.broadcastToChannels([]string{target}, out, s.nick)
		return
	}

	targetSession, ok := h.localUsers[registry.CaseFold(target)]
	if !ok {
		s.messageFromServer(ErrNoSuchNick, []string{target, "No such nick"})
		return
	}
	targetSession.maybeQueueMessage(out)
}

func (h *Hub) replyChannelError(s *Session, chanName string, err error) {
	switch err {
	case registry.ErrNoSuchChannel:
		s.messageFromServer(ErrNoSuchChannel, []string{chanName, "No such channel"})
	case registry.ErrNotOnChannel:
		s.messageFromServer(ErrNotOnChannel, []string{chanName, "You're not on that channel"})
	case registry.ErrAlreadyIn:
		// Silently ignore a duplicate JOIN, matching common server behavior.
	case registry.ErrInviteOnly:
		s.messageFromServer(ErrInviteOnlyChan, []string{chanName, "Cannot join channel (+i)"})
	case registry.ErrBadChannelKey:
		s.messageFromServer(ErrBadChannelKey, []string{chanName, "Cannot join channel (+k)"})
	case registry.ErrBannedFromChan:
		s.messageFromServer(ErrBannedFromChan, []string{chanName, "Cannot join channel (+b)"})
	case registry.ErrChannelIsFull:
		s.messageFromServer(ErrChannelIsFull, []string{chanName, "Cannot join channel (+l)"})
	case registry.ErrNotOperator:
		s.messageFromServer(ErrChanOpPrivsNeeded, []string{chanName, "You're not a channel operator"})
	case registry.ErrTooManyChannels:
		s.messageFromServer(ErrTooManyChannels, []string{chanName, "You have joined too many channels"})
	default:
		s.messageFromServer(ErrNoSuchChannel, []string{chanName, "No such channel"})
	}
}
