package hub

import (
	"strings"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
)

// modeCommand handles both channel and user MODE requests, dispatching
// on whether the target looks like a channel name.
func (h *Hub) modeCommand(s *Session, m ircmsg.Message) {
	if !h.requireParams(s, m, 1) {
		return
	}
	target := m.Params[0]

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		h.channelModeCommand(s, target, m.Params[1:])
		return
	}
	h.userModeCommand(s, target, m.Params[1:])
}

func (h *Hub) channelModeCommand(s *Session, chanName string, args []string) {
	u := h.reg.User(s.nick)
	if u == nil {
		return
	}

	if len(args) == 0 {
		ch := h.reg.Channel(chanName)
		if ch == nil {
			s.messageFromServer(ErrNoSuchChannel, []string{chanName, "No such channel"})
			return
		}
		s.messageFromServer("324", []string{ch.Name, renderChannelModes(ch)})
		return
	}

	changes, roleChanges, banChanges, err := parseChannelModeArgs(args)
	if err != nil {
		s.messageFromServer(ErrUModeUnknownFlag, []string{"Unknown MODE flag"})
		return
	}

	if len(banChanges) == 0 && len(changes) == 0 && len(roleChanges) == 0 {
		h.sendBanList(s, chanName)
		return
	}

	var applied []string
	if len(changes) > 0 {
		diff, err := h.reg.SetChannelMode(u.Nick, chanName, changes)
		if err != nil {
			h.replyChannelError(s, chanName, err)
			return
		}
		applied = append(applied, diff.ModesApplied...)
	}
	for _, rc := range roleChanges {
		diff, err := h.reg.SetMemberRole(u.Nick, rc.target, chanName, rc.role, rc.add)
		if err != nil {
			h.replyChannelError(s, chanName, err)
			continue
		}
		applied = append(applied, diff.ModesApplied...)
	}
	for _, bc := range banChanges {
		var err error
		if bc.add {
			err = h.reg.Ban(u.Nick, bc.mask, chanName)
		} else {
			err = h.reg.Unban(u.Nick, bc.mask, chanName)
		}
		if err != nil {
			h.replyChannelError(s, chanName, err)
			continue
		}
		sign := "-"
		if bc.add {
			sign = "+"
		}
		applied = append(applied, sign+"b", bc.mask)
	}

	if len(applied) == 0 {
		return
	}
	modeMsg := ircmsg.Message{
		Prefix:  u.NickUhost(),
		Command: "MODE",
		Params:  append([]string{chanName}, applied...),
	}
	h.broadcastToChannels([]string{chanName}, modeMsg, "")
	s.maybeQueueMessage(modeMsg)
	h.forwardToNeighborsExcept(ircmsg.Message{
		Prefix:  u.UID,
		Command: "MODE",
		Params:  append([]string{chanName}, applied...),
	}, "")
}

type roleChange struct {
	add    bool
	role   registry.MemberRole
	target string
}

type banChange struct {
	add  bool
	mask string
}

func parseChannelModeArgs(args []string) ([]registry.ChannelModeChange, []roleChange, []banChange, error) {
	var changes []registry.ChannelModeChange
	var roles []roleChange
	var bans []banChange

	flags := args[0]
	argIdx := 1
	add := true
	for i := 0; i < len(flags); i++ {
		c := flags[i]
		switch c {
		case '+':
			add = true
		case '-':
			add = false
		case 'o', 'v':
			var target string
			if argIdx < len(args) {
				target = args[argIdx]
				argIdx++
			}
			role := registry.RoleOperator
			if c == 'v' {
				role = registry.RoleVoice
			}
			roles = append(roles, roleChange{add: add, role: role, target: target})
		case 'k':
			var arg string
			if add && argIdx < len(args) {
				arg = args[argIdx]
				argIdx++
			}
			changes = append(changes, registry.ChannelModeChange{Add: add, Mode: registry.ModeKeyed, Arg: arg})
		case 'l':
			var arg string
			if add && argIdx < len(args) {
				arg = args[argIdx]
				argIdx++
			}
			changes = append(changes, registry.ChannelModeChange{Add: add, Mode: registry.ModeLimit, Arg: arg})
		case 'i', 'p', 's', 't', 'n', 'm':
			changes = append(changes, registry.ChannelModeChange{Add: add, Mode: registry.ChannelMode(c)})
		case 'b':
			if argIdx < len(args) {
				bans = append(bans, banChange{add: add, mask: args[argIdx]})
				argIdx++
			}
		}
	}
	return changes, roles, bans, nil
}

// sendBanList replies to a bare "MODE #chan b" with the channel's ban
// mask list, grounded on the teacher's LocalUser.sendBanList.
func (h *Hub) sendBanList(s *Session, chanName string) {
	ch := h.reg.Channel(chanName)
	if ch == nil {
		s.messageFromServer(ErrNoSuchChannel, []string{chanName, "No such channel"})
		return
	}
	for mask := range ch.Banned {
		s.messageFromServer(ReplyBanList, []string{ch.Name, mask})
	}
	s.messageFromServer(ReplyEndOfBanList, []string{ch.Name, "End of channel ban list"})
}

func renderChannelModes(ch *registry.Channel) string {
	s := "+"
	for _, mode := range []registry.ChannelMode{
		registry.ModeInviteOnly, registry.ModePrivate, registry.ModeSecret,
		registry.ModeTopicLocked, registry.ModeNoExternal, registry.ModeModerated,
	} {
		if ch.HasMode(mode) {
			s += string(mode)
		}
	}
	if ch.HasMode(registry.ModeKeyed) {
		s += "k"
	}
	if ch.HasMode(registry.ModeLimit) {
		s += "l"
	}
	return s
}

func (h *Hub) userModeCommand(s *Session, target string, args []string) {
	if !registry.EqualFold(target, s.nick) {
		s.messageFromServer(ErrUsersDontMatch, []string{"Cannot change mode for other users"})
		return
	}
	if len(args) == 0 {
		u := h.reg.User(s.nick)
		if u != nil {
			s.messageFromServer("221", []string{u.ModesString()})
		}
		return
	}

	changes, err := parseUserModeArgs(args[0])
	if err != nil {
		s.messageFromServer(ErrUModeUnknownFlag, []string{"Unknown MODE flag"})
		return
	}

	diff, err := h.reg.SetUserMode(s.nick, changes)
	if err != nil || len(diff.ModesApplied) == 0 {
		return
	}
	s.maybeQueueMessage(ircmsg.Message{
		Prefix:  h.cfg.ServerName,
		Command: "MODE",
		Params:  append([]string{target}, diff.ModesApplied...),
	})
}

func parseUserModeArgs(flags string) ([]registry.UserModeChange, error) {
	var changes []registry.UserModeChange
	add := true
	for i := 0; i < len(flags); i++ {
		switch c := flags[i]; c {
		case '+':
			add = true
		case '-':
			add = false
		case 'i', 's', 'w':
			changes = append(changes, registry.UserModeChange{Add: add, Mode: registry.UserMode(c)})
		case 'o':
			if !add {
				changes = append(changes, registry.UserModeChange{Add: false, Mode: registry.ModeOperator})
			}
			// Granting +o through MODE is refused; only OPER may grant it.
		}
	}
	return changes, nil
}
