package registry

// ChannelModeChange is one +/-flag[:arg] token from a MODE command
// targeting a channel.
type ChannelModeChange struct {
	Add  bool
	Mode ChannelMode
	// Arg is the mode's argument, if any: a nick for +o/+v, a mask for
	// +b, the key for +k, the limit for +l.
	Arg string
}

// UserModeChange is one +/-flag token from a MODE command targeting a
// user.
type UserModeChange struct {
	Add  bool
	Mode UserMode
}

// SetChannelMode applies a batch of mode changes to a channel. actor must
// hold +o, except for the self-targeting cases handled by the hub layer
// (there are none for channel modes). Returns only the changes that
// actually altered state, in application order.
func (r *Registry) SetChannelMode(actor, chanName string, changes []ChannelModeChange) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return Diff{}, ErrNoSuchChannel
	}

	actorMember := ch.Members[CaseFold(actor)]
	if actorMember == nil {
		return Diff{}, ErrNotOnChannel
	}
	if !actorMember.HasRole(RoleOperator) {
		return Diff{}, ErrNotOperator
	}

	applied := make([]string, 0, len(changes))
	for _, c := range changes {
		switch c.Mode {
		case ModeInviteOnly, ModePrivate, ModeSecret, ModeTopicLocked, ModeNoExternal, ModeModerated:
			if c.Add {
				if _, already := ch.Modes[c.Mode]; already {
					continue
				}
				ch.Modes[c.Mode] = struct{}{}
			} else {
				if _, set := ch.Modes[c.Mode]; !set {
					continue
				}
				delete(ch.Modes, c.Mode)
			}
		case ModeKeyed:
			_, set := ch.Modes[ModeKeyed]
			if c.Add {
				if set && ch.Key == c.Arg {
					continue
				}
				ch.Modes[ModeKeyed] = struct{}{}
				ch.Key = c.Arg
			} else {
				if !set {
					continue
				}
				delete(ch.Modes, ModeKeyed)
				ch.Key = ""
			}
		case ModeLimit:
			if c.Add {
				ch.Modes[ModeLimit] = struct{}{}
				limit := 0
				for _, digit := range c.Arg {
					if digit < '0' || digit > '9' {
						limit = 0
						break
					}
					limit = limit*10 + int(digit-'0')
				}
				ch.Limit = limit
			} else {
				if _, set := ch.Modes[ModeLimit]; !set {
					continue
				}
				delete(ch.Modes, ModeLimit)
				ch.Limit = 0
			}
		default:
			continue
		}

		applied = append(applied, modeToken(c.Add, byte(c.Mode), c.Arg))
	}

	return Diff{Kind: ChangeModeSet, Channel: ch.Name, ModesApplied: applied}, nil
}

// SetMemberRole grants or revokes +o/+v for one channel member. actor
// must hold +o.
func (r *Registry) SetMemberRole(actor, target, chanName string, role MemberRole, add bool) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return Diff{}, ErrNoSuchChannel
	}
	actorMember := ch.Members[CaseFold(actor)]
	if actorMember == nil {
		return Diff{}, ErrNotOnChannel
	}
	if !actorMember.HasRole(RoleOperator) {
		return Diff{}, ErrNotOperator
	}
	targetMember := ch.Members[CaseFold(target)]
	if targetMember == nil {
		return Diff{}, ErrNotOnChannel
	}

	if add {
		targetMember.Roles[role] = struct{}{}
	} else {
		delete(targetMember.Roles, role)
	}

	return Diff{
		Kind:         ChangeModeSet,
		Channel:      ch.Name,
		ModesApplied: []string{modeToken(add, byte(role), target)},
	}, nil
}

// SetUserMode applies a batch of mode changes to a user's own modes.
// The hub layer is responsible for verifying actor == target except for
// ModeOperator, which it grants only after out-of-band OPER credential
// verification.
func (r *Registry) SetUserMode(nick string, changes []UserModeChange) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[CaseFold(nick)]
	if !exists {
		return Diff{}, ErrNoSuchNick
	}

	applied := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.Add {
			if _, already := u.Modes[c.Mode]; already {
				continue
			}
			u.Modes[c.Mode] = struct{}{}
		} else {
			if _, set := u.Modes[c.Mode]; !set {
				continue
			}
			delete(u.Modes, c.Mode)
		}
		applied = append(applied, modeToken(c.Add, byte(c.Mode), ""))
	}

	return Diff{Kind: ChangeModeSet, Nick: u.Nick, ModesApplied: applied}, nil
}

func modeToken(add bool, mode byte, arg string) string {
	sign := byte('+')
	if !add {
		sign = '-'
	}
	if arg == "" {
		return string([]byte{sign, mode})
	}
	return string([]byte{sign, mode}) + ":" + arg
}
