// Package registry implements the in-memory, authoritative mapping of
// nicknames, channels, and server links described by spec.md §4.2 (C2:
// User & Channel Registry).
//
// Every write is serializable: Registry holds a single mutex guarding all
// maps (one of the options named in spec.md §5), and every read that
// returns a snapshot (Names, List, Who, Whois) does so under the same
// lock so callers never observe a half-applied write.
package registry

import (
	"strings"
	"sync"
	"time"
)

// Registry is the authoritative, in-process store of federation-wide
// user/channel/server state.
type Registry struct {
	mu sync.Mutex

	users    map[string]*User       // canonical nick -> User
	accounts map[string][]byte      // canonical nick -> bcrypt password hash (registered accounts)
	channels map[string]*Channel    // canonical name -> Channel
	servers  map[string]*ServerLink // canonical server name -> ServerLink

	maxNickLength      int
	maxChannelsPerUser int
}

// New creates an empty Registry.
func New(maxNickLength, maxChannelsPerUser int) *Registry {
	return &Registry{
		users:              make(map[string]*User),
		accounts:           make(map[string][]byte),
		channels:           make(map[string]*Channel),
		servers:            make(map[string]*ServerLink),
		maxNickLength:      maxNickLength,
		maxChannelsPerUser: maxChannelsPerUser,
	}
}

// SeedAccount installs a pre-existing registered-account password hash
// for a nickname, as loaded from the persistence file (spec.md §6: "U;"
// lines). It does not create a live User.
func (r *Registry) SeedAccount(nick string, passwordHash []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[CaseFold(nick)] = passwordHash
}

// RegisterUser creates a new network-wide user. If nick has a persisted
// account, verify is called with the stored hash and must return true
// (a nil verify fails the check). A non-nil passwordHash records a new
// account for nick.
func (r *Registry) RegisterUser(nick, username, realName, host, server string, passwordHash []byte, verify func(hash []byte) bool) (*User, Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon := CaseFold(nick)
	if _, exists := r.users[canon]; exists {
		return nil, Diff{}, ErrNickInUse
	}

	if hash, hasAccount := r.accounts[canon]; hasAccount {
		if verify == nil || !verify(hash) {
			return nil, Diff{}, ErrBadPassword
		}
	}

	u := newUser(nick, username, realName, host, server, time.Now().Unix())
	if passwordHash != nil {
		u.PasswordHash = passwordHash
		u.Registered = true
		r.accounts[canon] = passwordHash
	}
	r.users[canon] = u

	return u.clone(), Diff{Kind: ChangeUserRegistered, Nick: nick}, nil
}

// RegisterRemoteUser registers a user introduced by a federation burst
// or a live UID command (spec.md §7), where the nickname claim
// timestamp and identifier are dictated by the origin server rather
// than generated locally.
func (r *Registry) RegisterRemoteUser(nick, username, realName, host, server, uid string, nickTS int64) (*User, Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon := CaseFold(nick)
	if _, exists := r.users[canon]; exists {
		return nil, Diff{}, ErrNickInUse
	}

	u := newUser(nick, username, realName, host, server, nickTS)
	u.UID = uid
	r.users[canon] = u

	return u.clone(), Diff{Kind: ChangeUserRegistered, Nick: nick}, nil
}

// SetLocalUID assigns this server's own identifier to a freshly
// registered local user. It exists because RegisterUser hands back a
// snapshot, not the live record, so the identifier generated after
// registration has to be attached in a second step.
func (r *Registry) SetLocalUID(nick, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.users[CaseFold(nick)]
	if !exists {
		return ErrNoSuchNick
	}
	u.UID = uid
	return nil
}

// RenameUser changes a user's nickname. All channels the user occupies
// are updated to key membership under the new canonical name.
func (r *Registry) RenameUser(oldNick, newNick string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldCanon := CaseFold(oldNick)
	u, exists := r.users[oldCanon]
	if !exists {
		return Diff{}, ErrNoSuchNick
	}

	newCanon := CaseFold(newNick)
	if newCanon != oldCanon {
		if _, taken := r.users[newCanon]; taken {
			return Diff{}, ErrNickInUse
		}
	}

	affected := make([]string, 0, len(u.Channels))
	for chanName := range u.Channels {
		ch := r.channels[chanName]
		if ch == nil {
			continue
		}
		member := ch.Members[oldCanon]
		delete(ch.Members, oldCanon)
		if member != nil {
			member.Nick = newNick
			ch.Members[newCanon] = member
		}
		affected = append(affected, chanName)
	}

	delete(r.users, oldCanon)
	u.Nick = newNick
	r.users[newCanon] = u

	return Diff{
		Kind:             ChangeUserRenamed,
		Nick:             newNick,
		OldNick:          oldNick,
		AffectedChannels: affected,
	}, nil
}

// DropUser removes a user entirely: from every channel (destroying any
// that become empty) and from the nick table. It returns the channels
// the user was in immediately before removal, for C4 to fan out QUITs.
func (r *Registry) DropUser(nick string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon := CaseFold(nick)
	u, exists := r.users[canon]
	if !exists {
		return Diff{}, ErrNoSuchNick
	}

	affected := make([]string, 0, len(u.Channels))
	for chanName := range u.Channels {
		ch := r.channels[chanName]
		if ch == nil {
			continue
		}
		delete(ch.Members, canon)
		affected = append(affected, chanName)
		if len(ch.Members) == 0 {
			delete(r.channels, chanName)
		}
	}

	delete(r.users, canon)

	return Diff{
		Kind:             ChangeUserDropped,
		Nick:             u.Nick,
		AffectedChannels: affected,
	}, nil
}

// JoinChannel adds nick to chanName, creating the channel (with nick as
// its first operator) if it doesn't exist.
func (r *Registry) JoinChannel(nick, chanName, key string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userCanon := CaseFold(nick)
	u, exists := r.users[userCanon]
	if !exists {
		return Diff{}, ErrNoSuchNick
	}

	chanCanon := CaseFold(chanName)
	if _, already := u.Channels[chanCanon]; already {
		return Diff{}, ErrAlreadyIn
	}

	if len(u.Channels) >= r.maxChannelsPerUser {
		return Diff{}, ErrTooManyChannels
	}

	ch, exists := r.channels[chanCanon]
	created := false
	if !exists {
		ch = newChannel(chanCanon)
		created = true
	} else {
		if ch.HasMode(ModeInviteOnly) {
			if _, invited := ch.Invited[userCanon]; !invited {
				return Diff{}, ErrInviteOnly
			}
		}
		if ch.HasMode(ModeKeyed) && ch.Key != key {
			return Diff{}, ErrBadChannelKey
		}
		for mask := range ch.Banned {
			if maskMatches(mask, u.NickUhost()) {
				return Diff{}, ErrBannedFromChan
			}
		}
		if ch.HasMode(ModeLimit) && ch.Limit > 0 && len(ch.Members) >= ch.Limit {
			return Diff{}, ErrChannelIsFull
		}
	}

	member := newMember(nick)
	if created {
		member.Roles[RoleOperator] = struct{}{}
		r.channels[chanCanon] = ch
	}
	ch.Members[userCanon] = member
	delete(ch.Invited, userCanon)
	u.Channels[chanCanon] = struct{}{}

	d := Diff{Kind: ChangeChannelJoined, Nick: nick, Channel: ch.Name}
	if created {
		d.Kind = ChangeChannelCreated
	}
	return d, nil
}

// PartChannel removes nick from chanName. The channel is destroyed if
// that was its last member.
func (r *Registry) PartChannel(nick, chanName string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userCanon := CaseFold(nick)
	chanCanon := CaseFold(chanName)

	u, exists := r.users[userCanon]
	if !exists {
		return Diff{}, ErrNoSuchNick
	}
	if _, on := u.Channels[chanCanon]; !on {
		return Diff{}, ErrNotOnChannel
	}

	ch, exists := r.channels[chanCanon]
	if !exists {
		return Diff{}, ErrNoSuchChannel
	}

	delete(ch.Members, userCanon)
	delete(u.Channels, chanCanon)

	destroyed := false
	if len(ch.Members) == 0 {
		delete(r.channels, chanCanon)
		destroyed = true
	}

	return Diff{
		Kind:             ChangeChannelParted,
		Nick:             nick,
		Channel:          ch.Name,
		ChannelDestroyed: destroyed,
	}, nil
}

// KickUser removes target from chanName on actor's behalf. actor must
// hold +o on the channel.
func (r *Registry) KickUser(actor, target, chanName string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chanCanon := CaseFold(chanName)
	ch, exists := r.channels[chanCanon]
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

	targetCanon := CaseFold(target)
	targetMember := ch.Members[targetCanon]
	if targetMember == nil {
		return Diff{}, ErrNotOnChannel
	}

	targetUser, exists := r.users[targetCanon]
	if exists {
		delete(targetUser.Channels, chanCanon)
	}
	delete(ch.Members, targetCanon)

	destroyed := false
	if len(ch.Members) == 0 {
		delete(r.channels, chanCanon)
		destroyed = true
	}

	return Diff{
		Kind:             ChangeChannelKicked,
		Nick:             targetMember.Nick,
		Channel:          ch.Name,
		ChannelDestroyed: destroyed,
	}, nil
}

// SetTopic sets a channel's topic. If +t is set, actor must hold +o.
func (r *Registry) SetTopic(actor, chanName, topic string) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chanCanon := CaseFold(chanName)
	ch, exists := r.channels[chanCanon]
	if !exists {
		return Diff{}, ErrNoSuchChannel
	}

	member := ch.Members[CaseFold(actor)]
	if member == nil {
		return Diff{}, ErrNotOnChannel
	}
	if ch.HasMode(ModeTopicLocked) && !member.HasRole(RoleOperator) {
		return Diff{}, ErrNotOperator
	}

	ch.Topic = topic

	return Diff{Kind: ChangeTopicSet, Channel: ch.Name, Topic: topic}, nil
}

// Invite adds nick to chanName's invite list. actor must hold +o if the
// channel is +i; actor need only be a member otherwise (spec is silent
// on the non-invite-only case, so the looser of the two rules applies).
func (r *Registry) Invite(actor, nick, chanName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chanCanon := CaseFold(chanName)
	ch, exists := r.channels[chanCanon]
	if !exists {
		return ErrNoSuchChannel
	}
	actorMember := ch.Members[CaseFold(actor)]
	if actorMember == nil {
		return ErrNotOnChannel
	}
	if ch.HasMode(ModeInviteOnly) && !actorMember.HasRole(RoleOperator) {
		return ErrNotOperator
	}
	if _, exists := r.users[CaseFold(nick)]; !exists {
		return ErrNoSuchNick
	}

	ch.Invited[CaseFold(nick)] = struct{}{}
	return nil
}

// IsInvited reports whether nick is on chanName's invite list.
func (r *Registry) IsInvited(nick, chanName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return false
	}
	_, invited := ch.Invited[CaseFold(nick)]
	return invited
}

// Ban adds a mask to chanName's ban list. actor must hold +o.
func (r *Registry) Ban(actor, mask, chanName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return ErrNoSuchChannel
	}
	actorMember := ch.Members[CaseFold(actor)]
	if actorMember == nil {
		return ErrNotOnChannel
	}
	if !actorMember.HasRole(RoleOperator) {
		return ErrNotOperator
	}
	ch.Banned[mask] = struct{}{}
	return nil
}

// Unban removes a mask from chanName's ban list. actor must hold +o.
func (r *Registry) Unban(actor, mask, chanName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return ErrNoSuchChannel
	}
	actorMember := ch.Members[CaseFold(actor)]
	if actorMember == nil {
		return ErrNotOnChannel
	}
	if !actorMember.HasRole(RoleOperator) {
		return ErrNotOperator
	}
	delete(ch.Banned, mask)
	return nil
}

// IsBanned reports whether uhost matches any mask on chanName's ban list.
func (r *Registry) IsBanned(chanName, uhost string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return false
	}
	for mask := range ch.Banned {
		if maskMatches(mask, uhost) {
			return true
		}
	}
	return false
}

// SetAway sets or clears a user's away message. An empty message clears
// it.
func (r *Registry) SetAway(nick, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.users[CaseFold(nick)]
	if !exists {
		return ErrNoSuchNick
	}
	u.Away = message
	return nil
}

// Names returns a snapshot of chanName's RPL_NAMREPLY-formatted member
// list.
func (r *Registry) Names(chanName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(chanName)]
	if !exists {
		return nil, ErrNoSuchChannel
	}
	return ch.NamesList(), nil
}

// List returns a snapshot of channels whose canonical name contains mask
// (a plain substring match; "" matches everything). Channels with +s or
// +p set are never returned.
func (r *Registry) List(mask string) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	maskCanon := CaseFold(mask)
	var out []*Channel
	for name, ch := range r.channels {
		if maskCanon != "" && !strings.Contains(name, maskCanon) {
			continue
		}
		if ch.HasMode(ModeSecret) || ch.HasMode(ModePrivate) {
			continue
		}
		out = append(out, ch.clone())
	}
	return out
}

// Whois returns a snapshot of the named user.
func (r *Registry) Whois(nick string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.users[CaseFold(nick)]
	if !exists {
		return nil, ErrNoSuchNick
	}
	return u.clone(), nil
}

// Who returns snapshots of every user whose nickname contains mask.
func (r *Registry) Who(mask string) []*User {
	r.mu.Lock()
	defer r.mu.Unlock()

	maskCanon := CaseFold(mask)
	var out []*User
	for canon, u := range r.users {
		if maskCanon != "" && !strings.Contains(canon, maskCanon) {
			continue
		}
		out = append(out, u.clone())
	}
	return out
}

// Channel returns a snapshot of a single channel, or nil if it doesn't
// exist.
func (r *Registry) Channel(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.channels[CaseFold(name)]
	if !exists {
		return nil
	}
	return ch.clone()
}

// User returns a snapshot of a single user, or nil if they don't exist.
func (r *Registry) User(nick string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.users[CaseFold(nick)]
	if !exists {
		return nil
	}
	return u.clone()
}

// AddServerLink records a neighbor in the federation tree.
func (r *Registry) AddServerLink(link *ServerLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[CaseFold(link.Name)] = link.clone()
}

// RemoveServerLink forgets a neighbor.
func (r *Registry) RemoveServerLink(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, CaseFold(name))
}

// ServerLink returns a snapshot of one neighbor, or nil.
func (r *Registry) ServerLink(name string) *ServerLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.servers[CaseFold(name)]
	if !exists {
		return nil
	}
	return s.clone()
}

// ServerLinks returns a snapshot of every known neighbor.
func (r *Registry) ServerLinks() []*ServerLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ServerLink, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s.clone())
	}
	return out
}

// UsersOnServer returns every live user whose Server field matches name,
// used when a neighbor departs (spec.md §4.4 netsplit handling).
func (r *Registry) UsersOnServer(name string) []*User {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*User
	for _, u := range r.users {
		if strings.EqualFold(u.Server, name) {
			out = append(out, u.clone())
		}
	}
	return out
}

// maskMatches implements simple glob matching (* and ?) for ban masks
// against a nick!user@host string.
func maskMatches(mask, uhost string) bool {
	return globMatch(strings.ToLower(mask), strings.ToLower(uhost))
}

func globMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	if pattern[0] == '*' {
		if globMatch(pattern[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatch(pattern[1:], s[i+1:]) {
				return true
			}
		}
		return false
	}
	if s == "" {
		return false
	}
	if pattern[0] == '?' || pattern[0] == s[0] {
		return globMatch(pattern[1:], s[1:])
	}
	return false
}
