package registry

// ChannelMode is a single-letter channel mode flag.
type ChannelMode byte

// Channel modes defined by spec.md §3.
const (
	ModeInviteOnly  ChannelMode = 'i'
	ModePrivate     ChannelMode = 'p'
	ModeSecret      ChannelMode = 's'
	ModeTopicLocked ChannelMode = 't'
	ModeNoExternal  ChannelMode = 'n'
	ModeModerated   ChannelMode = 'm'
	ModeKeyed       ChannelMode = 'k'
	ModeLimit       ChannelMode = 'l'
)

// MemberRole is a single-letter per-member channel flag.
type MemberRole byte

// Member roles defined by spec.md §3.
const (
	RoleOperator MemberRole = 'o'
	RoleVoice    MemberRole = 'v'
)

// Member is one user's membership record within a Channel.
type Member struct {
	Nick  string
	Roles map[MemberRole]struct{}
}

func newMember(nick string) *Member {
	return &Member{Nick: nick, Roles: make(map[MemberRole]struct{})}
}

// HasRole reports whether the member holds the given role.
func (m *Member) HasRole(r MemberRole) bool {
	_, ok := m.Roles[r]
	return ok
}

// Channel holds everything the registry knows about one channel. Never
// exists with zero Members; the registry destroys it atomically with the
// last departure.
type Channel struct {
	Name  string
	Topic string

	// Members maps canonicalized nick -> Member. O(1) lookup as required
	// by spec §3.
	Members map[string]*Member

	Modes map[ChannelMode]struct{}
	Key   string
	Limit int

	// Invited holds canonicalized nicks; Banned holds masks as given.
	Invited map[string]struct{}
	Banned  map[string]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[string]*Member),
		Modes:   make(map[ChannelMode]struct{}),
		Invited: make(map[string]struct{}),
		Banned:  make(map[string]struct{}),
	}
}

func (c *Channel) clone() *Channel {
	cp := *c
	cp.Members = make(map[string]*Member, len(c.Members))
	for k, m := range c.Members {
		mm := *m
		mm.Roles = make(map[MemberRole]struct{}, len(m.Roles))
		for r := range m.Roles {
			mm.Roles[r] = struct{}{}
		}
		cp.Members[k] = &mm
	}
	cp.Modes = make(map[ChannelMode]struct{}, len(c.Modes))
	for k := range c.Modes {
		cp.Modes[k] = struct{}{}
	}
	cp.Invited = make(map[string]struct{}, len(c.Invited))
	for k := range c.Invited {
		cp.Invited[k] = struct{}{}
	}
	cp.Banned = make(map[string]struct{}, len(c.Banned))
	for k := range c.Banned {
		cp.Banned[k] = struct{}{}
	}
	return &cp
}

// HasMode reports whether the channel has the given mode set.
func (c *Channel) HasMode(m ChannelMode) bool {
	_, ok := c.Modes[m]
	return ok
}

// NamesList renders the member list the way RPL_NAMREPLY wants it: "@nick"
// for ops, "+nick" for voice, bare nick otherwise.
func (c *Channel) NamesList() []string {
	names := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		prefix := ""
		switch {
		case m.HasRole(RoleOperator):
			prefix = "@"
		case m.HasRole(RoleVoice):
			prefix = "+"
		}
		names = append(names, prefix+m.Nick)
	}
	return names
}
