package registry

import "fmt"

// UserMode is a single-letter user mode flag.
type UserMode byte

// User modes defined by spec.md §3.
const (
	ModeInvisible     UserMode = 'i'
	ModeOperator      UserMode = 'o'
	ModeServerNotices UserMode = 's'
	ModeWallops       UserMode = 'w'
)

// User is the authoritative record for one network-wide nickname. It may
// be local to this server or owned by a peer; Server names which.
type User struct {
	Nick     string
	Username string
	RealName string
	Host     string

	// Server is the name of the server holding this user's live session.
	Server string

	// UID is a per-registration-unique identifier, stable across NICK
	// changes. See SPEC_FULL.md §3 for why this exists alongside Nick.
	UID string

	// PasswordHash is the bcrypt hash of the user's registered-account
	// password. Empty for users that never registered an account.
	PasswordHash []byte
	Registered   bool

	Modes map[UserMode]struct{}

	Away string

	// NickTS is the Unix time (seconds) this nickname was claimed. Used to
	// break collisions during a server burst (spec §7: earlier wins).
	NickTS int64

	// Channels this user currently occupies, canonicalized name -> struct{}.
	// The registry keeps this in lock-step with each Channel's Members map.
	Channels map[string]struct{}
}

func newUser(nick, username, realName, host, server string, nickTS int64) *User {
	return &User{
		Nick:     nick,
		Username: username,
		RealName: realName,
		Host:     host,
		Server:   server,
		Modes:    make(map[UserMode]struct{}),
		Channels: make(map[string]struct{}),
		NickTS:   nickTS,
	}
}

func (u *User) clone() *User {
	cp := *u
	cp.Modes = make(map[UserMode]struct{}, len(u.Modes))
	for m := range u.Modes {
		cp.Modes[m] = struct{}{}
	}
	cp.Channels = make(map[string]struct{}, len(u.Channels))
	for c := range u.Channels {
		cp.Channels[c] = struct{}{}
	}
	return &cp
}

// NickUhost returns the nick!user@host form used as a message prefix.
func (u *User) NickUhost() string {
	return fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host)
}

// HasMode reports whether the user has the given mode set.
func (u *User) HasMode(m UserMode) bool {
	_, ok := u.Modes[m]
	return ok
}

// IsOperator reports whether the user has +o.
func (u *User) IsOperator() bool {
	return u.HasMode(ModeOperator)
}

// ModesString renders the user's modes as "+iow" style.
func (u *User) ModesString() string {
	s := "+"
	for _, m := range []UserMode{ModeInvisible, ModeOperator, ModeServerNotices, ModeWallops} {
		if u.HasMode(m) {
			s += string(m)
		}
	}
	return s
}
