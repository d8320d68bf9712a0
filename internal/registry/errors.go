package registry

import "github.com/pkg/errors"

// Result errors returned by registry write operations. Callers in
// internal/hub translate these into numeric replies (spec.md §7: "per
// command errors surface as numeric replies... never terminate the
// session").
var (
	ErrNickInUse       = errors.New("registry: nickname in use")
	ErrBadPassword     = errors.New("registry: password mismatch")
	ErrNoSuchNick      = errors.New("registry: no such nick")
	ErrNoSuchChannel   = errors.New("registry: no such channel")
	ErrNotOnChannel    = errors.New("registry: not on channel")
	ErrAlreadyIn       = errors.New("registry: already on channel")
	ErrInviteOnly      = errors.New("registry: channel is invite-only")
	ErrBadChannelKey   = errors.New("registry: bad channel key")
	ErrBannedFromChan  = errors.New("registry: banned from channel")
	ErrChannelIsFull   = errors.New("registry: channel is full")
	ErrNotOperator     = errors.New("registry: not a channel operator")
	ErrNotServerOper   = errors.New("registry: not a network operator")
	ErrNoSuchServer    = errors.New("registry: no such server")
	ErrTooManyChannels = errors.New("registry: too many channels for user")
)
