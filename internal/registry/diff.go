package registry

// Diff describes precisely what a write operation changed, so that
// internal/hub's federation routing can replicate it without re-deriving
// the change (spec.md §4.2: "return the precise diff so that C4 can
// replicate it").
type Diff struct {
	Kind ChangeKind

	Nick    string
	OldNick string
	Channel string

	// AffectedChannels lists every channel a DropUser touched, so callers
	// can fan out one QUIT per channel membership.
	AffectedChannels []string

	// ModesApplied is the set of mode changes SetMode actually made, in
	// application order, as +/-flag[:arg] tokens (e.g. "+o:bob", "-k").
	ModesApplied []string

	Topic string

	// ChannelDestroyed is true if this operation emptied and removed the
	// channel (spec §3: "empty channels are destroyed atomically with the
	// last departure").
	ChannelDestroyed bool
}

// ChangeKind identifies which registry operation produced a Diff.
type ChangeKind int

// Change kinds.
const (
	ChangeUserRegistered ChangeKind = iota
	ChangeUserRenamed
	ChangeUserDropped
	ChangeChannelJoined
	ChangeChannelParted
	ChangeChannelKicked
	ChangeModeSet
	ChangeTopicSet
	ChangeChannelCreated
)
