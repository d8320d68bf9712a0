package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(30, 20)
}

func TestRegisterUserRejectsDuplicateNick(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "host1", "local", nil, nil)
	require.NoError(t, err)

	_, _, err = r.RegisterUser("Alice", "alice2", "Alice Two", "host2", "local", nil, nil)
	require.ErrorIs(t, err, ErrNickInUse)
}

func TestRegisterUserChecksAccountPassword(t *testing.T) {
	r := newTestRegistry()
	r.SeedAccount("alice", []byte("hash"))

	_, _, err := r.RegisterUser("alice", "alice", "Alice", "host1", "local", nil, func(hash []byte) bool {
		return string(hash) == "wrong"
	})
	require.ErrorIs(t, err, ErrBadPassword)

	_, _, err = r.RegisterUser("alice", "alice", "Alice", "host1", "local", nil, func(hash []byte) bool {
		return string(hash) == "hash"
	})
	require.NoError(t, err)
}

func TestJoinChannelCreatesAndMakesFirstMemberOperator(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "host1", "local", nil, nil)
	require.NoError(t, err)

	diff, err := r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)
	assert.Equal(t, ChangeChannelCreated, diff.Kind)

	ch := r.Channel("#go")
	require.NotNil(t, ch)
	require.Contains(t, ch.Members, "alice")
	assert.True(t, ch.Members["alice"].HasRole(RoleOperator))
}

func TestJoinChannelEnforcesKeyAndInvite(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, _, err = r.RegisterUser("bob", "bob", "Bob", "h", "local", nil, nil)
	require.NoError(t, err)

	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)

	_, err = r.SetChannelMode("alice", "#go", []ChannelModeChange{{Add: true, Mode: ModeKeyed, Arg: "secret"}})
	require.NoError(t, err)

	_, err = r.JoinChannel("bob", "#go", "wrong")
	assert.ErrorIs(t, err, ErrBadChannelKey)

	_, err = r.JoinChannel("bob", "#go", "secret")
	require.NoError(t, err)

	_, err = r.PartChannel("bob", "#go")
	require.NoError(t, err)

	_, err = r.SetChannelMode("alice", "#go", []ChannelModeChange{
		{Add: true, Mode: ModeInviteOnly},
	})
	require.NoError(t, err)

	_, err = r.JoinChannel("bob", "#go", "secret")
	assert.ErrorIs(t, err, ErrInviteOnly)

	require.NoError(t, r.Invite("alice", "bob", "#go"))
	_, err = r.JoinChannel("bob", "#go", "secret")
	require.NoError(t, err)
}

func TestPartChannelDestroysEmptyChannel(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)

	diff, err := r.PartChannel("alice", "#go")
	require.NoError(t, err)
	assert.True(t, diff.ChannelDestroyed)
	assert.Nil(t, r.Channel("#go"))
}

func TestDropUserRemovesFromAllChannels(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#rust", "")
	require.NoError(t, err)

	diff, err := r.DropUser("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"#go", "#rust"}, diff.AffectedChannels)
	assert.Nil(t, r.Channel("#go"))
	assert.Nil(t, r.Channel("#rust"))
	assert.Nil(t, r.User("alice"))
}

func TestRenameUserKeepsChannelMembershipConsistent(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)

	_, err = r.RenameUser("alice", "alicia")
	require.NoError(t, err)

	ch := r.Channel("#go")
	require.NotNil(t, ch)
	assert.NotContains(t, ch.Members, "alice")
	require.Contains(t, ch.Members, "alicia")
	assert.Equal(t, "alicia", ch.Members["alicia"].Nick)

	names, err := r.Names("#go")
	require.NoError(t, err)
	assert.Contains(t, names, "@alicia")
}

func TestKickUserRequiresOperator(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, _, err = r.RegisterUser("bob", "bob", "Bob", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)
	_, err = r.JoinChannel("bob", "#go", "")
	require.NoError(t, err)

	_, err = r.KickUser("bob", "alice", "#go")
	assert.ErrorIs(t, err, ErrNotOperator)

	diff, err := r.KickUser("alice", "bob", "#go")
	require.NoError(t, err)
	assert.Equal(t, "bob", diff.Nick)

	u := r.User("bob")
	require.NotNil(t, u)
	assert.NotContains(t, u.Channels, "#go")
}

func TestBanPreventsRejoin(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, _, err = r.RegisterUser("bob", "bob", "Bob", "bobhost", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)
	_, err = r.JoinChannel("bob", "#go", "")
	require.NoError(t, err)
	_, err = r.PartChannel("bob", "#go")
	require.NoError(t, err)

	require.NoError(t, r.Ban("alice", "*!*@bobhost", "#go"))
	_, err = r.JoinChannel("bob", "#go", "")
	assert.ErrorIs(t, err, ErrBannedFromChan)

	require.NoError(t, r.Unban("alice", "*!*@bobhost", "#go"))
	_, err = r.JoinChannel("bob", "#go", "")
	require.NoError(t, err)
}

func TestSetTopicRespectsTopicLock(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, _, err = r.RegisterUser("bob", "bob", "Bob", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)
	_, err = r.JoinChannel("bob", "#go", "")
	require.NoError(t, err)

	_, err = r.SetChannelMode("alice", "#go", []ChannelModeChange{{Add: true, Mode: ModeTopicLocked}})
	require.NoError(t, err)

	_, err = r.SetTopic("bob", "#go", "hello")
	assert.ErrorIs(t, err, ErrNotOperator)

	diff, err := r.SetTopic("alice", "#go", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", diff.Topic)
}

func TestChannelLimitEnforced(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)
	_, _, err = r.RegisterUser("bob", "bob", "Bob", "h", "local", nil, nil)
	require.NoError(t, err)
	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)

	_, err = r.SetChannelMode("alice", "#go", []ChannelModeChange{{Add: true, Mode: ModeLimit, Arg: "1"}})
	require.NoError(t, err)

	_, err = r.JoinChannel("bob", "#go", "")
	assert.ErrorIs(t, err, ErrChannelIsFull)
}

func TestTooManyChannelsForUser(t *testing.T) {
	r := New(30, 1)
	_, _, err := r.RegisterUser("alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)

	_, err = r.JoinChannel("alice", "#go", "")
	require.NoError(t, err)

	_, err = r.JoinChannel("alice", "#rust", "")
	assert.ErrorIs(t, err, ErrTooManyChannels)
}

func TestRegisterRemoteUserPreservesWireIdentity(t *testing.T) {
	r := newTestRegistry()
	u, _, err := r.RegisterRemoteUser("alice", "alice", "Alice", "host1", "leaf.test", "1AAAAAA", 12345)
	require.NoError(t, err)
	assert.Equal(t, "1AAAAAA", u.UID)
	assert.EqualValues(t, 12345, u.NickTS)

	stored := r.User("alice")
	require.NotNil(t, stored)
	assert.Equal(t, "1AAAAAA", stored.UID)
	assert.EqualValues(t, 12345, stored.NickTS)

	_, _, err = r.RegisterRemoteUser("alice", "alice2", "Alice Two", "host2", "leaf.test", "1AAAAAB", 12346)
	assert.ErrorIs(t, err, ErrNickInUse)
}

func TestSetLocalUIDPersistsOnTheLiveRecord(t *testing.T) {
	r := newTestRegistry()
	u, _, err := r.RegisterUser("bob", "bob", "Bob", "host1", "local", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, u.UID)

	require.NoError(t, r.SetLocalUID("bob", "0AAAAAA"))

	stored := r.User("bob")
	require.NotNil(t, stored)
	assert.Equal(t, "0AAAAAA", stored.UID)

	assert.ErrorIs(t, r.SetLocalUID("nobody", "0AAAAAB"), ErrNoSuchNick)
}

func TestCaseFoldingTreatsNicksAsEquivalent(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.RegisterUser("Alice", "alice", "Alice", "h", "local", nil, nil)
	require.NoError(t, err)

	_, err = r.RenameUser("alice", "ALICE")
	require.NoError(t, err)

	u := r.User("alice")
	require.NotNil(t, u)
	assert.Equal(t, "ALICE", u.Nick)
}
