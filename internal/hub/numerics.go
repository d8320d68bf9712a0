package hub

// Numeric reply codes used in replies to clients, per spec.md §4.3 and
// the RFC 1459/2812 numerics it supplements.
const (
	ReplyWelcome       = "001"
	ReplyYourHost      = "002"
	ReplyCreated       = "003"
	ReplyMyInfo        = "004"
	ReplyLUserClient   = "251"
	ReplyLUserOp       = "252"
	ReplyLUserUnknown  = "253"
	ReplyLUserChannels = "254"
	ReplyLUserMe       = "255"
	ReplyAway          = "301"
	ReplyUnaway        = "305"
	ReplyNowAway       = "306"
	ReplyWhoisUser     = "311"
	ReplyWhoisServer   = "312"
	ReplyWhoisOperator = "313"
	ReplyEndOfWho      = "315"
	ReplyWhoisIdle     = "317"
	ReplyEndOfWhois    = "318"
	ReplyWhoisChannels = "319"
	ReplyNoTopic       = "331"
	ReplyTopic         = "332"
	ReplyInviting      = "341"
	ReplyWhoReply      = "352"
	ReplyNameReply     = "353"
	ReplyLinks         = "364"
	ReplyEndOfLinks    = "365"
	ReplyEndOfNames    = "366"
	ReplyBanList       = "367"
	ReplyEndOfBanList  = "368"
	ReplyMotd          = "372"
	ReplyMotdStart     = "375"
	ReplyEndOfMotd     = "376"
	ReplyYoureOper     = "381"

	ErrNoSuchNick        = "401"
	ErrNoSuchServer      = "402"
	ErrNoSuchChannel     = "403"
	ErrCannotSendToChan  = "404"
	ErrTooManyChannels   = "405"
	ErrUnknownCommand    = "421"
	ErrNoMotd            = "422"
	ErrNoNicknameGiven   = "431"
	ErrErroneousNick     = "432"
	ErrNicknameInUse     = "433"
	ErrUserNotInChannel  = "441"
	ErrNotOnChannel      = "442"
	ErrUserOnChannel     = "443"
	ErrNotRegistered     = "451"
	ErrNeedMoreParams    = "461"
	ErrAlreadyRegistered = "462"
	ErrPasswordMismatch  = "464"
	ErrYoureBannedCreep  = "465"
	ErrKeySet            = "467"
	ErrChannelIsFull     = "471"
	ErrInviteOnlyChan    = "473"
	ErrBannedFromChan    = "474"
	ErrBadChannelKey     = "475"
	ErrNoPrivileges      = "481"
	ErrChanOpPrivsNeeded = "482"
	ErrUModeUnknownFlag  = "501"
	ErrUsersDontMatch    = "502"
)
