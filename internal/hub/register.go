package hub

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
)

// dispatchPreRegistration handles every command a connection may send
// before it becomes either a registered user or a server link, grounded
// on the teacher's LocalClient.handleMessage.
func (h *Hub) dispatchPreRegistration(s *Session, m ircmsg.Message) {
	if m.Prefix != "" {
		h.disconnect(s, "No prefix permitted")
		return
	}

	switch m.Command {
	case "CAP", "NOTICE":
		return
	case "NICK":
		h.preNickCommand(s, m)
	case "USER":
		h.preUserCommand(s, m)
	case "PASS":
		h.passCommand(s, m)
	case "CAPAB":
		h.capabCommand(s, m)
	case "SERVER":
		h.serverCommand(s, m)
	case "SVINFO":
		h.svinfoCommand(s, m)
	case "ERROR":
		h.disconnect(s, "Bye")
	case "PING":
		s.maybeQueueMessage(ircmsg.Message{Command: "PONG", Params: []string{h.cfg.ServerName}})
	default:
		s.messageFromServer(ErrNotRegistered, []string{"You have not registered"})
	}
}

func (h *Hub) preNickCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.messageFromServer(ErrNoNicknameGiven, []string{"No nickname given"})
		return
	}
	nick := m.Params[0]
	if len(nick) > h.cfg.MaxNickLength {
		nick = nick[:h.cfg.MaxNickLength]
	}
	if !registry.IsValidNick(nick, h.cfg.MaxNickLength) {
		s.messageFromServer(ErrErroneousNick, []string{nick, "Erroneous nickname"})
		return
	}
	if h.reg.User(nick) != nil {
		s.messageFromServer(ErrNicknameInUse, []string{nick, "Nickname is already in use"})
		return
	}

	s.preNick = nick
	if s.preUser != "" {
		h.registerLocalUser(s)
	}
}

func (h *Hub) preUserCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) != 4 {
		s.messageFromServer(ErrNeedMoreParams, []string{"USER", "Not enough parameters"})
		return
	}
	username := m.Params[0]
	if len(username) > h.cfg.MaxNickLength {
		username = username[:h.cfg.MaxNickLength]
	}
	if !isValidUsername(username) {
		s.maybeQueueMessage(ircmsg.Message{Command: "ERROR", Params: []string{"Invalid username"}})
		h.disconnect(s, "Invalid username")
		return
	}
	s.preUser = username
	s.preRealName = m.Params[3]

	if s.preNick != "" {
		h.registerLocalUser(s)
	}
}

func isValidUsername(u string) bool {
	if u == "" {
		return false
	}
	for i := 0; i < len(u); i++ {
		c := u[i]
		if c <= ' ' || c == '@' {
			return false
		}
	}
	return true
}

// registerLocalUser finishes client registration, grounded on the
// teacher's LocalClient.registerUser: re-check nick availability (it
// wasn't reserved during the NICK/USER exchange), insert into the
// registry, and send the RFC welcome burst.
func (h *Hub) registerLocalUser(s *Session) {
	if h.reg.User(s.preNick) != nil {
		s.messageFromServer(ErrNicknameInUse, []string{s.preNick, "Nickname is already in use"})
		return
	}

	host := s.hostname
	if host == "" {
		host = remoteHost(s.conn.RemoteAddr().String())
	}

	u, _, err := h.reg.RegisterUser(s.preNick, s.preUser, s.preRealName, host, h.cfg.ServerName, nil, nil)
	if err != nil {
		s.messageFromServer(ErrNicknameInUse, []string{s.preNick, "Nickname is already in use"})
		return
	}
	u.UID = h.nextUID()
	_ = h.reg.SetLocalUID(u.Nick, u.UID)

	s.nick = registry.CaseFold(u.Nick)
	s.phase = phaseRegisteredUser
	s.hostname = host
	h.localUsers[s.nick] = s

	s.messageFromServer(ReplyWelcome, []string{
		fmt.Sprintf("Welcome to the federation, %s", u.NickUhost()),
	})
	s.messageFromServer(ReplyYourHost, []string{
		fmt.Sprintf("Your host is %s, running fedircd", h.cfg.ServerName),
	})
	s.messageFromServer(ReplyCreated, []string{
		fmt.Sprintf("This server was started %s", h.started.Format(time.RFC1123)),
	})
	s.messageFromServer(ReplyMyInfo, []string{h.cfg.ServerName, "fedircd", "iosw", "intpklbs"})

	h.sendLusers(s)
	h.sendMotd(s)

	h.metrics.LocalSessions.Inc()
	h.forwardUIDToNeighbors(u, "")
}

func remoteHost(addr string) string {
	if idx := strings.LastIndexByte(addr, ':'); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func (h *Hub) sendLusers(s *Session) {
	s.messageFromServer(ReplyLUserClient, []string{fmt.Sprintf("There are %d users on the network", len(h.reg.Who("")))})
	s.messageFromServer(ReplyLUserMe, []string{fmt.Sprintf("I have %d clients and %d servers", len(h.localUsers), len(h.localServers))})
}

func (h *Hub) sendMotd(s *Session) {
	s.messageFromServer(ErrNoMotd, []string{"MOTD File is missing"})
}

// passCommand, capabCommand, serverCommand, and svinfoCommand implement
// the TS6-style server link handshake, grounded on the teacher's
// LocalClient.passCommand/capabCommand/serverCommand/svinfoCommand.
func (h *Hub) passCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 4 {
		s.messageFromServer(ErrNeedMoreParams, []string{"PASS", "Not enough parameters"})
		return
	}
	if s.gotPASS {
		h.disconnect(s, "Double PASS")
		return
	}
	if m.Params[1] != "TS" {
		h.disconnect(s, "Unexpected PASS format: TS")
		return
	}
	tsVersion, err := strconv.ParseInt(m.Params[2], 10, 64)
	if err != nil || tsVersion != 6 {
		h.disconnect(s, "Unsupported TS version")
		return
	}
	if !isValidSID(m.Params[3]) {
		h.disconnect(s, "Malformed SID")
		return
	}

	s.preServerPass = m.Params[0]
	s.preServerSID = m.Params[3]
	s.gotPASS = true
}

func isValidSID(sid string) bool {
	if len(sid) != 3 {
		return false
	}
	if sid[0] < '0' || sid[0] > '9' {
		return false
	}
	for i := 1; i < 3; i++ {
		c := sid[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func (h *Hub) capabCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.messageFromServer(ErrNeedMoreParams, []string{"CAPAB", "Not enough parameters"})
		return
	}
	if !s.gotPASS {
		h.disconnect(s, "PASS first")
		return
	}
	if s.gotCAPAB {
		h.disconnect(s, "Double CAPAB")
		return
	}
	for _, capab := range strings.Fields(m.Params[0]) {
		s.preCapabs[strings.ToUpper(capab)] = struct{}{}
	}
	if _, ok := s.preCapabs["QS"]; !ok {
		h.disconnect(s, "Missing QS")
		return
	}
	if _, ok := s.preCapabs["ENCAP"]; !ok {
		h.disconnect(s, "Missing ENCAP")
		return
	}
	s.gotCAPAB = true
}

func (h *Hub) serverCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) != 3 {
		s.messageFromServer(ErrNeedMoreParams, []string{"SERVER", "Not enough parameters"})
		return
	}
	if !s.gotCAPAB {
		h.disconnect(s, "CAPAB first")
		return
	}
	if s.gotSERVER {
		h.disconnect(s, "Double SERVER")
		return
	}

	serverName := m.Params[0]
	link, known := h.links[registry.CaseFold(serverName)]
	isMain := registry.EqualFold(serverName, h.cfg.MainServerName)
	if !known && !isMain {
		h.disconnect(s, "I don't know you")
		return
	}
	expectedPass := link.Password

	if expectedPass != "" && expectedPass != s.preServerPass {
		h.disconnect(s, "Bad password")
		return
	}
	if m.Params[1] != "1" {
		h.disconnect(s, "Bad hopcount")
		return
	}
	if _, already := h.localServers[registry.CaseFold(serverName)]; already {
		h.disconnect(s, "I'm already linked to you")
		return
	}

	s.preServerName = serverName
	s.preServerDesc = m.Params[2]
	s.gotSERVER = true

	if !s.sentSERVER {
		h.sendServerIntro(s, expectedPass)
		return
	}
	h.sendSVINFO(s)
}

func (h *Hub) sendServerIntro(s *Session, pass string) {
	if pass == "" {
		pass = "*"
	}
	s.maybeQueueMessage(ircmsg.Message{Command: "PASS", Params: []string{pass, "TS", "6", h.mySID()}})
	s.maybeQueueMessage(ircmsg.Message{Command: "CAPAB", Params: []string{"QS ENCAP"}})
	s.maybeQueueMessage(ircmsg.Message{Command: "SERVER", Params: []string{h.cfg.ServerName, "1", "fedircd"}})
	s.sentSERVER = true
}

func (h *Hub) sendSVINFO(s *Session) {
	s.maybeQueueMessage(ircmsg.Message{
		Command: "SVINFO",
		Params:  []string{"6", "6", "0", strconv.FormatInt(time.Now().Unix(), 10)},
	})
	s.sentSVINFO = true
}

func (h *Hub) svinfoCommand(s *Session, m ircmsg.Message) {
	if len(m.Params) < 4 {
		s.messageFromServer(ErrNeedMoreParams, []string{"SVINFO", "Not enough parameters"})
		return
	}
	if !s.gotSERVER || !s.sentSERVER {
		h.disconnect(s, "SERVER first")
		return
	}
	if m.Params[0] != "6" || m.Params[1] != "6" || m.Params[2] != "0" {
		h.disconnect(s, "Unsupported TS version")
		return
	}
	theirEpoch, err := strconv.ParseInt(m.Params[3], 10, 64)
	if err != nil {
		h.disconnect(s, "Malformed time")
		return
	}
	delta := time.Now().Unix() - theirEpoch
	if delta < 0 {
		delta = -delta
	}
	if delta > 60 {
		h.disconnect(s, "Time insanity")
		return
	}
	if !s.sentSVINFO {
		h.sendSVINFO(s)
	}
	h.registerServerLink(s)
}

// mySID returns this server's three character TS6-style identifier,
// derived deterministically from its configured name so it never needs
// its own config field.
func (h *Hub) mySID() string {
	sum := 0
	for i := 0; i < len(h.cfg.ServerName); i++ {
		sum = sum*31 + int(h.cfg.ServerName[i])
	}
	if sum < 0 {
		sum = -sum
	}
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return string([]byte{
		byte('0' + sum%10),
		alphabet[(sum/10)%36],
		alphabet[(sum/360)%36],
	})
}

// nextUID generates this server's next TS6-style user identifier:
// our SID followed by a zero-padded sequence number, unique for the
// life of the process.
func (h *Hub) nextUID() string {
	n := atomic.AddUint64(&h.nextUserSeq, 1)
	return fmt.Sprintf("%s%06d", h.mySID(), n%1000000)
}
