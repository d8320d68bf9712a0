package hub

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corvidnet/fedircd/internal/ircmsg"
)

// writeQueueSize bounds how many outbound messages a session's write
// loop will buffer before the session is considered stuck and killed,
// mirroring the teacher's 32768-deep WriteChan.
const writeQueueSize = 32768

// sessionPhase tracks where an unregistered connection is in either the
// client registration flow or the server-link handshake (spec.md §4.3).
type sessionPhase int

const (
	phaseUnregistered sessionPhase = iota
	phaseRegisteredUser
	phaseRegisteredServer
)

// Session is one local transport connection: a client before and after
// registration, or a server link before and after handshake. Only the
// hub's event loop goroutine reads or writes its non-channel fields;
// readLoop/writeLoop only ever touch conn and writeChan.
type Session struct {
	id   uint64
	conn *conn
	hub  *Hub
	log  *logrus.Entry

	writeChan         chan ircmsg.Message
	sendQueueExceeded bool

	connectedAt time.Time
	hostname    string

	phase sessionPhase

	// User registration state.
	preNick     string
	preUser     string
	preRealName string
	nick        string // canonical nick, set once registered

	// Server handshake state.
	preServerPass string
	preServerSID  string
	preServerName string
	preServerDesc string
	preCapabs     map[string]struct{}
	gotPASS       bool
	gotCAPAB      bool
	gotSERVER     bool
	sentSERVER    bool
	sentSVINFO    bool

	serverName string // canonical server name, set once a server link

	// bursting/gotPING/gotPONG apply only once phase == phaseRegisteredServer.
	bursting bool
	gotPING  bool
	gotPONG  bool

	// lastActivity is updated on every inbound message, for any phase.
	lastActivity time.Time

	closeOnce bool
}

func newSession(id uint64, rawConn net.Conn, h *Hub) *Session {
	log := h.log.WithField("session", id)
	return &Session{
		id:          id,
		conn:        newConn(rawConn, 2*time.Duration(h.cfg.IdleTimeoutSeconds)*time.Second, log),
		hub:         h,
		log:         log,
		writeChan:   make(chan ircmsg.Message, writeQueueSize),
		connectedAt: time.Now(),
		preCapabs:   make(map[string]struct{}),
	}
}

func (s *Session) String() string {
	return s.conn.RemoteAddr().String()
}

// maybeQueueMessage is a non-blocking send: if the session's outbound
// queue is full, flag it as overflowed and schedule its disconnection
// instead of blocking the hub's single event-processing goroutine.
func (s *Session) maybeQueueMessage(m ircmsg.Message) {
	if s.sendQueueExceeded {
		return
	}
	select {
	case s.writeChan <- m:
	default:
		s.sendQueueExceeded = true
		s.hub.metrics.SendQueueDropped.WithLabelValues(s.sessionKind()).Inc()
		go s.hub.pushEvent(event{kind: eventDead, session: s})
	}
}

func (s *Session) sessionKind() string {
	switch s.phase {
	case phaseRegisteredServer:
		return "server"
	case phaseRegisteredUser:
		return "user"
	default:
		return "unregistered"
	}
}

// messageFromServer sends a message appearing to originate from this
// server, prepending the client's current nick (or "*") to numeric
// replies per convention.
func (s *Session) messageFromServer(command string, params []string) {
	out := params
	if ircmsg.IsNumericCommand(command) {
		nick := "*"
		if s.nick != "" {
			if u := s.hub.reg.User(s.nick); u != nil {
				nick = u.Nick
			} else {
				nick = s.nick
			}
		} else if s.preNick != "" {
			nick = s.preNick
		}
		out = append([]string{nick}, params...)
	}
	s.maybeQueueMessage(ircmsg.Message{
		Prefix:  s.hub.cfg.ServerName,
		Command: command,
		Params:  out,
	})
}

// readLoop reads and parses lines off the wire and forwards each as an
// event to the hub's single dispatching goroutine. It never mutates
// session or registry state directly.
func (s *Session) readLoop() {
	defer s.hub.wg.Done()
	for {
		line, err := s.conn.readLine()
		if err != nil {
			s.hub.pushEvent(event{kind: eventDead, session: s, err: err})
			return
		}

		msg, err := ircmsg.ParseMessage(line)
		if err != nil {
			s.log.WithError(err).Debug("session: malformed line, ignoring")
			continue
		}

		s.hub.pushEvent(event{kind: eventMessage, session: s, message: msg})
	}
}

// writeLoop drains writeChan to the wire until it's closed or a write
// fails, then closes the underlying connection. Keeping the write side
// independent of the read side means a slow reader never blocks replies
// queued for it, and vice versa.
func (s *Session) writeLoop() {
	defer s.hub.wg.Done()
	for {
		select {
		case msg, ok := <-s.writeChan:
			if !ok {
				_ = s.conn.Close()
				return
			}
			if err := s.conn.writeMessage(msg); err != nil {
				s.log.WithError(err).Debug("session: write error")
				s.hub.pushEvent(event{kind: eventDead, session: s, err: err})
				_ = s.conn.Close()
				return
			}
		case <-s.hub.shutdown:
			_ = s.conn.Close()
			return
		}
	}
}
