// Package hub implements the connection session state machine (C3) and
// inter-server routing/federation (C4) from spec.md §4.3-4.4. A single
// goroutine owns and mutates all session bookkeeping; registry.Registry
// is the only state shared with other goroutines, and it guards itself.
package hub

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corvidnet/fedircd/internal/adminhttp"
	"github.com/corvidnet/fedircd/internal/config"
	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/metrics"
	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/store"
	"github.com/corvidnet/fedircd/internal/transfer"
)

type eventKind int

const (
	eventMessage eventKind = iota
	eventDead
	eventNewConn
	eventOutboundConn
	eventTransferChunk
	eventTransferDone
	eventTransferFailed
)

type event struct {
	kind         eventKind
	session      *Session
	message      ircmsg.Message
	err          error
	rawConn      net.Conn
	outboundPass string

	// Fields used by eventTransferChunk/Done/Failed, posted by a relay
	// pump goroutine rather than a session's read loop.
	transferToken string
	transferChunk []byte
	transferSeq   int
}

// Hub is the daemon's central event loop: every inbound line, dead
// connection, and new accept funnels through its events channel and is
// handled one at a time by run.
type Hub struct {
	cfg   *config.Config
	reg   *registry.Registry
	store store.Store
	log   *logrus.Entry

	metrics   *metrics.Metrics
	transfers *transfer.Broker

	events      chan event
	nextID      uint64
	nextUserSeq uint64
	started     time.Time

	// localUsers maps canonical nick -> the Session serving that user's
	// live connection, for clients registered on this server only.
	localUsers map[string]*Session

	// localServers maps canonical server name -> Session, for neighbors
	// directly connected to this server only.
	localServers map[string]*Session

	// links is the configured, password-checked neighbor table, keyed by
	// canonical server name (spec.md §6 "server link table").
	links map[string]config.LinkConfig

	// admins maps canonical OPER nickname -> bcrypt password hash.
	admins map[string][]byte

	// uidToNick maps a remote user's UID to their current canonical nick.
	// Only the event loop goroutine touches this map, so it needs no lock
	// of its own.
	uidToNick map[string]string

	// transferUploads maps a relayed transfer's token to the staging
	// queue its upload goroutine drains in order; only the event loop
	// goroutine adds or removes entries.
	transferUploads map[string]chan []byte

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New builds a Hub. Call Serve to start accepting connections.
func New(cfg *config.Config, reg *registry.Registry, st store.Store, m *metrics.Metrics, tr *transfer.Broker, log *logrus.Entry) *Hub {
	links := make(map[string]config.LinkConfig, len(cfg.Links))
	for _, l := range cfg.Links {
		links[registry.CaseFold(l.Name)] = l
	}
	return &Hub{
		cfg:             cfg,
		reg:             reg,
		store:           st,
		log:             log,
		metrics:         m,
		transfers:       tr,
		events:          make(chan event, 4096),
		started:         time.Now(),
		localUsers:      make(map[string]*Session),
		localServers:    make(map[string]*Session),
		links:           links,
		uidToNick:       make(map[string]string),
		transferUploads: make(map[string]chan []byte),
		shutdown:        make(chan struct{}),
	}
}

func (h *Hub) pushEvent(e event) {
	select {
	case h.events <- e:
	case <-h.shutdown:
	}
}

// Serve accepts connections on ln and runs the event loop until
// shutdown. It returns when ln stops accepting.
func (h *Hub) Serve(ln net.Listener) error {
	go h.run()
	go h.idleTicker()

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			select {
			case <-h.shutdown:
				return nil
			default:
				return err
			}
		}
		h.pushEvent(event{kind: eventNewConn, rawConn: rawConn})
	}
}

// Shutdown stops the event loop and closes all sessions.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	h.wg.Wait()
}

// idleTicker periodically asks the event loop to check for idle
// sessions, so PING/timeout logic runs on the same goroutine as
// everything else instead of needing its own lock.
func (h *Hub) idleTicker() {
	interval := time.Duration(h.cfg.IdleTimeoutSeconds) * time.Second / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.pushEvent(event{kind: eventDead, session: nil})
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) run() {
	for {
		select {
		case e := <-h.events:
			h.handleEvent(e)
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) handleEvent(e event) {
	switch e.kind {
	case eventNewConn:
		h.acceptConn(e.rawConn)
	case eventOutboundConn:
		h.acceptOutboundConn(e.rawConn, e.outboundPass)
	case eventMessage:
		h.dispatch(e.session, e.message)
	case eventDead:
		if e.session != nil {
			h.disconnect(e.session, deadConnReason(e.err))
		} else {
			h.checkIdleSessions()
		}
	case eventTransferChunk:
		h.deliverTransferChunk(e)
	case eventTransferDone:
		h.completeTransfer(e.transferToken)
	case eventTransferFailed:
		h.failTransfer(e.transferToken, e.err)
	}
}

func deadConnReason(err error) string {
	if err == nil {
		return "Connection closed"
	}
	return "Read error: " + err.Error()
}

func (h *Hub) acceptConn(rawConn net.Conn) {
	id := atomic.AddUint64(&h.nextID, 1)
	s := newSession(id, rawConn, h)

	h.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	h.log.WithFields(logrus.Fields{"session": id, "remote": s.String()}).Info("hub: accepted connection")
}

// acceptOutboundConn wires up a connection this server dialed out,
// grounded on the teacher's LocalUser.connectCommand: send our side of
// the handshake immediately since we are the initiator, then proceed
// through the ordinary pre-registration dispatch for the reply.
func (h *Hub) acceptOutboundConn(rawConn net.Conn, pass string) {
	id := atomic.AddUint64(&h.nextID, 1)
	s := newSession(id, rawConn, h)

	h.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	h.sendServerIntro(s, pass)
	h.log.WithFields(logrus.Fields{"session": id, "remote": s.String()}).Info("hub: outbound server link dialed")
}

func (h *Hub) checkIdleSessions() {
	now := time.Now()
	deadline := time.Duration(h.cfg.IdleTimeoutSeconds) * time.Second

	for _, s := range h.localUsers {
		if now.Sub(s.lastActivity) > deadline+60*time.Second {
			h.disconnect(s, "Ping timeout")
			continue
		}
		if now.Sub(s.lastActivity) > deadline {
			s.messageFromServer("PING", []string{h.cfg.ServerName})
		}
	}
	for _, s := range h.localServers {
		if s.bursting {
			continue
		}
		if now.Sub(s.lastActivity) > deadline+60*time.Second {
			h.squit(s, "Ping timeout")
		}
	}

	for _, t := range h.transfers.SweepExpired() {
		if requester, ok := h.localUsers[registry.CaseFold(t.From)]; ok {
			requester.messageFromServer("NOTICE", []string{"File transfer to " + t.To + " expired"})
		}
	}
}

// dispatch routes one parsed message from a session to the right
// command handler based on registration phase.
func (h *Hub) dispatch(s *Session, m ircmsg.Message) {
	s.lastActivity = time.Now()

	switch s.phase {
	case phaseRegisteredUser:
		h.dispatchUserCommand(s, m)
	case phaseRegisteredServer:
		h.dispatchServerCommand(s, m)
	default:
		h.dispatchPreRegistration(s, m)
	}
}

// Status reports a snapshot for adminhttp's read-only /status endpoint.
func (h *Hub) Status() adminhttp.Status {
	neighbors := make([]string, 0, len(h.localServers))
	for _, s := range h.localServers {
		neighbors = append(neighbors, s.preServerName)
	}
	return adminhttp.Status{
		ServerName:    h.cfg.ServerName,
		Role:          string(h.cfg.Role),
		LocalUsers:    len(h.localUsers),
		LocalChannels: len(h.reg.List("")),
		Neighbors:     neighbors,
		Uptime:        time.Since(h.started).String(),
	}
}
