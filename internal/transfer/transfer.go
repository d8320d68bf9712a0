// Package transfer implements the file transfer broker (C5) from
// spec.md §4.5: DCC-style out-of-band offers negotiated over PRIVMSG,
// tracked through an Offered -> Accepted -> InProgress -> terminal state
// machine, with either a direct peer-to-peer path or a relayed path
// through this server.
package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corvidnet/fedircd/internal/metrics"
)

// State is where a transfer sits in its lifecycle.
type State int

// Transfer states.
const (
	StateOffered State = iota
	StateAccepted
	StateInProgress
	StateDone
	StateDeclined
	StateFailed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateOffered:
		return "Offered"
	case StateAccepted:
		return "Accepted"
	case StateInProgress:
		return "InProgress"
	case StateDone:
		return "Done"
	case StateDeclined:
		return "Declined"
	case StateFailed:
		return "Failed"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Sentinel errors.
var (
	ErrNoSuchTransfer = errors.New("transfer: no such transfer")
	ErrWrongState     = errors.New("transfer: invalid state transition")
	ErrNotRecipient   = errors.New("transfer: not the offer's recipient")
)

// Transfer is one negotiated file transfer.
type Transfer struct {
	Token    string
	From     string
	To       string
	Filename string
	Size     int64

	// Direct path: recipient connects here.
	Address string
	Port    int

	// Relayed is true if the offer requested the server relay bytes
	// rather than the peers connecting directly.
	Relayed bool

	State     State
	CreatedAt time.Time

	relay *relayPipe
}

// Broker owns every in-flight transfer and expires stale offers.
type Broker struct {
	mu        sync.Mutex
	transfers map[string]*Transfer

	chunkSize int
	offerTTL  time.Duration

	metrics *metrics.Metrics
	log     *logrus.Entry
}

// New creates a Broker. chunkSize and offerTTL come from config.Config's
// file_transfer_chunk_size and file_transfer_offer_ttl_seconds.
func New(chunkSize int, offerTTL time.Duration, m *metrics.Metrics, log *logrus.Entry) *Broker {
	return &Broker{
		transfers: make(map[string]*Transfer),
		chunkSize: chunkSize,
		offerTTL:  offerTTL,
		metrics:   m,
		log:       log,
	}
}

// Offer records a new DCC SEND-style offer and returns its token.
func (b *Broker) Offer(from, to, filename string, size int64, address string, port int, relayed bool) *Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := &Transfer{
		Token:     uuid.New().String(),
		From:      from,
		To:        to,
		Filename:  filename,
		Size:      size,
		Address:   address,
		Port:      port,
		Relayed:   relayed,
		State:     StateOffered,
		CreatedAt: time.Now(),
	}
	b.transfers[t.Token] = t
	return t
}

// Accept transitions an offer to Accepted. Only the named recipient may
// accept it.
func (b *Broker) Accept(token, by string) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[token]
	if !ok {
		return nil, ErrNoSuchTransfer
	}
	if t.To != by {
		return nil, ErrNotRecipient
	}
	if t.State != StateOffered {
		return nil, ErrWrongState
	}
	t.State = StateAccepted
	if t.Relayed {
		t.relay = newRelayPipe(b.chunkSize)
	}
	b.metrics.TransfersActive.Inc()
	return t, nil
}

// Decline transitions an offer to Declined.
func (b *Broker) Decline(token, by string) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[token]
	if !ok {
		return nil, ErrNoSuchTransfer
	}
	if t.To != by {
		return nil, ErrNotRecipient
	}
	if t.State != StateOffered {
		return nil, ErrWrongState
	}
	t.State = StateDeclined
	delete(b.transfers, token)
	return t, nil
}

// BeginTransfer marks an Accepted transfer InProgress, the point at
// which relayed bytes may start flowing.
func (b *Broker) BeginTransfer(token string) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[token]
	if !ok {
		return nil, ErrNoSuchTransfer
	}
	if t.State != StateAccepted {
		return nil, ErrWrongState
	}
	t.State = StateInProgress
	return t, nil
}

// Complete marks a transfer Done, whether it finished directly or via
// relay.
func (b *Broker) Complete(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[token]
	if !ok {
		return ErrNoSuchTransfer
	}
	t.State = StateDone
	delete(b.transfers, token)
	b.metrics.TransfersActive.Dec()
	return nil
}

// Fail marks a transfer Failed and removes it.
func (b *Broker) Fail(token string, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[token]
	if !ok {
		return ErrNoSuchTransfer
	}
	wasActive := t.State == StateAccepted || t.State == StateInProgress
	t.State = StateFailed
	delete(b.transfers, token)
	if wasActive {
		b.metrics.TransfersActive.Dec()
	}
	b.log.WithError(cause).WithField("token", token).Warn("transfer: failed")
	return nil
}

// Get returns the transfer for token, or nil.
func (b *Broker) Get(token string) *Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transfers[token]
}

// SweepExpired expires offers that have sat unanswered past offerTTL.
// The hub calls this from its idle ticker.
func (b *Broker) SweepExpired() []*Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []*Transfer
	now := time.Now()
	for token, t := range b.transfers {
		if t.State != StateOffered {
			continue
		}
		if now.Sub(t.CreatedAt) > b.offerTTL {
			t.State = StateExpired
			delete(b.transfers, token)
			expired = append(expired, t)
		}
	}
	return expired
}
