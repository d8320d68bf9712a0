package transfer

import (
	"context"

	"github.com/pkg/errors"
)

// relayWindow bounds how many chunks may be in flight, unread, before
// the sender's Push blocks. This is the relayed path's flow control:
// a slow recipient backpressures the sender instead of the broker
// buffering unbounded data in memory.
const relayWindow = 8

// relayPipe moves chunks from a sender to a recipient through bounded
// channels when a transfer is relayed rather than direct.
type relayPipe struct {
	chunks    chan []byte
	chunkSize int
	closed    chan struct{}
}

func newRelayPipe(chunkSize int) *relayPipe {
	return &relayPipe{
		chunks:    make(chan []byte, relayWindow),
		chunkSize: chunkSize,
		closed:    make(chan struct{}),
	}
}

// Push hands one chunk to the relay. It blocks if the window is full,
// providing backpressure, and returns ctx.Err() if the caller gives up
// first.
func (p *relayPipe) Push(ctx context.Context, chunk []byte) error {
	if len(chunk) > p.chunkSize {
		return errors.Errorf("transfer: chunk of %d bytes exceeds configured chunk size %d", len(chunk), p.chunkSize)
	}
	select {
	case p.chunks <- chunk:
		return nil
	case <-p.closed:
		return errors.New("transfer: relay closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pull receives the next chunk, or (nil, false) once the relay is
// closed and drained.
func (p *relayPipe) Pull(ctx context.Context) ([]byte, bool, error) {
	select {
	case chunk, ok := <-p.chunks:
		return chunk, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close signals no more chunks will be pushed.
func (p *relayPipe) Close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
		close(p.chunks)
	}
}

// HasRelay reports whether the transfer has an active relay pipe
// (true once a relayed offer has been accepted).
func (t *Transfer) HasRelay() bool {
	return t.relay != nil
}

// PushChunk forwards one chunk of file data into the relay, blocking
// for backpressure if the recipient is slow.
func (t *Transfer) PushChunk(ctx context.Context, chunk []byte) error {
	if t.relay == nil {
		return errors.New("transfer: not a relayed transfer")
	}
	return t.relay.Push(ctx, chunk)
}

// PullChunk receives the next chunk of file data from the relay.
func (t *Transfer) PullChunk(ctx context.Context) ([]byte, bool, error) {
	if t.relay == nil {
		return nil, false, errors.New("transfer: not a relayed transfer")
	}
	return t.relay.Pull(ctx)
}

// CloseRelay signals no more chunks will be pushed.
func (t *Transfer) CloseRelay() {
	if t.relay != nil {
		t.relay.Close()
	}
}
