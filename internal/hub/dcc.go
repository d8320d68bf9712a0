package hub

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/corvidnet/fedircd/internal/ircmsg"
	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/transfer"
)

const ctcpDelim = "\x01"

// pushChunkTimeout bounds how long a relay's window-full backpressure
// may stall a single uploaded chunk before the transfer is failed.
const pushChunkTimeout = 30 * time.Second

// uploadQueueSize bounds how many chunks the hub stages for a single
// upload ahead of the relay's own window, so a burst of DCC CHUNK lines
// never blocks the event loop while still being pushed in order.
const uploadQueueSize = 32

type dccSendOffer struct {
	filename string
	address  string
	port     int
	size     int64
}

// parseDCCSendOffer recognizes a CTCP "\x01DCC SEND filename address port
// size\x01" payload inside a PRIVMSG, per spec.md §4.1's note that
// this specific CTCP shape is what triggers C5.
func parseDCCSendOffer(text string) (dccSendOffer, bool) {
	if !strings.HasPrefix(text, ctcpDelim) || !strings.HasSuffix(text, ctcpDelim) {
		return dccSendOffer{}, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, ctcpDelim), ctcpDelim)
	fields := strings.Fields(inner)
	if len(fields) < 6 || fields[0] != "DCC" || fields[1] != "SEND" {
		return dccSendOffer{}, false
	}

	port, err := strconv.Atoi(fields[4])
	if err != nil {
		return dccSendOffer{}, false
	}
	size, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return dccSendOffer{}, false
	}

	return dccSendOffer{filename: fields[2], address: fields[3], port: port, size: size}, true
}

// parseDCCControl recognizes the CTCP "\x01DCC ACCEPT|DECLINE|CHUNK|DONE
// <token> ...\x01" payloads that drive a transfer past Offered, per
// spec.md §4.5.
func parseDCCControl(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, ctcpDelim) || !strings.HasSuffix(text, ctcpDelim) {
		return "", nil, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, ctcpDelim), ctcpDelim)
	fields := strings.Fields(inner)
	if len(fields) < 3 || fields[0] != "DCC" {
		return "", nil, false
	}
	switch fields[1] {
	case "ACCEPT", "DECLINE", "CHUNK", "DONE":
		return fields[1], fields[2:], true
	default:
		return "", nil, false
	}
}

// handleDCCSendOffer records the offer with the transfer broker and
// relays the CTCP payload to the recipient with the broker's token
// appended, so a DCC-aware client can ACCEPT/DECLINE by token.
func (h *Hub) handleDCCSendOffer(s *Session, from *registry.User, target string, offer dccSendOffer) {
	targetSession, ok := h.localUsers[registry.CaseFold(target)]
	if !ok {
		s.messageFromServer(ErrNoSuchNick, []string{target, "No such nick"})
		return
	}

	relayed := offer.address == "0" || offer.address == ""
	tr := h.transfers.Offer(from.Nick, target, offer.filename, offer.size, offer.address, offer.port, relayed)

	payload := ctcpDelim + "DCC SEND " + offer.filename + " " + offer.address + " " +
		strconv.Itoa(offer.port) + " " + strconv.FormatInt(offer.size, 10) + " " + tr.Token + ctcpDelim

	targetSession.maybeQueueMessage(ircmsg.Message{
		Prefix:  from.NickUhost(),
		Command: "PRIVMSG",
		Params:  []string{target, payload},
	})

	h.log.WithFields(map[string]interface{}{
		"from": from.Nick, "to": target, "token": tr.Token, "relayed": relayed,
	}).Info("hub: file transfer offered")
}

// handleDCCAccept moves an offer to Accepted, tells the original sender
// it was accepted, and for a relayed transfer starts the chunk pump.
func (h *Hub) handleDCCAccept(s *Session, by *registry.User, args []string) {
	if len(args) < 1 {
		return
	}
	token := args[0]
	tr, err := h.transfers.Accept(token, by.Nick)
	if err != nil {
		s.messageFromServer("NOTICE", []string{"*", "Cannot accept transfer: " + err.Error()})
		return
	}

	senderSession, ok := h.localUsers[registry.CaseFold(tr.From)]
	if !ok {
		return
	}
	senderSession.maybeQueueMessage(ircmsg.Message{
		Prefix:  by.NickUhost(),
		Command: "PRIVMSG",
		Params:  []string{tr.From, ctcpDelim + "DCC ACCEPT " + token + ctcpDelim},
	})

	if !tr.Relayed {
		return
	}
	if _, err := h.transfers.BeginTransfer(token); err != nil {
		h.log.WithError(err).Warn("hub: could not begin relayed transfer")
		return
	}
	h.startRelayPump(tr)
	h.startRelayUpload(tr)
	h.log.WithFields(map[string]interface{}{"token": token, "from": tr.From, "to": tr.To}).
		Info("hub: relayed file transfer accepted")
}

// handleDCCDecline moves an offer to Declined and relays the decline
// back to whoever made it.
func (h *Hub) handleDCCDecline(s *Session, by *registry.User, args []string) {
	if len(args) < 1 {
		return
	}
	token := args[0]
	tr, err := h.transfers.Decline(token, by.Nick)
	if err != nil {
		return
	}
	if senderSession, ok := h.localUsers[registry.CaseFold(tr.From)]; ok {
		senderSession.maybeQueueMessage(ircmsg.Message{
			Prefix:  by.NickUhost(),
			Command: "PRIVMSG",
			Params:  []string{tr.From, ctcpDelim + "DCC DECLINE " + token + ctcpDelim},
		})
	}
}

// handleDCCChunk accepts one relayed chunk from the sending client and
// stages it for delivery in order. Pushing a chunk into the relay pipe
// can block on the window, so the actual Transfer.PushChunk call
// happens on startRelayUpload's dedicated goroutine, never here.
func (h *Hub) handleDCCChunk(by *registry.User, args []string) {
	if len(args) < 3 {
		return
	}
	token := args[0]
	tr := h.transfers.Get(token)
	if tr == nil || tr.From != by.Nick || !tr.Relayed || tr.State != transfer.StateInProgress {
		return
	}
	queue, ok := h.transferUploads[token]
	if !ok {
		return
	}
	data, err := base64.StdEncoding.DecodeString(args[2])
	if err != nil {
		return
	}
	select {
	case queue <- data:
	default:
		h.failTransfer(token, errors.New("upload buffer full"))
	}
}

// handleDCCDone signals the end of an upload. For a relayed transfer
// this closes the upload staging queue; its goroutine pushes every chunk
// still staged and then closes the relay pipe, so the pump completes
// once it has delivered every chunk. For a direct transfer, which the
// server was never a party to, it completes the transfer immediately.
func (h *Hub) handleDCCDone(by *registry.User, args []string) {
	if len(args) < 1 {
		return
	}
	tr := h.transfers.Get(args[0])
	if tr == nil || (tr.From != by.Nick && tr.To != by.Nick) {
		return
	}
	if tr.Relayed {
		h.stopRelayUpload(tr.Token)
		return
	}
	h.completeTransfer(tr.Token)
}

// startRelayUpload creates tr's upload staging queue and spawns the
// goroutine that drains it into Transfer.PushChunk in order, off the
// hub's event loop goroutine, since a full relay window legitimately
// blocks that call. When the queue is closed, or a push fails, the
// goroutine closes the relay pipe.
func (h *Hub) startRelayUpload(tr *transfer.Transfer) {
	queue := make(chan []byte, uploadQueueSize)
	h.transferUploads[tr.Token] = queue
	go func() {
		defer tr.CloseRelay()
		for chunk := range queue {
			ctx, cancel := context.WithTimeout(context.Background(), pushChunkTimeout)
			err := tr.PushChunk(ctx, chunk)
			cancel()
			if err != nil {
				h.pushEvent(event{kind: eventTransferFailed, transferToken: tr.Token, err: err})
				return
			}
		}
	}()
}

// stopRelayUpload closes and forgets tr's upload queue, if any, letting
// its drain goroutine exit.
func (h *Hub) stopRelayUpload(token string) {
	if queue, ok := h.transferUploads[token]; ok {
		delete(h.transferUploads, token)
		close(queue)
	}
}

// startRelayPump spawns the goroutine that drains tr's relay pipe and
// hands each chunk back to the hub loop for delivery to the recipient,
// since a local Session must only ever be touched from that goroutine.
func (h *Hub) startRelayPump(tr *transfer.Transfer) {
	token := tr.Token
	go func() {
		ctx := context.Background()
		seq := 0
		for {
			chunk, ok, err := tr.PullChunk(ctx)
			if err != nil {
				h.pushEvent(event{kind: eventTransferFailed, transferToken: token, err: err})
				return
			}
			if !ok {
				h.pushEvent(event{kind: eventTransferDone, transferToken: token})
				return
			}
			h.pushEvent(event{
				kind: eventTransferChunk, transferToken: token,
				transferChunk: chunk, transferSeq: seq,
			})
			seq++
		}
	}()
}

// deliverTransferChunk forwards one relayed chunk to the recipient as a
// DCC CHUNK CTCP payload, run on the hub's event loop goroutine.
func (h *Hub) deliverTransferChunk(e event) {
	tr := h.transfers.Get(e.transferToken)
	if tr == nil {
		return
	}
	recipient, ok := h.localUsers[registry.CaseFold(tr.To)]
	if !ok {
		return
	}
	prefix := tr.From
	if u := h.reg.User(tr.From); u != nil {
		prefix = u.NickUhost()
	}
	payload := ctcpDelim + "DCC CHUNK " + tr.Token + " " + strconv.Itoa(e.transferSeq) + " " +
		base64.StdEncoding.EncodeToString(e.transferChunk) + ctcpDelim
	recipient.maybeQueueMessage(ircmsg.Message{Prefix: prefix, Command: "PRIVMSG", Params: []string{tr.To, payload}})
	h.metrics.TransferBytesMoved.Add(float64(len(e.transferChunk)))
}

// completeTransfer marks tr Done and notifies both parties.
func (h *Hub) completeTransfer(token string) {
	tr := h.transfers.Get(token)
	if tr == nil {
		return
	}
	from, to := tr.From, tr.To
	if err := h.transfers.Complete(token); err != nil {
		return
	}
	h.stopRelayUpload(token)
	if s, ok := h.localUsers[registry.CaseFold(from)]; ok {
		s.messageFromServer("NOTICE", []string{"*", "File transfer to " + to + " complete"})
	}
	if s, ok := h.localUsers[registry.CaseFold(to)]; ok {
		s.messageFromServer("NOTICE", []string{"*", "File transfer from " + from + " complete"})
	}
}

// failTransfer marks tr Failed and notifies both parties with cause.
func (h *Hub) failTransfer(token string, cause error) {
	tr := h.transfers.Get(token)
	if tr == nil {
		return
	}
	from, to := tr.From, tr.To
	_ = h.transfers.Fail(token, cause)
	h.stopRelayUpload(token)
	msg := "File transfer failed"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	if s, ok := h.localUsers[registry.CaseFold(from)]; ok {
		s.messageFromServer("NOTICE", []string{"*", msg})
	}
	if s, ok := h.localUsers[registry.CaseFold(to)]; ok {
		s.messageFromServer("NOTICE", []string{"*", msg})
	}
}
