// Package router implements the typed in-process message bus (§6): it
// dispatches the seven wire messages (GENESIS_VPB_INIT, NEW_BLOCK,
// BLOCK_COMMITTED, PROOF_TO_SENDER, ACCTXN_SUBMIT, VPB_TRANSFER,
// CREATE_AND_SUBMIT) between node components, computing each message's
// content-addressed identity and dropping anything already seen within a
// sliding window.
package router

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
)

// MessageType enumerates the wire protocol's message kinds (§6).
type MessageType string

const (
	TypeGenesisVPBInit  MessageType = "GENESIS_VPB_INIT"
	TypeNewBlock        MessageType = "NEW_BLOCK"
	TypeBlockCommitted  MessageType = "BLOCK_COMMITTED"
	TypeProofToSender   MessageType = "PROOF_TO_SENDER"
	TypeAcctxnSubmit    MessageType = "ACCTXN_SUBMIT"
	TypeVPBTransfer     MessageType = "VPB_TRANSFER"
	TypeCreateAndSubmit MessageType = "CREATE_AND_SUBMIT"
)

// Envelope is one routed message. DeliveryID is a per-attempt correlation id
// for logging only; MessageID is the content-addressed identity used for
// dedup and is stable across retries of the same logical message.
type Envelope struct {
	DeliveryID uuid.UUID
	MessageID  crypto.Digest
	Type       MessageType
	FromNodeID string
	Payload    []byte
	Timestamp  time.Time
}

// MessageID computes `H(from_node_id || type || canonical_payload ||
// timestamp)` (§6 Message identity).
func MessageID(fromNodeID string, msgType MessageType, payload []byte, ts time.Time) crypto.Digest {
	enc := crypto.NewEncoder()
	enc.WriteString(fromNodeID)
	enc.WriteString(string(msgType))
	enc.WriteBytes(payload)
	enc.WriteString(ts.UTC().Format(time.RFC3339Nano))
	return enc.Sum()
}

// NewEnvelope builds an Envelope with its MessageID and DeliveryID filled in.
func NewEnvelope(fromNodeID string, msgType MessageType, payload []byte, ts time.Time) Envelope {
	return Envelope{
		DeliveryID: uuid.New(),
		MessageID:  MessageID(fromNodeID, msgType, payload, ts),
		Type:       msgType,
		FromNodeID: fromNodeID,
		Payload:    payload,
		Timestamp:  ts,
	}
}

// Handler processes one delivered envelope.
type Handler func(Envelope) error

// Config configures a Router.
type Config struct {
	// DedupWindow is how many distinct message ids the router remembers
	// before the oldest is evicted (§6 Dedup: "routers keep a sliding
	// window of observed message_ids").
	DedupWindow int
	Logger      *log.Logger
}

const DefaultDedupWindow = 4096

// Router dispatches envelopes to registered handlers by MessageType,
// rejecting anything whose MessageID was already observed within the
// configured window.
type Router struct {
	mu sync.Mutex

	window   int
	logger   *log.Logger
	handlers map[MessageType][]Handler

	seen     map[crypto.Digest]struct{}
	seenFIFO []crypto.Digest

	delivered uint64
	dropped   uint64
	rejected  uint64
}

// New constructs a Router.
func New(cfg Config) *Router {
	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Router{
		window:   window,
		logger:   cfg.Logger,
		handlers: make(map[MessageType][]Handler),
		seen:     make(map[crypto.Digest]struct{}),
	}
}

// RegisterHandler subscribes fn to every envelope of the given type.
func (r *Router) RegisterHandler(msgType MessageType, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = append(r.handlers[msgType], fn)
}

// Send delivers env to every handler registered for its type, after dedup.
// A handler error is logged and does not stop delivery to the remaining
// handlers — §7's propagation policy treats this as a per-component concern,
// not a router-fatal one.
func (r *Router) Send(env Envelope) error {
	r.mu.Lock()
	if _, ok := r.seen[env.MessageID]; ok {
		r.dropped++
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Printf("dropping duplicate message_id=%s type=%s", env.MessageID.String(), env.Type)
		}
		return nil
	}
	r.remember(env.MessageID)
	handlers := append([]Handler(nil), r.handlers[env.Type]...)
	if len(handlers) == 0 {
		r.mu.Unlock()
		return errs.New(errs.CodeUnknownType, "no handler registered for message type "+string(env.Type))
	}
	r.delivered++
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h(env); err != nil {
			r.mu.Lock()
			r.rejected++
			r.mu.Unlock()
			if r.logger != nil {
				r.logger.Printf("handler error for message_id=%s type=%s: %v", env.MessageID.String(), env.Type, err)
			}
		}
	}
	return nil
}

// Broadcast is Send under another name, kept distinct because the wire
// protocol table distinguishes directed sends (consensus -> account) from
// fan-out broadcasts (miner -> all); both share the same dedup/dispatch
// mechanics.
func (r *Router) Broadcast(env Envelope) error {
	return r.Send(env)
}

// remember must be called with mu held.
func (r *Router) remember(id crypto.Digest) {
	r.seen[id] = struct{}{}
	r.seenFIFO = append(r.seenFIFO, id)
	if len(r.seenFIFO) > r.window {
		oldest := r.seenFIFO[0]
		r.seenFIFO = r.seenFIFO[1:]
		delete(r.seen, oldest)
	}
}

// Stats are the router's running counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Rejected  uint64
}

// Stats returns a snapshot of the router's counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Delivered: r.delivered, Dropped: r.dropped, Rejected: r.rejected}
}
