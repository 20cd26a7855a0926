package event

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/receipt"
)

// payloadVersion prefixes every event signing payload.
const payloadVersion = "TENZIK_EVENT_V1"

// Type of a federation event.
type Type string

const (
	TypeReceipt      Type = "receipt"
	TypeNodeAnnounce Type = "node_announce"
	TypeNodeLeave    Type = "node_leave"
	TypeHeartbeat    Type = "heartbeat"
)

// Event is one node-signed entry in the federation DAG. ID is the hex
// SHA-256 digest of the signing payload, so it commits to everything
// the signature covers.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
	Parents   []string        `json:"parents"`
	Sequence  uint64          `json:"sequence"`
	NodeID    string          `json:"node_id"`
	Signature string          `json:"signature"`
}

// AnnounceContent is the payload of a node_announce event.
type AnnounceContent struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HeartbeatContent is the payload of a heartbeat event.
type HeartbeatContent struct {
	Load          float64 `json:"load"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
}

// LeaveContent is the payload of a node_leave event.
type LeaveContent struct {
	Reason string `json:"reason"`
}

// New builds an unsigned event timestamped now. Sign must be called
// before the event can enter a log.
func New(typ Type, content []byte, parents []string, sequence uint64) *Event {
	return &Event{
		Type:      typ,
		Content:   append(json.RawMessage(nil), content...),
		Timestamp: time.Now().UTC().Format(receipt.TimeLayout),
		Parents:   append([]string(nil), parents...),
		Sequence:  sequence,
	}
}

// NewReceiptEvent wraps a signed execution receipt in a signed
// receipt-typed event.
func NewReceiptEvent(r *receipt.Receipt, parents []string, sequence uint64, key ed25519.PrivateKey) (*Event, error) {
	content, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEvent, errors.KindInvalidData, err, "encode receipt content")
	}
	e := New(TypeReceipt, content, parents, sequence)
	if err := e.Sign(key); err != nil {
		return nil, err
	}
	return e, nil
}

// NewAnnounceEvent creates a signed node_announce event.
func NewAnnounceEvent(c AnnounceContent, parents []string, sequence uint64, key ed25519.PrivateKey) (*Event, error) {
	return newTyped(TypeNodeAnnounce, c, parents, sequence, key)
}

// NewHeartbeatEvent creates a signed heartbeat event.
func NewHeartbeatEvent(c HeartbeatContent, parents []string, sequence uint64, key ed25519.PrivateKey) (*Event, error) {
	return newTyped(TypeHeartbeat, c, parents, sequence, key)
}

// NewLeaveEvent creates a signed node_leave event.
func NewLeaveEvent(reason string, parents []string, sequence uint64, key ed25519.PrivateKey) (*Event, error) {
	return newTyped(TypeNodeLeave, LeaveContent{Reason: reason}, parents, sequence, key)
}

func newTyped(typ Type, content any, parents []string, sequence uint64, key ed25519.PrivateKey) (*Event, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEvent, errors.KindInvalidData, err, "encode event content")
	}
	e := New(typ, raw, parents, sequence)
	if err := e.Sign(key); err != nil {
		return nil, err
	}
	return e, nil
}

// payload renders the canonical byte sequence covered by the signature.
// Content enters as its digest, so the payload stays fixed-size
// regardless of what an event carries.
func (e *Event) payload() []byte {
	content := sha256.Sum256(e.Content)
	var b strings.Builder
	b.WriteString(payloadVersion)
	fmt.Fprintf(&b, "\ntype:%s", e.Type)
	fmt.Fprintf(&b, "\ncontent:%s", hex.EncodeToString(content[:]))
	fmt.Fprintf(&b, "\nparents:%s", strings.Join(e.Parents, ","))
	fmt.Fprintf(&b, "\nsequence:%d", e.Sequence)
	fmt.Fprintf(&b, "\nnode_id:%s", e.NodeID)
	fmt.Fprintf(&b, "\ntimestamp:%s", e.Timestamp)
	return []byte(b.String())
}

func (e *Event) computeID() string {
	sum := sha256.Sum256(e.payload())
	return hex.EncodeToString(sum[:])
}

// Sign fills NodeID from the key, derives the event id from the
// signing payload, and signs it.
func (e *Event) Sign(key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key)))
	}
	e.NodeID = receipt.NodeID(key.Public().(ed25519.PublicKey))
	payload := e.payload()
	sum := sha256.Sum256(payload)
	e.ID = hex.EncodeToString(sum[:])
	e.Signature = hex.EncodeToString(ed25519.Sign(key, payload))
	return nil
}

// Verify checks the signature against the node id the event names.
// Malformed fields yield (false, error); a clean mismatch (false, nil).
func (e *Event) Verify() (bool, error) {
	pub, err := hex.DecodeString(e.NodeID)
	if err != nil {
		return false, errors.Wrap(errors.PhaseEvent, errors.KindInvalidData, err, "node id is not hex")
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("node id must be %d bytes, got %d", ed25519.PublicKeySize, len(pub)))
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false, errors.Wrap(errors.PhaseEvent, errors.KindInvalidData, err, "signature is not hex")
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig)))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), e.payload(), sig), nil
}

// Receipt decodes the wrapped receipt of a receipt-typed event.
func (e *Event) Receipt() (*receipt.Receipt, error) {
	if e.Type != TypeReceipt {
		return nil, errors.InvalidInput(errors.PhaseEvent,
			fmt.Sprintf("event type %q carries no receipt", e.Type))
	}
	return receipt.Decode(e.Content)
}

func (e *Event) clone() *Event {
	c := *e
	c.Content = append(json.RawMessage(nil), e.Content...)
	c.Parents = append([]string(nil), e.Parents...)
	return &c
}
