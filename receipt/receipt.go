package receipt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/errors"
)

// payloadVersion prefixes every signing payload. Bumping it invalidates
// all previously issued signatures.
const payloadVersion = "TENZIK_RECEIPT_V1"

// TimeLayout is the fixed UTC timestamp layout carried in receipts.
// Millisecond precision keeps payload bytes identical across platforms.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Status values carried by a receipt.
const (
	StatusOK             = "ok"
	StatusTrap           = "trap"
	StatusTimeout        = "timeout"
	StatusFuelExceeded   = "fuel_exceeded"
	StatusMemoryExceeded = "memory_exceeded"
	StatusHostFailure    = "host_failure"
)

// StatusForError maps a typed execution error to its receipt status.
func StatusForError(err error) string {
	switch errors.KindOf(err) {
	case errors.KindTimeout:
		return StatusTimeout
	case errors.KindFuelExhausted:
		return StatusFuelExceeded
	case errors.KindMemoryExceeded:
		return StatusMemoryExceeded
	case errors.KindHostFailure:
		return StatusHostFailure
	default:
		return StatusTrap
	}
}

// Metrics are the execution measurements committed to by a receipt.
type Metrics struct {
	FuelUsed   uint64  `json:"fuel_used"`
	MemoryMB   float64 `json:"memory_mb"`
	DurationMS int64   `json:"duration_ms"`
	HostCalls  uint64  `json:"host_calls"`
}

// Receipt is a signed record of one capsule execution. The three commits
// are hex SHA-256 digests of the capsule bytes, the input, and the
// output. NodeID and Signature are filled by Sign.
type Receipt struct {
	CapsuleID    string  `json:"capsule_id"`
	InputCommit  string  `json:"input_commit"`
	OutputCommit string  `json:"output_commit"`
	Metrics      Metrics `json:"metrics"`
	NodeID       string  `json:"node_id"`
	Nonce        uint64  `json:"nonce"`
	Timestamp    string  `json:"timestamp"`
	Status       string  `json:"status"`
	Signature    string  `json:"signature"`
}

// Commit returns the hex SHA-256 digest of data.
func Commit(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// New builds an unsigned ok-status receipt over the given execution
// artifacts, timestamped now.
func New(module, input, output []byte, m Metrics, nonce uint64) *Receipt {
	return &Receipt{
		CapsuleID:    Commit(module),
		InputCommit:  Commit(input),
		OutputCommit: Commit(output),
		Metrics:      m,
		Nonce:        nonce,
		Timestamp:    time.Now().UTC().Format(TimeLayout),
		Status:       StatusOK,
	}
}

// payload renders the canonical byte sequence covered by the signature.
// Field order and formatting are fixed; any change breaks verification
// of existing receipts.
func (r *Receipt) payload() []byte {
	var b strings.Builder
	b.WriteString(payloadVersion)
	fmt.Fprintf(&b, "\ncapsule_id:%s", r.CapsuleID)
	fmt.Fprintf(&b, "\ninput_commit:%s", r.InputCommit)
	fmt.Fprintf(&b, "\noutput_commit:%s", r.OutputCommit)
	fmt.Fprintf(&b, "\nfuel_used:%d", r.Metrics.FuelUsed)
	fmt.Fprintf(&b, "\nmemory_mb:%.3f", r.Metrics.MemoryMB)
	fmt.Fprintf(&b, "\nduration_ms:%d", r.Metrics.DurationMS)
	fmt.Fprintf(&b, "\nhost_calls:%d", r.Metrics.HostCalls)
	fmt.Fprintf(&b, "\nnode_id:%s", r.NodeID)
	fmt.Fprintf(&b, "\nnonce:%d", r.Nonce)
	fmt.Fprintf(&b, "\ntimestamp:%s", r.Timestamp)
	fmt.Fprintf(&b, "\nstatus:%s", r.Status)
	return []byte(b.String())
}

// Sign fills NodeID from the key and signs the canonical payload.
func (r *Receipt) Sign(key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return errors.InvalidInput(errors.PhaseReceipt,
			fmt.Sprintf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key)))
	}
	r.NodeID = NodeID(key.Public().(ed25519.PublicKey))
	r.Signature = hex.EncodeToString(ed25519.Sign(key, r.payload()))

	Logger().Debug("receipt signed",
		zap.String("receipt_id", r.ReceiptID()),
		zap.String("node_id", r.NodeID),
		zap.Uint64("nonce", r.Nonce),
	)
	return nil
}

// Verify checks the signature against pub. Malformed receipt fields
// yield (false, error); a well-formed receipt whose signature does not
// match yields (false, nil).
func (r *Receipt) Verify(pub ed25519.PublicKey) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.InvalidInput(errors.PhaseReceipt,
			fmt.Sprintf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub)))
	}
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return false, errors.Wrap(errors.PhaseReceipt, errors.KindInvalidData, err, "signature is not hex")
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errors.InvalidInput(errors.PhaseReceipt,
			fmt.Sprintf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig)))
	}
	return ed25519.Verify(pub, r.payload(), sig), nil
}

// VerifyNode checks the signature against the public key the receipt
// itself names in NodeID.
func (r *Receipt) VerifyNode() (bool, error) {
	pub, err := ParseNodeID(r.NodeID)
	if err != nil {
		return false, err
	}
	return r.Verify(pub)
}

// VerifyCommitments recomputes the three digests from the given
// artifacts and compares them to the receipt's commits.
func (r *Receipt) VerifyCommitments(module, input, output []byte) bool {
	return r.CapsuleID == Commit(module) &&
		r.InputCommit == Commit(input) &&
		r.OutputCommit == Commit(output)
}

// ReceiptID derives a stable identifier from the receipt's content.
// The signature and timestamp are excluded, so re-signing the same
// execution yields the same id.
func (r *Receipt) ReceiptID() string {
	content := fmt.Sprintf("%s:%s:%s:%s:%d",
		r.CapsuleID, r.InputCommit, r.OutputCommit, r.NodeID, r.Nonce)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Age returns the time elapsed from the receipt timestamp to now.
// Negative when the timestamp lies in the future.
func (r *Receipt) Age(now time.Time) (time.Duration, error) {
	ts, err := time.Parse(TimeLayout, r.Timestamp)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseReceipt, errors.KindInvalidData, err, "timestamp does not match the receipt layout")
	}
	return now.Sub(ts), nil
}

// Encode renders the receipt as indented JSON for files and transport.
func (r *Receipt) Encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Decode parses a JSON receipt.
func Decode(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.PhaseReceipt, errors.KindInvalidData, err, "receipt is not valid JSON")
	}
	return &r, nil
}
