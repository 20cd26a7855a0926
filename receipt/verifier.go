package receipt

import "time"

// DefaultMaxAge is the freshness window applied when a Verifier does
// not set one.
const DefaultMaxAge = time.Hour

// Verifier checks receipts for signature validity and freshness.
// Replay protection is the caller's concern: track last-seen nonces
// per node on top of this check.
type Verifier struct {
	// MaxAge bounds how old an accepted receipt may be.
	// Zero or negative means DefaultMaxAge.
	MaxAge time.Duration
}

// VerifyReceipt checks the signature against the receipt's own node id
// and rejects receipts older than MaxAge. A stale or mismatched receipt
// yields (false, nil); malformed fields yield (false, error).
func (v Verifier) VerifyReceipt(r *Receipt) (bool, error) {
	ok, err := r.VerifyNode()
	if err != nil || !ok {
		return false, err
	}

	age, err := r.Age(time.Now().UTC())
	if err != nil {
		return false, err
	}
	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return age <= maxAge, nil
}
