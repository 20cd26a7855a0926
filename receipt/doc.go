// Package receipt issues and verifies signed execution receipts.
//
// A receipt binds one capsule execution to its artifacts through three
// hex SHA-256 commits (capsule bytes, input, output), the execution
// metrics, and the issuing node's identity. Receipts let a third party
// check what ran and what it produced without re-executing anything.
//
// # Signing Payload
//
// The ed25519 signature covers a canonical newline-separated payload,
// never the JSON encoding:
//
//	TENZIK_RECEIPT_V1
//	capsule_id:<hex>
//	input_commit:<hex>
//	output_commit:<hex>
//	fuel_used:<decimal>
//	memory_mb:<%.3f>
//	duration_ms:<decimal>
//	host_calls:<decimal>
//	node_id:<hex>
//	nonce:<decimal>
//	timestamp:<2006-01-02T15:04:05.000Z>
//	status:<ok or failure status>
//
// JSON is a transport encoding only; reordering or reformatting JSON
// fields cannot invalidate a signature.
//
// # Identity
//
// A node is its ed25519 public key, carried in hex as node_id. Sign
// fills node_id from the signing key, so a receipt always names the
// key that can verify it. ReceiptID derives a stable identifier from
// the commits, node and nonce; it ignores signature and timestamp.
//
// # Verification
//
// Verify checks the signature against a caller-supplied key, VerifyNode
// against the embedded node_id, and VerifyCommitments recomputes the
// three digests from the raw artifacts. Verifier layers a freshness
// window on top. All of them report a clean mismatch as (false, nil);
// errors are reserved for receipts too malformed to check.
//
// Nonces increase monotonically per signer but nothing here tracks
// them: a consumer that wants replay protection must record the last
// nonce seen per node_id on its own side.
package receipt
