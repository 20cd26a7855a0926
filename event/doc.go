// Package event keeps a node-signed DAG of federation events.
//
// An event names its creator (hex ed25519 public key), its parents,
// and a per-node sequence number. The id is the hex SHA-256 digest of
// the signing payload, so id, signature and content stand or fall
// together:
//
//	TENZIK_EVENT_V1
//	type:<receipt|node_announce|node_leave|heartbeat>
//	content:<hex sha256 of content bytes>
//	parents:<comma-joined parent ids>
//	sequence:<decimal>
//	node_id:<hex>
//	timestamp:<2006-01-02T15:04:05.000Z>
//
// Receipt events carry a JSON execution receipt as content; the other
// types carry small JSON payloads describing node membership and
// liveness.
//
// # Log
//
// Log is the in-memory store. Append admits an event only when its id
// matches the payload, its signature verifies, all parents are already
// present, and its sequence is strictly greater than the node's last.
// Duplicates are ignored. Heads are the events nothing points to yet;
// chaining the current head ids as parents of the next event keeps the
// DAG connected. Persistence and gossip are for layers above.
package event
