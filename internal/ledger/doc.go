// Package ledger records per-identity session tokens and a journal of placement
// attempts.
//
// Two backends share one method set: Client stores everything in Redis so tokens
// survive a restart and several processes can watch the same placement stream;
// Memory keeps it in-process for single runs without Redis.
//
// # Redis Schema
//
// All keys are namespaced by instance name so several mosaic runs can share one
// Redis server:
//
//	Tokens:     mosaic:{instance}:token:{worker}      (hash: value, expires_at_ms)
//	Journal:    mosaic:{instance}:placements          (list, newest first, capped)
//	Events:     mosaic:{instance}:placement_events    (Pub/Sub, JSON placements)
//
// Cooldown state is deliberately absent: it is re-derived from the next
// placement response after a restart.
package ledger
