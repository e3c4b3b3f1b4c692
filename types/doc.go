// Package types defines the consensus objects that flow through safety rules:
// blocks, quorum certificates, votes, timeouts, epoch change proofs and
// waypoints, together with the persisted SafetyData.
//
// All types share one deterministic CBOR encoding (Marshal/Unmarshal). It is
// used for hashing, for persistence and on the wire between topologies.
package types
