// Package keys provides the consensus and execution key types held by safety rules.
//
// Two signature schemes are supported:
//   - ed25519 (default)
//   - mldsa44, the post-quantum ML-DSA-44 scheme from cloudflare/circl
//
// Private keys are always reconstructed from a 32-byte seed, so one text form
// covers both schemes: "<scheme>:" + base64(seed). Public keys use the same
// layout over the encoded public key bytes.
package keys
