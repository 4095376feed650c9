// Package crypto holds the symmetric primitives used by a session.
//
// Contents
//
//   - Per-contact session key derivation (DeriveKey)
//   - Random key and nonce generation (GenerateKey, NewNonce)
//   - AES-128-GCM sealing and opening (Seal, Open)
//   - Short fingerprints of identifiers for logging (Fingerprint)
//
// # Notes
//
// DeriveKey is deterministic: both peers compute the same key from the
// shared contact id without a handshake. There is no forward secrecy and no
// rotation, and the key is only as secret as the contact id.
package crypto
