// Package protocol owns the operation and response wire contract.
//
// Ownership boundary:
// - operation tags and per-tag payload layouts
// - bounds-checked decode of attacker controlled payloads
// - response records sent back to the host
// - host-side encoders and batch packing
//
// Framing lives in protocol/frame; this package only sees unframed payloads.
package protocol
