// Package protocol owns the envelope wire format and its parsing
// primitives.
//
// A frame is a fixed 32-byte big-endian header, an optional
// length-prefixed signature block (present iff FlagHasAuth), and a
// sequence of TLV fields. Field order is preserved on decode so that
// re-encoding a decoded message reproduces the original bytes.
//
// Ownership boundary:
// - frame/header primitives
// - tlv field primitives
// - semantic (schema-typed) field access
package protocol
