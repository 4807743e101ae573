// Package sfv encodes and decodes ordered lists of strings as a single HTTP
// header value, using the List and String productions of RFC 8941
// (Structured Field Values for HTTP).
//
// Only lists whose members are bare sf-strings are supported. Tokens,
// integers, byte sequences, inner lists and parameters are rejected by
// ParseList. Every list of printable ASCII strings round-trips:
//
//	v, _ := sfv.SerializeList(xs)
//	ys, _ := sfv.ParseList(v) // ys equals xs
//
// The empty list serializes to the empty string, and an empty (or
// whitespace-only) header value parses to the empty list.
package sfv
