// Package protocol defines the wire-level constants shared by clients and
// issuers of attribution verification tokens: the supported protocol
// versions and the HTTP header names that carry protocol values.
package protocol
