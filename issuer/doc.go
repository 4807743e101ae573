// Package issuer implements the signing side of attribution verification:
// it publishes key commitments, signs blind messages and redeems tokens.
//
// An [Issuer] holds the signing keys of one origin. All keys share one
// protocol version. Blind RSA requests are signed with the key their blind
// message names; VOPRF requests are evaluated under the unexpired key with
// the highest ID.
//
// Redeemed tokens are recorded in a [SpentStore] so each token is accepted
// once. [MemorySpentStore] serves a single process; [RedisSpentStore]
// shares the record between replicas.
//
// [Server] exposes an Issuer over HTTP:
//
//	GET  /.well-known/private-state-token/key-commitment
//	POST /issue
//	POST /redeem
//	GET  /healthz
//	GET  /metrics
//
// Issue and redeem requests carry the protocol version and a structured
// header list in the headers named in package protocol. Errors are
// returned as JSON with "error" and "request_id" fields.
package issuer
