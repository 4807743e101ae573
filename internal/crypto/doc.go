// Package crypto provides the blind-signature backends behind attribution
// verification tokens. Each backend has a client half, which blinds a
// message and later unblinds the issuer's response into a token, and a
// signer half used by issuers.
//
// # Backends
//
//   - PrivateStateTokenV1VOPRF: verifiable OPRF over P-384 with SHA-384
//     (RFC 9497, via circl/oprf). The issuer attaches a DLEQ proof to each
//     evaluation, so the client can check the response was produced with a
//     committed key.
//
//   - PrivateStateTokenV1BlindRSA: RSABSSA-SHA384-PSS-Randomized (RFC 9474,
//     via circl/blindsign/blindrsa). The client unblinds and verifies a
//     standard RSA-PSS signature.
//
// # Keys
//
// A committed key is a 4-byte big-endian key ID followed by the public
// material: a compressed P-384 point for VOPRF, a PKIX DER public key of
// at least 2048 bits for blind RSA. [Client.AddKey] validates keys strictly
// against the client's version, so a key for one version is rejected by the
// other.
//
// # Wire Formats
//
// Blind messages, signed responses and tokens are framed with
// golang.org/x/crypto/cryptobyte. Each backend documents its layout in its
// source file. Exactly one blind message is carried per request.
//
// # Messages
//
// [DeriveMessage] turns a request context into the message that gets
// blinded, using HKDF-SHA-512 with [MessageContext] as the info string.
package crypto
