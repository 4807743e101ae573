package protocol

// HTTP header constants.
const (
	// HeaderToken carries blind messages on the issuance request, the signed
	// response on the issuer's reply, and tokens on the redemption request.
	HeaderToken = "Sec-Attribution-Reporting-Private-State-Token"

	// HeaderCryptoVersion carries the wire name of the protocol version used
	// for the blind messages in HeaderToken.
	HeaderCryptoVersion = "Sec-Private-State-Token-Crypto-Version"
)

// Issuer endpoint paths.
const (
	// KeyCommitmentPath serves the issuer's key commitment JSON.
	KeyCommitmentPath = "/.well-known/private-state-token/key-commitment"
	// IssuePath accepts issuance requests.
	IssuePath = "/issue"
	// RedeemPath accepts redemption requests.
	RedeemPath = "/redeem"
)
