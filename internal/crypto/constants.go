package crypto

const (
	// MessageContext is the HKDF info string used to derive issuance
	// messages from request contexts, for domain separation.
	MessageContext = "attribution-verification:message:v1"

	// MessageSize is the size of a derived issuance message in bytes.
	MessageSize = 32

	// KeyIDSize is the size of the big-endian key ID that prefixes every
	// committed key.
	KeyIDSize = 4

	// VOPRFElementSize is the size of a compressed P-384 point.
	VOPRFElementSize = 49
	// VOPRFKeySize is the size of a committed VOPRF key: key ID plus point.
	VOPRFKeySize = KeyIDSize + VOPRFElementSize
	// VOPRFProofSize is the size of a serialized DLEQ proof (two P-384 scalars).
	VOPRFProofSize = 96

	// RSAMinBits is the smallest accepted blind RSA modulus.
	RSAMinBits = 2048
	// RSADefaultBits is the modulus size used by GenerateSigner.
	RSADefaultBits = 2048

	// MaxBatchSize is the number of blind messages carried per request.
	MaxBatchSize = 1
)

// VOPRFCiphersuite names the OPRF suite backing the VOPRF version.
var VOPRFCiphersuite = "P384-SHA384"

// RSACiphersuite names the RFC 9474 variant backing the blind RSA version.
var RSACiphersuite = "RSABSSA-SHA384-PSS-Randomized"
