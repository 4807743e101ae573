package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/oprf"
	"github.com/cloudflare/circl/zk/dleq"
	"golang.org/x/crypto/cryptobyte"

	"github.com/privatestate/attribution-go/protocol"
)

// Wire formats (all integers big-endian):
//
//	blind message:   u16 count=1 | element (49)
//	signed response: u16 issued=1 | u32 key_id | element (49) | u16-prefixed proof (96)
//	token:           u32 key_id | u16-prefixed input | u16-prefixed output

var voprfSuite = oprf.SuiteP384

type voprfClient struct {
	keys    map[uint32]*oprf.PublicKey
	pending *oprf.FinalizeData
	input   []byte
}

func newVOPRFClient() *voprfClient {
	return &voprfClient{keys: make(map[uint32]*oprf.PublicKey)}
}

func parseVOPRFPublicKey(key []byte) (uint32, *oprf.PublicKey, error) {
	if len(key) != VOPRFKeySize {
		return 0, nil, fmt.Errorf("%w: VOPRF key is %d bytes, want %d", ErrMalformedKey, len(key), VOPRFKeySize)
	}
	id, material, err := ParseKey(key)
	if err != nil {
		return 0, nil, err
	}
	pk := new(oprf.PublicKey)
	if err := pk.UnmarshalBinary(voprfSuite, material); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return id, pk, nil
}

func (c *voprfClient) AddKey(key []byte) error {
	id, pk, err := parseVOPRFPublicKey(key)
	if err != nil {
		return err
	}
	if _, ok := c.keys[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateKeyID, id)
	}
	c.keys[id] = pk
	return nil
}

func (c *voprfClient) KeyCount() int {
	return len(c.keys)
}

func (c *voprfClient) Blind(message []byte) ([]byte, error) {
	if len(c.keys) == 0 {
		return nil, ErrNoKeys
	}

	// Blinding does not depend on the server key, only on the mode, so any
	// registered key will do here. Finalize picks the one the issuer used.
	var pk *oprf.PublicKey
	for _, k := range c.keys {
		pk = k
		break
	}
	client := oprf.NewVerifiableClient(voprfSuite, pk)
	input := append([]byte(nil), message...)
	blind := voprfSuite.Group().RandomScalar(random())
	fin, req, err := client.DeterministicBlind([][]byte{input}, []oprf.Blind{blind})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}

	elem, err := req.Elements[0].MarshalBinaryCompress()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}

	var b cryptobyte.Builder
	b.AddUint16(1)
	b.AddBytes(elem)
	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}

	c.pending = fin
	c.input = input
	return out, nil
}

type voprfResponse struct {
	keyID   uint32
	element group.Element
	proof   *dleq.Proof
}

func parseVOPRFResponse(data []byte) (*voprfResponse, error) {
	s := cryptobyte.String(data)
	var issued uint16
	var keyID uint32
	var elem []byte
	var proof cryptobyte.String
	if !s.ReadUint16(&issued) || !s.ReadUint32(&keyID) ||
		!s.ReadBytes(&elem, VOPRFElementSize) ||
		!s.ReadUint16LengthPrefixed(&proof) || !s.Empty() {
		return nil, fmt.Errorf("%w: bad framing", ErrMalformedResponse)
	}
	if issued != MaxBatchSize {
		return nil, fmt.Errorf("%w: %d tokens issued", ErrMalformedResponse, issued)
	}
	if len(proof) != VOPRFProofSize {
		return nil, fmt.Errorf("%w: proof is %d bytes", ErrMalformedResponse, len(proof))
	}

	g := voprfSuite.Group()
	e := g.NewElement()
	if err := e.UnmarshalBinary(elem); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	p := new(dleq.Proof)
	if err := p.UnmarshalBinary(g, proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &voprfResponse{keyID: keyID, element: e, proof: p}, nil
}

func (c *voprfClient) Finalize(response []byte) ([]byte, error) {
	if c.pending == nil {
		return nil, ErrNotBlinded
	}
	fin, input := c.pending, c.input
	c.pending, c.input = nil, nil

	resp, err := parseVOPRFResponse(response)
	if err != nil {
		return nil, err
	}
	pk, ok := c.keys[resp.keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, resp.keyID)
	}

	eval := &oprf.Evaluation{Elements: []oprf.Evaluated{resp.element}, Proof: resp.proof}
	outputs, err := oprf.NewVerifiableClient(voprfSuite, pk).Finalize(fin, eval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var b cryptobyte.Builder
	b.AddUint32(resp.keyID)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(input)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(outputs[0])
	})
	return b.Bytes()
}

type voprfSigner struct {
	id uint32
	sk *oprf.PrivateKey
}

func generateVOPRFSigner(id uint32) (*voprfSigner, error) {
	sk, err := oprf.GenerateKey(voprfSuite, random())
	if err != nil {
		return nil, fmt.Errorf("failed to generate VOPRF key: %w", err)
	}
	return &voprfSigner{id: id, sk: sk}, nil
}

func parseVOPRFSigner(id uint32, material []byte) (*voprfSigner, error) {
	sk := new(oprf.PrivateKey)
	if err := sk.UnmarshalBinary(voprfSuite, material); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSigner, err)
	}
	return &voprfSigner{id: id, sk: sk}, nil
}

func (s *voprfSigner) Version() protocol.Version {
	return protocol.VersionPrivateStateTokenV1VOPRF
}

func (s *voprfSigner) KeyID() uint32 { return s.id }

func (s *voprfSigner) PublicKey() ([]byte, error) {
	material, err := s.sk.Public().MarshalBinary()
	if err != nil {
		return nil, err
	}
	return MarshalKey(s.id, material), nil
}

func (s *voprfSigner) MarshalBinary() ([]byte, error) {
	material, err := s.sk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return marshalSigner(s.Version(), s.id, material)
}

func (s *voprfSigner) Sign(blindMessage []byte) ([]byte, error) {
	in := cryptobyte.String(blindMessage)
	var count uint16
	var elem []byte
	if !in.ReadUint16(&count) {
		return nil, ErrMalformedMessage
	}
	if count != MaxBatchSize {
		return nil, fmt.Errorf("%w: %d elements", ErrBatchUnsupported, count)
	}
	if !in.ReadBytes(&elem, VOPRFElementSize) || !in.Empty() {
		return nil, ErrMalformedMessage
	}

	blinded := voprfSuite.Group().NewElement()
	if err := blinded.UnmarshalBinary(elem); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	server := oprf.NewVerifiableServer(voprfSuite, s.sk)
	eval, err := server.Evaluate(&oprf.EvaluationRequest{Elements: []oprf.Blinded{blinded}})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate: %w", err)
	}
	evaluated, err := eval.Elements[0].MarshalBinaryCompress()
	if err != nil {
		return nil, err
	}
	proof, err := eval.Proof.MarshalBinary()
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddUint16(1)
	b.AddUint32(s.id)
	b.AddBytes(evaluated)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(proof)
	})
	return b.Bytes()
}

func (s *voprfSigner) Verify(token []byte) ([]byte, error) {
	in := cryptobyte.String(token)
	var keyID uint32
	var input, output cryptobyte.String
	if !in.ReadUint32(&keyID) || !in.ReadUint16LengthPrefixed(&input) ||
		!in.ReadUint16LengthPrefixed(&output) || !in.Empty() {
		return nil, ErrMalformedToken
	}
	if keyID != s.id {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, keyID)
	}
	if !oprf.NewVerifiableServer(voprfSuite, s.sk).VerifyFinalize(input, output) {
		return nil, ErrVerificationFailed
	}
	return []byte(input), nil
}
