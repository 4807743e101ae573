package keycommitments

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/protocol"
)

// ErrMalformedCommitment is returned when a commitment document does not parse.
var ErrMalformedCommitment = errors.New("malformed key commitment")

type jsonKey struct {
	Y      string `json:"Y"`
	Expiry string `json:"expiry,omitempty"`
}

type jsonCommitment struct {
	ProtocolVersion string             `json:"protocol_version"`
	ID              int                `json:"id"`
	BatchSize       int                `json:"batchsize"`
	Keys            map[string]jsonKey `json:"keys"`
}

// ParseOptions controls which parts of a commitment document are kept.
type ParseOptions struct {
	// Now is used to drop expired keys. Zero means time.Now().
	Now time.Time
	// Supported reports whether a version can be used. Nil accepts every
	// known version.
	Supported func(protocol.Version) bool
}

// Parse decodes a commitment document. For each issuer it keeps the most
// preferred supported version (see protocol.PreferredVersions) that still
// has unexpired keys. Unknown version names are skipped; issuers left
// without usable keys are omitted.
func Parse(data []byte, opts ParseOptions) (*Snapshot, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var doc map[string]map[string]jsonCommitment
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommitment, err)
	}

	snap := &Snapshot{entries: make(map[string]Commitment, len(doc)), fetched: now}
	for issuer, versions := range doc {
		origin, err := NormalizeOrigin(issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: issuer %q: %v", ErrMalformedCommitment, issuer, err)
		}

		parsed := make(map[protocol.Version]Commitment, len(versions))
		for name, jc := range versions {
			v, err := protocol.ParseVersion(name)
			if err != nil {
				continue
			}
			if opts.Supported != nil && !opts.Supported(v) {
				continue
			}
			c, err := jc.decode(v)
			if err != nil {
				return nil, fmt.Errorf("%w: issuer %q version %s: %v", ErrMalformedCommitment, issuer, name, err)
			}
			c = c.Unexpired(now)
			if len(c.Keys) > 0 {
				parsed[v] = c
			}
		}

		for _, v := range protocol.PreferredVersions {
			if c, ok := parsed[v]; ok {
				snap.entries[origin] = c
				break
			}
		}
	}
	return snap, nil
}

func (jc jsonCommitment) decode(v protocol.Version) (Commitment, error) {
	if jc.ProtocolVersion != "" && jc.ProtocolVersion != v.String() {
		return Commitment{}, fmt.Errorf("protocol_version %q does not match %q", jc.ProtocolVersion, v)
	}
	if jc.ID < 0 {
		return Commitment{}, fmt.Errorf("negative id %d", jc.ID)
	}
	if jc.BatchSize <= 0 {
		return Commitment{}, fmt.Errorf("batchsize %d", jc.BatchSize)
	}

	ids := make([]uint64, 0, len(jc.Keys))
	byID := make(map[uint64]jsonKey, len(jc.Keys))
	for label, k := range jc.Keys {
		id, err := strconv.ParseUint(label, 10, 32)
		if err != nil {
			return Commitment{}, fmt.Errorf("key label %q is not a key id", label)
		}
		ids = append(ids, id)
		byID[id] = k
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	c := Commitment{Version: v, ID: jc.ID, BatchSize: jc.BatchSize}
	for _, id := range ids {
		jk := byID[id]
		body, err := crypto.DecodeBase64(jk.Y)
		if err != nil || len(body) == 0 {
			return Commitment{}, fmt.Errorf("key %d: invalid Y", id)
		}
		key := Key{Body: body}
		if jk.Expiry != "" {
			us, err := strconv.ParseInt(jk.Expiry, 10, 64)
			if err != nil || us < 0 {
				return Commitment{}, fmt.Errorf("key %d: invalid expiry %q", id, jk.Expiry)
			}
			key.Expiry = time.UnixMicro(us)
		}
		c.Keys = append(c.Keys, key)
	}
	return c, nil
}

// Marshal encodes a snapshot as a commitment document. Keys are labelled
// with their position; a zero expiry is omitted.
func Marshal(s *Snapshot) ([]byte, error) {
	doc := make(map[string]map[string]jsonCommitment, s.Len())
	if s != nil {
		for origin, c := range s.entries {
			if !c.Version.Valid() {
				return nil, fmt.Errorf("issuer %q: invalid version %v", origin, c.Version)
			}
			jc := jsonCommitment{
				ProtocolVersion: c.Version.String(),
				ID:              c.ID,
				BatchSize:       c.BatchSize,
				Keys:            make(map[string]jsonKey, len(c.Keys)),
			}
			for i, k := range c.Keys {
				jk := jsonKey{Y: crypto.ToBase64(k.Body)}
				if !k.Expiry.IsZero() {
					jk.Expiry = strconv.FormatInt(k.Expiry.UnixMicro(), 10)
				}
				jc.Keys[strconv.Itoa(i+1)] = jk
			}
			doc[origin] = map[string]jsonCommitment{c.Version.String(): jc}
		}
	}
	return json.Marshal(doc)
}

// MarshalCommitment encodes one issuer's commitment, as an issuer would
// serve it from its key commitment endpoint.
func MarshalCommitment(issuerURL string, c Commitment) ([]byte, error) {
	snap, err := NewSnapshot(map[string]Commitment{issuerURL: c})
	if err != nil {
		return nil, err
	}
	return Marshal(snap)
}
