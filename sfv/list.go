package sfv

import (
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// SerializeList renders members as an RFC 8941 list of sf-strings separated
// by ", ". Quotes and backslashes are escaped. A member containing any
// byte outside 0x20-0x7E yields ErrUnserializable.
func SerializeList(members []string) (string, error) {
	parts := make([]string, len(members))
	for i, m := range members {
		s, err := httpsfv.Marshal(httpsfv.NewItem(m))
		if err != nil {
			return "", fmt.Errorf("member %d: %w: %v", i, ErrUnserializable, err)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

// ParseList parses an RFC 8941 list whose members are all sf-strings. Any
// deviation yields a *ParseError matching ErrMalformedList; partial results
// are never returned.
func ParseList(value string) ([]string, error) {
	list, err := httpsfv.UnmarshalList([]string{value})
	if err != nil {
		return nil, &ParseError{Reason: "invalid list syntax", Err: err}
	}

	members := make([]string, 0, len(list))
	for i, m := range list {
		item, ok := m.(httpsfv.Item)
		if !ok {
			return nil, &ParseError{Member: i, Reason: "inner lists are not supported"}
		}
		s, ok := item.Value.(string)
		if !ok {
			return nil, &ParseError{Member: i, Reason: fmt.Sprintf("list member is %T, not a string", item.Value)}
		}
		if item.Params != nil && len(item.Params.Names()) > 0 {
			return nil, &ParseError{Member: i, Reason: "parameters are not supported"}
		}
		members = append(members, s)
	}
	return members, nil
}
