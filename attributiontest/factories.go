package attributiontest

import (
	"github.com/privatestate/attribution-go"
	"github.com/privatestate/attribution-go/keycommitments"
)

// NewTestKeyCommitments returns a store holding one issuer with one
// non-expiring key.
func NewTestKeyCommitments(key string, version attribution.ProtocolVersion, issuerURL string) (*keycommitments.Store, error) {
	snap, err := keycommitments.NewSingle([]byte(key), version, issuerURL)
	if err != nil {
		return nil, err
	}
	return keycommitments.NewStore(snap), nil
}

// identityMessage uses the request context itself as the message, so
// blind messages stay readable in tests.
func identityMessage(requestContext string) (string, error) {
	return requestContext, nil
}

// NewTestMediator returns a Mediator whose cryptographers come from
// factory (a fresh FakeFactory when nil) and whose message is the request
// context unchanged.
func NewTestMediator(commitments keycommitments.Getter, factory *FakeFactory, opts ...attribution.Option) *attribution.Mediator {
	if factory == nil {
		factory = &FakeFactory{}
	}
	base := []attribution.Option{
		attribution.WithCryptographerFactory(factory.New),
		attribution.WithMessageFunc(identityMessage),
	}
	return attribution.NewMediator(commitments, append(base, opts...)...)
}

// NewTestRequestHelper returns a RequestHelper wired like NewTestMediator.
func NewTestRequestHelper(commitments keycommitments.Getter, factory *FakeFactory, opts ...attribution.HelperOption) *attribution.RequestHelper {
	if factory == nil {
		factory = &FakeFactory{}
	}
	base := []attribution.HelperOption{
		attribution.WithMediatorOptions(
			attribution.WithCryptographerFactory(factory.New),
			attribution.WithMessageFunc(identityMessage),
		),
	}
	return attribution.NewRequestHelper(commitments, append(base, opts...)...)
}
