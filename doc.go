// Package attribution implements attribution verification with Private
// State Tokens: a blind-signature exchange that lets an issuer attest that
// a request was verified without learning which client sent it.
//
// A Mediator runs one cycle per request. PrepareIssuance blinds a message
// derived from the request context under the issuer's committed keys and
// returns the header to attach; CompleteRedemption verifies the issuer's
// signed response and returns the redemption header:
//
//	store, err := keycommitments.NewSingle(key, attribution.VersionPrivateStateTokenV1VOPRF, issuerURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m := attribution.NewMediator(store)
//	iss, err := m.PrepareIssuance(issuerURL, reportID)
//	if attribution.IsNoCommitment(err) {
//	    // send the request without verification
//	}
//	req.Header.Set(protocol.HeaderToken, iss.Header)
//	req.Header.Set(protocol.HeaderCryptoVersion, iss.Version.String())
//
//	// ... send req, receive resp ...
//
//	token, err := m.CompleteRedemption(resp.Header.Get(protocol.HeaderToken))
//
// RequestHelper and Transport do the header plumbing for net/http, and
// Client runs complete cycles against a live issuer.
package attribution
