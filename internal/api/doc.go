// Package api provides the HTTP client used to talk to a token issuer: it
// fetches key commitments, submits issuance requests and redeems tokens.
// Every request carries a context and is retried with exponential backoff
// for transient failures.
//
// # Retry Behavior
//
// By default, requests are retried up to 3 times for these HTTP status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// The retry delay doubles with each attempt (1s, 2s, 4s, ...) with 20%
// jitter, capped at 30s. A Retry-After header given in seconds takes
// precedence. Configure it with [WithRetryConfig].
//
// Redemptions are not idempotent: they are retried only after 429, never
// after a network error or a server error.
//
// # Error Handling
//
// Non-2xx responses are returned as [*APIError], which matches the shared
// sentinels with errors.Is:
//
//   - 404 on the key commitment endpoint: verifyerrors.ErrNoCommitment
//   - 400 on issuance: verifyerrors.ErrIssuanceFailed
//   - 409 on redemption: verifyerrors.ErrDoubleSpend
//   - 429: verifyerrors.ErrRateLimited
//
// Transport failures are returned as [*NetworkError].
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
