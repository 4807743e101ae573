// Package keycommitments holds the signing keys each token issuer has
// committed to, keyed by issuer origin.
//
// Lookups go through the [Getter] interface. A [Snapshot] is an immutable
// view that can be handed to a verification cycle; a [Store] publishes
// snapshots atomically so concurrent readers never observe a partially
// updated key set. [Refresher] keeps a Store current by polling an issuer,
// and [DiskCache] persists the last good snapshot across restarts.
//
// Commitments are exchanged as JSON in the following shape, where expiry
// is microseconds since the Unix epoch:
//
//	{
//	  "https://issuer.example": {
//	    "PrivateStateTokenV1VOPRF": {
//	      "protocol_version": "PrivateStateTokenV1VOPRF",
//	      "id": 1,
//	      "batchsize": 1,
//	      "keys": {
//	        "1": {"Y": "<base64 key>", "expiry": "1893456000000000"}
//	      }
//	    }
//	  }
//	}
package keycommitments
