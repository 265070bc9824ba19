// Package dnsupdate provides an RFC 2136 Dynamic DNS Update client.
//
// It talks directly to the authoritative server for a zone (BIND, Knot,
// PowerDNS, Windows DNS) and submits every change as a single UPDATE
// message, which the server applies atomically.
//
// Key features:
//   - Atomic replace: deletions and additions travel in one UPDATE message
//   - Value-dependent prerequisites so a stale lookup fails with NXRRSET
//     instead of silently removing the wrong records
//   - TSIG authentication (RFC 8945) with HMAC-SHA256, HMAC-SHA512, HMAC-MD5
//   - UDP or TCP transport, context-aware exchanges
//
// # Usage
//
//	client, err := dnsupdate.NewClient(&dnsupdate.Config{
//	    Server:      "ns1.example.com:53",
//	    Zone:        "example.com.",
//	    TSIGKeyName: "dynhost.",
//	    TSIGSecret:  secret,
//	})
//	if err != nil {
//	    return err
//	}
//
//	old, err := client.Query(ctx, "home.example.com.", dns.TypeA)
//	...
//	err = client.Apply(ctx, old, []dnsupdate.Record{
//	    dnsupdate.NewARecord("home.example.com.", "203.0.113.7", 300),
//	})
//
// # Configuration keys
//
//	SERVER          - DNS server address (e.g., "ns1.example.com:53")
//	ZONE            - Zone name (e.g., "example.com.")
//	TSIG_KEY_NAME   - TSIG key name (e.g., "dynhost.")
//	TSIG_SECRET     - TSIG secret (base64-encoded)
//	TSIG_ALGORITHM  - hmac-sha256 (default), hmac-sha512, hmac-md5
//	TIMEOUT         - Timeout in seconds (default: 10)
//	USE_TCP         - Force TCP transport (default: false)
//
// Generate a key with BIND's tsig-keygen:
//
//	tsig-keygen -a hmac-sha256 dynhost > dynhost.key
package dnsupdate
