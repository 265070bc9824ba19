// Package rfc2136 manages a zone hosted on any authoritative server that
// accepts RFC 2136 dynamic updates (BIND, Knot, PowerDNS, Windows DNS).
//
// Lookups are plain non-recursive queries to the authoritative server.
// A change set becomes a single UPDATE message: every deleted record is
// also listed as a value-dependent prerequisite, so the server applies the
// whole message or nothing, and refuses it if the zone moved on since the
// lookup.
//
// # Configuration
//
//	DYNHOST_HOME_TYPE=rfc2136
//	DYNHOST_HOME_SERVER=ns1.example.com:53
//	DYNHOST_HOME_ZONE=example.com.
//
//	# TSIG authentication (recommended)
//	DYNHOST_HOME_TSIG_KEY_NAME=dynhost.
//	DYNHOST_HOME_TSIG_SECRET_FILE=/run/secrets/tsig-key
//	DYNHOST_HOME_TSIG_ALGORITHM=hmac-sha256
//
//	# Optional
//	DYNHOST_HOME_TIMEOUT=10
//	DYNHOST_HOME_USE_TCP=false
package rfc2136
