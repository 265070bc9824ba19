package reconciler

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrNoAddress is returned when Reconcile is called without any address.
var ErrNoAddress = errors.New("no address to publish")

// Kind classifies a reconcile failure.
type Kind int

// Failure kinds.
const (
	// NoAddress means neither family was requested.
	NoAddress Kind = iota + 1
	// HostNotFound means the zone holds no record of a requested type for
	// the host. New names are never created.
	HostNotFound
	// ProviderError means the zone failed the lookup or the change.
	ProviderError
)

func (k Kind) String() string {
	switch k {
	case NoAddress:
		return "no_address"
	case HostNotFound:
		return "host_not_found"
	case ProviderError:
		return "provider_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a reconcile failure in the shape returned to clients.
type Error struct {
	Kind   Kind
	Code   int
	Title  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Values are the addresses now published for Host. An invalid address means
// that family was not part of the update.
type Values struct {
	Host string
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// Outcome is the result of one Reconcile call. Err is nil on success.
type Outcome struct {
	Values Values
	Err    *Error
}

// OK reports whether the records were replaced.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result is the metric label for the outcome.
func (o Outcome) Result() string {
	if o.Err == nil {
		return "success"
	}
	return o.Err.Kind.String()
}
