package portal

import "fmt"

// Step is a state of the portal session.
type Step int

// Session steps, in order.
const (
	StepLogin Step = iota
	StepSecondFactor
	StepApplyUpdate
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepLogin:
		return "login"
	case StepSecondFactor:
		return "second_factor"
	case StepApplyUpdate:
		return "apply_update"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Kind classifies a session failure.
type Kind int

// Failure kinds.
const (
	UnexpectedResponse Kind = iota + 1
	SessionCookieMissing
	MfaCookieMissing
	UpdateRequestFailed
)

func (k Kind) String() string {
	switch k {
	case UnexpectedResponse:
		return "unexpected_response"
	case SessionCookieMissing:
		return "session_cookie_missing"
	case MfaCookieMissing:
		return "mfa_cookie_missing"
	case UpdateRequestFailed:
		return "update_request_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StepError reports the step a session failed in and why. Status is the
// HTTP status of the failing response, 0 when there was none.
type StepError struct {
	Step   Step
	Kind   Kind
	Status int
	Err    error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("portal %s: %s", e.Step, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one session: the last step reached and the
// error that stopped it, nil when the update was applied.
type Outcome struct {
	Step Step
	Err  error
}

// OK reports whether the session completed.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Step == StepDone
}
