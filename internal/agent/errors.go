package agent

import "errors"

var (
	// ErrDecisionMalformed is returned by an Oracle when the model's reply
	// cannot be parsed into a decision.
	ErrDecisionMalformed = errors.New("decision output malformed")

	// ErrStreamSealed is returned by the emitter once the final chunk has
	// been emitted.
	ErrStreamSealed = errors.New("stream already sealed")

	// ErrInvalidResumptionToken is returned when a resumption token cannot
	// be decoded.
	ErrInvalidResumptionToken = errors.New("invalid resumption token")

	// ErrTargetUnavailable marks a failed page snapshot refresh. The loop
	// treats it as fatal: without perception there is nothing to decide on.
	ErrTargetUnavailable = errors.New("browser target unavailable")
)
