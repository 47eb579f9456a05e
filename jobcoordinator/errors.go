// Package jobcoordinator implements the hardest component of the proxy:
// precondition verification against the escrow contract, JobLock-guarded
// submission, JobResultCache consultation, and CompletionIntent creation.
package jobcoordinator

import "errors"

// Sentinel errors the HTTP layer maps to the §7 error taxonomy via
// errors.Is. Wrapped with context using fmt.Errorf("%w: ...") so callers
// keep both the Kind and a human-readable reason.
var (
	ErrValidationFailed     = errors.New("request failed validation")
	ErrJobNotFound          = errors.New("job not found on escrow contract")
	ErrSignatureMismatch    = errors.New("recovered signer does not match job owner")
	ErrInsufficientDeposit  = errors.New("escrowed amount is below the estimated blob cost")
	ErrJobAlreadyCompleted  = errors.New("job already completed")
	ErrJobExpired           = errors.New("job expired before submission")
	ErrJobInFlight          = errors.New("job is already being submitted, retry shortly")
	ErrUpstreamUnavailable  = errors.New("upstream RPC or signing provider unavailable")
	ErrBlobSubmissionFailed = errors.New("blob submission failed")
)
