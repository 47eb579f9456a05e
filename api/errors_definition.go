//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the caller's fault; 50001-59999
// are the proxy's or an upstream's fault. NEVER change an existing code,
// only append new ones after the current last 4XXX or 5XXX. If a gap
// appears in the sequence, leave it — that code was retired, not unused.
var (
	ErrValidationFailed      = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("request failed validation")}
	ErrSignatureMismatch     = Error{Code: 40002, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("recovered signer does not match job owner")}
	ErrInsufficientDeposit   = Error{Code: 40003, HTTPstatus: http.StatusPaymentRequired, Err: fmt.Errorf("escrowed amount is below the estimated blob cost")}
	ErrMarshalingBodyFailed  = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrJobNotFound           = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("job not found on escrow contract")}
	ErrJobAlreadyCompleted   = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("job already completed")}
	ErrJobExpired            = Error{Code: 41001, HTTPstatus: http.StatusGone, Err: fmt.Errorf("job expired before submission")}
	ErrJobInFlight           = Error{Code: 42301, HTTPstatus: http.StatusLocked, Err: fmt.Errorf("job is already being submitted, retry shortly")}
	ErrUpstreamUnavailable   = Error{Code: 50201, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("upstream RPC or signing provider unavailable")}
	ErrBlobSubmissionFailed  = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("blob submission failed")}
	ErrMarshalingServerJSONFailed = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
