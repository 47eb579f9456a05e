package jobcoordinator

import (
	"fmt"

	"github.com/ethcf/blobkit-proxy/crypto/blobs"
)

// errInvalid wraps a reason under ErrValidationFailed.
func errInvalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, reason)
}

// validateRequest is precondition 1 of §4.E: payload size and meta shape.
// jobId/paymentTxHash are already validated as 32-byte hashes by the HTTP
// layer's hex decoding, so only the fields that survive decoding still
// need checking here.
func validateRequest(req SubmitJobRequest) error {
	if len(req.Payload) == 0 {
		return errInvalid("payload must not be empty")
	}
	if len(req.Payload) > blobs.MaxPayloadSize {
		return errInvalid(fmt.Sprintf("payload exceeds maximum blob capacity of %d bytes", blobs.MaxPayloadSize))
	}
	if len(req.Signature) != 65 {
		return errInvalid("signature must be 65 bytes (r, s, v)")
	}
	return req.Meta.validate()
}
