package api

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethcf/blobkit-proxy/jobcoordinator"
	"github.com/ethcf/blobkit-proxy/log"
)

// writeBlob handles POST /api/v1/blob/write.
func (a *API) writeBlob(w http.ResponseWriter, r *http.Request) {
	var body BlobWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrMarshalingBodyFailed.WithErr(err).Write(w)
		return
	}

	req, apiErr := decodeBlobWriteRequest(body)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}

	receipt, err := a.coordinator.SubmitJob(r.Context(), req)
	if err != nil {
		mapJobCoordinatorError(err).Write(w)
		return
	}

	httpWriteJSON(w, BlobWriteResponse{
		Success:     true,
		BlobTxHash:  receipt.BlobTxHash,
		BlockNumber: receipt.BlockNumber,
		BlobHash:    receipt.BlobVersionedHash,
		Commitment:  receipt.Commitment,
		Proofs:      receipt.Proofs,
		BlobIndex:   receipt.BlobIndex,
	})
}

func decodeBlobWriteRequest(body BlobWriteRequest) (jobcoordinator.SubmitJobRequest, *Error) {
	var req jobcoordinator.SubmitJobRequest

	jobID, err := decodeHex32(body.JobID)
	if err != nil {
		e := ErrValidationFailed.Withf("jobId: %v", err)
		return req, &e
	}
	paymentTxHash, err := decodeHex32(body.PaymentTxHash)
	if err != nil {
		e := ErrValidationFailed.Withf("paymentTxHash: %v", err)
		return req, &e
	}
	payload, err := base64.StdEncoding.DecodeString(body.Payload)
	if err != nil {
		e := ErrValidationFailed.Withf("payload: not valid base64: %v", err)
		return req, &e
	}
	signature, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		e := ErrValidationFailed.Withf("signature: not valid base64: %v", err)
		return req, &e
	}

	req = jobcoordinator.SubmitJobRequest{
		JobID:         jobID,
		PaymentTxHash: paymentTxHash,
		Payload:       payload,
		Signature:     signature,
		Meta: jobcoordinator.BlobMeta{
			AppID:       body.Meta.AppID,
			Codec:       body.Meta.Codec,
			ContentHash: body.Meta.ContentHash,
			TTLBlocks:   body.Meta.TTLBlocks,
			Timestamp:   body.Meta.Timestamp,
			Filename:    body.Meta.Filename,
			ContentType: body.Meta.ContentType,
			Tags:        body.Meta.Tags,
		},
	}
	return req, nil
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, errors.New("must decode to exactly 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// mapJobCoordinatorError translates jobcoordinator's sentinel domain
// errors into the stable api.Error taxonomy, per §7.
func mapJobCoordinatorError(err error) Error {
	switch {
	case errors.Is(err, jobcoordinator.ErrValidationFailed):
		return ErrValidationFailed.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrJobNotFound):
		return ErrJobNotFound.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrSignatureMismatch):
		return ErrSignatureMismatch.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrInsufficientDeposit):
		return ErrInsufficientDeposit.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrJobAlreadyCompleted):
		return ErrJobAlreadyCompleted.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrJobExpired):
		return ErrJobExpired.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrJobInFlight):
		return ErrJobInFlight.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrUpstreamUnavailable):
		return ErrUpstreamUnavailable.WithErr(err)
	case errors.Is(err, jobcoordinator.ErrBlobSubmissionFailed):
		return ErrBlobSubmissionFailed.WithErr(err)
	default:
		log.Errorw(err, "unmapped jobcoordinator error")
		return ErrGenericInternalServerError.WithErr(err)
	}
}
