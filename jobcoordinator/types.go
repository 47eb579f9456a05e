package jobcoordinator

// BlobMeta accompanies a submitted payload, per §3's Payload data model.
type BlobMeta struct {
	AppID       string   `json:"appId"`
	Codec       string   `json:"codec,omitempty"`
	ContentHash string   `json:"contentHash,omitempty"`
	TTLBlocks   uint64   `json:"ttlBlocks,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

const (
	minAppIDLen = 1
	maxAppIDLen = 50
	maxTags     = 10
)

func (m BlobMeta) validate() error {
	if len(m.AppID) < minAppIDLen || len(m.AppID) > maxAppIDLen {
		return errInvalid("meta.appId must be 1..50 characters")
	}
	if len(m.Tags) > maxTags {
		return errInvalid("meta.tags must have at most 10 entries")
	}
	return nil
}

// toMap flattens BlobMeta into the string map the Blob Transaction Engine
// and BlobReceipt persist.
func (m BlobMeta) toMap() map[string]string {
	out := map[string]string{"appId": m.AppID}
	if m.Codec != "" {
		out["codec"] = m.Codec
	}
	if m.ContentHash != "" {
		out["contentHash"] = m.ContentHash
	}
	if m.Filename != "" {
		out["filename"] = m.Filename
	}
	if m.ContentType != "" {
		out["contentType"] = m.ContentType
	}
	return out
}

// SubmitJobRequest is the Job Coordinator's input, already decoded from
// the HTTP layer's base64/hex wire representation.
type SubmitJobRequest struct {
	JobID         [32]byte
	PaymentTxHash [32]byte
	Payload       []byte
	Signature     []byte
	Meta          BlobMeta
}

// HealthStatus is the Job Coordinator's getHealth() result, per §6.
type HealthStatus struct {
	Status          string `json:"status"`
	ChainID         uint64 `json:"chainId"`
	EscrowContract  string `json:"escrowContract"`
	ProxyFeePercent int    `json:"proxyFeePercent"`
	MaxBlobSize     int    `json:"maxBlobSize"`
}
