package api

// BlobWriteRequest is the JSON body accepted by POST /api/v1/blob/write.
// Payload and Signature are base64 per the wire format; JobID and
// PaymentTxHash are 32-byte values hex-encoded with a leading 0x.
type BlobWriteRequest struct {
	JobID         string        `json:"jobId"`
	PaymentTxHash string        `json:"paymentTxHash"`
	Payload       string        `json:"payload"`
	Signature     string        `json:"signature"`
	Meta          BlobWriteMeta `json:"meta"`
}

// BlobWriteMeta mirrors jobcoordinator.BlobMeta on the wire.
type BlobWriteMeta struct {
	AppID       string   `json:"appId"`
	Codec       string   `json:"codec,omitempty"`
	ContentHash string   `json:"contentHash,omitempty"`
	TTLBlocks   uint64   `json:"ttlBlocks,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// BlobWriteResponse is the success body of POST /api/v1/blob/write.
type BlobWriteResponse struct {
	Success          bool     `json:"success"`
	BlobTxHash       string   `json:"blobTxHash"`
	BlockNumber      uint64   `json:"blockNumber"`
	BlobHash         string   `json:"blobHash"`
	Commitment       string   `json:"commitment"`
	Proofs           []string `json:"proofs"`
	BlobIndex        int      `json:"blobIndex"`
	CompletionTxHash string   `json:"completionTxHash,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	ChainID         uint64 `json:"chainId"`
	EscrowContract  string `json:"escrowContract"`
	ProxyFeePercent int    `json:"proxyFeePercent"`
	MaxBlobSize     int    `json:"maxBlobSize"`
}
