package api

// Endpoint paths for the two external interfaces this core exposes.
// Framing beyond these two routes (auth, rate-limit tiers, multi-tenant
// routing) belongs to whatever operator-side gateway fronts this service.
const (
	BlobWriteEndpoint = "/api/v1/blob/write"
	HealthEndpoint    = "/api/v1/health"
)
