package api

import "net/http"

// health handles GET /api/v1/health.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	status := a.coordinator.GetHealth(r.Context())
	httpWriteJSON(w, HealthResponse{
		Status:          status.Status,
		ChainID:         status.ChainID,
		EscrowContract:  status.EscrowContract,
		ProxyFeePercent: status.ProxyFeePercent,
		MaxBlobSize:     status.MaxBlobSize,
	})
}
