package handlers

import (
	"net/http"

	"github.com/upb/accreditation-api/utils"
)

// StatusResponse describes the service and its trust configuration
type StatusResponse struct {
	Version     string       `json:"version"`
	Environment string       `json:"environment"`
	Issuer      string       `json:"issuer"`
	Keys        *KeysSummary `json:"keys,omitempty"`
}

// KeysSummary is the public part of the key cache state
type KeysSummary struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
	Fresh    bool   `json:"fresh"`
}

// StatusHandler returns a handler for GET /api/v1/status
func StatusHandler(info AppInfo, issuer string, keys KeyStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Version:     info.Version,
			Environment: info.Environment,
			Issuer:      issuer,
		}
		if keys != nil {
			stats := keys.Stats()
			response.Keys = &KeysSummary{
				Endpoint: stats.Endpoint,
				Count:    stats.KeyCount,
				Fresh:    stats.Fresh,
			}
		}
		_ = utils.WriteOK(w, response)
	}
}
