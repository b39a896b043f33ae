package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Network   string `json:"network"`
	Timestamp int64  `json:"timestamp"`
}

// Connectivity reports whether the identity provider is reachable.
type Connectivity interface {
	Online() bool
}

// HealthCheckHandler reports liveness. An unreachable provider does not make the service unhealthy.
func HealthCheckHandler(net Connectivity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		network := "online"
		if net != nil && !net.Online() {
			network = "offline"
		}
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Network:   network,
			Timestamp: time.Now().Unix(),
		})
	}
}
