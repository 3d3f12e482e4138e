package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lalithlochan/quorum/internal/circuitbreaker"
)

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

type healthResponse struct {
	Status   string                 `json:"status"`
	Checks   map[string]string      `json:"checks"`
	Breakers []circuitbreaker.Stats `json:"breakers,omitempty"`
}

// HealthHandler pings every dependency and reports channel breaker state.
// Any failing check turns the response into a 503.
func HealthHandler(checks map[string]Check, breakers ...*circuitbreaker.Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "healthy", Checks: make(map[string]string, len(checks))}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
		for _, b := range breakers {
			resp.Breakers = append(resp.Breakers, b.Stats())
		}

		status := http.StatusOK
		if resp.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
