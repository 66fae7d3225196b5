package wireberry

import (
	"encoding/json"
	"net/http"
	"time"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// HealthStatus represents the overall health status of the endpoint.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the endpoint is healthy and ready to
// handle traffic. An endpoint is considered healthy if:
//   - Start has been called
//   - The UDP socket is bound (when listen addresses are configured)
//
// This is a quick check suitable for liveness probes.
func (e *Endpoint) IsHealthy() bool {
	e.startMu.Lock()
	started := e.started
	e.startMu.Unlock()

	if !started {
		return false
	}

	if len(e.config.ListenAddrs) > 0 && e.engine.LocalAddr() == nil {
		return false
	}

	return true
}

// ReadinessChecks performs detailed health checks and returns the results.
// This is suitable for readiness probes and debugging.
//
// Checks performed:
//   - endpoint_started: Whether the endpoint has been started
//   - socket_bound: Whether the UDP socket is bound
//   - address_book: Whether the address book is accessible
//   - connections: Whether there are active connections (informational)
func (e *Endpoint) ReadinessChecks() HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 4),
		Timestamp: time.Now(),
	}

	start := time.Now()
	e.startMu.Lock()
	started := e.started
	e.startMu.Unlock()

	status.Checks = append(status.Checks, CheckResult{
		Name:     "endpoint_started",
		Healthy:  started,
		Message:  boolToMessage(started, "endpoint is running", "endpoint is not started"),
		Duration: time.Since(start),
	})
	if !started {
		status.Healthy = false
	}

	start = time.Now()
	socketOK := e.engine.LocalAddr() != nil
	if len(e.config.ListenAddrs) == 0 {
		// Dial-only endpoints bind lazily on the first dial
		socketOK = true
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "socket_bound",
		Healthy:  socketOK,
		Message:  boolToMessage(socketOK, "udp socket is bound", "udp socket is not bound"),
		Duration: time.Since(start),
	})
	if !socketOK {
		status.Healthy = false
	}

	start = time.Now()
	bookMsg := "address book persistence disabled"
	if e.addressBook != nil {
		_ = e.addressBook.Count()
		bookMsg = "address book is accessible"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "address_book",
		Healthy:  true,
		Message:  bookMsg,
		Duration: time.Since(start),
	})

	// Informational only, does not affect health
	start = time.Now()
	connCount := e.connections.Len()
	connMsg := "no active connections"
	if connCount > 0 {
		connMsg = "has active connections"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "connections",
		Healthy:  true,
		Message:  connMsg,
		Duration: time.Since(start),
	})

	return status
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler that serves health check responses.
// The handler responds with:
//   - 200 OK if the endpoint is healthy
//   - 503 Service Unavailable if the endpoint is unhealthy
//
// The response body contains a JSON representation of HealthStatus.
//
// Example usage:
//
//	http.Handle("/health", wireberry.HealthHandler(endpoint))
func HealthHandler(endpoint *Endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := endpoint.ReadinessChecks()

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler that serves liveness check responses.
// This is a quick check that returns:
//   - 200 OK if the endpoint is alive
//   - 503 Service Unavailable if the endpoint is not alive
//
// Unlike HealthHandler, this does not perform detailed checks.
//
// Example usage:
//
//	http.Handle("/live", wireberry.LivenessHandler(endpoint))
func LivenessHandler(endpoint *Endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthy := endpoint.IsHealthy()

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"healthy":false}`))
		}
	})
}
