package errcode

import "net/http"

// Fabric error codes
// Module code 20 (registry), 21 (router), 22 (breaker), 23 (gateway)
var (
	// ErrInstanceNotFound unknown service/instance — recoverable, caller should re-register
	ErrInstanceNotFound = Register(New(20, 1, "registry",
		"service instance not found", http.StatusNotFound))

	// ErrDuplicateInstance (service, instance_id) already registered and still healthy
	ErrDuplicateInstance = Register(New(20, 2, "registry",
		"instance already registered and healthy", http.StatusConflict))

	// ErrInvalidInstance registration payload failed validation
	ErrInvalidInstance = Register(New(20, 3, "registry",
		"invalid instance registration", http.StatusBadRequest))

	// ErrStoreUnavailable backing store (redis/etcd) unreachable
	ErrStoreUnavailable = Register(New(20, 4, "registry",
		"registry store unavailable", http.StatusServiceUnavailable))

	// ErrNoHealthyInstance no healthy instance for the requested service
	ErrNoHealthyInstance = Register(New(21, 1, "router",
		"no healthy instance available", http.StatusServiceUnavailable))

	// ErrUnknownPolicy unknown selection policy name
	ErrUnknownPolicy = Register(New(21, 2, "router",
		"unknown selection policy", http.StatusBadRequest))

	// ErrCircuitOpen internal signal that triggers fallback, not surfaced raw externally
	ErrCircuitOpen = Register(New(22, 1, "breaker",
		"circuit breaker is open", http.StatusServiceUnavailable))

	// ErrCallTimeout outbound call exceeded the caller-supplied timeout
	ErrCallTimeout = Register(New(22, 2, "breaker",
		"call timed out", http.StatusGatewayTimeout))

	// ErrTooManyTrialCalls half-open trial budget exhausted
	ErrTooManyTrialCalls = Register(New(22, 3, "breaker",
		"too many requests in half-open state", http.StatusServiceUnavailable))

	// ErrRouteNotFound no routing table entry matches the request path
	ErrRouteNotFound = Register(New(23, 1, "gateway",
		"no route for path", http.StatusNotFound))

	// ErrUpstreamUnavailable resolve or upstream call failed and fallback was used
	ErrUpstreamUnavailable = Register(New(23, 2, "gateway",
		"upstream service unavailable", http.StatusServiceUnavailable))
)
