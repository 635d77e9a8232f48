package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker checks an inference backend's availability.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}
