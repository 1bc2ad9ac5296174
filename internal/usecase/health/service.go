package health

import "context"

// Status is the aggregate readiness of the retrieval service.
type Status string

const (
	// Healthy means the status store and the embedding provider both respond.
	Healthy Status = "ok"
	// Degraded means at least one dependency is failing.
	Degraded Status = "degraded"
)

// CheckResult is the outcome of a single dependency probe.
type CheckResult string

const (
	// CheckOK marks a responding dependency.
	CheckOK CheckResult = "ok"
	// CheckError marks a failing dependency.
	CheckError CheckResult = "error"
)

// Report maps each probed dependency to its outcome.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service probes the service's hard dependencies: the KV store backing
// statuses and quotas, and the embedding provider.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
}

// New creates the health service. A nil embedding checker skips the
// provider probe, for setups running without an API key.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// Check probes every dependency; any failure degrades the aggregate.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
