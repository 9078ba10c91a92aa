package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store is unreachable.
	Degraded Status = "degraded"
)

// Report aggregates the health check outcome and the strategies the
// pipeline resolved to at startup.
type Report struct {
	Status     Status            `json:"status"`
	Checks     map[string]string `json:"checks"`
	Strategies map[string]string `json:"strategies"`
}

// Service coordinates health checks.
type Service struct {
	store      StorePinger
	embedding  StrategyReporter
	generation StrategyReporter
}

// New creates a health service.
func New(store StorePinger, embedding, generation StrategyReporter) *Service {
	return &Service{store: store, embedding: embedding, generation: generation}
}

// Check pings the store and reports the resolved strategies.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]string)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "error"
		status = Degraded
	} else {
		checks["store"] = "ok"
	}

	return Report{
		Status: status,
		Checks: checks,
		Strategies: map[string]string{
			"embedding":  s.embedding.Strategy(),
			"generation": s.generation.Strategy(),
		},
	}
}
