package generation

import (
	"context"

	"go.uber.org/zap"
)

// Resolve picks the first candidate whose backend passes its health
// check. Candidates without a health check are accepted as-is, which is
// how the extractive fallback guarantees resolution always succeeds.
// The choice is made once, at startup: strategies are never switched
// mid-session.
func Resolve(ctx context.Context, log *zap.Logger, candidates ...Generator) Generator {
	for _, c := range candidates {
		hc, ok := c.(HealthChecker)
		if !ok {
			log.Info("generation strategy resolved", zap.String("strategy", c.Name()))
			return c
		}
		if err := hc.HealthCheck(ctx); err != nil {
			log.Warn("generation strategy unavailable",
				zap.String("strategy", c.Name()), zap.Error(err))
			continue
		}
		log.Info("generation strategy resolved", zap.String("strategy", c.Name()))
		return c
	}
	return nil
}
