package generation

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
)

type checkedGenerator struct {
	name      string
	healthErr error
	checks    int
}

func (g *checkedGenerator) Name() string { return g.name }

func (g *checkedGenerator) Generate(_ context.Context, _ domain.Prompt) (string, error) {
	return "generated", nil
}

func (g *checkedGenerator) HealthCheck(_ context.Context) error {
	g.checks++
	return g.healthErr
}

func TestResolve_FirstHealthyWins(t *testing.T) {
	primary := &checkedGenerator{name: "openai"}
	secondary := &checkedGenerator{name: "ollama"}

	got := Resolve(context.Background(), zap.NewNop(), primary, secondary)
	if got == nil || got.Name() != "openai" {
		t.Fatalf("resolved %v, want openai", got)
	}
	if secondary.checks != 0 {
		t.Errorf("secondary was health-checked %d times, want 0", secondary.checks)
	}
}

func TestResolve_SkipsUnhealthy(t *testing.T) {
	primary := &checkedGenerator{name: "openai", healthErr: errors.New("connection refused")}
	secondary := &checkedGenerator{name: "ollama"}

	got := Resolve(context.Background(), zap.NewNop(), primary, secondary)
	if got == nil || got.Name() != "ollama" {
		t.Fatalf("resolved %v, want ollama", got)
	}
	if primary.checks != 1 {
		t.Errorf("primary checks = %d, want 1", primary.checks)
	}
}

func TestResolve_ExtractiveAlwaysAccepted(t *testing.T) {
	primary := &checkedGenerator{name: "openai", healthErr: errors.New("down")}

	got := Resolve(context.Background(), zap.NewNop(), primary, NewExtractive())
	if got == nil || got.Name() != ExtractiveStrategyName {
		t.Fatalf("resolved %v, want extractive", got)
	}
}

func TestResolve_AllUnhealthy(t *testing.T) {
	primary := &checkedGenerator{name: "openai", healthErr: errors.New("down")}
	secondary := &checkedGenerator{name: "ollama", healthErr: errors.New("down")}

	if got := Resolve(context.Background(), zap.NewNop(), primary, secondary); got != nil {
		t.Fatalf("resolved %v, want nil", got)
	}
}
