package health

import "context"

// StorePinger checks backing store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// StrategyReporter reports which strategy a component resolved to.
type StrategyReporter interface {
	Strategy() string
}
