// Package audit compares an authoritative specimen record against an
// untrusted external observation and reports field-level discrepancies.
// Strategies are independent: a strategy that fails or panics is skipped and
// logged, and never discards the findings of the others.
package audit

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// Discrepancy is one disagreement between the record and the observation.
// Ephemeral: produced per run, persisted only if promoted to a suggestion.
type Discrepancy struct {
	Field      string  `json:"field"`
	Current    any     `json:"current"`
	Observed   any     `json:"observed"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Detail     string  `json:"detail,omitempty"`
}

// Strategy compares one aspect of the record against the observation.
type Strategy interface {
	Name() string
	Audit(sp *model.Specimen, lot model.ObservedLot) ([]Discrepancy, error)
}

// Report is the outcome of one engine run.
type Report struct {
	Discrepancies []Discrepancy `json:"discrepancies"`
	Skipped       []string      `json:"skipped,omitempty"` // strategies that failed
}

// Engine runs a fixed set of strategies over a (specimen, lot) pair.
type Engine struct {
	strategies []Strategy
}

// NewEngine builds an engine with the standard strategy set.
func NewEngine() *Engine {
	return &Engine{strategies: []Strategy{
		&physicsStrategy{weightTolG: defaultWeightTolG, diameterTolMM: defaultDiameterTolMM},
		&gradeStrategy{},
		&attributionStrategy{},
		newReignStrategy(),
	}}
}

// NewEngineWith builds an engine over an explicit strategy list, mainly for
// tests.
func NewEngineWith(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Run executes every strategy and collects their discrepancies, stamping
// each with the lot's source. Strategy failures are isolated.
func (e *Engine) Run(sp *model.Specimen, lot model.ObservedLot) Report {
	var report Report
	for _, strat := range e.strategies {
		found, err := e.runOne(strat, sp, lot)
		if err != nil {
			zap.L().Warn("audit strategy failed",
				zap.String("strategy", strat.Name()),
				zap.String("source", lot.Source),
				zap.Error(err))
			report.Skipped = append(report.Skipped, strat.Name())
			continue
		}
		for i := range found {
			found[i].Source = lot.Source
		}
		report.Discrepancies = append(report.Discrepancies, found...)
	}
	return report
}

func (e *Engine) runOne(strat Strategy, sp *model.Specimen, lot model.ObservedLot) (found []Discrepancy, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = eris.Errorf("audit: %s panicked: %v", strat.Name(), r)
		}
	}()
	return strat.Audit(sp, lot)
}
