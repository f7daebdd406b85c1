// Package pipeline wires the three stage workers — risk validation,
// matching, settlement — over a shared fabric and ledger store. Each stage
// is an independent pool of concurrent consumers on its own subscription;
// no ordering is guaranteed across users, symbols, or stages.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/matching"
	"github.com/efreitasn/toyexchange/internal/pricing"
	"github.com/efreitasn/toyexchange/internal/risk"
	"github.com/efreitasn/toyexchange/internal/settlement"
	"github.com/efreitasn/toyexchange/internal/store"
)

// stageWorker is the shape shared by the three stage workers.
type stageWorker interface {
	Run(ctx context.Context) error
}

// Pipeline owns the three stage workers.
type Pipeline struct {
	workers []stageWorker
}

// New builds the full pipeline over the given fabric, store, and price
// table, with the given consumer count per stage.
func New(f fabric.Fabric, st store.LedgerStore, prices *pricing.Table, logger *slog.Logger, consumers int) *Pipeline {
	validator := risk.NewValidator(st, prices)
	engine := matching.NewEngine(prices)
	ledger := settlement.NewLedger(st)

	return &Pipeline{workers: []stageWorker{
		risk.NewWorker(f, validator, logger.With(slog.String("stage", "risk")), consumers),
		matching.NewWorker(f, engine, logger.With(slog.String("stage", "matching")), consumers),
		settlement.NewWorker(f, ledger, logger.With(slog.String("stage", "settlement")), consumers),
	}}
}

// Run starts every stage and blocks until all of them stop, which happens
// when ctx is cancelled or the fabric shuts down. The first worker error is
// returned.
func (p *Pipeline) Run(ctx context.Context) error {
	errCh := make(chan error, len(p.workers))
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w stageWorker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				errCh <- err
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}
