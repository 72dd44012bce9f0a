package poller

import (
	"context"

	"go.uber.org/zap"
)

// Recover brings matches left active by the previous run up to date: expired
// ones are settled and the rest are synced once before serving traffic.
func (p *Poller) Recover(ctx context.Context) error {
	zap.S().Info("starting recovery process for active matches...")

	ids, err := p.svc.ActiveMatchIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		zap.S().Info("no active matches found to recover")
		return nil
	}
	zap.S().Infof("found %d active matches to recover", len(ids))

	p.Tick(ctx)
	p.Drain(ctx)
	return nil
}
