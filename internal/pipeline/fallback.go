package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"energodoc/internal/domain"
	"energodoc/internal/merge"
)

// fallback asks the semantic mapper about every pending section. A mapper
// error other than cancellation counts as no proposal. Proposals are
// merged into the state only if the run is still live once all calls return.
func (r *Runner) fallback(ctx context.Context, st *State) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer r.metrics.ObserveStage(string(domain.StageFallbackPending), start)

	var mu sync.Mutex
	proposals := make(map[int][]domain.FieldExtraction, len(st.Pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, idx := range st.Pending {
		sec := &st.Sections[idx]
		g.Go(func() error {
			req := merge.BuildRequest(r.rules, &sec.Sheet, sec.Result.Candidates)
			p, err := r.mapper.ProposeMapping(gctx, req)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn("pipeline.Runner: no proposal",
					zap.String("section", sec.Sheet.Name), zap.Error(err))
				return nil
			}
			cands, rejected := merge.Propose(r.rules, &sec.Sheet, p)
			for _, rj := range rejected {
				r.log.Info("pipeline.Runner: proposal entry rejected",
					zap.String("section", sec.Sheet.Name), zap.String("entry", rj.String()))
			}
			if len(cands) == 0 {
				return nil
			}
			mu.Lock()
			proposals[idx] = cands
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if cerr := canceled(ctx); cerr != nil {
		return cerr
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st.Proposals = proposals
	st.enter(domain.StageMergeReady)
	return nil
}
