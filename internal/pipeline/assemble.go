package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"energodoc/internal/domain"
	"energodoc/internal/merge"
)

// finish runs the merged and validated stages.
func (r *Runner) finish(ctx context.Context, st *State) (*Result, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	data := merge.Build(r.rules, merge.Input{
		Classification: st.Classification,
		Candidates:     r.candidates(st),
		Sections:       r.summaries(st),
		Issues:         st.Issues,
	})
	st.enter(domain.StageMerged)
	r.metrics.ObserveStage(string(domain.StageMerged), start)

	body, err := merge.Encode(data)
	if err != nil {
		return nil, err
	}
	readiness := r.readiness.Evaluate(data)
	st.enter(domain.StageValidated)

	ready := 0
	for _, rep := range readiness {
		if rep.Status == domain.ReadinessReady {
			ready++
		}
	}
	r.log.Info("pipeline.Runner: validated",
		zap.Int("values", len(data.Values)),
		zap.Int("candidates", len(data.Provenance)),
		zap.Int("sections_ready", ready),
		zap.Int("sections", len(readiness)))
	return &Result{State: st, Data: data, JSON: body, Readiness: readiness}, nil
}

// candidates numbers every candidate in production order, deterministic
// ones by section before any fallback proposal, and moves entity indexes
// from section-local to document-wide.
func (r *Runner) candidates(st *State) []domain.FieldExtraction {
	offsets := make([][]int, len(st.Sections))
	next := map[domain.SectionKind]int{}
	for i, sec := range st.Sections {
		width := map[domain.SectionKind]int{}
		widen := func(cands []domain.FieldExtraction) {
			for _, c := range cands {
				if cp, ok := domain.ParsePath(c.Path); ok && cp.Entity != domain.SectionResource {
					width[cp.Entity] = max(width[cp.Entity], cp.Index+1)
				}
			}
		}
		widen(sec.Result.Candidates)
		widen(st.Proposals[i])
		if k := sec.Result.Kind; k != domain.SectionResource && k != domain.SectionUnresolved {
			width[k] = max(width[k], sec.Result.EntityCount)
		}
		offsets[i] = []int{next[domain.SectionEquipment], next[domain.SectionNodes], next[domain.SectionEnvelope]}
		for k, w := range width {
			next[k] += w
		}
	}

	var out []domain.FieldExtraction
	add := func(i int, cands []domain.FieldExtraction) {
		for _, c := range cands {
			c.Seq = len(out)
			c.Path = shift(c.Path, offsets[i])
			out = append(out, c)
		}
	}
	for i, sec := range st.Sections {
		add(i, sec.Result.Candidates)
		r.metrics.Candidate(string(sec.Sheet.Origin.Method()), len(sec.Result.Candidates))
	}
	for i := range st.Sections {
		add(i, st.Proposals[i])
		r.metrics.Candidate(string(domain.MethodAIFallback), len(st.Proposals[i]))
	}
	return out
}

func shift(path string, offsets []int) string {
	cp, ok := domain.ParsePath(path)
	if !ok {
		return path
	}
	switch cp.Entity {
	case domain.SectionEquipment:
		return domain.ShiftEntityIndex(path, offsets[0])
	case domain.SectionNodes:
		return domain.ShiftEntityIndex(path, offsets[1])
	case domain.SectionEnvelope:
		return domain.ShiftEntityIndex(path, offsets[2])
	}
	return path
}

func (r *Runner) summaries(st *State) []domain.SectionSummary {
	pending := make(map[int]bool, len(st.Pending))
	for _, i := range st.Pending {
		pending[i] = true
	}
	out := make([]domain.SectionSummary, 0, len(st.Sections))
	for i, sec := range st.Sections {
		res := sec.Result
		out = append(out, domain.SectionSummary{
			Section:           sec.Sheet.Name,
			Kind:              res.Kind,
			Resource:          res.Resource,
			Confidence:        res.Confidence,
			HeaderRow:         res.HeaderRow,
			Candidates:        len(res.Candidates),
			UnmappedColumns:   res.UnmappedColumns,
			FallbackRequested: pending[i] && r.mapper != nil,
			FallbackProposed:  len(st.Proposals[i]) > 0,
			Reason:            res.Reason,
		})
	}
	return out
}
