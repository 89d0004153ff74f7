package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mintmark-dev/mintmark/internal/catalog"
	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/store"
	"github.com/mintmark-dev/mintmark/internal/trust"
)

// DefaultBulkCap bounds a bulk run when the caller does not.
const DefaultBulkCap = 200

// BulkRequest selects specimens for a bulk enrichment run: an explicit id
// list, or every specimen missing a correctable field, or simply everything
// up to the limit.
type BulkRequest struct {
	TargetIDs    []int64 `json:"target_ids,omitempty"`
	MissingField string  `json:"missing_field,omitempty"`
	DryRun       bool    `json:"dry_run"`
	Limit        int     `json:"limit,omitempty"`
}

// Service runs enrichment over many specimens: look up their references,
// persist the lookup outcome, and apply trust-gated corrections from the
// catalog payload.
type Service struct {
	store    store.Store
	registry *catalog.Registry
	applier  *Applier
	policy   *trust.Policy
	workers  int
}

func NewService(st store.Store, registry *catalog.Registry, policy *trust.Policy, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		store:    st,
		registry: registry,
		applier:  NewApplier(st),
		policy:   policy,
		workers:  workers,
	}
}

// StartBulk creates a job row and runs the enrichment in the background.
// The returned job is in the queued state; poll the store for progress.
func (s *Service) StartBulk(ctx context.Context, req BulkRequest) (*model.EnrichmentJob, error) {
	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	job := &model.EnrichmentJob{
		ID:     uuid.NewString(),
		Status: model.JobQueued,
		DryRun: req.DryRun,
		Total:  len(targets),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	// The job outlives the request that started it.
	go s.run(context.WithoutCancel(ctx), *job, targets)
	return job, nil
}

// RunBulk runs a bulk enrichment synchronously, for the CLI.
func (s *Service) RunBulk(ctx context.Context, req BulkRequest) (*model.EnrichmentJob, error) {
	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	job := &model.EnrichmentJob{
		ID:     uuid.NewString(),
		Status: model.JobQueued,
		DryRun: req.DryRun,
		Total:  len(targets),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.run(ctx, *job, targets)
	return s.store.GetJob(ctx, job.ID)
}

func (s *Service) resolveTargets(ctx context.Context, req BulkRequest) ([]int64, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultBulkCap
	}
	targets := req.TargetIDs
	switch {
	case len(targets) > 0 && req.MissingField != "":
		return nil, eris.New("enrich: target_ids and missing_field are mutually exclusive")
	case len(targets) == 0 && req.MissingField != "":
		if _, ok := appliers[req.MissingField]; !ok {
			return nil, eris.Errorf("enrich: field %q is not filterable (allowed: %s)",
				req.MissingField, strings.Join(AllowedFields(), ", "))
		}
		var err error
		targets, err = s.store.ListSpecimenIDsMissingField(ctx, req.MissingField, limit)
		if err != nil {
			return nil, err
		}
	case len(targets) == 0:
		var err error
		targets, err = s.store.ListSpecimenIDs(ctx, limit)
		if err != nil {
			return nil, err
		}
	}
	if len(targets) > limit {
		targets = targets[:limit]
	}
	if len(targets) == 0 {
		return nil, eris.New("enrich: no target specimens")
	}
	return targets, nil
}

func (s *Service) run(ctx context.Context, job model.EnrichmentJob, targets []int64) {
	job.Status = model.JobRunning
	if err := s.store.UpdateJob(ctx, &job); err != nil {
		zap.L().Error("enrich: mark job running", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, id := range targets {
		g.Go(func() error {
			outcome := s.enrichOne(gctx, id, job.DryRun)

			mu.Lock()
			defer mu.Unlock()
			job.Progress.Processed++
			job.Progress.Updated += outcome.updated
			job.Progress.Conflicts += outcome.conflicts
			job.Progress.NotFound += outcome.notFound
			job.Progress.Errors += outcome.errors
			results = append(results, outcome.results...)
			// Progress is visible to pollers while the job runs.
			if err := s.store.UpdateJob(ctx, &job); err != nil {
				zap.L().Warn("enrich: update job progress", zap.String("job_id", job.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	job.Status = model.JobComplete
	if ctx.Err() != nil {
		job.Status = model.JobFailed
		job.Error = ctx.Err().Error()
	}
	if data, err := json.Marshal(results); err == nil {
		job.Results = data
	}
	if err := s.store.UpdateJob(ctx, &job); err != nil {
		zap.L().Error("enrich: finalize job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

type itemOutcome struct {
	updated   int
	conflicts int
	notFound  int
	errors    int
	results   []Result
}

// enrichOne resolves every reference on one specimen and folds eligible
// catalog facts back into the record.
func (s *Service) enrichOne(ctx context.Context, specimenID int64, dryRun bool) itemOutcome {
	var out itemOutcome

	sp, err := s.store.GetSpecimen(ctx, specimenID)
	if err != nil || sp == nil {
		zap.L().Warn("enrich: load specimen", zap.Int64("specimen_id", specimenID), zap.Error(err))
		out.errors++
		return out
	}
	links, err := s.store.ListSpecimenReferences(ctx, specimenID)
	if err != nil {
		out.errors++
		return out
	}

	for _, link := range links {
		rt, err := s.store.GetReferenceType(ctx, link.ReferenceTypeID)
		if err != nil || rt == nil {
			out.errors++
			continue
		}

		payload, status, err := s.lookupPayload(ctx, sp, rt)
		if err != nil {
			out.errors++
			continue
		}
		switch status {
		case model.LookupNotFound:
			out.notFound++
		case model.LookupError:
			out.errors++
		}
		if payload == nil {
			continue
		}
		out.merge(s.applyPayload(ctx, sp, rt, payload, dryRun))
	}
	return out
}

// lookupPayload returns the catalog payload for a reference, from the cache
// when fresh, otherwise via a live lookup whose outcome is persisted.
func (s *Service) lookupPayload(ctx context.Context, sp *model.Specimen, rt *model.ReferenceType) (*catalog.TypeData, model.LookupStatus, error) {
	adapter, ok := s.registry.Adapter(rt.System)
	if ok && rt.LookupStatus == model.LookupSuccess && rt.LastLookup != nil &&
		adapter.IsCacheFresh(*rt.LastLookup, s.registry.TTLDays()) && len(rt.Payload) > 0 {
		var td catalog.TypeData
		if err := json.Unmarshal(rt.Payload, &td); err == nil {
			return &td, rt.LookupStatus, nil
		}
	}

	res := s.registry.Lookup(ctx, rt.System, rt.LocalRef, &catalog.QueryContext{
		Issuer: sp.Attribution.Issuer,
		Mint:   sp.Attribution.Mint,
	})

	rt.ExternalID = res.ExternalID
	rt.ExternalURL = res.ExternalURL
	rt.LookupStatus = model.LookupStatus(res.Status)
	rt.LookupConfidence = res.Confidence
	ts := res.LookupTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rt.LastLookup = &ts
	if res.Payload != nil {
		if data, err := json.Marshal(res.Payload); err == nil {
			rt.Payload = data
		}
	}
	if err := s.store.UpdateReferenceTypeLookup(ctx, rt); err != nil {
		return nil, rt.LookupStatus, err
	}
	return res.Payload, rt.LookupStatus, nil
}

// applyPayload turns catalog facts into corrections, gated by the trust
// policy for the catalog_lookup source.
func (s *Service) applyPayload(ctx context.Context, sp *model.Specimen, rt *model.ReferenceType, td *catalog.TypeData, dryRun bool) itemOutcome {
	var out itemOutcome

	proposals := []struct {
		field    string
		current  string
		observed string
	}{
		{"issuer", sp.Attribution.Issuer, td.Authority},
		{"mint", sp.Attribution.Mint, td.Mint},
		{"denomination", sp.Attribution.Denomination, td.Denomination},
		{"material", sp.Attribution.Material, td.Material},
	}

	for _, prop := range proposals {
		if prop.observed == "" || prop.observed == prop.current {
			continue
		}
		gate := s.policy.Lookup(string(model.SourceCatalogLookup), prop.field)
		if !gate.Level.CanSuggest() {
			continue
		}
		if prop.current != "" || !gate.AutoAppliable(rt.LookupConfidence) {
			// Overwriting a user-entered value, or sub-threshold confidence:
			// surface it, do not touch the record.
			out.conflicts++
			out.results = append(out.results, Result{
				TargetID: sp.ID,
				Field:    prop.field,
				OldValue: prop.current,
				NewValue: prop.observed,
				Error:    "requires review",
			})
			continue
		}
		if dryRun {
			out.updated++
			out.results = append(out.results, Result{
				TargetID: sp.ID, Field: prop.field,
				OldValue: prop.current, NewValue: prop.observed, Success: true,
			})
			continue
		}
		res := s.applier.Apply(ctx, Application{
			TargetID: sp.ID,
			Field:    prop.field,
			NewValue: prop.observed,
			Source:   string(model.SourceCatalogLookup),
		})
		if res.Success {
			out.updated++
		} else {
			out.errors++
		}
		out.results = append(out.results, res)
	}
	return out
}

func (o *itemOutcome) merge(other itemOutcome) {
	o.updated += other.updated
	o.conflicts += other.conflicts
	o.notFound += other.notFound
	o.errors += other.errors
	o.results = append(o.results, other.results...)
}
