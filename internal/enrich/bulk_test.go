package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmark-dev/mintmark/internal/catalog"
	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refparse"
	"github.com/mintmark-dev/mintmark/internal/refsync"
	"github.com/mintmark-dev/mintmark/internal/store"
	"github.com/mintmark-dev/mintmark/internal/trust"
)

// stubAdapter serves a canned reconciliation result.
type stubAdapter struct {
	system string
	result catalog.Result
	calls  int
}

func (a *stubAdapter) System() string { return a.system }
func (a *stubAdapter) NormalizeReference(raw string) (refparse.Parsed, bool) {
	p := refparse.Parse(raw)
	return p, p.System == a.system
}
func (a *stubAdapter) ParseReference(raw string) refparse.Parsed { return refparse.Parse(raw) }
func (a *stubAdapter) BuildReconcileQuery(ref refparse.Parsed, hints *catalog.QueryContext) catalog.ReconcileQuery {
	return catalog.ReconcileQuery{System: a.system, Ref: ref}
}
func (a *stubAdapter) Reconcile(context.Context, catalog.ReconcileQuery) (*catalog.Result, error) {
	a.calls++
	res := a.result
	return &res, nil
}
func (a *stubAdapter) FetchTypeData(context.Context, string) ([]byte, error) { return nil, nil }
func (a *stubAdapter) ParsePayload([]byte) (*catalog.TypeData, error)        { return nil, nil }
func (a *stubAdapter) BuildURL(id string) string                             { return "http://stub/" + id }
func (a *stubAdapter) IsCacheFresh(lastLookup time.Time, ttlDays int) bool {
	return !lastLookup.IsZero() && time.Since(lastLookup) < time.Duration(ttlDays)*24*time.Hour
}

func newBulkFixture(t *testing.T, res catalog.Result) (*Service, store.Store, int64, *stubAdapter) {
	t.Helper()
	ctx := context.Background()
	st := newTestStore(t)

	sp := &model.Specimen{Attribution: model.Attribution{Issuer: "Augustus"}}
	require.NoError(t, st.CreateSpecimen(ctx, sp))

	_, err := refsync.NewService(st).Sync(ctx, sp.ID,
		[]refsync.Input{{Raw: "RIC I 207", Source: model.SourceUser}}, refsync.Options{})
	require.NoError(t, err)

	stub := &stubAdapter{system: refparse.SystemRIC, result: res}
	registry := catalog.NewRegistry(nil, 180)
	registry.RegisterAdapter(refparse.SystemRIC, stub)

	svc := NewService(st, registry, trust.DefaultPolicy(), 2)
	return svc, st, sp.ID, stub
}

func successResult() catalog.Result {
	return catalog.Result{
		Status:      catalog.StatusSuccess,
		ExternalID:  "ric.1(2).aug.207",
		ExternalURL: "http://stub/ric.1(2).aug.207",
		Confidence:  0.95,
		Payload: &catalog.TypeData{
			Authority:    "Augustus",
			Mint:         "Lugdunum",
			Denomination: "denarius",
			Material:     "ar",
		},
	}
}

func TestRunBulk_AppliesCatalogFacts(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	job, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobComplete, job.Status)
	assert.Equal(t, 1, job.Total)
	assert.Equal(t, 1, job.Progress.Processed)
	// mint, denomination and material were empty: filled from the catalog.
	assert.Equal(t, 3, job.Progress.Updated)
	assert.Zero(t, job.Progress.Conflicts)

	got, err := st.GetSpecimen(ctx, spID)
	require.NoError(t, err)
	assert.Equal(t, "Lugdunum", got.Attribution.Mint)
	assert.Equal(t, "denarius", got.Attribution.Denomination)
	assert.Equal(t, "Augustus", got.Attribution.Issuer)
}

func TestRunBulk_PersistsLookup(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	_, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)

	rt, err := st.FindReferenceType(ctx, "ric", "ric i 207")
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.Equal(t, model.LookupSuccess, rt.LookupStatus)
	assert.Equal(t, "ric.1(2).aug.207", rt.ExternalID)
	assert.Equal(t, 0.95, rt.LookupConfidence)
	require.NotNil(t, rt.LastLookup)
	assert.NotEmpty(t, rt.Payload)
}

func TestRunBulk_CacheSkipsSecondLookup(t *testing.T) {
	ctx := context.Background()
	svc, _, spID, stub := newBulkFixture(t, successResult())

	_, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)
	_, err = svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls, "fresh cached payload must not trigger a re-fetch")
}

func TestRunBulk_ConflictNeedsReview(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	// The record already claims a different mint; the catalog may not
	// silently overwrite it.
	sp, err := st.GetSpecimen(ctx, spID)
	require.NoError(t, err)
	sp.Attribution = sp.Attribution.WithMint("Rome")
	require.NoError(t, st.UpdateSpecimen(ctx, sp))

	job, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Progress.Conflicts)
	assert.Equal(t, 2, job.Progress.Updated) // denomination and material still fill

	got, err := st.GetSpecimen(ctx, spID)
	require.NoError(t, err)
	assert.Equal(t, "Rome", got.Attribution.Mint)
}

func TestRunBulk_DryRun(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	job, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}, DryRun: true})
	require.NoError(t, err)
	assert.True(t, job.DryRun)
	assert.Equal(t, 3, job.Progress.Updated)

	got, err := st.GetSpecimen(ctx, spID)
	require.NoError(t, err)
	assert.Empty(t, got.Attribution.Mint, "dry run must not touch the record")
}

func TestRunBulk_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, spID, _ := newBulkFixture(t, catalog.Result{Status: catalog.StatusNotFound})

	job, err := svc.RunBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Progress.NotFound)
	assert.Zero(t, job.Progress.Updated)
}

func TestRunBulk_NoTargets(t *testing.T) {
	st := newTestStore(t)
	registry := catalog.NewRegistry(nil, 180)
	svc := NewService(st, registry, trust.DefaultPolicy(), 2)

	_, err := svc.RunBulk(context.Background(), BulkRequest{})
	require.Error(t, err)
}

func TestStartBulk_RunsInBackground(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	job, err := svc.StartBulk(ctx, BulkRequest{TargetIDs: []int64{spID}})
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.Status)

	require.Eventually(t, func() bool {
		got, err := st.GetJob(ctx, job.ID)
		return err == nil && got != nil && got.Status == model.JobComplete
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunBulk_MissingFieldFilter(t *testing.T) {
	ctx := context.Background()
	svc, st, spID, _ := newBulkFixture(t, successResult())

	// A specimen that already has a mint is outside the filter.
	complete := &model.Specimen{Attribution: model.Attribution{Issuer: "Tiberius", Mint: "Rome"}}
	require.NoError(t, st.CreateSpecimen(ctx, complete))

	job, err := svc.RunBulk(ctx, BulkRequest{MissingField: "mint"})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Total)
	assert.Equal(t, 1, job.Progress.Processed)

	got, err := st.GetSpecimen(ctx, spID)
	require.NoError(t, err)
	assert.Equal(t, "Lugdunum", got.Attribution.Mint)
	untouched, err := st.GetSpecimen(ctx, complete.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rome", untouched.Attribution.Mint)
}

func TestRunBulk_MissingFieldRejectsUnknown(t *testing.T) {
	svc, _, _, _ := newBulkFixture(t, successResult())

	_, err := svc.RunBulk(context.Background(), BulkRequest{MissingField: "provenance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not filterable")

	_, err = svc.RunBulk(context.Background(), BulkRequest{TargetIDs: []int64{1}, MissingField: "mint"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}
