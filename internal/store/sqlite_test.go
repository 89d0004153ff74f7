package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmark-dev/mintmark/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_SpecimenRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sp := &model.Specimen{
		Attribution: model.Attribution{Issuer: "Augustus", Mint: "Lugdunum", Denomination: "denarius"},
		Physical:    model.Physical{WeightG: 3.79, DiameterMM: 19.0},
		Notes:       "ex Triton XXV",
	}
	require.NoError(t, s.CreateSpecimen(ctx, sp))
	require.NotZero(t, sp.ID)

	got, err := s.GetSpecimen(ctx, sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Augustus", got.Attribution.Issuer)
	assert.Equal(t, 3.79, got.Physical.WeightG)
	assert.Equal(t, "ex Triton XXV", got.Notes)

	updated := *got
	updated.Attribution = got.Attribution.WithMint("Rome")
	require.NoError(t, s.UpdateSpecimen(ctx, &updated))

	got, err = s.GetSpecimen(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rome", got.Attribution.Mint)
	assert.Equal(t, "Augustus", got.Attribution.Issuer)
}

func TestSQLite_GetSpecimenMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSpecimen(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateSpecimenMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateSpecimen(context.Background(), &model.Specimen{ID: 42})
	require.Error(t, err)
}

func TestSQLite_ListSpecimenIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateSpecimen(ctx, &model.Specimen{}))
	}

	ids, err := s.ListSpecimenIDs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	ids, err = s.ListSpecimenIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSQLite_ListSpecimenIDsMissingField(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	withMint := &model.Specimen{
		Attribution: model.Attribution{Issuer: "Augustus", Mint: "Lugdunum"},
		Physical:    model.Physical{WeightG: 3.79},
	}
	require.NoError(t, s.CreateSpecimen(ctx, withMint))
	noMint := &model.Specimen{Attribution: model.Attribution{Issuer: "Tiberius"}}
	require.NoError(t, s.CreateSpecimen(ctx, noMint))
	noWeight := &model.Specimen{
		Attribution: model.Attribution{Issuer: "Nero", Mint: "Rome"},
		Physical:    model.Physical{DiameterMM: 18.0},
	}
	require.NoError(t, s.CreateSpecimen(ctx, noWeight))

	ids, err := s.ListSpecimenIDsMissingField(ctx, "mint", 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{noMint.ID}, ids)

	ids, err = s.ListSpecimenIDsMissingField(ctx, "weight_g", 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{noMint.ID, noWeight.ID}, ids)

	ids, err = s.ListSpecimenIDsMissingField(ctx, "weight_g", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{noMint.ID}, ids)

	_, err = s.ListSpecimenIDsMissingField(ctx, "provenance", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not filterable")
}

func TestSQLite_ReferenceTypeFindCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	found, err := s.FindReferenceType(ctx, "ric", "ric i 207")
	require.NoError(t, err)
	assert.Nil(t, found)

	rt := &model.ReferenceType{
		System:       "ric",
		LocalRef:     "RIC I 207",
		CanonicalRef: "ric i 207",
		Volume:       "I",
		Number:       "207",
	}
	require.NoError(t, s.CreateReferenceType(ctx, rt))
	require.NotZero(t, rt.ID)
	assert.Equal(t, model.LookupPending, rt.LookupStatus)

	found, err = s.FindReferenceType(ctx, "ric", "ric i 207")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rt.ID, found.ID)
	assert.Equal(t, "RIC I 207", found.LocalRef)
	assert.Nil(t, found.LastLookup)

	// Same (system, canonical_ref) pair violates the natural key.
	dup := &model.ReferenceType{System: "ric", LocalRef: "ric 1 207", CanonicalRef: "ric i 207"}
	require.Error(t, s.CreateReferenceType(ctx, dup))
}

func TestSQLite_UpdateReferenceTypeLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rt := &model.ReferenceType{
		System:       "ric",
		LocalRef:     "RIC I 207",
		CanonicalRef: "ric i 207",
		Mint:         "Lugdunum",
	}
	require.NoError(t, s.CreateReferenceType(ctx, rt))

	now := time.Now().UTC().Truncate(time.Second)
	rt.ExternalID = "ric.1(2).aug.207"
	rt.ExternalURL = "http://numismatics.org/ocre/id/ric.1(2).aug.207"
	rt.LookupStatus = model.LookupSuccess
	rt.LookupConfidence = 0.9
	rt.LastLookup = &now
	rt.Payload = []byte(`{"authority":"Augustus"}`)
	rt.Mint = "" // lookup returned no mint, existing value must survive
	require.NoError(t, s.UpdateReferenceTypeLookup(ctx, rt))

	got, err := s.GetReferenceType(ctx, rt.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LookupSuccess, got.LookupStatus)
	assert.Equal(t, 0.9, got.LookupConfidence)
	assert.Equal(t, "ric.1(2).aug.207", got.ExternalID)
	assert.Equal(t, "Lugdunum", got.Mint)
	require.NotNil(t, got.LastLookup)
	assert.JSONEq(t, `{"authority":"Augustus"}`, string(got.Payload))
}

func TestSQLite_UpsertSpecimenReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sp := &model.Specimen{}
	require.NoError(t, s.CreateSpecimen(ctx, sp))
	rt := &model.ReferenceType{System: "ric", LocalRef: "RIC I 207", CanonicalRef: "ric i 207"}
	require.NoError(t, s.CreateReferenceType(ctx, rt))

	link := &model.SpecimenReference{
		SpecimenID:      sp.ID,
		ReferenceTypeID: rt.ID,
		IsPrimary:       true,
		Source:          model.SourceUser,
	}
	require.NoError(t, s.UpsertSpecimenReference(ctx, link))

	// Re-linking the same pair updates in place instead of duplicating.
	again := &model.SpecimenReference{
		SpecimenID:      sp.ID,
		ReferenceTypeID: rt.ID,
		IsPrimary:       false,
		Notes:           "obverse die match",
		Source:          model.SourceImport,
	}
	require.NoError(t, s.UpsertSpecimenReference(ctx, again))

	links, err := s.ListSpecimenReferences(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.False(t, links[0].IsPrimary)
	assert.Equal(t, "obverse die match", links[0].Notes)
	assert.Equal(t, model.SourceImport, links[0].Source)

	require.NoError(t, s.DeleteSpecimenReference(ctx, links[0].ID))
	links, err = s.ListSpecimenReferences(ctx, sp.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSQLite_GroupsContaining(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mk := func(system, canonical string) int64 {
		rt := &model.ReferenceType{System: system, LocalRef: canonical, CanonicalRef: canonical}
		require.NoError(t, s.CreateReferenceType(ctx, rt))
		return rt.ID
	}
	ric := mk("ric", "ric i 207")
	bmcre := mk("bmcre", "bmcre 474")
	rsc := mk("rsc", "rsc 43")

	require.NoError(t, s.CreateConcordanceGroup(ctx, &model.ConcordanceGroup{
		ID: "g-1",
		Members: []model.ConcordanceMember{
			{ReferenceTypeID: ric, Confidence: 1.0, Source: model.SourceUser},
			{ReferenceTypeID: bmcre, Confidence: 0.9, Source: model.SourceUser},
		},
	}))
	require.NoError(t, s.CreateConcordanceGroup(ctx, &model.ConcordanceGroup{
		ID: "g-2",
		Members: []model.ConcordanceMember{
			{ReferenceTypeID: ric, Confidence: 0.8, Source: model.SourceCatalogLookup},
			{ReferenceTypeID: rsc, Confidence: 0.8, Source: model.SourceCatalogLookup},
		},
	}))

	groups, err := s.GroupsContaining(ctx, ric)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// rsc sits in only one group even though ric bridges both.
	groups, err = s.GroupsContaining(ctx, rsc)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g-2", groups[0].ID)
	require.Len(t, groups[0].Members, 2)
}

func TestSQLite_JobRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &model.EnrichmentJob{ID: "job-1", DryRun: true, Total: 10}
	require.NoError(t, s.CreateJob(ctx, job))
	assert.Equal(t, model.JobQueued, job.Status)

	job.Status = model.JobRunning
	job.Progress = model.JobProgress{Processed: 4, Updated: 2, Conflicts: 1, NotFound: 1}
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.JobRunning, got.Status)
	assert.True(t, got.DryRun)
	assert.Equal(t, 4, got.Progress.Processed)
	assert.Equal(t, 1, got.Progress.Conflicts)

	got, err = s.GetJob(ctx, "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_InTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InTx(ctx, func(tx Store) error {
		if err := tx.CreateSpecimen(ctx, &model.Specimen{Notes: "kept"}); err != nil {
			return err
		}
		return tx.CreateSpecimen(ctx, &model.Specimen{Notes: "also kept"})
	})
	require.NoError(t, err)

	ids, err := s.ListSpecimenIDs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// A failing fn rolls the whole transaction back.
	err = s.InTx(ctx, func(tx Store) error {
		if err := tx.CreateSpecimen(ctx, &model.Specimen{Notes: "discarded"}); err != nil {
			return err
		}
		return eris.New("boom")
	})
	require.Error(t, err)

	ids, err = s.ListSpecimenIDs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// Nested transactions are rejected.
	err = s.InTx(ctx, func(tx Store) error {
		return tx.InTx(ctx, func(Store) error { return nil })
	})
	require.Error(t, err)
}
