package refsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refparse"
	"github.com/mintmark-dev/mintmark/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store, int64) {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	sp := &model.Specimen{Attribution: model.Attribution{Issuer: "Augustus"}}
	require.NoError(t, st.CreateSpecimen(ctx, sp))
	return NewService(st), st, sp.ID
}

func TestSync_CreatesAndLinks(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	results, err := svc.Sync(ctx, spID, []Input{
		{Raw: "RIC I 207", Source: model.SourceUser},
		{Raw: "BMCRE 474", Source: model.SourceUser},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Created)
	assert.Equal(t, "ric", results[0].System)
	assert.Equal(t, "ric i 207", results[0].CanonicalRef)
	assert.True(t, results[1].Created)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	// No input was marked primary, so the first citation wins.
	assert.True(t, links[0].IsPrimary)
	assert.False(t, links[1].IsPrimary)
}

func TestSync_DedupWithinBatch(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	// Same citation in three spellings collapses to one reference type.
	results, err := svc.Sync(ctx, spID, []Input{
		{Raw: "RIC I 207"},
		{Raw: "ric 1 207"},
		{Raw: "RIC I, 207"},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.False(t, results[0].Duplicate)
	assert.True(t, results[1].Duplicate)
	assert.True(t, results[2].Duplicate)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestSync_SharedReferenceType(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	other := &model.Specimen{}
	require.NoError(t, st.CreateSpecimen(ctx, other))

	first, err := svc.Sync(ctx, spID, []Input{{Raw: "Crawford 335/1c"}}, Options{})
	require.NoError(t, err)
	second, err := svc.Sync(ctx, other.ID, []Input{{Raw: "RRC 335/1c"}}, Options{})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, first[0].Created)
	assert.False(t, second[0].Created)
	assert.Equal(t, first[0].ReferenceTypeID, second[0].ReferenceTypeID)
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	batch := []Input{{Raw: "RIC I 207", IsPrimary: true}, {Raw: "RSC 43"}}
	_, err := svc.Sync(ctx, spID, batch, Options{})
	require.NoError(t, err)
	_, err = svc.Sync(ctx, spID, batch, Options{})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestSync_NonMergeRemovesStale(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	_, err := svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207"}, {Raw: "RSC 43"}}, Options{})
	require.NoError(t, err)

	_, err = svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207"}}, Options{})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	rt, err := st.GetReferenceType(ctx, links[0].ReferenceTypeID)
	require.NoError(t, err)
	assert.Equal(t, "ric i 207", rt.CanonicalRef)
}

func TestSync_MergeKeepsExisting(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	_, err := svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207"}}, Options{})
	require.NoError(t, err)

	_, err = svc.Sync(ctx, spID, []Input{{Raw: "RSC 43", Source: model.SourceImport}}, Options{Merge: true})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestSync_ExistingPrimarySurvivesMerge(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	_, err := svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207", IsPrimary: true}}, Options{})
	require.NoError(t, err)

	// A merged batch without a primary flag must not steal primary.
	_, err = svc.Sync(ctx, spID, []Input{{Raw: "RSC 43"}}, Options{Merge: true})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	primaries := 0
	for _, link := range links {
		if link.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestSync_UnknownCitationStillLinks(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	results, err := svc.Sync(ctx, spID, []Input{{Raw: "MIR 36, 54"}}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "unknown", results[0].System)
	assert.Zero(t, results[0].Confidence)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestSync_SpecimenMissing(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Sync(context.Background(), 9999, []Input{{Raw: "RIC I 207"}}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSync_NonMergeReplacementKeepsOnePrimary(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	_, err := svc.Sync(ctx, spID, []Input{{Raw: "RSC 43", IsPrimary: true}}, Options{})
	require.NoError(t, err)

	// The replacing batch carries no primary flag; with the old primary
	// removed, the first new citation must be promoted.
	_, err = svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207"}}, Options{})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.True(t, links[0].IsPrimary)
}

func TestSync_MergeRespecifyingPrimaryKeepsIt(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	_, err := svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207", IsPrimary: true}}, Options{})
	require.NoError(t, err)

	// Re-syncing the primary citation without the flag must not demote it.
	_, err = svc.Sync(ctx, spID, []Input{{Raw: "RIC I 207", Notes: "plate coin"}, {Raw: "RSC 43"}}, Options{Merge: true})
	require.NoError(t, err)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	primaries := 0
	for _, link := range links {
		if link.IsPrimary {
			primaries++
			rt, err := st.GetReferenceType(ctx, link.ReferenceTypeID)
			require.NoError(t, err)
			assert.Equal(t, "ric i 207", rt.CanonicalRef)
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestSync_StructuredInput(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	results, err := svc.Sync(ctx, spID, []Input{{
		Structured: &refparse.StructuredRef{Catalog: "RIC", Volume: "IV.1", Number: "351", Variant: "b"},
		ExternalID: "ric.4.ss.351b",
	}}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ric", results[0].System)
	assert.Equal(t, "ric iv.1 351b", results[0].CanonicalRef)
	assert.Equal(t, "ric iv.1 351b", results[0].Raw)

	rt, err := st.GetReferenceType(ctx, results[0].ReferenceTypeID)
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.Equal(t, "ric.4.ss.351b", rt.ExternalID)
}

func TestSync_StructuredDedupsAgainstRaw(t *testing.T) {
	ctx := context.Background()
	svc, st, spID := newTestService(t)

	results, err := svc.Sync(ctx, spID, []Input{
		{Raw: "RIC IV.1 351b"},
		{Structured: &refparse.StructuredRef{Catalog: "RIC", Volume: "IV.1", Number: "351b"}},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[1].Duplicate)

	links, err := st.ListSpecimenReferences(ctx, spID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestSync_EmptyInputRejected(t *testing.T) {
	svc, _, spID := newTestService(t)
	_, err := svc.Sync(context.Background(), spID, []Input{{Notes: "no citation"}}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw or structured")
}
