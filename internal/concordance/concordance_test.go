package concordance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewService(st), st
}

func mkRef(t *testing.T, st store.Store, system, canonical string) int64 {
	t.Helper()
	rt := &model.ReferenceType{System: system, LocalRef: canonical, CanonicalRef: canonical}
	require.NoError(t, st.CreateReferenceType(context.Background(), rt))
	return rt.ID
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	ric := mkRef(t, st, "ric", "ric i 207")
	bmcre := mkRef(t, st, "bmcre", "bmcre 474")

	g, err := svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric, Confidence: 1.0, Source: model.SourceUser},
		{ReferenceTypeID: bmcre, Confidence: 0.9, Source: model.SourceUser},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Len(t, g.Members, 2)
}

func TestCreateGroup_Validation(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	ric := mkRef(t, st, "ric", "ric i 207")

	_, err := svc.CreateGroup(ctx, []model.ConcordanceMember{{ReferenceTypeID: ric}})
	require.Error(t, err)

	_, err = svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric}, {ReferenceTypeID: ric},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric}, {ReferenceTypeID: 9999},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFindEquivalent_UnionNotClosure(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	ric := mkRef(t, st, "ric", "ric i 207")
	bmcre := mkRef(t, st, "bmcre", "bmcre 474")
	rsc := mkRef(t, st, "rsc", "rsc 43")
	sear := mkRef(t, st, "sear", "sear 1611")

	// ric<->bmcre and ric<->rsc. sear links only to bmcre.
	_, err := svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric, Confidence: 1.0, Source: model.SourceUser},
		{ReferenceTypeID: bmcre, Confidence: 0.9, Source: model.SourceUser},
	})
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric, Confidence: 0.8, Source: model.SourceCatalogLookup},
		{ReferenceTypeID: rsc, Confidence: 0.8, Source: model.SourceCatalogLookup},
	})
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: bmcre, Confidence: 0.7, Source: model.SourceUser},
		{ReferenceTypeID: sear, Confidence: 0.7, Source: model.SourceUser},
	})
	require.NoError(t, err)

	// ric sees bmcre and rsc, but NOT sear: equivalence is not closed
	// across groups.
	eqs, err := svc.FindEquivalent(ctx, ric)
	require.NoError(t, err)
	require.Len(t, eqs, 2)
	assert.Equal(t, bmcre, eqs[0].ReferenceType.ID)
	assert.Equal(t, 0.9, eqs[0].Confidence)
	assert.Equal(t, rsc, eqs[1].ReferenceType.ID)

	// sear sees only its direct partner.
	eqs, err = svc.FindEquivalent(ctx, sear)
	require.NoError(t, err)
	require.Len(t, eqs, 1)
	assert.Equal(t, bmcre, eqs[0].ReferenceType.ID)
}

func TestFindEquivalent_BestConfidenceWins(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	ric := mkRef(t, st, "ric", "ric i 207")
	bmcre := mkRef(t, st, "bmcre", "bmcre 474")

	_, err := svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric, Confidence: 0.6, Source: model.SourceCatalogLookup},
		{ReferenceTypeID: bmcre, Confidence: 0.6, Source: model.SourceCatalogLookup},
	})
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, []model.ConcordanceMember{
		{ReferenceTypeID: ric, Confidence: 1.0, Source: model.SourceUser},
		{ReferenceTypeID: bmcre, Confidence: 1.0, Source: model.SourceUser},
	})
	require.NoError(t, err)

	eqs, err := svc.FindEquivalent(ctx, ric)
	require.NoError(t, err)
	require.Len(t, eqs, 1)
	assert.Equal(t, 1.0, eqs[0].Confidence)
	assert.Equal(t, model.SourceUser, eqs[0].Source)
}

func TestFindEquivalent_NoGroups(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	ric := mkRef(t, st, "ric", "ric i 207")

	eqs, err := svc.FindEquivalent(ctx, ric)
	require.NoError(t, err)
	assert.Empty(t, eqs)
}
