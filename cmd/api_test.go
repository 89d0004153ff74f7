package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmark-dev/mintmark/internal/catalog"
	"github.com/mintmark-dev/mintmark/internal/enrich"
	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refparse"
	"github.com/mintmark-dev/mintmark/internal/refsync"
	"github.com/mintmark-dev/mintmark/internal/store"
	"github.com/mintmark-dev/mintmark/internal/trust"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	registry := catalog.NewRegistry(nil, 180)
	return &env{
		Store:    st,
		Registry: registry,
		Enrich:   enrich.NewService(st, registry, trust.DefaultPolicy(), 2),
		Applier:  enrich.NewApplier(st),
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestParseEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/parse", map[string]any{
		"citations": []string{"RIC I 207", "Crawford 335/1c"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Raw       string `json:"raw"`
		Canonical string `json:"canonical"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "ric i 207", out[0].Canonical)
	assert.Equal(t, "crawford 335/1c", out[1].Canonical)
}

func TestParseEndpoint_EmptyBody(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/parse", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpecimenCreateAndGet(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/specimens", model.Specimen{
		Attribution: model.Attribution{Issuer: "Augustus", Mint: "Lugdunum"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Specimen
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/specimens/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Specimen
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Augustus", got.Attribution.Issuer)
	assert.Equal(t, "Lugdunum", got.Attribution.Mint)
}

func TestSpecimenCreate_MissingIssuer(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/specimens", model.Specimen{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpecimenGet_NotFound(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodGet, "/api/specimens/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncRefsAndList(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	sp := &model.Specimen{Attribution: model.Attribution{Issuer: "Augustus"}}
	require.NoError(t, e.Store.CreateSpecimen(context.Background(), sp))

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/specimens/%d/refs", sp.ID), map[string]any{
		"citations": []map[string]any{
			{"raw": "RIC I 207"},
			{"raw": "RSC 43"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/specimens/%d/refs", sp.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var links []model.SpecimenReference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 2)
}

func TestAuditEndpoint(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	sp := &model.Specimen{
		Attribution: model.Attribution{Issuer: "Augustus"},
		Physical:    model.Physical{WeightG: 3.79},
	}
	require.NoError(t, e.Store.CreateSpecimen(context.Background(), sp))

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/specimens/%d/audit", sp.ID), model.ObservedLot{
		Source:  "cng",
		Issuer:  "Augustus",
		WeightG: 3.95,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Discrepancies []struct {
			Field string `json:"field"`
		} `json:"discrepancies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, "weight_g", report.Discrepancies[0].Field)
}

func TestApplyEndpoint(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	sp := &model.Specimen{Attribution: model.Attribution{Issuer: "Augustus", Mint: "Rome"}}
	require.NoError(t, e.Store.CreateSpecimen(context.Background(), sp))

	rec := doJSON(t, router, http.MethodPost, "/api/enrich/apply", []enrich.Application{
		{TargetID: sp.ID, Field: "mint", NewValue: "Lugdunum", Source: "user"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []enrich.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	got, err := e.Store.GetSpecimen(context.Background(), sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lugdunum", got.Attribution.Mint)
}

func TestBulkEndpoint_NoSpecimens(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/enrich/bulk", enrich.BulkRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodGet, "/api/enrich/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConcordanceEndpoints(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	ctx := context.Background()
	ric := &model.ReferenceType{System: "ric", CanonicalRef: "RIC I 207"}
	rsc := &model.ReferenceType{System: "rsc", CanonicalRef: "RSC 43"}
	require.NoError(t, e.Store.CreateReferenceType(ctx, ric))
	require.NoError(t, e.Store.CreateReferenceType(ctx, rsc))

	rec := doJSON(t, router, http.MethodPost, "/api/concordance", map[string]any{
		"members": []model.ConcordanceMember{
			{ReferenceTypeID: ric.ID, Confidence: 0.9, Source: model.SourceUser},
			{ReferenceTypeID: rsc.ID, Confidence: 0.9, Source: model.SourceUser},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/concordance/%d", ric.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var equivalents []struct {
		ReferenceType model.ReferenceType `json:"reference_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &equivalents))
	require.Len(t, equivalents, 1)
	assert.Equal(t, "rsc", equivalents[0].ReferenceType.System)
}

func TestConcordanceCreate_TooFewMembers(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/concordance", map[string]any{
		"members": []model.ConcordanceMember{{ReferenceTypeID: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseEndpoint_Alternatives(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/parse", map[string]any{
		"citations": []string{"RIC I 207a"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Parsed       refparse.Parsed   `json:"parsed"`
		Alternatives []refparse.Parsed `json:"alternatives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Parsed.Subtype)
	// The merged reading keeps the subtype in the number at half confidence.
	require.Len(t, out[0].Alternatives, 1)
	assert.Equal(t, "207a", out[0].Alternatives[0].Number)
	assert.Empty(t, out[0].Alternatives[0].Subtype)
	assert.Less(t, out[0].Alternatives[0].Confidence, out[0].Parsed.Confidence)
}

func TestSyncRefs_StructuredCitation(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	ctx := context.Background()
	sp := &model.Specimen{Attribution: model.Attribution{Issuer: "Septimius Severus"}}
	require.NoError(t, e.Store.CreateSpecimen(ctx, sp))

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/specimens/%d/refs", sp.ID), map[string]any{
		"citations": []map[string]any{
			{
				"structured":  map[string]any{"catalog": "RIC", "volume": "IV.1", "number": "351b"},
				"external_id": "ric.4.ss.351b",
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []refsync.LinkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ric iv.1 351b", results[0].CanonicalRef)

	rt, err := e.Store.GetReferenceType(ctx, results[0].ReferenceTypeID)
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.Equal(t, "ric.4.ss.351b", rt.ExternalID)
}

func TestLookupEndpoint_UnknownSystem(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doJSON(t, router, http.MethodPost, "/api/lookup", map[string]any{
		"citation": "MIR 36, 54",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.ErrorMessage, "no adapter")
}
