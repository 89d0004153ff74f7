package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/audit"
	"github.com/mintmark-dev/mintmark/internal/catalog"
	"github.com/mintmark-dev/mintmark/internal/concordance"
	"github.com/mintmark-dev/mintmark/internal/enrich"
	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refparse"
	"github.com/mintmark-dev/mintmark/internal/refsync"
)

// newRouter builds the HTTP API. Handlers are thin: decode, call the same
// services the CLI commands use, encode.
func newRouter(e *env) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/parse", handleParse)
		r.Post("/lookup", e.handleLookup)

		r.Route("/specimens", func(r chi.Router) {
			r.Post("/", e.handleCreateSpecimen)
			r.Get("/{id}", e.handleGetSpecimen)
			r.Get("/{id}/refs", e.handleListRefs)
			r.Post("/{id}/refs", e.handleSyncRefs)
			r.Post("/{id}/audit", e.handleAudit)
		})

		r.Route("/enrich", func(r chi.Router) {
			r.Post("/apply", e.handleApply)
			r.Post("/bulk", e.handleBulk)
			r.Get("/jobs/{id}", e.handleGetJob)
		})

		r.Route("/concordance", func(r chi.Router) {
			r.Post("/", e.handleCreateConcordance)
			r.Get("/{refTypeID}", e.handleEquivalents)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Citations []string `json:"citations"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Citations) == 0 {
		writeError(w, http.StatusBadRequest, "citations is required")
		return
	}

	type parsed struct {
		Raw          string            `json:"raw"`
		Parsed       refparse.Parsed   `json:"parsed"`
		Canonical    string            `json:"canonical"`
		Alternatives []refparse.Parsed `json:"alternatives,omitempty"`
	}
	out := make([]parsed, 0, len(req.Citations))
	for _, raw := range req.Citations {
		p := refparse.Parse(raw)
		out = append(out, parsed{
			Raw:          raw,
			Parsed:       p,
			Canonical:    refparse.Canonical(p),
			Alternatives: refparse.Alternatives(p),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *env) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Citation string `json:"citation"`
		Issuer   string `json:"issuer,omitempty"`
		Mint     string `json:"mint,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Citation == "" {
		writeError(w, http.StatusBadRequest, "citation is required")
		return
	}

	system := e.Registry.DetectSystem(req.Citation)

	var hints *catalog.QueryContext
	if req.Issuer != "" || req.Mint != "" {
		hints = &catalog.QueryContext{Issuer: req.Issuer, Mint: req.Mint}
	}

	writeJSON(w, http.StatusOK, e.Registry.Lookup(r.Context(), system, req.Citation, hints))
}

func (e *env) handleCreateSpecimen(w http.ResponseWriter, r *http.Request) {
	var sp model.Specimen
	if !decodeJSON(w, r, &sp) {
		return
	}
	if sp.Attribution.Issuer == "" {
		writeError(w, http.StatusBadRequest, "attribution.issuer is required")
		return
	}

	if err := e.Store.CreateSpecimen(r.Context(), &sp); err != nil {
		zap.L().Error("create specimen", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

func (e *env) handleGetSpecimen(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	sp, err := e.Store.GetSpecimen(r.Context(), id)
	if err != nil {
		zap.L().Error("get specimen", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if sp == nil {
		writeError(w, http.StatusNotFound, "specimen not found")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (e *env) handleListRefs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	links, err := e.Store.ListSpecimenReferences(r.Context(), id)
	if err != nil {
		zap.L().Error("list references", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (e *env) handleSyncRefs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Citations []refsync.Input `json:"citations"`
		Merge     bool            `json:"merge"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Citations) == 0 {
		writeError(w, http.StatusBadRequest, "citations is required")
		return
	}
	for i := range req.Citations {
		if req.Citations[i].Source == "" {
			req.Citations[i].Source = model.SourceUser
		}
	}

	links, err := refsync.NewService(e.Store).Sync(r.Context(), id, req.Citations, refsync.Options{Merge: req.Merge})
	if err != nil {
		zap.L().Error("sync references", zap.Int64("specimen", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (e *env) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var lot model.ObservedLot
	if !decodeJSON(w, r, &lot) {
		return
	}

	sp, err := e.Store.GetSpecimen(r.Context(), id)
	if err != nil {
		zap.L().Error("get specimen", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if sp == nil {
		writeError(w, http.StatusNotFound, "specimen not found")
		return
	}

	writeJSON(w, http.StatusOK, audit.NewEngine().Run(sp, lot))
}

func (e *env) handleApply(w http.ResponseWriter, r *http.Request) {
	var apps []enrich.Application
	if !decodeJSON(w, r, &apps) {
		return
	}
	if len(apps) == 0 {
		writeError(w, http.StatusBadRequest, "at least one application is required")
		return
	}

	writeJSON(w, http.StatusOK, e.Applier.ApplyBatch(r.Context(), apps))
}

func (e *env) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req enrich.BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := e.Enrich.StartBulk(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (e *env) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := e.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("get job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *env) handleCreateConcordance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Members []model.ConcordanceMember `json:"members"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	group, err := concordance.NewService(e.Store).CreateGroup(r.Context(), req.Members)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (e *env) handleEquivalents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "refTypeID")
	if !ok {
		return
	}

	equivalents, err := concordance.NewService(e.Store).FindEquivalent(r.Context(), id)
	if err != nil {
		zap.L().Error("find equivalents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, equivalents)
}
