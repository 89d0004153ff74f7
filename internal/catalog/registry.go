package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/crawl"
	"github.com/mintmark-dev/mintmark/internal/refparse"
)

// detectOrder is the fixed priority order for system detection. It mirrors
// the parser's prefix priority so registry detection and parsing agree.
var detectOrder = []string{
	refparse.SystemCrawford,
	refparse.SystemBMCRE,
	refparse.SystemRIC,
	refparse.SystemRPC,
	refparse.SystemSNG,
	refparse.SystemRSC,
	refparse.SystemSear,
}

// Registry routes lookups to per-system adapters. Adapters are instantiated
// lazily, cached for the process lifetime, and shared across goroutines. No
// adapter error or panic crosses the registry boundary: everything surfaces
// as Result{Status: StatusError}.
type Registry struct {
	coord   *crawl.Coordinator
	ttlDays int

	mu        sync.Mutex
	adapters  map[string]Adapter
	factories map[string]func() Adapter
}

// NewRegistry creates a Registry backed by the given crawl coordinator.
// ttlDays controls cached-payload freshness (default 180).
func NewRegistry(coord *crawl.Coordinator, ttlDays int) *Registry {
	if ttlDays <= 0 {
		ttlDays = 180
	}
	return &Registry{
		coord:    coord,
		ttlDays:  ttlDays,
		adapters: make(map[string]Adapter),
		factories: map[string]func() Adapter{
			refparse.SystemRIC:      func() Adapter { return newOCREAdapter(coord) },
			refparse.SystemCrawford: func() Adapter { return newCRROAdapter(coord) },
			refparse.SystemRPC:      func() Adapter { return newRPCOnlineAdapter(coord) },
			refparse.SystemSear:     newSearAdapter,
			refparse.SystemBMCRE:    newBMCREAdapter,
			refparse.SystemSNG:      newSNGAdapter,
			refparse.SystemRSC:      newRSCAdapter,
		},
	}
}

// TTLDays returns the configured payload freshness window.
func (r *Registry) TTLDays() int { return r.ttlDays }

// Adapter returns the cached adapter for a system, constructing it on first
// use.
func (r *Registry) Adapter(system string) (Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[system]; ok {
		return a, true
	}
	factory, ok := r.factories[system]
	if !ok {
		return nil, false
	}
	a := factory()
	r.adapters[system] = a
	return a, true
}

// RegisterAdapter installs or replaces the adapter for a system, bypassing
// the built-in factory. Callers use this to point a system at a mirror or to
// plug in a custom catalog.
func (r *Registry) RegisterAdapter(system string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[system] = a
}

// DetectSystem tries each adapter's NormalizeReference in the fixed priority
// order and returns the first system that claims the citation, or
// refparse.SystemUnknown.
func (r *Registry) DetectSystem(raw string) string {
	for _, system := range detectOrder {
		a, ok := r.Adapter(system)
		if !ok {
			continue
		}
		if _, claimed := a.NormalizeReference(raw); claimed {
			return system
		}
	}
	return refparse.SystemUnknown
}

// Lookup reconciles a citation against its external catalog. On success it
// performs the second hop (FetchTypeData + ParsePayload) to hydrate full
// catalog data. The returned Result always has a terminal status; it is
// never nil and never accompanied by an error.
func (r *Registry) Lookup(ctx context.Context, system, reference string, hints *QueryContext) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("catalog: adapter panic",
				zap.String("system", system),
				zap.Any("panic", rec),
			)
			result = errorResult(fmt.Sprintf("adapter panic: %v", rec))
		}
		if result != nil && result.LookupTimestamp.IsZero() {
			result.LookupTimestamp = time.Now().UTC()
		}
	}()

	adapter, ok := r.Adapter(system)
	if !ok {
		return errorResult("no adapter for system " + system)
	}

	ref := adapter.ParseReference(reference)
	if ref.System != system && ref.System != refparse.SystemUnknown {
		zap.L().Debug("catalog: citation parsed under different system",
			zap.String("requested", system),
			zap.String("parsed", ref.System),
		)
	}

	res, err := adapter.Reconcile(ctx, adapter.BuildReconcileQuery(ref, hints))
	if err != nil {
		zap.L().Warn("catalog: reconcile failed",
			zap.String("system", system),
			zap.String("reference", reference),
			zap.Error(err),
		)
		return errorResult(err.Error())
	}

	if res.Status == StatusSuccess && res.ExternalID != "" {
		r.hydrate(ctx, adapter, res)
	}
	return res
}

// hydrate attaches full catalog data to a successful result. A hydration
// failure is logged and noted but does not demote the reconciliation.
func (r *Registry) hydrate(ctx context.Context, adapter Adapter, res *Result) {
	raw, err := adapter.FetchTypeData(ctx, res.ExternalID)
	if err != nil {
		zap.L().Warn("catalog: type data fetch failed",
			zap.String("system", adapter.System()),
			zap.String("external_id", res.ExternalID),
			zap.Error(err),
		)
		res.ErrorMessage = "type data unavailable: " + err.Error()
		return
	}
	if raw == nil {
		return
	}
	payload, err := adapter.ParsePayload(raw)
	if err != nil {
		zap.L().Warn("catalog: payload parse failed",
			zap.String("system", adapter.System()),
			zap.Error(err),
		)
		res.ErrorMessage = "payload unparseable: " + err.Error()
		return
	}
	res.Payload = payload
}

func errorResult(msg string) *Result {
	return &Result{Status: StatusError, ErrorMessage: msg}
}
