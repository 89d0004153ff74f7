package catalog

import (
	"context"
	"net/url"
	"strings"

	"github.com/mintmark-dev/mintmark/internal/refparse"
)

// deferredAdapter covers catalog systems with no reconciliation API (print
// catalogs, or sites without machine-readable search). It conforms to the
// full Adapter contract but every Reconcile returns StatusDeferred with
// confidence 0 and a constructed URL for manual verification.
type deferredAdapter struct {
	baseAdapter
	system      string
	urlTemplate string // %s is replaced with the escaped citation
}

func newSearAdapter() Adapter {
	return &deferredAdapter{system: refparse.SystemSear, urlTemplate: "https://www.acsearch.info/search.html?term=%s"}
}

func newBMCREAdapter() Adapter {
	return &deferredAdapter{system: refparse.SystemBMCRE, urlTemplate: "https://www.britishmuseum.org/collection/search?keyword=%s"}
}

func newSNGAdapter() Adapter {
	return &deferredAdapter{system: refparse.SystemSNG, urlTemplate: "https://www.greekcoinage.org/sco.html?q=%s"}
}

func newRSCAdapter() Adapter {
	return &deferredAdapter{system: refparse.SystemRSC, urlTemplate: "https://www.acsearch.info/search.html?term=%s"}
}

func (a *deferredAdapter) System() string { return a.system }

func (a *deferredAdapter) NormalizeReference(raw string) (refparse.Parsed, bool) {
	p := refparse.Parse(raw)
	return p, p.System == a.system
}

func (a *deferredAdapter) ParseReference(raw string) refparse.Parsed {
	return refparse.Parse(raw)
}

func (a *deferredAdapter) BuildReconcileQuery(ref refparse.Parsed, hints *QueryContext) ReconcileQuery {
	q := ReconcileQuery{System: a.system, Ref: ref}
	if hints != nil {
		q.Hints = *hints
	}
	return q
}

func (a *deferredAdapter) Reconcile(_ context.Context, q ReconcileQuery) (*Result, error) {
	return &Result{
		Status:      StatusDeferred,
		Confidence:  0,
		ExternalURL: a.BuildURL(refparse.Canonical(q.Ref)),
	}, nil
}

// FetchTypeData always returns nil: there is no data endpoint to hydrate
// from.
func (a *deferredAdapter) FetchTypeData(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (a *deferredAdapter) ParsePayload([]byte) (*TypeData, error) {
	return nil, nil
}

func (a *deferredAdapter) BuildURL(externalID string) string {
	return strings.Replace(a.urlTemplate, "%s", url.QueryEscape(externalID), 1)
}
