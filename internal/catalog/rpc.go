package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/crawl"
	"github.com/mintmark-dev/mintmark/internal/refparse"
)

// rpcAdapter reconciles against RPC Online (Ashmolean). Unlike the Numishare
// catalogs it is queried by structured volume+number, not free text, so a
// citation without a volume cannot be reconciled automatically and defers.
type rpcAdapter struct {
	baseAdapter
	baseURL string
	coord   *crawl.Coordinator
}

func newRPCOnlineAdapter(coord *crawl.Coordinator) Adapter {
	return &rpcAdapter{baseURL: "https://rpc.ashmus.ox.ac.uk", coord: coord}
}

func (a *rpcAdapter) System() string { return refparse.SystemRPC }

func (a *rpcAdapter) NormalizeReference(raw string) (refparse.Parsed, bool) {
	p := refparse.Parse(raw)
	return p, p.System == refparse.SystemRPC
}

func (a *rpcAdapter) ParseReference(raw string) refparse.Parsed {
	return refparse.Parse(raw)
}

func (a *rpcAdapter) BuildReconcileQuery(ref refparse.Parsed, hints *QueryContext) ReconcileQuery {
	q := ReconcileQuery{System: refparse.SystemRPC, Ref: ref}
	if hints != nil {
		q.Hints = *hints
	}
	return q
}

// rpcSearchResponse is the RPC Online type-search API shape.
type rpcSearchResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Number string `json:"number"`
	} `json:"results"`
}

func (a *rpcAdapter) Reconcile(ctx context.Context, q ReconcileQuery) (*Result, error) {
	if q.Ref.Volume == "" {
		// RPC citations are only unique within a volume.
		return &Result{
			Status:      StatusDeferred,
			Confidence:  0,
			ExternalURL: fmt.Sprintf("%s/search?q=%s", a.baseURL, url.QueryEscape(refparse.Canonical(q.Ref))),
		}, nil
	}

	searchURL := fmt.Sprintf("%s/api/types/?volume=%s&number=%s&format=json",
		a.baseURL, url.QueryEscape(q.Ref.Volume), url.QueryEscape(q.Ref.Number+q.Ref.Subtype))

	body, err := a.coord.Fetch(ctx, searchURL)
	if err != nil {
		if eris.Is(err, crawl.ErrNotFound) {
			return &Result{Status: StatusNotFound, SourceVersion: a.sourceVersion()}, nil
		}
		return nil, eris.Wrap(err, "catalog: rpc search")
	}

	var resp rpcSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "catalog: rpc decode search response")
	}

	switch {
	case resp.Count == 0 || len(resp.Results) == 0:
		return &Result{Status: StatusNotFound, SourceVersion: a.sourceVersion()}, nil

	case resp.Count == 1:
		hit := resp.Results[0]
		return &Result{
			Status:        StatusSuccess,
			ExternalID:    hit.ID,
			ExternalURL:   a.BuildURL(hit.ID),
			Confidence:    0.9,
			SourceVersion: a.sourceVersion(),
		}, nil
	}

	candidates := make([]Candidate, 0, len(resp.Results))
	for i, hit := range resp.Results {
		candidates = append(candidates, Candidate{
			ExternalID: hit.ID,
			URL:        a.BuildURL(hit.ID),
			Score:      1.0 / float64(i+1),
			Confidence: 0.5 / float64(i+1),
			Name:       hit.Title,
			MatchType:  "volume_number",
		})
	}
	return &Result{
		Status:        StatusAmbiguous,
		Confidence:    0.5,
		Candidates:    candidates,
		SourceVersion: a.sourceVersion(),
	}, nil
}

func (a *rpcAdapter) FetchTypeData(ctx context.Context, externalID string) ([]byte, error) {
	body, err := a.coord.Fetch(ctx, fmt.Sprintf("%s/api/types/%s/?format=json", a.baseURL, url.PathEscape(externalID)))
	if err != nil {
		if eris.Is(err, crawl.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "catalog: rpc fetch type data")
	}
	return body, nil
}

// rpcTypePayload is the RPC Online type record shape.
type rpcTypePayload struct {
	Authority          string   `json:"authority"`
	Denomination       string   `json:"denomination"`
	Mint               string   `json:"mint"`
	FromDate           int      `json:"from_date"`
	ToDate             int      `json:"to_date"`
	ObverseLegend      string   `json:"obverse_legend"`
	ObverseDescription string   `json:"obverse_description"`
	ReverseLegend      string   `json:"reverse_legend"`
	ReverseDescription string   `json:"reverse_description"`
	Material           string   `json:"material"`
	Bibliography       []string `json:"bibliography"`
}

func (a *rpcAdapter) ParsePayload(raw []byte) (*TypeData, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p rpcTypePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "catalog: rpc parse payload")
	}
	return &TypeData{
		Authority:          p.Authority,
		Denomination:       p.Denomination,
		Mint:               p.Mint,
		DateFrom:           p.FromDate,
		DateTo:             p.ToDate,
		ObverseLegend:      p.ObverseLegend,
		ObverseDescription: p.ObverseDescription,
		ReverseLegend:      p.ReverseLegend,
		ReverseDescription: p.ReverseDescription,
		Material:           p.Material,
		Bibliography:       p.Bibliography,
	}, nil
}

func (a *rpcAdapter) BuildURL(externalID string) string {
	return a.baseURL + "/type/" + externalID
}

func (a *rpcAdapter) sourceVersion() string {
	return "rpc-online"
}
