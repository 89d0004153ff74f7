package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/crawl"
	"github.com/mintmark-dev/mintmark/internal/refparse"
)

// nomismaAdapter reconciles against ANS Numishare-based catalogs (OCRE for
// RIC, CRRO for Crawford). Both expose the same search API and id-resolvable
// type pages, so one implementation serves both systems.
type nomismaAdapter struct {
	baseAdapter
	system  string
	baseURL string
	coord   *crawl.Coordinator
}

func newOCREAdapter(coord *crawl.Coordinator) Adapter {
	return &nomismaAdapter{system: refparse.SystemRIC, baseURL: "http://numismatics.org/ocre", coord: coord}
}

func newCRROAdapter(coord *crawl.Coordinator) Adapter {
	return &nomismaAdapter{system: refparse.SystemCrawford, baseURL: "http://numismatics.org/crro", coord: coord}
}

func (a *nomismaAdapter) System() string { return a.system }

func (a *nomismaAdapter) NormalizeReference(raw string) (refparse.Parsed, bool) {
	p := refparse.Parse(raw)
	return p, p.System == a.system
}

func (a *nomismaAdapter) ParseReference(raw string) refparse.Parsed {
	return refparse.Parse(raw)
}

func (a *nomismaAdapter) BuildReconcileQuery(ref refparse.Parsed, hints *QueryContext) ReconcileQuery {
	q := ReconcileQuery{System: a.system, Ref: ref}
	if hints != nil {
		q.Hints = *hints
	}
	return q
}

// searchResponse is the Numishare search API shape we rely on.
type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		ID    string  `json:"id"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
	} `json:"docs"`
}

func (a *nomismaAdapter) Reconcile(ctx context.Context, q ReconcileQuery) (*Result, error) {
	query := refparse.Canonical(q.Ref)
	if q.Hints.Issuer != "" {
		query += " " + q.Hints.Issuer
	}
	searchURL := fmt.Sprintf("%s/apis/search?q=%s&format=json", a.baseURL, url.QueryEscape(query))

	body, err := a.coord.Fetch(ctx, searchURL)
	if err != nil {
		if eris.Is(err, crawl.ErrNotFound) {
			return &Result{Status: StatusNotFound, SourceVersion: a.sourceVersion()}, nil
		}
		return nil, eris.Wrapf(err, "catalog: %s search", a.system)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "catalog: %s decode search response", a.system)
	}

	switch {
	case resp.NumFound == 0 || len(resp.Docs) == 0:
		return &Result{Status: StatusNotFound, SourceVersion: a.sourceVersion()}, nil

	case resp.NumFound == 1:
		doc := resp.Docs[0]
		return &Result{
			Status:        StatusSuccess,
			ExternalID:    doc.ID,
			ExternalURL:   a.BuildURL(doc.ID),
			Confidence:    0.9,
			SourceVersion: a.sourceVersion(),
		}, nil
	}

	// Multiple hits: an id whose tail matches number+subtype exactly is
	// still a confident match; otherwise surface candidates.
	tail := strings.ToLower(q.Ref.Number + q.Ref.Subtype)
	for _, doc := range resp.Docs {
		if strings.HasSuffix(strings.ToLower(doc.ID), "."+tail) {
			return &Result{
				Status:        StatusSuccess,
				ExternalID:    doc.ID,
				ExternalURL:   a.BuildURL(doc.ID),
				Confidence:    0.8,
				SourceVersion: a.sourceVersion(),
			}, nil
		}
	}

	candidates := make([]Candidate, 0, len(resp.Docs))
	for i, doc := range resp.Docs {
		score := doc.Score
		if score == 0 {
			score = 1.0 / float64(i+1)
		}
		candidates = append(candidates, Candidate{
			ExternalID: doc.ID,
			URL:        a.BuildURL(doc.ID),
			Score:      score,
			Confidence: 0.5 * score,
			Name:       doc.Title,
			MatchType:  "search",
		})
	}
	return &Result{
		Status:        StatusAmbiguous,
		Confidence:    0.5,
		Candidates:    candidates,
		SourceVersion: a.sourceVersion(),
	}, nil
}

func (a *nomismaAdapter) FetchTypeData(ctx context.Context, externalID string) ([]byte, error) {
	body, err := a.coord.Fetch(ctx, fmt.Sprintf("%s/apis/get?id=%s&format=json", a.baseURL, url.QueryEscape(externalID)))
	if err != nil {
		if eris.Is(err, crawl.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "catalog: %s fetch type data", a.system)
	}
	return body, nil
}

// typePayload is the normalized JSON shape of a Numishare type record.
type typePayload struct {
	Authority    string `json:"authority"`
	Denomination string `json:"denomination"`
	Mint         string `json:"mint"`
	FromDate     int    `json:"fromDate"`
	ToDate       int    `json:"toDate"`
	Material     string `json:"material"`
	Obverse      struct {
		Legend      string `json:"legend"`
		Description string `json:"description"`
	} `json:"obverse"`
	Reverse struct {
		Legend      string `json:"legend"`
		Description string `json:"description"`
	} `json:"reverse"`
	Bibliography []string `json:"bibliography"`
}

func (a *nomismaAdapter) ParsePayload(raw []byte) (*TypeData, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p typePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrapf(err, "catalog: %s parse payload", a.system)
	}
	return &TypeData{
		Authority:          p.Authority,
		Denomination:       p.Denomination,
		Mint:               p.Mint,
		DateFrom:           p.FromDate,
		DateTo:             p.ToDate,
		ObverseLegend:      p.Obverse.Legend,
		ObverseDescription: p.Obverse.Description,
		ReverseLegend:      p.Reverse.Legend,
		ReverseDescription: p.Reverse.Description,
		Material:           p.Material,
		Bibliography:       p.Bibliography,
	}, nil
}

func (a *nomismaAdapter) BuildURL(externalID string) string {
	return a.baseURL + "/id/" + externalID
}

func (a *nomismaAdapter) sourceVersion() string {
	return "numishare/" + a.system
}
