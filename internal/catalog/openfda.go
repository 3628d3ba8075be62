package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
)

const SourceOpenFDA = "openfda"

type labelSearchResponse struct {
	Results []struct {
		SetID   string `json:"set_id"`
		OpenFDA struct {
			BrandName        []string `json:"brand_name"`
			GenericName      []string `json:"generic_name"`
			ManufacturerName []string `json:"manufacturer_name"`
			ProductNDC       []string `json:"product_ndc"`
			SPLSetID         []string `json:"spl_set_id"`
		} `json:"openfda"`
	} `json:"results"`
}

// LabelSummary is the part of an openFDA drug label used as a product record.
type LabelSummary struct {
	BrandName        string
	GenericName      string
	ManufacturerName string
	SPLSetID         string
}

// SearchLabel queries openFDA drug labels by product NDC. openFDA answers 404
// when nothing matches, which is reported as ErrNotFound.
func (c *Client) SearchLabel(ctx context.Context, ndc string) (LabelSummary, error) {
	params := url.Values{}
	params.Set("search", fmt.Sprintf(`openfda.product_ndc:"%s"`, ndc))
	params.Set("limit", "1")
	if c.openFDAAPIKey != "" {
		params.Set("api_key", c.openFDAAPIKey)
	}

	body, err := c.get(ctx, c.openFDABaseURL+"/drug/label.json", params, "application/json")
	if err != nil {
		if IsNotFound(err) {
			return LabelSummary{}, ErrNotFound
		}
		return LabelSummary{}, err
	}

	var payload labelSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return LabelSummary{}, err
	}
	if len(payload.Results) == 0 {
		return LabelSummary{}, ErrNotFound
	}

	r := payload.Results[0]
	return LabelSummary{
		BrandName:        first(r.OpenFDA.BrandName),
		GenericName:      first(r.OpenFDA.GenericName),
		ManufacturerName: first(r.OpenFDA.ManufacturerName),
		SPLSetID:         firstNonBlank(first(r.OpenFDA.SPLSetID), r.SetID),
	}, nil
}

// OpenFDA adapts the label search to a ProductSource.
type OpenFDA struct {
	Client *Client
}

func (OpenFDA) Name() string { return SourceOpenFDA }

func (o OpenFDA) LookupProduct(ctx context.Context, variant string) (internal.ProductRecord, error) {
	hit, err := o.Client.SearchLabel(ctx, variant)
	if err != nil {
		return internal.ProductRecord{}, err
	}
	rec := internal.ProductRecord{
		ProductName: firstNonBlank(hit.BrandName, hit.GenericName),
		LabelerName: hit.ManufacturerName,
		Source:      SourceOpenFDA,
	}
	if hit.SPLSetID != "" {
		id := hit.SPLSetID
		rec.SPLID = &id
	}
	return rec, nil
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstNonBlank(values ...string) string {
	return first(values)
}
