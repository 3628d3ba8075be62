package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
)

const SourceDailyMed = "dailymed"

type splSearchResponse struct {
	Data []SPLSummary `json:"data"`
}

// SPLSummary is one hit of the DailyMed SPL search.
type SPLSummary struct {
	SetID         string `json:"setid"`
	Title         string `json:"title"`
	Labeler       string `json:"labeler"`
	PublishedDate string `json:"published_date"`
	Version       int    `json:"spl_version"`
}

// SearchSPL returns the first SPL listed for one NDC spelling.
func (c *Client) SearchSPL(ctx context.Context, ndc string) (SPLSummary, error) {
	params := url.Values{}
	params.Set("ndc", ndc)
	params.Set("page_size", "1")

	body, err := c.get(ctx, c.dailyMedBaseURL+"/services/v2/spls.json", params, "application/json")
	if err != nil {
		return SPLSummary{}, err
	}

	var payload splSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return SPLSummary{}, err
	}
	if len(payload.Data) == 0 {
		return SPLSummary{}, ErrNotFound
	}
	return payload.Data[0], nil
}

// FetchSPL downloads the label document for a set id.
func (c *Client) FetchSPL(ctx context.Context, setID string) ([]byte, error) {
	endpoint := c.dailyMedBaseURL + "/services/v2/spls/" + url.PathEscape(strings.TrimSpace(setID)) + ".xml"
	return c.get(ctx, endpoint, nil, "application/xml")
}

// DailyMed adapts the SPL search to a ProductSource.
type DailyMed struct {
	Client *Client
}

func (DailyMed) Name() string { return SourceDailyMed }

func (d DailyMed) LookupProduct(ctx context.Context, variant string) (internal.ProductRecord, error) {
	hit, err := d.Client.SearchSPL(ctx, variant)
	if err != nil {
		return internal.ProductRecord{}, err
	}
	rec := internal.ProductRecord{
		ProductName: strings.TrimSpace(hit.Title),
		LabelerName: strings.TrimSpace(hit.Labeler),
		Source:      SourceDailyMed,
	}
	if id := strings.TrimSpace(hit.SetID); id != "" {
		rec.SPLID = &id
	}
	return rec, nil
}
