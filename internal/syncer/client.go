package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// maxRedirectHops bounds redirect following on ingestion calls. The hosting
// platform canonicalizes URLs (www/apex, trailing slash) with one redirect;
// two hops cover a canonicalization chain, anything longer is a loop.
const maxRedirectHops = 2

// IncassoRow is one revenue tuple submitted to POST /api/incassi.
type IncassoRow struct {
	Data           string  `json:"data"`
	Importo        float64 `json:"importo"`
	PuntoVenditaID string  `json:"puntoVenditaId"`
	Note           *string `json:"note,omitempty"`
}

// SnapshotPayload is one KPI snapshot submitted to the analytics-cache
// ingestion endpoint.
type SnapshotPayload struct {
	Day        string                 `json:"day"`
	StoreValue string                 `json:"storeValue"`
	StoreText  string                 `json:"storeText"`
	Origins    []string               `json:"origins"`
	Types      []string               `json:"types"`
	Metrics    map[string]interface{} `json:"metrics"`
	Raw        map[string]interface{} `json:"raw"`
}

// PuntoVenditaRef identifies the target outlet for a run.
type PuntoVenditaRef struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
}

// Client submits sync results through the gestionale's public ingestion
// endpoints, authenticated by the shared key.
type Client struct {
	base string
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirectHops)).
		SetHeader("x-api-key", apiKey).
		SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(baseURL, "/"), http: client}
}

// FetchPuntoVendita asks the gestionale for the first active outlet.
func (c *Client) FetchPuntoVendita(ctx context.Context) (*PuntoVenditaRef, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.base + "/api/velocissimo/punto-vendita")
	if err != nil {
		return nil, &PersistenceError{Endpoint: "/api/velocissimo/punto-vendita", Err: err}
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("no active punto vendita in the gestionale")
	}
	if resp.IsError() {
		return nil, &PersistenceError{
			Endpoint: "/api/velocissimo/punto-vendita",
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	var pv PuntoVenditaRef
	if err := json.Unmarshal(resp.Body(), &pv); err != nil {
		return nil, fmt.Errorf("decoding punto vendita: %w", err)
	}
	return &pv, nil
}

type incassiResponse struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error"`
}

// PostIncassi upserts a batch of revenue rows. Returns the stored count.
func (c *Client) PostIncassi(ctx context.Context, rows []IncassoRow, fonte string) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"incassi": rows, "fonte": fonte}).
		Post(c.base + "/api/incassi")
	if err != nil {
		return 0, &PersistenceError{Endpoint: "/api/incassi", Err: err}
	}

	var body incassiResponse
	_ = json.Unmarshal(resp.Body(), &body)
	if resp.IsError() {
		msg := body.Error
		if msg == "" {
			msg = resp.Status()
		}
		return 0, &PersistenceError{Endpoint: "/api/incassi", Err: fmt.Errorf("%s", msg)}
	}
	if body.Count == 0 {
		return len(rows), nil
	}
	return body.Count, nil
}

// PostSnapshot upserts one KPI snapshot row.
func (c *Client) PostSnapshot(ctx context.Context, p *SnapshotPayload) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		Post(c.base + "/api/velocissimo/analytics-cache")
	if err != nil {
		return &PersistenceError{Endpoint: "/api/velocissimo/analytics-cache", Err: err}
	}
	if resp.IsError() {
		return &PersistenceError{
			Endpoint: "/api/velocissimo/analytics-cache",
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String()),
		}
	}
	return nil
}
