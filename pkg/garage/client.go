// Package garage talks to the external structured occupancy source: a
// campus garage-availability API keyed by garage name rather than map
// feature ID.
package garage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Snapshot is one response from the availability API. All rows share the
// response's reported timestamp.
type Snapshot struct {
	FetchedAt time.Time `json:"fetchedAt"`
	Rows      []Row     `json:"rows"`
}

// Row describes one garage. Occupancy may arrive as an absolute count, as
// a fill percentage, or as per-spot rows; OccupiedCount resolves whichever
// is present.
type Row struct {
	Name        string   `json:"name"`
	Capacity    int      `json:"capacity"`
	Occupied    *int     `json:"occupied,omitempty"`
	OccupiedPct *float64 `json:"occupiedPct,omitempty"`
	Spots       []Spot   `json:"spots,omitempty"`
	Permits     []string `json:"permits,omitempty"`
	Pricing     string   `json:"pricing,omitempty"`
}

// Spot is one per-spot fill state row.
type Spot struct {
	ID     string `json:"id"`
	Filled bool   `json:"filled"`
}

// TotalSpots returns capacity: the number of per-spot rows when they are
// present, otherwise the explicit capacity field.
func (r *Row) TotalSpots() int {
	if len(r.Spots) > 0 {
		return len(r.Spots)
	}
	return r.Capacity
}

// OccupiedCount resolves the occupied figure: per-spot rows win, then the
// absolute count, then the percentage converted through capacity.
func (r *Row) OccupiedCount() int {
	if len(r.Spots) > 0 {
		n := 0
		for _, s := range r.Spots {
			if s.Filled {
				n++
			}
		}
		return n
	}
	if r.Occupied != nil {
		return *r.Occupied
	}
	if r.OccupiedPct != nil {
		return int(math.Round(*r.OccupiedPct / 100 * float64(r.Capacity)))
	}
	return 0
}

type apiResponse struct {
	LastUpdate string `json:"lastUpdate"`
	Garages    []Row  `json:"garages"`
	Error      string `json:"error,omitempty"`
}

// Client fetches availability snapshots.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch retrieves the current snapshot. A timeout is treated by callers
// exactly like unreachable: degrade, never propagate.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	params := url.Values{}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	reqURL := c.baseURL
	if enc := params.Encode(); enc != "" {
		reqURL = fmt.Sprintf("%s?%s", c.baseURL, enc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Snapshot{}, fmt.Errorf("decoding response: %w", err)
	}
	if ar.Error != "" {
		return Snapshot{}, fmt.Errorf("API error: %s", ar.Error)
	}

	fetchedAt := time.Now()
	if ar.LastUpdate != "" {
		// the upstream reports US-style local timestamps
		if ts, err := time.Parse("1/2/2006 3:04 PM", ar.LastUpdate); err == nil {
			fetchedAt = ts
		} else if ts, err := time.Parse(time.RFC3339, ar.LastUpdate); err == nil {
			fetchedAt = ts
		}
	}

	return Snapshot{FetchedAt: fetchedAt, Rows: ar.Garages}, nil
}

// NormalizeName maps an upstream garage name onto lot display names:
// a " Garage" suffix is appended unless the name already ends with it or
// starts with one of the configured prefix exceptions.
func NormalizeName(name string, prefixExceptions []string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, " Garage") {
		return name
	}
	for _, prefix := range prefixExceptions {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return name
		}
	}
	return name + " Garage"
}
