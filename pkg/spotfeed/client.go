// Package spotfeed talks to the live per-space occupancy feed.
package spotfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lotwatch/internal/domain"
)

// Client fetches occupancy batches. Slot IDs in the feed are bare numeric
// IDs; they join to space features through a fixed namespace prefix
// (typically "way/").
type Client struct {
	baseURL    string
	idPrefix   string
	httpClient *http.Client
}

func New(baseURL, idPrefix string) *Client {
	return &Client{
		baseURL:  baseURL,
		idPrefix: idPrefix,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type feedResponse struct {
	FetchedAt time.Time  `json:"fetchedAt"`
	Slots     []feedSlot `json:"slots"`
}

type feedSlot struct {
	ID       string `json:"id"`
	Occupied bool   `json:"occupied"`
}

// Fetch retrieves the current batch. All slots in one response share the
// feed's single fetchedAt timestamp.
func (c *Client) Fetch(ctx context.Context) (*domain.OccupancyBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	fetchedAt := fr.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	batch := &domain.OccupancyBatch{
		FetchedAt: fetchedAt,
		Occupied:  make(map[string]bool, len(fr.Slots)),
	}
	for _, slot := range fr.Slots {
		if slot.ID == "" {
			continue
		}
		batch.Occupied[c.spaceID(slot.ID)] = slot.Occupied
	}
	return batch, nil
}

// spaceID maps a feed slot ID onto the space feature namespace. IDs that
// already carry a namespace pass through untouched.
func (c *Client) spaceID(id string) string {
	if strings.Contains(id, "/") {
		return id
	}
	return c.idPrefix + id
}
