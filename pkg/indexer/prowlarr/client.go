// Package prowlarr implements an indexer.Indexer backed by a Prowlarr
// instance's Newznab-compatible proxy API, scoped to one underlying indexer.
package prowlarr

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
)

// Client represents one Prowlarr-proxied indexer, filtered to a single
// underlying indexer id so Aggregator search/usage accounting stays
// per-indexer even though Prowlarr itself is a meta-indexer.
type Client struct {
	baseURL     string
	indexerID   int
	apiKey      string
	name        string
	client      *http.Client
	usageManager *indexer.UsageManager
}

var _ indexer.Indexer = (*Client)(nil)

func (c *Client) Name() string {
	if c.name != "" {
		return c.name
	}
	return "Prowlarr"
}

// NewClient creates a Prowlarr-backed client scoped to indexerID and verifies
// connectivity immediately.
func NewClient(baseURL string, indexerID int, apiKey, name string, um *indexer.UsageManager) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		indexerID: indexerID,
		apiKey:    apiKey,
		name:      name,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		usageManager: um,
	}

	if err := c.Ping(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping() error {
	apiURL := fmt.Sprintf("%s/api?t=caps&apikey=%s", c.baseURL, c.apiKey)
	resp, err := c.client.Get(apiURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prowlarr returned error status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) GetUsage() indexer.Usage {
	if c.usageManager == nil {
		return indexer.Usage{}
	}
	ud := c.usageManager.GetIndexerUsage(c.name)
	return indexer.Usage{
		APIHitsUsed:          ud.APIHitsUsed,
		DownloadsUsed:        ud.DownloadsUsed,
		AllTimeAPIHitsUsed:   ud.AllTimeAPIHitsUsed,
		AllTimeDownloadsUsed: ud.AllTimeDownloadsUsed,
	}
}

// Search queries Prowlarr's Newznab proxy, restricted to this client's
// underlying indexer via indexerIds.
func (c *Client) Search(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("o", "xml")
	params.Set("indexerIds", strconv.Itoa(c.indexerID))

	switch req.Cat {
	case "2000":
		params.Set("t", "movie")
	case "5000":
		params.Set("t", "tvsearch")
	default:
		params.Set("t", "search")
	}

	if req.Query != "" {
		params.Set("q", req.Query)
	}
	if req.IMDbID != "" {
		params.Set("imdbid", strings.TrimPrefix(req.IMDbID, "tt"))
	}
	if req.TMDBID != "" {
		params.Set("tmdbid", req.TMDBID)
	}
	if req.Cat != "" {
		params.Set("cat", req.Cat)
	}
	if req.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", req.Limit))
	} else {
		params.Set("limit", "100")
	}
	if req.Season != "" {
		params.Set("season", req.Season)
	}
	if req.Episode != "" {
		params.Set("ep", req.Episode)
	}

	apiURL := fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())
	logger.Debug("Prowlarr search request", "indexer", c.Name(), "url", apiURL)

	resp, err := c.client.Get(apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query prowlarr: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read prowlarr response: %w", err)
	}

	if c.usageManager != nil {
		c.usageManager.IncrementUsed(c.name, 1, 0)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prowlarr returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if len(bodyBytes) == 0 {
		return nil, fmt.Errorf("prowlarr returned empty body")
	}

	var result indexer.SearchResponse
	if err := xml.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse prowlarr response: %w", err)
	}

	filtered := result.Channel.Items[:0]
	for i := range result.Channel.Items {
		item := &result.Channel.Items[i]
		item.SourceIndexer = c
		item.ActualIndexer = c.name
		indexer.NormalizeItem(item)
		if item.Link == "" {
			continue
		}
		filtered = append(filtered, *item)
	}
	result.Channel.Items = filtered

	return &result, nil
}

// DownloadNZB downloads an NZB file by its Prowlarr-proxied URL.
func (c *Client) DownloadNZB(ctx context.Context, nzbURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", nzbURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download NZB: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NZB download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read NZB data: %w", err)
	}
	if c.usageManager != nil {
		c.usageManager.IncrementUsed(c.name, 0, 1)
	}

	return data, nil
}
