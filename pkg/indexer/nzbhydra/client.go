// Package nzbhydra implements an indexer.Indexer backed by an NZBHydra2
// instance, either aggregated across all of its configured indexers or
// scoped to one via the indexers= query parameter.
package nzbhydra

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"streamnzb/pkg/env"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
)

const maxAttempts = 3

// Client represents an NZBHydra2 API client.
type Client struct {
	baseURL     string
	apiKey      string
	name        string
	indexerName string // specific indexer name to query; empty means aggregated
	client      *http.Client

	apiUsed           int
	apiRemaining      int
	downloadUsed      int
	downloadRemaining int
	usageManager      *indexer.UsageManager
	mu                sync.RWMutex
}

var _ indexer.Indexer = (*Client)(nil)

// APIError represents a Newznab API error.
type APIError struct {
	XMLName     xml.Name `xml:"error"`
	Code        string   `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// Ping checks if the NZBHydra2 server is reachable and the API key is valid.
func (c *Client) Ping() error {
	apiURL := fmt.Sprintf("%s/api?t=caps&apikey=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(context.Background(), "GET", apiURL, nil)
	if err != nil {
		return err
	}
	if ua := env.IndexerQueryHeader(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("NZBHydra2 error: invalid API key")
	}

	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := xml.Unmarshal(body, &apiErr); err == nil && apiErr.Description != "" {
		return fmt.Errorf("NZBHydra2 error: %s", apiErr.Description)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("NZBHydra2 returned error status: %d", resp.StatusCode)
	}
	return nil
}

// NewClient creates an aggregated NZBHydra2 client that queries all indexers.
func NewClient(baseURL, apiKey, name string, um *indexer.UsageManager) (*Client, error) {
	return NewClientWithIndexer(baseURL, apiKey, name, "", um)
}

// NewClientWithIndexer creates an NZBHydra2 client scoped to one indexer.
// An empty indexerName queries all indexers (aggregated mode).
func NewClientWithIndexer(baseURL, apiKey, name, indexerName string, um *indexer.UsageManager) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		name:         name,
		indexerName:  indexerName,
		usageManager: um,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}

	if um != nil && name != "" {
		usage := um.GetIndexerUsage(name)
		c.apiUsed = usage.APIHitsUsed
		c.downloadUsed = usage.DownloadsUsed
	}

	if err := c.Ping(); err != nil {
		return nil, err
	}

	return c, nil
}

// Name returns the name of this indexer.
func (c *Client) Name() string {
	if c.name != "" {
		return c.name
	}
	return "NZBHydra2"
}

// GetUsage returns the current usage stats.
func (c *Client) GetUsage() indexer.Usage {
	c.mu.RLock()
	u := indexer.Usage{
		APIHitsUsed:        c.apiUsed,
		APIHitsRemaining:   c.apiRemaining,
		DownloadsUsed:      c.downloadUsed,
		DownloadsRemaining: c.downloadRemaining,
	}
	c.mu.RUnlock()
	if c.usageManager != nil {
		ud := c.usageManager.GetIndexerUsage(c.name)
		u.AllTimeAPIHitsUsed = ud.AllTimeAPIHitsUsed
		u.AllTimeDownloadsUsed = ud.AllTimeDownloadsUsed
	}
	return u
}

// isTransient reports whether an HTTP status is worth retrying with jitter.
func isTransient(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// isHardFail reports whether an HTTP status should abort immediately without retry.
func isHardFail(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func jitterBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 500 * time.Millisecond
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	return base + jitter
}

// Search queries NZBHydra2 for content.
func (c *Client) Search(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("o", "xml")

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
	if req.TVDBID != "" {
		params.Set("tvdbid", req.TVDBID)
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

	// If this client is scoped to a specific indexer, add the indexers parameter
	// so NZBHydra2 queries only that underlying indexer.
	if c.indexerName != "" {
		params.Set("indexers", c.indexerName)
	}

	apiURL := fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())

	var bodyBytes []byte
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(context.Background(), "GET", apiURL, nil)
		if err != nil {
			return nil, err
		}
		if ua := env.IndexerQueryHeader(); ua != "" {
			httpReq.Header.Set("User-Agent", ua)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("failed to query NZBHydra2: %w", err)
			time.Sleep(jitterBackoff(attempt))
			continue
		}

		c.mu.Lock()
		c.apiUsed++
		c.mu.Unlock()
		c.updateUsageFromHeaders(resp.Header)

		bodyBytes, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read NZBHydra2 response: %w", err)
			time.Sleep(jitterBackoff(attempt))
			continue
		}

		if isHardFail(resp.StatusCode) {
			return nil, fmt.Errorf("NZBHydra2 returned status %d: authentication rejected", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			if isTransient(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("NZBHydra2 returned status %d", resp.StatusCode)
				time.Sleep(jitterBackoff(attempt))
				continue
			}
			return nil, fmt.Errorf("NZBHydra2 returned status %d: %s", resp.StatusCode, string(bodyBytes))
		}

		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var result indexer.SearchResponse
	if err := xml.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse NZBHydra2 response: %w", err)
	}

	// Populate ActualIndexer from Newznab attributes NZBHydra2 adds for each item.
	for i := range result.Channel.Items {
		result.Channel.Items[i].SourceIndexer = c
		if name := result.Channel.Items[i].GetAttribute("indexer"); name != "" {
			result.Channel.Items[i].ActualIndexer = name
		} else if name := result.Channel.Items[i].GetAttribute("hydraIndexerName"); name != "" {
			result.Channel.Items[i].ActualIndexer = name
		}
	}

	detailsLinks, err := c.ResolveDetailsLinks(req)
	if err != nil {
		logger.Debug("NZBHydra2 details resolution not available", "err", err)
	} else {
		for i := range result.Channel.Items {
			if detailsLink, ok := detailsLinks[result.Channel.Items[i].GUID]; ok {
				result.Channel.Items[i].ActualGUID = detailsLink
			}
		}
	}

	filtered := result.Channel.Items[:0]
	for i := range result.Channel.Items {
		item := &result.Channel.Items[i]
		indexer.NormalizeItem(item)
		if item.Link == "" {
			continue
		}
		filtered = append(filtered, *item)
	}
	result.Channel.Items = filtered

	return &result, nil
}

// DownloadNZB downloads an NZB file by URL.
func (c *Client) DownloadNZB(ctx context.Context, nzbURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var data []byte
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", nzbURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if ua := env.IndexerGrabHeader(); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to download NZB: %w", err)
			time.Sleep(jitterBackoff(attempt))
			continue
		}

		c.mu.Lock()
		c.apiUsed++
		c.downloadUsed++
		c.mu.Unlock()
		c.updateUsageFromHeaders(resp.Header)

		if isHardFail(resp.StatusCode) {
			resp.Body.Close()
			return nil, fmt.Errorf("NZB download rejected with status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if isTransient(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("NZB download returned status %d", resp.StatusCode)
				time.Sleep(jitterBackoff(attempt))
				continue
			}
			return nil, fmt.Errorf("NZB download returned status %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read NZB data: %w", err)
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	return data, nil
}

func (c *Client) updateUsageFromHeaders(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := h.Get("X-RateLimit-Daily-Remaining"); val != "" {
		if remaining, err := strconv.Atoi(val); err == nil {
			c.apiRemaining = remaining
		}
	}
	if val := h.Get("X-DNZBLimit-Daily-Remaining"); val != "" {
		if remaining, err := strconv.Atoi(val); err == nil {
			c.downloadRemaining = remaining
		}
	}

	if c.usageManager != nil {
		c.usageManager.UpdateUsage(c.name, c.apiUsed, c.downloadUsed)
	}
}
