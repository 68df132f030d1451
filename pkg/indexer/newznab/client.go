// Package newznab implements a direct Newznab indexer client: one HTTP GET
// per usable slot, permissive Newznab/RSS XML parsing, retry-with-jitter on
// transient failures, hard-fail on auth errors.
package newznab

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

	"streamnzb/pkg/config"
	"streamnzb/pkg/env"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
)

const maxAttempts = 3

// Client represents a Newznab API client for a single direct indexer slot.
type Client struct {
	baseURL string
	apiPath string
	apiKey  string
	name    string
	id      string
	paid    bool
	client  *http.Client

	apiUsed           int
	apiRemaining      int
	downloadUsed      int
	downloadRemaining int
	usageManager      *indexer.UsageManager
	mu                sync.RWMutex
}

var _ indexer.Indexer = (*Client)(nil)

// APIError represents a Newznab API error response.
type APIError struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

func (c *Client) Name() string {
	if c.name != "" {
		return c.name
	}
	return "Newznab"
}

// Paid reports whether this slot is marked as a paid indexer, for the
// ranker's dedupe paid-wins tiebreak.
func (c *Client) Paid() bool { return c.paid }

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

// NewClient creates a client for one configured Newznab slot.
func NewClient(cfg config.IndexerConfig, um *indexer.UsageManager) *Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}

	apiPath := cfg.APIPath
	if apiPath == "" {
		apiPath = "/api"
	}
	if !strings.HasPrefix(apiPath, "/") {
		apiPath = "/" + apiPath
	}

	c := &Client{
		name:    cfg.Name,
		id:      cfg.DedupeKey(),
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		apiPath: apiPath,
		apiKey:  cfg.APIKey,
		paid:    cfg.Paid,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		usageManager: um,
	}

	if um != nil {
		usage := um.GetIndexerUsage(cfg.Name)
		c.apiUsed = usage.APIHitsUsed
		c.downloadUsed = usage.DownloadsUsed
	}

	return c
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

func (c *Client) Ping() error {
	apiURL := fmt.Sprintf("%s%s?t=caps&apikey=%s", c.baseURL, c.apiPath, c.apiKey)
	resp, err := c.client.Get(apiURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s indexer returned error status: %d", c.Name(), resp.StatusCode)
	}
	return nil
}

func (c *Client) checkNewznabError(bodyBytes []byte) error {
	var apiErr APIError
	if err := xml.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Description != "" {
		switch {
		case apiErr.Code >= 100 && apiErr.Code <= 199:
			return fmt.Errorf("%s authentication error (code %d): %s", c.Name(), apiErr.Code, apiErr.Description)
		case apiErr.Code == 201:
			return fmt.Errorf("%s request limit reached (code %d): %s", c.Name(), apiErr.Code, apiErr.Description)
		default:
			return fmt.Errorf("%s API error (code %d): %s", c.Name(), apiErr.Code, apiErr.Description)
		}
	}
	return nil
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

// Search queries the Newznab indexer, retrying transient failures with jitter
// and hard-failing immediately on 401/403.
func (c *Client) Search(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("o", "xml")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("offset", "0")

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
	if req.Season != "" {
		params.Set("season", req.Season)
	}
	if req.Episode != "" {
		params.Set("ep", req.Episode)
	}

	apiURL := fmt.Sprintf("%s%s?%s", c.baseURL, c.apiPath, params.Encode())

	var bodyBytes []byte
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(context.Background(), "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if ua := env.IndexerQueryHeader(); ua != "" {
			httpReq.Header.Set("User-Agent", ua)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("failed to query %s: %w", c.Name(), err)
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
			lastErr = fmt.Errorf("failed to read %s response: %w", c.Name(), err)
			time.Sleep(jitterBackoff(attempt))
			continue
		}

		if isHardFail(resp.StatusCode) {
			return nil, fmt.Errorf("%s returned status %d: authentication rejected", c.Name(), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			if err := c.checkNewznabError(bodyBytes); err != nil {
				return nil, err
			}
			if isTransient(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("%s returned status %d", c.Name(), resp.StatusCode)
				time.Sleep(jitterBackoff(attempt))
				continue
			}
			return nil, fmt.Errorf("%s returned status %d: %s", c.Name(), resp.StatusCode, string(bodyBytes))
		}

		if err := c.checkNewznabError(bodyBytes); err != nil {
			return nil, err
		}

		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var result indexer.SearchResponse
	if err := xml.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", c.Name(), err)
	}

	filtered := result.Channel.Items[:0]
	for i := range result.Channel.Items {
		item := &result.Channel.Items[i]
		item.SourceIndexer = c
		item.IndexerID = c.id
		indexer.NormalizeItem(item)
		if item.Link == "" {
			logger.Debug("Dropping result with no NZB link", "indexer", c.Name(), "title", item.Title)
			continue
		}
		filtered = append(filtered, *item)
	}
	result.Channel.Items = filtered

	if len(result.Channel.Items) > limit {
		result.Channel.Items = result.Channel.Items[:limit]
	}

	return &result, nil
}

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
			lastErr = fmt.Errorf("failed to download NZB from %s: %w", c.Name(), err)
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
			return nil, fmt.Errorf("%s NZB download rejected with status %d", c.Name(), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if isTransient(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("%s NZB download returned status %d", c.Name(), resp.StatusCode)
				time.Sleep(jitterBackoff(attempt))
				continue
			}
			return nil, fmt.Errorf("%s NZB download returned status %d", c.Name(), resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read NZB data from %s: %w", c.Name(), err)
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	return data, nil
}
