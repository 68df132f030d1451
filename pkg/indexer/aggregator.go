package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"streamnzb/pkg/logger"
	"streamnzb/pkg/release"
)

// breaker tracks a per-indexer circuit breaker as an atomic "unavailable
// until" unix-nano timestamp, tripped after a search failure and cleared
// once that deadline passes.
type breaker struct {
	unavailableUntil atomic.Int64
}

func (b *breaker) trip(backoff time.Duration) {
	b.unavailableUntil.Store(time.Now().Add(backoff).UnixNano())
}

func (b *breaker) open() bool {
	return time.Now().UnixNano() < b.unavailableUntil.Load()
}

// Aggregator combines multiple indexers into one, circuit-breaking each
// sub-indexer independently so one flaky backend does not slow down or fail
// the whole search.
type Aggregator struct {
	Indexers []Indexer
	Backoff  time.Duration

	breakersMu sync.Mutex
	breakers   map[Indexer]*breaker
}

func (a *Aggregator) breakerFor(idx Indexer) *breaker {
	a.breakersMu.Lock()
	defer a.breakersMu.Unlock()
	if a.breakers == nil {
		a.breakers = make(map[Indexer]*breaker)
	}
	b, ok := a.breakers[idx]
	if !ok {
		b = &breaker{}
		a.breakers[idx] = b
	}
	return b
}

// Name returns the name of the aggregator
func (a *Aggregator) Name() string {
	return "Aggregator"
}

// GetIndexers returns the list of sub-indexers
func (a *Aggregator) GetIndexers() []Indexer {
	return a.Indexers
}

// GetUsage returns the aggregate usage stats
func (a *Aggregator) GetUsage() Usage {
	var usage Usage
	for _, idx := range a.Indexers {
		u := idx.GetUsage()
		usage.APIHitsLimit += u.APIHitsLimit
		usage.APIHitsRemaining += u.APIHitsRemaining
		usage.DownloadsLimit += u.DownloadsLimit
		usage.DownloadsRemaining += u.DownloadsRemaining
	}
	return usage
}

// defaultBackoff is used when the Aggregator's Backoff field is unset.
const defaultBackoff = 120 * time.Second

// NewAggregator creates a new indexer aggregator.
func NewAggregator(indexers ...Indexer) *Aggregator {
	return &Aggregator{
		Indexers: indexers,
		Backoff:  defaultBackoff,
	}
}

// Ping checks if all configured indexers are reachable
// Returns nil if at least one is reachable, otherwise the last error
func (a *Aggregator) Ping() error {
	var lastErr error
	successCount := 0

	for _, idx := range a.Indexers {
		if err := idx.Ping(); err != nil {
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && len(a.Indexers) > 0 {
		return fmt.Errorf("all indexers failed ping, last error: %w", lastErr)
	}
	return nil
}

// DownloadNZB attempts to download using the first indexer; when nzbURL is a proxy link,
// the indexer that owns that host should be used, so each indexer is tried until one succeeds.
func (a *Aggregator) DownloadNZB(ctx context.Context, nzbURL string) ([]byte, error) {
	if len(a.Indexers) == 0 {
		return nil, fmt.Errorf("no indexers configured")
	}
	var lastErr error
	for _, idx := range a.Indexers {
		data, err := idx.DownloadNZB(ctx, nzbURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ResolveDownloadURL searches all indexers by title and returns the first matching item's Link
// (e.g. Prowlarr proxy URL) so a mount request can reach the indexer's actual download endpoint.
func (a *Aggregator) ResolveDownloadURL(ctx context.Context, directURL, title string, size int64, cat string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title required to resolve download URL")
	}
	req := SearchRequest{Query: title, Limit: 30, Cat: cat}
	resp, err := a.Search(req)
	if err != nil {
		return "", fmt.Errorf("search for resolve: %w", err)
	}
	if resp == nil || len(resp.Channel.Items) == 0 {
		return "", fmt.Errorf("no search results for title")
	}
	normTitle := release.NormalizeTitle(title)
	var bestMatch string
	for _, item := range resp.Channel.Items {
		if release.NormalizeTitle(item.Title) != normTitle {
			continue
		}
		if item.Link == "" {
			continue
		}
		// Prefer exact size match when size is known
		if size > 0 && item.Size > 0 && item.Size == size {
			return item.Link, nil
		}
		// Keep first title match as fallback (sizes can differ across indexers/sources)
		if bestMatch == "" {
			bestMatch = item.Link
		}
	}
	if bestMatch != "" {
		return bestMatch, nil
	}
	return "", fmt.Errorf("no matching release for title in search results")
}

// Search queries all indexers in parallel and merges results
func (a *Aggregator) Search(req SearchRequest) (*SearchResponse, error) {
	resultsChan := make(chan []Item, len(a.Indexers))
	var wg sync.WaitGroup

	backoff := a.Backoff
	if backoff == 0 {
		backoff = defaultBackoff
	}

	// Launch parallel searches, skipping indexers whose circuit breaker is open.
	for _, idx := range a.Indexers {
		b := a.breakerFor(idx)
		if b.open() {
			logger.Debug("Skipping indexer, circuit breaker open", "indexer", idx.Name())
			continue
		}

		wg.Add(1)
		go func(indexer Indexer, br *breaker) {
			defer wg.Done()

			resp, err := indexer.Search(req)
			if err != nil {
				logger.Warn("Indexer search failed", "indexer", indexer.Name(), "err", err)
				br.trip(backoff)
				resultsChan <- []Item{}
				return
			}

			if resp != nil {
				resultsChan <- resp.Channel.Items
			}
		}(idx, b)
	}

	// Wait for all searches to complete
	wg.Wait()
	close(resultsChan)

	// Collect results
	var allItems []Item
	for items := range resultsChan {
		allItems = append(allItems, items...)
	}

	// Deduplicate results using multiple strategies
	// 1. GUID (most reliable)
	// 2. Link URL (fallback)
	// 3. Title + Size (for cases where GUID/Link differ but same release)
	seenGUID := make(map[string]bool)
	seenLink := make(map[string]bool)
	seenTitleSize := make(map[string]bool)
	uniqueItems := []Item{}

	for _, item := range allItems {
		// Use release.NormalizeTitle for consistent comparison across the app
		normalizedTitle := release.NormalizeTitle(item.Title)
		
		// Strategy 1: GUID (most reliable)
		if item.GUID != "" {
			if seenGUID[item.GUID] {
				continue
			}
			seenGUID[item.GUID] = true
			uniqueItems = append(uniqueItems, item)
			continue
		}

		// Strategy 2: Link URL
		if item.Link != "" {
			// Normalize link (remove query params, fragments)
			normalizedLink := normalizeURL(item.Link)
			if seenLink[normalizedLink] {
				continue
			}
			seenLink[normalizedLink] = true
			uniqueItems = append(uniqueItems, item)
			continue
		}

		// Strategy 3: Title + Size (last resort for releases without GUID/Link)
		titleSizeKey := fmt.Sprintf("%s:%d", normalizedTitle, item.Size)
		if item.Size > 0 && seenTitleSize[titleSizeKey] {
			continue
		}
		if item.Size > 0 {
			seenTitleSize[titleSizeKey] = true
		}
		uniqueItems = append(uniqueItems, item)
	}

	// Sort by size descending as a default heuristic
	sort.Slice(uniqueItems, func(i, j int) bool {
		return uniqueItems[i].Size > uniqueItems[j].Size
	})

	resp := &SearchResponse{
		XMLName: xml.Name{Local: "rss"},
		Channel: Channel{
			Items: uniqueItems,
		},
	}
	NormalizeSearchResponse(resp)
	return resp, nil
}

// normalizeURL normalizes a URL for deduplication by removing query params and fragments
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	// Rebuild URL with just scheme, host, and path
	normalized := fmt.Sprintf("%s://%s%s", parsed.Scheme, parsed.Host, parsed.Path)
	return strings.ToLower(strings.TrimSpace(normalized))
}
