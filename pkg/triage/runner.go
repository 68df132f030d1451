package triage

import (
	"context"
	"sync"
	"time"

	"streamnzb/pkg/config"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/nntp"
	"streamnzb/pkg/release"
)

// Runner evaluates a bounded, time-budgeted batch of candidate releases
// against a pooled NNTP client, producing one Decision per download URL.
type Runner struct {
	pool *nntp.ClientPool
	cfg  config.TriageConfig

	serializeMu sync.Mutex
	serialize   map[string]*sync.Mutex
}

// NewRunner builds a Runner bound to pool and driven by cfg.
func NewRunner(pool *nntp.ClientPool, cfg config.TriageConfig) *Runner {
	return &Runner{
		pool:      pool,
		cfg:       cfg,
		serialize: make(map[string]*sync.Mutex),
	}
}

// Run dedupes candidates by normalized title, keeps at most cfg.MaxCandidates,
// and fans them out across cfg.DownloadConcurrency workers under the
// cfg.TimeBudgetMS deadline. Candidates untouched when the deadline passes
// are finalized as pending.
func (r *Runner) Run(ctx context.Context, candidates []*release.Release) (map[string]*Decision, *Summary) {
	start := time.Now()
	summary := newSummary()
	decisions := make(map[string]*Decision)
	var mu sync.Mutex

	candidates = dedupeByTitle(candidates)
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}
	if len(candidates) == 0 {
		summary.ElapsedMS = time.Since(start).Milliseconds()
		return decisions, summary
	}

	deadline := start.Add(time.Duration(r.cfg.TimeBudgetMS) * time.Millisecond)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	concurrency := r.cfg.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	work := make(chan *release.Release, len(candidates))
	for _, c := range candidates {
		work <- c
	}
	close(work)

	a := newAnalyzer(r.pool, r.cfg)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range work {
				if time.Now().After(deadline) {
					mu.Lock()
					decisions[keyFor(rel)] = &Decision{Status: StatusPending, Title: rel.Title, NormTitle: release.NormalizeTitle(rel.Title)}
					summary.record(StatusPending)
					mu.Unlock()
					continue
				}

				unlock := r.acquireSerializationSlot(rel.IndexerID)
				d := r.evaluate(runCtx, rel, a)
				unlock()

				mu.Lock()
				decisions[keyFor(rel)] = d
				summary.record(d.Status)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	summary.ElapsedMS = time.Since(start).Milliseconds()
	summary.TimedOut = runCtx.Err() != nil
	return decisions, summary
}

// evaluate downloads one candidate's NZB (hard ~30s timeout) and runs the
// analyzer against it.
func (r *Runner) evaluate(ctx context.Context, rel *release.Release, a *analyzer) *Decision {
	base := &Decision{
		Title:      rel.Title,
		NormTitle:  release.NormalizeTitle(rel.Title),
		IndexerID:  rel.IndexerID,
		IndexerKey: rel.Indexer,
		PubDate:    rel.PubDate,
	}

	idx, ok := rel.SourceIndexer.(indexer.Indexer)
	if !ok {
		base.Status = StatusFetchError
		return base
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := idx.DownloadNZB(fetchCtx, rel.Link)
	if err != nil {
		logger.Debug("triage NZB fetch failed", "title", rel.Title, "err", err)
		base.Status = StatusFetchError
		base.Err = err
		return base
	}

	d := a.analyze(ctx, body)
	d.Title = base.Title
	d.NormTitle = base.NormTitle
	d.IndexerID = base.IndexerID
	d.IndexerKey = base.IndexerKey
	d.PubDate = base.PubDate
	if d.Status == StatusVerified {
		d.NZBBody = body
	}
	return d
}

// acquireSerializationSlot blocks until it owns the per-indexer mutex for
// indexerID, but only when that indexer is in cfg.SerializedIndexers (paid
// indexers that ban parallel downloads). Returns an unlock func that is a
// no-op when the indexer isn't serialized.
func (r *Runner) acquireSerializationSlot(indexerID string) func() {
	if !contains(r.cfg.SerializedIndexers, indexerID) {
		return func() {}
	}

	r.serializeMu.Lock()
	m, ok := r.serialize[indexerID]
	if !ok {
		m = &sync.Mutex{}
		r.serialize[indexerID] = m
	}
	r.serializeMu.Unlock()

	m.Lock()
	return m.Unlock
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// keyFor returns the download-URL key a Decision is stored under.
func keyFor(rel *release.Release) string {
	if rel.Link != "" {
		return rel.Link
	}
	return rel.DetailsURL
}

// dedupeByTitle keeps the first occurrence of each normalized title,
// preserving the ranker's ordering (best releases first).
func dedupeByTitle(candidates []*release.Release) []*release.Release {
	seen := make(map[string]bool)
	out := make([]*release.Release, 0, len(candidates))
	for _, c := range candidates {
		key := release.NormalizeTitle(c.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
