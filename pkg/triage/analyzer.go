package triage

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"

	"streamnzb/pkg/archive"
	"streamnzb/pkg/config"
	"streamnzb/pkg/decode"
	"streamnzb/pkg/nntp"
	"streamnzb/pkg/nzb"
)

// errMissing indicates a STAT came back negative (article doesn't exist).
var errMissing = errors.New("triage: article missing")

// analyzer runs the per-NZB health check: archive-candidate selection, a
// bounded STAT sample, and a conditional BODY-fetch-and-sniff of the
// best-scoring archive.
type analyzer struct {
	pool *nntp.ClientPool
	cfg  config.TriageConfig
}

func newAnalyzer(pool *nntp.ClientPool, cfg config.TriageConfig) *analyzer {
	return &analyzer{pool: pool, cfg: cfg}
}

// archiveCandidate is one canonical archive grouping found in the NZB, with
// its highest-scoring representative file.
type archiveCandidate struct {
	basename string
	file     *nzb.FileInfo
	score    int
}

// analyze inspects one parsed NZB and returns its Decision. ctx carries the
// remaining time budget as a deadline.
func (a *analyzer) analyze(ctx context.Context, body []byte) *Decision {
	parsed, err := nzb.Parse(strings.NewReader(string(body)))
	if err != nil {
		return &Decision{Status: StatusError, Err: err}
	}

	d := &Decision{FileCount: len(parsed.Files)}
	if len(parsed.Files) == 0 {
		d.Status = StatusSkipped
		return d
	}

	candidates := archiveCandidates(parsed)
	if len(candidates) == 0 {
		d.Warnings = append(d.Warnings, "no-archive-candidates")
		a.sampleAndAccept(ctx, parsed, d)
		return a.synthesize(d)
	}

	best := candidates[0]
	if err := a.checkSegment(ctx, best.file.File.Segments[0].ID, d); err != nil {
		d.Blockers = append(d.Blockers, "missing-articles")
	} else {
		head, err := a.fetchHead(ctx, best.file.File.Segments[0].ID)
		if err != nil {
			d.Blockers = append(d.Blockers, "missing-articles")
		} else {
			findings := archive.Sniff(head)
			d.Findings = append(d.Findings, findings)
			classifyFindings(findings, archive.HasNestedArchiveSignature(head), d)
		}
	}

	// Sample a few additional segments across the other archive groups.
	other := candidates[1:]
	n := a.cfg.ArchiveSampleCount
	if n > len(other) {
		n = len(other)
	}
	for _, c := range shuffleCandidates(other)[:n] {
		if err := a.checkSegment(ctx, c.file.File.Segments[0].ID, d); err != nil {
			d.Blockers = append(d.Blockers, "missing-articles")
		} else {
			d.Findings = append(d.Findings, archive.Findings{Format: archive.FormatNone})
			d.Warnings = append(d.Warnings, "segment-ok")
		}
	}

	return a.synthesize(d)
}

// sampleAndAccept handles the no-archive-candidates path: STAT a random
// sample of unique segments from the largest content file and accept unless
// one is missing.
func (a *analyzer) sampleAndAccept(ctx context.Context, n *nzb.NZB, d *Decision) {
	files := n.GetContentFiles()
	if len(files) == 0 {
		d.Warnings = append(d.Warnings, "no-content-files")
		return
	}
	ids := sampleSegmentIDs(files[0].File.Segments, a.cfg.StatSampleCount)
	if len(ids) == 0 {
		return
	}
	ok := 0
	for _, id := range ids {
		if err := a.checkSegment(ctx, id, d); err != nil {
			d.Blockers = append(d.Blockers, "missing-articles")
		} else {
			ok++
		}
	}
	if ok > 0 {
		d.Warnings = append(d.Warnings, "segment-ok")
	}
}

// checkSegment STATs one segment ID against a pooled connection.
func (a *analyzer) checkSegment(ctx context.Context, id string, d *Decision) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c, err := a.pool.Get()
	if err != nil {
		return err
	}
	ok, err := c.StatArticle(id)
	if err != nil {
		a.pool.Discard(c)
		return err
	}
	a.pool.Put(c)
	if !ok {
		return errMissing
	}
	return nil
}

// fetchHead BODY-fetches a segment, yEnc-decodes it, and returns up to 256
// KiB of decoded bytes for archive sniffing.
func (a *analyzer) fetchHead(ctx context.Context, id string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c, err := a.pool.Get()
	if err != nil {
		return nil, err
	}
	r, err := c.Body(id)
	if err != nil {
		a.pool.Discard(c)
		return nil, err
	}
	frame, err := decode.DecodeToBytes(r)
	a.pool.Put(c)
	if err != nil {
		return nil, err
	}

	const maxSniffBytes = 256 * 1024
	if len(frame.Data) > maxSniffBytes {
		return frame.Data[:maxSniffBytes], nil
	}
	return frame.Data, nil
}

// classifyFindings maps one archive.Findings result, plus the
// format-agnostic nested-archive heuristic overlay (archive.HasNestedArchiveSignature
// scanning the same decoded bytes for archive-part filenames), onto
// blockers/warnings. The nested-archive blocker name is format-specific:
// rar-nested-archive for RAR4/RAR5, sevenzip-nested-archive for 7z.
func classifyFindings(f archive.Findings, hasNestedSignature bool, d *Decision) {
	if f.Format == archive.FormatNone {
		d.Blockers = append(d.Blockers, "rar-header-not-found")
		return
	}

	nestedBlocker := "rar-nested-archive"
	if f.Format == archive.Format7z {
		nestedBlocker = "sevenzip-nested-archive"
	}

	if f.Format == archive.Format7z {
		if hasNestedSignature {
			d.Blockers = append(d.Blockers, nestedBlocker)
			return
		}
		d.Warnings = append(d.Warnings, "sevenzip-untested")
		return
	}

	if f.Encrypted {
		d.Blockers = append(d.Blockers, "rar-encrypted")
		return
	}
	if f.Solid {
		d.Blockers = append(d.Blockers, "rar-solid")
		return
	}
	if f.Nested || hasNestedSignature {
		d.Blockers = append(d.Blockers, nestedBlocker)
		return
	}
	if f.Stored {
		d.Warnings = append(d.Warnings, "rar-stored")
		return
	}
	if f.Compressed {
		d.Blockers = append(d.Blockers, "rar-compressed")
		return
	}
	if f.Format == archive.FormatRAR5 {
		// Neither a file header nor any other signal could be parsed from
		// the sampled bytes; unlike RAR4 this has its own blocker token.
		d.Blockers = append(d.Blockers, "rar5-unsupported")
	}
}

// synthesize applies the decision rules in order: any blocker wins; a
// positive finding (rar-stored, segment-ok) without blockers verifies;
// 7z-only evidence without blockers or positive findings is unverified_7z;
// anything else is unverified.
func (a *analyzer) synthesize(d *Decision) *Decision {
	if len(d.Blockers) > 0 {
		d.Status = StatusBlocked
		return d
	}

	hasPositive := containsAny(d.Warnings, "rar-stored", "segment-ok")
	if hasPositive {
		d.Status = StatusVerified
		return d
	}

	if containsAny(d.Warnings, "sevenzip-untested") {
		d.Status = StatusUnverified7z
		return d
	}

	d.Status = StatusUnverified
	return d
}

func containsAny(list []string, want ...string) bool {
	for _, w := range want {
		for _, item := range list {
			if item == w {
				return true
			}
		}
	}
	return false
}

// isArchiveExt classifies a lowercase file extension as archive-shaped:
// .rar, .7z, .NNN (split volumes), or .rNN (old-style RAR volumes).
func isArchiveExt(ext string) bool {
	if ext == ".rar" || ext == ".7z" {
		return true
	}
	if len(ext) == 4 && ext[0] == '.' {
		if ext[1] == 'r' {
			return ext[2] >= '0' && ext[2] <= '9' && ext[3] >= '0' && ext[3] <= '9'
		}
		return ext[1] >= '0' && ext[1] <= '9' && ext[2] >= '0' && ext[2] <= '9' && ext[3] >= '0' && ext[3] <= '9'
	}
	return false
}

// canonicalBasename collapses archive-part naming to its shared base, so
// "name.part01.rar" and "name.r00" group under "name".
func canonicalBasename(filename string) string {
	s := strings.ToLower(filename)
	ext := filepath.Ext(s)
	s = strings.TrimSuffix(s, ext)
	if idx := strings.LastIndex(s, ".part"); idx != -1 {
		s = s[:idx]
	}
	return strings.Trim(s, " .-_")
}

// scoreArchiveFile ranks filename-shaped heuristics: .rar highest, then
// .r00-style volumes, then generic part-rar; proof/sample/nfo are penalized.
func scoreArchiveFile(filename string) int {
	lower := strings.ToLower(filename)
	ext := strings.ToLower(filepath.Ext(filename))

	score := 0
	switch {
	case ext == ".rar" && !strings.Contains(lower, ".part"):
		score = 100
	case strings.HasSuffix(ext, "00") && len(ext) == 4 && ext[1] == 'r':
		score = 80
	case strings.Contains(lower, ".part"):
		score = 60
	default:
		score = 40
	}

	if strings.Contains(lower, "proof") || strings.Contains(lower, "sample") || strings.Contains(lower, "nfo") {
		score -= 200
	}

	return score
}

// archiveCandidates groups the NZB's archive-shaped files by canonical
// basename and returns one representative per group (the highest-scoring
// file in it), ordered best score first.
func archiveCandidates(n *nzb.NZB) []archiveCandidate {
	infos := n.GetFileInfo()
	groups := make(map[string]*archiveCandidate)
	order := make([]string, 0)

	for _, info := range infos {
		if !isArchiveExt(info.Extension) {
			continue
		}
		base := canonicalBasename(info.Filename)
		score := scoreArchiveFile(info.Filename)

		existing, ok := groups[base]
		if !ok {
			order = append(order, base)
			groups[base] = &archiveCandidate{basename: base, file: info, score: score}
			continue
		}
		if score > existing.score {
			existing.file = info
			existing.score = score
		}
	}

	out := make([]archiveCandidate, 0, len(order))
	for _, base := range order {
		out = append(out, *groups[base])
	}
	sortCandidatesByScore(out)
	return out
}

func sortCandidatesByScore(c []archiveCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].score > c[j-1].score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func shuffleCandidates(c []archiveCandidate) []archiveCandidate {
	out := make([]archiveCandidate, len(c))
	copy(out, c)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// sampleSegmentIDs returns up to n unique segment IDs: always the first and
// last, then a random fill of the remainder, grounded on the teacher's
// evenly-distributed sampling strategy but randomized per the triage spec.
func sampleSegmentIDs(segments []nzb.Segment, n int) []string {
	if len(segments) == 0 || n <= 0 {
		return nil
	}
	if n > len(segments) {
		n = len(segments)
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	add(segments[0].ID)
	if len(segments) > 1 {
		add(segments[len(segments)-1].ID)
	}

	if len(ids) < n {
		perm := rand.Perm(len(segments))
		for _, idx := range perm {
			if len(ids) >= n {
				break
			}
			add(segments[idx].ID)
		}
	}

	return ids
}
